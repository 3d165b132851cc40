package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/aisgo/ais-workspace/utils/id-generator/snowflake"
)

/* ========================================================================
 * Domain Events - 工作区领域事件
 * ========================================================================
 * 职责: 工作区切换、成员变更、删除与安全违规的事件模型
 * 说明: 事件 ID 使用 snowflake，按时间有序；消息键为工作区 ID
 * ======================================================================== */

// Type 事件类型
type Type string

const (
	TypeWorkspaceSwitched Type = "workspace.switched"
	TypeMembershipChanged Type = "workspace.membership_changed"
	TypeWorkspaceDeleted  Type = "workspace.deleted"
	TypeSecurityViolation Type = "security.violation"
)

// Event 领域事件
type Event struct {
	ID          int64             `json:"id,string"`
	Type        Type              `json:"type"`
	WorkspaceID string            `json:"workspace_id"`
	PrincipalID string            `json:"principal_id"`
	SubjectID   string            `json:"subject_id,omitempty"` // 被操作的成员或记录
	Attributes  map[string]string `json:"attributes,omitempty"`
	OccurredAt  time.Time         `json:"occurred_at"`
}

// New 创建事件
func New(t Type, workspaceID, principalID string) *Event {
	return &Event{
		ID:          snowflake.Generate(),
		Type:        t,
		WorkspaceID: workspaceID,
		PrincipalID: principalID,
		OccurredAt:  time.Now().UTC(),
	}
}

// WithSubject 设置被操作对象
func (e *Event) WithSubject(id string) *Event {
	e.SubjectID = id
	return e
}

// With 设置附加属性
func (e *Event) With(key, value string) *Event {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[key] = value
	return e
}

// Encode 序列化事件
func (e *Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode 反序列化事件
func Decode(body []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if e.Type == "" {
		return nil, fmt.Errorf("decode event: missing type")
	}
	return &e, nil
}
