package model

import (
	"slices"
	"time"
)

// WorkspaceType 仅用于展示，不影响行为
type WorkspaceType string

const (
	WorkspaceTypePersonal WorkspaceType = "personal"
	WorkspaceTypeTeam     WorkspaceType = "team"
	WorkspaceTypeClient   WorkspaceType = "client"
)

// Valid 是否为已知类型
func (t WorkspaceType) Valid() bool {
	switch t {
	case WorkspaceTypePersonal, WorkspaceTypeTeam, WorkspaceTypeClient:
		return true
	}
	return false
}

// Workspace 租户（工作区）
// 每个主体恰有一个默认工作区；所有者总是隐式成员，不写入 Membership。
type Workspace struct {
	BaseModel
	Name      string `json:"name" gorm:"size:128;not null"`
	OwnerID   string `json:"owner_id" gorm:"type:char(26);not null;index"`
	IsDefault bool   `json:"is_default" gorm:"not null;default:false"`
	// DefaultOwner 仅默认工作区取值为 OwnerID，唯一索引保证每个主体恰有一个默认工作区
	DefaultOwner *string       `json:"-" gorm:"type:char(26);uniqueIndex"`
	Type         WorkspaceType `json:"type" gorm:"size:16;not null;default:personal"`
	Members      []Membership  `json:"members,omitempty" gorm:"foreignKey:WorkspaceID"`
}

// Membership 工作区成员关系（不含所有者）
type Membership struct {
	WorkspaceID string    `json:"workspace_id" gorm:"type:char(26);primaryKey"`
	PrincipalID string    `json:"principal_id" gorm:"type:char(26);primaryKey;index"`
	CreateTime  time.Time `json:"create_time" gorm:"column:create_time;autoCreateTime"`
}

// MemberIDs 返回包含所有者在内的成员 ID，所有者在首位
func (w Workspace) MemberIDs() []string {
	ids := make([]string, 0, len(w.Members)+1)
	ids = append(ids, w.OwnerID)
	for _, m := range w.Members {
		if !slices.Contains(ids, m.PrincipalID) {
			ids = append(ids, m.PrincipalID)
		}
	}
	return ids
}

// HasMember principalID 是否为所有者或显式成员
func (w Workspace) HasMember(principalID string) bool {
	if principalID == "" {
		return false
	}
	if w.OwnerID == principalID {
		return true
	}
	for _, m := range w.Members {
		if m.PrincipalID == principalID {
			return true
		}
	}
	return false
}
