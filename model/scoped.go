package model

import "reflect"

// Scoped 所有租户隔离记录实现的接口
// tenant_id 为 nil 表示工作区隔离上线之前写入的历史记录
type Scoped interface {
	GetID() string
	GetTenantID() *string
}

// TenantStamper 由数据访问层写入租户的记录指针实现
type TenantStamper interface {
	SetTenantID(id *string)
	EnsureID() string
}

// ScopedModel 属于工作区的实体嵌入此结构
// TenantID 仅在创建时写入，不支持在工作区之间移动记录
type ScopedModel struct {
	BaseModel
	TenantID *string `json:"tenant_id" gorm:"column:tenant_id;type:char(26);index"`
}

func (m ScopedModel) GetTenantID() *string {
	return m.TenantID
}

func (m *ScopedModel) SetTenantID(id *string) {
	m.TenantID = id
}

// IsLegacy 是否为历史记录
func IsLegacy(s Scoped) bool {
	return s.GetTenantID() == nil
}

// TenantOf 返回 s 的 tenant_id，历史记录返回空串
func TenantOf(s Scoped) string {
	if tid := s.GetTenantID(); tid != nil {
		return *tid
	}
	return ""
}

// IsNil s 为 nil 或带类型的 nil 指针
// 对带类型的 nil 指针调用值接收者方法会 panic，调用前需先判断
func IsNil(s Scoped) bool {
	if s == nil {
		return true
	}
	rv := reflect.ValueOf(s)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

// StringPtr 返回 s 的指针
func StringPtr(s string) *string {
	return &s
}
