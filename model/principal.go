package model

import (
	"strings"

	"gorm.io/gorm"
)

// Principal 已认证主体
// 角色不在此存储：是否为管理员取决于与具体工作区的所有权关系。
type Principal struct {
	BaseModel
	Email             string  `json:"email" gorm:"size:320;not null"`
	EmailCI           string  `json:"-" gorm:"column:email_ci;size:320;not null;uniqueIndex"`
	DisplayName       string  `json:"display_name" gorm:"size:128"`
	ActiveWorkspaceID *string `json:"-" gorm:"column:active_workspace_id;type:char(26)"`
}

// NormalizeEmail 返回用于唯一性比较的邮箱形式
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SameEmail 忽略大小写比较邮箱
func (p Principal) SameEmail(email string) bool {
	return NormalizeEmail(p.Email) == NormalizeEmail(email)
}

// BeforeSave 保持 EmailCI 与 Email 同步
func (p *Principal) BeforeSave(*gorm.DB) error {
	// 按列更新时 Email 为空，不覆盖
	if p.Email != "" {
		p.EmailCI = NormalizeEmail(p.Email)
	}
	return nil
}
