package model

import (
	"time"

	"github.com/aisgo/ais-workspace/utils/id-generator/ulid"

	"gorm.io/gorm"
	"gorm.io/plugin/soft_delete"
)

/* ========================================================================
 * Base Model - 基础模型
 * ========================================================================
 * 职责: 定义所有记录的公共字段
 * 字段: ULID 主键、创建时间、更新时间、软删除标记
 * ======================================================================== */

// BaseModel 所有模型的基类
type BaseModel struct {
	ID         string                `json:"id" gorm:"type:char(26);primaryKey;comment:主键ID"`
	CreateTime time.Time             `json:"create_time" gorm:"column:create_time;autoCreateTime;comment:创建时间"`
	UpdateTime time.Time             `json:"update_time" gorm:"column:update_time;autoUpdateTime;comment:更新时间"`
	Deleted    soft_delete.DeletedAt `json:"-" gorm:"column:deleted;default:0;softDelete:flag;comment:软删除标记(1=已删除)"`
}

// BeforeCreate 在创建前补齐 ULID，已预先生成的 ID 保持不变
func (m *BaseModel) BeforeCreate(*gorm.DB) error {
	m.EnsureID()
	return nil
}

// EnsureID 为空 ID 生成 ULID 并返回最终 ID
func (m *BaseModel) EnsureID() string {
	if m.ID == "" {
		m.ID = ulid.GenerateString()
	}
	return m.ID
}

// GetID 返回记录 ID
func (m BaseModel) GetID() string {
	return m.ID
}
