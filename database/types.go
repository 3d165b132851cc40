package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

/* ========================================================================
 * JSONB Type - 实体扩展属性
 * ========================================================================
 * 职责: 映射 PostgreSQL JSONB / MySQL JSON / SQLite TEXT 列
 * ======================================================================== */

// JSONB 自定义类型，用于任务标签、文档元数据等自由结构字段
type JSONB map[string]any

// Value 实现 driver.Valuer 接口
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return "{}", nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan 实现 sql.Scanner 接口
func (j *JSONB) Scan(value any) error {
	if value == nil {
		*j = make(JSONB)
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("unsupported type for JSONB scan")
	}
	return json.Unmarshal(data, j)
}

// GormDataType 让 gorm 为不同方言选择 JSON 列类型
func (JSONB) GormDataType() string {
	return "json"
}
