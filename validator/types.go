package validator

import (
	"slices"
	"strings"

	bizerrors "github.com/aisgo/ais-workspace/errors"
)

const (
	// tagCustom 自定义错误消息标签名
	tagCustom = "error_msg"
	// ruleSeparator 规则分隔符，用于分隔多个规则
	ruleSeparator = "|"
	// keyValueSep 键值分隔符，用于分隔规则名和错误消息
	keyValueSep = ":"
)

// ValidationError 按字段分组的验证错误，字段名取 json 标签
// 使用示例:
//
//	type CreateInput struct {
//	    Name string              `json:"name" validate:"required,max=128" error_msg:"required:name is required"`
//	    Type model.WorkspaceType `json:"type" validate:"omitempty,workspace_type" error_msg:"workspace_type:type must be personal, team or client"`
//	}
type ValidationError struct {
	Errors map[string][]string // 字段名 -> 错误消息列表
}

// Error 按字段名排序输出，便于日志与测试比对
func (v ValidationError) Error() string {
	fields := v.Fields()
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+strings.Join(v.Errors[field], ", "))
	}
	return strings.Join(parts, "; ")
}

// HasErrors 检查是否有验证错误
func (v ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Fields 出错的字段名，已排序
func (v ValidationError) Fields() []string {
	fields := make([]string, 0, len(v.Errors))
	for field := range v.Errors {
		fields = append(fields, field)
	}
	slices.Sort(fields)
	return fields
}

// Add 添加字段错误
func (v *ValidationError) Add(field, message string) {
	if v.Errors == nil {
		v.Errors = make(map[string][]string)
	}
	v.Errors[field] = append(v.Errors[field], message)
}

// BizError 转为 InvalidArgument，Cause 保留字段明细
func (v *ValidationError) BizError() *bizerrors.BizError {
	return bizerrors.Wrap(bizerrors.ErrCodeInvalidArgument, v.Error(), v)
}
