package repository

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	bizerrors "github.com/aisgo/ais-workspace/errors"
)

/* ========================================================================
 * 查询参数校验
 * ========================================================================
 * 职责: 过滤条件、排序、更新字段只允许映射到模型已知列
 *       调用方传入的 tenant_id 一律移除，由活动租户决定
 * 设计: 白名单模式 + 黑名单防御
 * ======================================================================== */

var (
	// 列名白名单正则：仅允许字母、数字、下划线
	columnPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

	orderDirections = map[string]string{
		"ASC":  "ASC",
		"DESC": "DESC",
	}

	// SQL 危险关键字黑名单
	dangerousKeywords = []string{
		"DROP", "DELETE", "UPDATE", "INSERT", "TRUNCATE", "ALTER", "CREATE",
		"GRANT", "REVOKE", "EXEC", "EXECUTE", "UNION", "INTO", "OUTFILE",
		"LOAD_FILE", "DUMPFILE", "--", "/*", "*/", ";", "SLEEP", "BENCHMARK",
	}
)

// ValidationError 查询参数校验错误
type ValidationError struct {
	Field  string // filter / sort / fields
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

func invalid(field, value, reason string) error {
	vErr := &ValidationError{Field: field, Value: value, Reason: reason}
	return bizerrors.Wrap(bizerrors.ErrCodeInvalidArgument, vErr.Error(), vErr)
}

// ValidateOrderBy 校验排序字符串并返回规范化结果
//
// 允许格式:
//   - "column"
//   - "column ASC" / "column desc"
//   - "col1 ASC, col2 DESC"
func ValidateOrderBy(orderBy string, s *schema.Schema) (string, error) {
	if strings.TrimSpace(orderBy) == "" {
		return "", nil
	}
	if err := checkDangerousKeywords(orderBy, "sort"); err != nil {
		return "", err
	}

	parts := strings.Split(orderBy, ",")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		fields := strings.Fields(part)
		if len(fields) == 0 || len(fields) > 2 {
			return "", invalid("sort", part, "must be 'column' or 'column ASC/DESC'")
		}
		column := fields[0]
		if !columnPattern.MatchString(column) {
			return "", invalid("sort", column, "column name contains invalid characters")
		}
		if s != nil {
			if _, ok := s.FieldsByDBName[column]; !ok {
				return "", invalid("sort", column, "unknown column")
			}
		}
		direction := "ASC"
		if len(fields) == 2 {
			d, ok := orderDirections[strings.ToUpper(fields[1])]
			if !ok {
				return "", invalid("sort", part, "direction must be ASC or DESC")
			}
			direction = d
		}
		normalized = append(normalized, column+" "+direction)
	}
	return strings.Join(normalized, ", "), nil
}

// filterColumns 校验过滤条件；tenant_id 被丢弃
func filterColumns(filter Filter, s *schema.Schema) (map[string]any, error) {
	out := make(map[string]any, len(filter))
	for k, v := range filter {
		field := lookupField(s, k)
		if field == nil {
			return nil, invalid("filter", k, "unknown column")
		}
		if field.DBName == tenantColumn {
			continue
		}
		out[field.DBName] = v
	}
	return out, nil
}

// filterUpdates 过滤更新字段，防止批量赋值漏洞
// 主键、tenant_id、不可更新列与系统维护列被移除；未知列返回错误
func filterUpdates(updates map[string]any, s *schema.Schema) (map[string]any, error) {
	filtered := make(map[string]any, len(updates))
	for k, v := range updates {
		field := lookupField(s, k)
		if field == nil {
			return nil, invalid("fields", k, "unknown column")
		}
		if field.PrimaryKey || !field.Updatable || field.DBName == tenantColumn || managedColumn(field) {
			continue
		}
		filtered[field.DBName] = v
	}
	return filtered, nil
}

// managedColumn 创建/更新时间与软删除标记由 gorm 维护
func managedColumn(field *schema.Field) bool {
	if field.AutoCreateTime > 0 || field.AutoUpdateTime > 0 {
		return true
	}
	if _, ok := field.TagSettings["SOFTDELETE"]; ok {
		return true
	}
	return field.FieldType == reflect.TypeFor[gorm.DeletedAt]()
}

// lookupField 优先匹配数据库列名，再匹配结构体字段名
func lookupField(s *schema.Schema, key string) *schema.Field {
	if field, ok := s.FieldsByDBName[key]; ok {
		return field
	}
	if field, ok := s.FieldsByName[key]; ok && field.DBName != "" {
		return field
	}
	return nil
}

// checkDangerousKeywords 检查危险关键字
func checkDangerousKeywords(value, field string) error {
	upperValue := strings.ToUpper(value)
	for _, keyword := range dangerousKeywords {
		// 单词边界匹配，避免误判 create_time 等合法列名
		if isKeywordMatch(upperValue, keyword) {
			return invalid(field, value, "contains dangerous keyword "+keyword)
		}
	}
	return nil
}

// isKeywordMatch 检查关键字是否匹配（使用单词边界）
func isKeywordMatch(text, keyword string) bool {
	if keyword == "--" || keyword == "/*" || keyword == "*/" || keyword == ";" {
		return strings.Contains(text, keyword)
	}

	for offset := 0; offset < len(text); {
		idx := strings.Index(text[offset:], keyword)
		if idx == -1 {
			return false
		}
		start := offset + idx
		end := start + len(keyword)
		if (start == 0 || !isWordChar(text[start-1])) && (end == len(text) || !isWordChar(text[end])) {
			return true
		}
		offset = start + 1
	}
	return false
}

// isWordChar 检查字符是否为单词字符（字母、数字、下划线）
func isWordChar(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') ||
		(c >= '0' && c <= '9') || c == '_'
}
