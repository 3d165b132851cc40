package validator

import (
	"reflect"
	"strings"
	"sync"
	"time"
)

// fieldInfo 字段信息
type fieldInfo struct {
	index       int
	name        string // 错误中使用的名称，优先 json 标签
	validateTag string
	errorMsgTag string
	isStruct    bool // 需要递归的嵌套结构体
	isPtr       bool
}

var timeType = reflect.TypeFor[time.Time]()

// typeCache 结构体字段信息缓存，减少反射开销
type typeCache struct {
	mu    sync.RWMutex
	cache map[reflect.Type][]fieldInfo
}

func newTypeCache() *typeCache {
	return &typeCache{cache: make(map[reflect.Type][]fieldInfo)}
}

func (tc *typeCache) getFieldsInfo(t reflect.Type) []fieldInfo {
	tc.mu.RLock()
	info, exists := tc.cache[t]
	tc.mu.RUnlock()
	if exists {
		return info
	}

	tc.mu.Lock()
	defer tc.mu.Unlock()
	// 双重检查，避免重复解析
	if info, exists := tc.cache[t]; exists {
		return info
	}

	var fields []fieldInfo
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.PkgPath != "" {
			// 跳过未导出字段：反射读取 Interface() 会 panic
			continue
		}
		fieldType := field.Type
		isPtr := fieldType.Kind() == reflect.Pointer
		if isPtr {
			fieldType = fieldType.Elem()
		}

		fields = append(fields, fieldInfo{
			index:       i,
			name:        fieldName(field),
			validateTag: field.Tag.Get("validate"),
			errorMsgTag: field.Tag.Get(tagCustom),
			// time.Time 等值类型按普通字段校验
			isStruct: fieldType.Kind() == reflect.Struct && fieldType != timeType && field.Tag.Get("validate") == "",
			isPtr:    isPtr,
		})
	}

	tc.cache[t] = fields
	return fields
}

func fieldName(field reflect.StructField) string {
	name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return field.Name
	}
	return name
}
