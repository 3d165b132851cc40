package validator

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/aisgo/ais-workspace/model"
)

/* ========================================================================
 * Validator - 请求参数验证
 * ========================================================================
 * 职责: 带自定义错误消息的结构体验证，错误转为 InvalidArgument
 * 特性:
 *   - error_msg 标签定义自定义错误消息
 *   - 嵌套结构体递归验证，字段路径使用 json 名称
 *   - 内置 ulid / workspace_type 规则
 * 使用示例:
 *     v := validator.New()
 *     if err := v.Check(&in); err != nil {
 *         return nil, err // *errors.BizError, ErrCodeInvalidArgument
 *     }
 * ======================================================================== */

var ulidPattern = regexp.MustCompile(`^[0-9A-HJKMNP-TV-Z]{26}$`)

// Validator 自定义验证器
type Validator struct {
	validator     *validator.Validate
	typeCache     *typeCache
	errorMsgCache map[string]map[string]string
	mu            sync.RWMutex
}

// New 创建验证器并注册领域规则
func New() *Validator {
	v := validator.New()
	_ = v.RegisterValidation("ulid", func(fl validator.FieldLevel) bool {
		return ulidPattern.MatchString(strings.ToUpper(fl.Field().String()))
	})
	_ = v.RegisterValidation("workspace_type", func(fl validator.FieldLevel) bool {
		return model.WorkspaceType(fl.Field().String()).Valid()
	})
	return &Validator{
		validator:     v,
		typeCache:     newTypeCache(),
		errorMsgCache: make(map[string]map[string]string),
	}
}

// Validate 验证结构体，失败时返回 *ValidationError
func (v *Validator) Validate(s any) error {
	if s == nil {
		return nil
	}
	validationErrors := &ValidationError{}
	v.validateRecursive(reflect.ValueOf(s), "", validationErrors)
	if validationErrors.HasErrors() {
		return validationErrors
	}
	return nil
}

// Check 与 Validate 相同，失败时返回 InvalidArgument 业务错误
func (v *Validator) Check(s any) error {
	err := v.Validate(s)
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return vErr.BizError()
	}
	return err
}

func (v *Validator) validateRecursive(value reflect.Value, prefix string, validationErrors *ValidationError) {
	if value.Kind() == reflect.Pointer {
		if value.IsNil() {
			return
		}
		value = value.Elem()
	}
	if value.Kind() != reflect.Struct {
		return
	}

	for _, info := range v.typeCache.getFieldsInfo(value.Type()) {
		fieldValue := value.Field(info.index)
		fullName := info.name
		if prefix != "" {
			fullName = prefix + "." + info.name
		}

		if info.isStruct {
			v.validateRecursive(fieldValue, fullName, validationErrors)
			continue
		}
		if info.validateTag == "" {
			continue
		}

		err := v.validator.Var(fieldValue.Interface(), info.validateTag)
		if err == nil {
			continue
		}
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			validationErrors.Add(fullName, err.Error())
			continue
		}
		for _, fieldErr := range fieldErrs {
			message := v.getCachedErrorMessage(info.errorMsgTag, fieldErr.Tag())
			if message == "" {
				message = "failed on the '" + fieldErr.Tag() + "' rule"
			}
			validationErrors.Add(fullName, message)
		}
	}
}

// getCachedErrorMessage 获取缓存的错误消息
func (v *Validator) getCachedErrorMessage(errorMsgTag, rule string) string {
	if errorMsgTag == "" {
		return ""
	}

	v.mu.RLock()
	ruleMap, exists := v.errorMsgCache[errorMsgTag]
	v.mu.RUnlock()
	if exists {
		return ruleMap[rule]
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if ruleMap, exists := v.errorMsgCache[errorMsgTag]; exists {
		return ruleMap[rule]
	}
	ruleMap = parseErrorMessageTag(errorMsgTag)
	v.errorMsgCache[errorMsgTag] = ruleMap
	return ruleMap[rule]
}

// parseErrorMessageTag 解析错误消息标签
// 格式: "required:name is required|max:name too long"
func parseErrorMessageTag(errorMsgTag string) map[string]string {
	ruleMap := make(map[string]string)
	for _, ruleMessage := range strings.Split(errorMsgTag, ruleSeparator) {
		rule, msg, ok := strings.Cut(ruleMessage, keyValueSep)
		if ok {
			ruleMap[strings.TrimSpace(rule)] = strings.TrimSpace(msg)
		}
	}
	return ruleMap
}
