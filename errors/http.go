package errors

import (
	"errors"
	"sync"

	"github.com/gofiber/fiber/v3"
)

// httpStatusCode 业务错误码到 HTTP 状态码映射
var httpStatusCode = map[ErrorCode]int{
	ErrCodeUnknown:                      500,
	ErrCodeInvalidArgument:              400,
	ErrCodeNotFound:                     404,
	ErrCodeAlreadyExists:                409,
	ErrCodePermissionDenied:             403,
	ErrCodeUnauthenticated:              401,
	ErrCodeInternal:                     500,
	ErrCodeUnavailable:                  503,
	ErrCodeTimeout:                      504,
	ErrCodeCanceled:                     499,
	ErrCodeFailedPrecondition:           412,
	ErrCodeUnauthorizedTenantAccess:     403,
	ErrCodeCrossTenantWriteRejected:     403,
	ErrCodeMixedTenantOperationRejected: 403,
	ErrCodeNoTenantAvailable:            409,
	ErrCodeBackendUnavailable:           503,
	ErrCodeStaleGeneration:              409,
	ErrCodeWorkspaceNotReady:            503,
}

var (
	httpStatusMu        sync.RWMutex
	httpStatusOverrides = make(map[ErrorCode]int)
)

// RegisterHTTPStatus 注册业务错误码与 HTTP 状态码映射
func RegisterHTTPStatus(code ErrorCode, status int) {
	httpStatusMu.Lock()
	defer httpStatusMu.Unlock()
	httpStatusOverrides[code] = status
}

// HTTPStatus returns the HTTP status code for a business error code.
func HTTPStatus(code ErrorCode) int {
	httpStatusMu.RLock()
	status, ok := httpStatusOverrides[code]
	httpStatusMu.RUnlock()
	if ok {
		return status
	}
	if status, ok := httpStatusCode[code]; ok {
		return status
	}
	return 500
}

// ToHTTPResponse 将业务错误转换为 HTTP 响应
// 仅暴露业务消息，Cause 只进入日志。
func ToHTTPResponse(err error) (int, fiber.Map) {
	if err == nil {
		return 200, fiber.Map{"code": 0, "msg": "success"}
	}

	var bizErr *BizError
	if errors.As(err, &bizErr) {
		body := fiber.Map{
			"code": int(bizErr.Code),
			"msg":  bizErr.Message,
		}
		if IsRetryable(bizErr) {
			body["retryable"] = true
		}
		return HTTPStatus(bizErr.Code), body
	}

	return 500, fiber.Map{
		"code": 500,
		"msg":  "internal server error",
	}
}
