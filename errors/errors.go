package errors

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

/* ========================================================================
 * Workspace Errors - 租户访问层错误模型
 * ========================================================================
 * 职责: 定义业务错误码，区分鉴权类错误与可重试的后端错误
 * 设计: 错误码按 errors.Is 匹配，消息不携带其他租户的信息
 * ======================================================================== */

// ErrorCode 业务错误码
type ErrorCode int

const (
	// 通用错误 (1xxx)
	ErrCodeUnknown            ErrorCode = 1000
	ErrCodeInvalidArgument    ErrorCode = 1001
	ErrCodeNotFound           ErrorCode = 1002
	ErrCodeAlreadyExists      ErrorCode = 1003
	ErrCodePermissionDenied   ErrorCode = 1004
	ErrCodeUnauthenticated    ErrorCode = 1005
	ErrCodeInternal           ErrorCode = 1006
	ErrCodeUnavailable        ErrorCode = 1007
	ErrCodeTimeout            ErrorCode = 1008
	ErrCodeCanceled           ErrorCode = 1009
	ErrCodeFailedPrecondition ErrorCode = 1010

	// 租户隔离错误 (2xxx)
	ErrCodeUnauthorizedTenantAccess     ErrorCode = 2001 // 访问不在可访问集合中的租户
	ErrCodeCrossTenantWriteRejected     ErrorCode = 2002 // 跨租户写入
	ErrCodeMixedTenantOperationRejected ErrorCode = 2003 // 批量操作跨越多个租户
	ErrCodeNoTenantAvailable            ErrorCode = 2004 // 没有可用租户
	ErrCodeBackendUnavailable           ErrorCode = 2005 // 后端暂时不可用（可重试）
	ErrCodeStaleGeneration              ErrorCode = 2006 // 切换租户后到达的过期结果
	ErrCodeWorkspaceNotReady            ErrorCode = 2007 // 工作区尚未就绪
)

// BizError 业务错误
type BizError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *BizError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Is 按业务错误码匹配
func (e *BizError) Is(target error) bool {
	t, ok := target.(*BizError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func (e *BizError) Unwrap() error {
	return e.Cause
}

// New 创建业务错误
func New(code ErrorCode, message string) *BizError {
	return &BizError{Code: code, Message: message}
}

// Wrap 包装错误
func Wrap(code ErrorCode, message string, cause error) *BizError {
	return &BizError{Code: code, Message: message, Cause: cause}
}

// Wrapf 格式化包装错误
func Wrapf(code ErrorCode, cause error, format string, args ...any) *BizError {
	return &BizError{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

var (
	ErrInvalidArgument    = New(ErrCodeInvalidArgument, "invalid argument")
	ErrNotFound           = New(ErrCodeNotFound, "record not found")
	ErrAlreadyExists      = New(ErrCodeAlreadyExists, "record already exists")
	ErrPermissionDenied   = New(ErrCodePermissionDenied, "permission denied")
	ErrUnauthenticated    = New(ErrCodeUnauthenticated, "unauthenticated")
	ErrInternal           = New(ErrCodeInternal, "internal error")
	ErrUnavailable        = New(ErrCodeUnavailable, "service unavailable")
	ErrTimeout            = New(ErrCodeTimeout, "timeout")
	ErrCanceled           = New(ErrCodeCanceled, "canceled")
	ErrFailedPrecondition = New(ErrCodeFailedPrecondition, "failed precondition")

	ErrUnauthorizedTenantAccess     = New(ErrCodeUnauthorizedTenantAccess, "workspace is not accessible")
	ErrCrossTenantWriteRejected     = New(ErrCodeCrossTenantWriteRejected, "write outside the active workspace rejected")
	ErrMixedTenantOperationRejected = New(ErrCodeMixedTenantOperationRejected, "operation spans multiple workspaces")
	ErrNoTenantAvailable            = New(ErrCodeNoTenantAvailable, "no workspace available")
	ErrBackendUnavailable           = New(ErrCodeBackendUnavailable, "backend unavailable, retry later")
	ErrStaleGeneration              = New(ErrCodeStaleGeneration, "result belongs to a previous workspace")
	ErrWorkspaceNotReady            = New(ErrCodeWorkspaceNotReady, "workspace is not ready")
)

// Is 判断错误是否为指定类型
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As 将错误转换为指定类型
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Code 获取错误码
func Code(err error) ErrorCode {
	var bizErr *BizError
	if errors.As(err, &bizErr) {
		return bizErr.Code
	}
	return ErrCodeUnknown
}

// IsNotFound 判断是否为 NotFound 错误
func IsNotFound(err error) bool {
	return Code(err) == ErrCodeNotFound
}

// IsRetryable reports whether err is transient and eligible for a bounded retry.
// Authorization-shaped errors are never retryable.
func IsRetryable(err error) bool {
	switch Code(err) {
	case ErrCodeBackendUnavailable, ErrCodeUnavailable, ErrCodeTimeout:
		return true
	}
	return false
}

// IsSecurityViolation reports whether err signals an attempt to cross a tenant boundary.
func IsSecurityViolation(err error) bool {
	switch Code(err) {
	case ErrCodeUnauthorizedTenantAccess, ErrCodeCrossTenantWriteRejected, ErrCodeMixedTenantOperationRejected:
		return true
	}
	return false
}

// AsBizError 将错误转换为 BizError
func AsBizError(err error) (*BizError, bool) {
	if err == nil {
		return nil, false
	}
	var bizErr *BizError
	if errors.As(err, &bizErr) {
		return bizErr, true
	}
	return nil, false
}

// ========================================================================
// gRPC 错误转换
// ========================================================================

var errorCodeToGRPCCode = map[ErrorCode]codes.Code{
	ErrCodeUnknown:                      codes.Unknown,
	ErrCodeInvalidArgument:              codes.InvalidArgument,
	ErrCodeNotFound:                     codes.NotFound,
	ErrCodeAlreadyExists:                codes.AlreadyExists,
	ErrCodePermissionDenied:             codes.PermissionDenied,
	ErrCodeUnauthenticated:              codes.Unauthenticated,
	ErrCodeInternal:                     codes.Internal,
	ErrCodeUnavailable:                  codes.Unavailable,
	ErrCodeTimeout:                      codes.DeadlineExceeded,
	ErrCodeCanceled:                     codes.Canceled,
	ErrCodeFailedPrecondition:           codes.FailedPrecondition,
	ErrCodeUnauthorizedTenantAccess:     codes.PermissionDenied,
	ErrCodeCrossTenantWriteRejected:     codes.PermissionDenied,
	ErrCodeMixedTenantOperationRejected: codes.PermissionDenied,
	ErrCodeNoTenantAvailable:            codes.FailedPrecondition,
	ErrCodeBackendUnavailable:           codes.Unavailable,
	ErrCodeStaleGeneration:              codes.Aborted,
	ErrCodeWorkspaceNotReady:            codes.Unavailable,
}

// ToGRPCError 将业务错误转换为 gRPC 错误
func ToGRPCError(err error) error {
	if err == nil {
		return nil
	}

	var bizErr *BizError
	if errors.As(err, &bizErr) {
		grpcCode, ok := errorCodeToGRPCCode[bizErr.Code]
		if !ok {
			grpcCode = codes.Unknown
		}
		return status.Error(grpcCode, bizErr.Message)
	}

	return status.Error(codes.Internal, "internal error")
}

// FromGRPCError 将 gRPC 错误转换为业务错误
func FromGRPCError(err error) *BizError {
	if err == nil {
		return nil
	}

	st, ok := status.FromError(err)
	if !ok {
		return Wrap(ErrCodeUnknown, "unknown error", err)
	}

	var code ErrorCode
	switch st.Code() {
	case codes.InvalidArgument:
		code = ErrCodeInvalidArgument
	case codes.NotFound:
		code = ErrCodeNotFound
	case codes.AlreadyExists:
		code = ErrCodeAlreadyExists
	case codes.PermissionDenied:
		code = ErrCodePermissionDenied
	case codes.Unauthenticated:
		code = ErrCodeUnauthenticated
	case codes.Unavailable:
		code = ErrCodeBackendUnavailable
	case codes.DeadlineExceeded:
		code = ErrCodeTimeout
	case codes.Canceled:
		code = ErrCodeCanceled
	case codes.FailedPrecondition:
		code = ErrCodeFailedPrecondition
	case codes.Aborted:
		code = ErrCodeStaleGeneration
	default:
		code = ErrCodeInternal
	}

	return New(code, st.Message())
}
