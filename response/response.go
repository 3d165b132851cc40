package response

import (
	"net/http"

	"github.com/gofiber/fiber/v3"

	"github.com/aisgo/ais-workspace/errors"
	"github.com/aisgo/ais-workspace/repository"
)

/* ========================================================================
 * Response - 统一响应处理
 * ========================================================================
 * 职责: 统一 JSON 响应格式
 * 特性:
 *   - 与 errors 包集成，BizError 使用其 HTTP 状态码与消息
 *   - 非业务错误一律返回 internal server error，不泄露原始错误文本
 *   - 可重试错误带 retryable 标记，供 UI 展示“重试”
 * ======================================================================== */

func newResp(code int, msg string, data any) *Result {
	// data 为 nil 时输出 {}，客户端无需判空
	if data == nil {
		data = &struct{}{}
	}
	return &Result{Code: code, Msg: msg, Data: data}
}

// Ok 返回成功响应
func Ok(c fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(newResp(0, "ok", nil))
}

// OkWithData 返回成功响应（带数据）
func OkWithData(c fiber.Ctx, data any) error {
	return c.Status(http.StatusOK).JSON(newResp(0, "ok", data))
}

// Created 返回 201
func Created(c fiber.Ctx, data any) error {
	return c.Status(http.StatusCreated).JSON(newResp(0, "created", data))
}

// Page 返回分页数据
func Page[T any](c fiber.Ctx, page *repository.PageResult[T]) error {
	list := any(page.List)
	if page.List == nil {
		list = []*T{}
	}
	return OkWithData(c, &PageResult{
		List:       list,
		Total:      page.Total,
		Page:       page.Page,
		PageSize:   page.PageSize,
		Pages:      page.Pages,
		Generation: page.Generation,
	})
}

/* ========================================================================
 * 错误响应
 * ======================================================================== */

// Error 返回错误响应
func Error(c fiber.Ctx, err error) error {
	if err == nil {
		return Ok(c)
	}
	statusCode, body := errors.ToHTTPResponse(err)
	resp := newResp(body["code"].(int), body["msg"].(string), nil)
	resp.Retryable = body["retryable"] == true
	return c.Status(statusCode).JSON(resp)
}

// ErrorWithCode 返回错误响应，使用指定 HTTP 状态码
func ErrorWithCode(c fiber.Ctx, statusCode int, err error) error {
	if statusCode < http.StatusContinue || statusCode > http.StatusNetworkAuthenticationRequired {
		statusCode = http.StatusInternalServerError
	}
	if bizErr, ok := errors.AsBizError(err); ok {
		resp := newResp(int(bizErr.Code), bizErr.Message, nil)
		resp.Retryable = errors.IsRetryable(bizErr)
		return c.Status(statusCode).JSON(resp)
	}
	msg := http.StatusText(statusCode)
	if err != nil && statusCode < http.StatusInternalServerError {
		msg = err.Error()
	}
	return c.Status(statusCode).JSON(newResp(statusCode, msg, nil))
}
