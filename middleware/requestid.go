package middleware

import (
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aisgo/ais-workspace/logger"
)

const HeaderRequestID = "X-Request-ID"

// RequestID 透传或生成请求 ID，并写入日志字段
func RequestID() fiber.Handler {
	return func(c fiber.Ctx) error {
		id := c.Get(HeaderRequestID)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set(HeaderRequestID, id)
		c.SetContext(logger.ContextWithFields(c.Context(), zap.String("request_id", id)))
		return c.Next()
	}
}
