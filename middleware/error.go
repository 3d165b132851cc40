package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"

	bizerrors "github.com/aisgo/ais-workspace/errors"
	"github.com/aisgo/ais-workspace/logger"
	"github.com/aisgo/ais-workspace/response"
)

// NewErrorHandler returns a Fiber ErrorHandler with unified logging and response formatting.
// fiber 自身的错误（404 路由、413 等）保留其状态码
func NewErrorHandler(log *logger.Logger) fiber.ErrorHandler {
	return func(c fiber.Ctx, err error) error {
		if err == nil {
			return nil
		}

		var fe *fiber.Error
		if errors.As(err, &fe) {
			return response.ErrorWithCode(c, fe.Code, err)
		}

		if _, ok := bizerrors.AsBizError(err); !ok || bizerrors.Code(err) == bizerrors.ErrCodeInternal {
			log.WithContext(c.Context()).Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
		}
		return response.Error(c, err)
	}
}
