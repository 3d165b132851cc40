package api

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"

	bizerrors "github.com/aisgo/ais-workspace/errors"
	"github.com/aisgo/ais-workspace/middleware"
	"github.com/aisgo/ais-workspace/model"
	"github.com/aisgo/ais-workspace/workspace"
)

// session 返回请求绑定的工作区上下文与主体，由 middleware.WorkspaceBinder 注入
func session(c fiber.Ctx) (*workspace.Context, *model.Principal, error) {
	wc, ok := middleware.WorkspaceFromContext(c)
	if !ok {
		return nil, nil, bizerrors.ErrUnauthenticated
	}
	p, ok := middleware.PrincipalFromContext(c)
	if !ok {
		return nil, nil, bizerrors.ErrUnauthenticated
	}
	return wc, p, nil
}

// bindJSON 使用应用配置的 JSON 解码器解析请求体
func bindJSON(c fiber.Ctx, out any) error {
	body := c.Body()
	if len(body) == 0 {
		return bizerrors.New(bizerrors.ErrCodeInvalidArgument, "request body is required")
	}
	if err := c.App().Config().JSONDecoder(body, out); err != nil {
		return bizerrors.Wrap(bizerrors.ErrCodeInvalidArgument, "invalid request body", err)
	}
	return nil
}

func queryInt(c fiber.Ctx, key string, def int) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, bizerrors.New(bizerrors.ErrCodeInvalidArgument, key+" must be an integer")
	}
	return n, nil
}

// idsRequest 批量操作请求体
type idsRequest struct {
	IDs []string `json:"ids"`
}

func (r idsRequest) validate() error {
	if len(r.IDs) == 0 {
		return bizerrors.New(bizerrors.ErrCodeInvalidArgument, "ids is required")
	}
	if len(r.IDs) > maxBatchSize {
		return bizerrors.New(bizerrors.ErrCodeInvalidArgument, "too many ids")
	}
	return nil
}
