package middleware

import (
	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"

	bizerrors "github.com/aisgo/ais-workspace/errors"
	"github.com/aisgo/ais-workspace/logger"
	"github.com/aisgo/ais-workspace/model"
	"github.com/aisgo/ais-workspace/response"
	"github.com/aisgo/ais-workspace/workspace"
)

const (
	workspaceLocalKey = "ws_context"
	principalLocalKey = "ws_principal"
)

// WorkspaceBinder 将已认证主体绑定到其 WorkspaceContext
type WorkspaceBinder struct {
	dir      workspace.Directory
	registry *workspace.Registry
	log      *logger.Logger
}

func NewWorkspaceBinder(dir workspace.Directory, registry *workspace.Registry, log *logger.Logger) *WorkspaceBinder {
	return &WorkspaceBinder{dir: dir, registry: registry, log: log}
}

// Bind 解析主体（按邮箱，忽略大小写）并取得会话；匿名请求返回 401
func (b *WorkspaceBinder) Bind() fiber.Handler {
	return func(c fiber.Ctx) error {
		user, ok := UserFromContext(c)
		if !ok {
			return response.Error(c, bizerrors.ErrUnauthenticated)
		}

		ctx := c.Context()
		principal, err := b.dir.ResolvePrincipal(ctx, user.Email, user.DisplayName)
		if err != nil {
			return response.Error(c, err)
		}
		wc, err := b.registry.Acquire(ctx, principal)
		if err != nil {
			b.log.WithContext(ctx).Warn("workspace session unavailable", zap.String("principal_id", principal.ID), zap.Error(err))
			return response.Error(c, err)
		}

		c.Locals(principalLocalKey, principal)
		c.Locals(workspaceLocalKey, wc)
		c.SetContext(logger.ContextWithFields(ctx, zap.String("principal_id", principal.ID)))
		return c.Next()
	}
}

// WorkspaceFromContext 返回请求绑定的 WorkspaceContext
func WorkspaceFromContext(c fiber.Ctx) (*workspace.Context, bool) {
	wc, ok := c.Locals(workspaceLocalKey).(*workspace.Context)
	return wc, ok && wc != nil
}

// PrincipalFromContext 返回请求绑定的主体
func PrincipalFromContext(c fiber.Ctx) (*model.Principal, bool) {
	p, ok := c.Locals(principalLocalKey).(*model.Principal)
	return p, ok && p != nil
}

// PrincipalKey 按主体限流，未绑定时回退到 IP
func PrincipalKey(c fiber.Ctx) string {
	if p, ok := PrincipalFromContext(c); ok {
		return "principal:" + p.ID
	}
	if user, ok := UserFromContext(c); ok {
		return "email:" + model.NormalizeEmail(user.Email)
	}
	return ""
}
