package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"

	bizerrors "github.com/aisgo/ais-workspace/errors"
	"github.com/aisgo/ais-workspace/logger"
	"github.com/aisgo/ais-workspace/response"
)

/* ========================================================================
 * API Key - 运维端点鉴权
 * ========================================================================
 * 职责: 保护 /metrics 等运维端点，与主体身份无关
 * 支持:
 *   1. X-API-Key Header
 *   2. Authorization: Bearer <key>
 * ======================================================================== */

// APIKeyConfig API Key 配置
type APIKeyConfig struct {
	Enabled bool              `yaml:"enabled" mapstructure:"enabled"`
	Keys    map[string]string `yaml:"keys" mapstructure:"keys"` // key_id -> api_key
}

// APIKeyAuth API Key 认证中间件
type APIKeyAuth struct {
	config APIKeyConfig
	log    *logger.Logger
}

func NewAPIKeyAuth(cfg APIKeyConfig, log *logger.Logger) *APIKeyAuth {
	return &APIKeyAuth{config: cfg, log: log}
}

// Authenticate 返回 Fiber 中间件
func (a *APIKeyAuth) Authenticate() fiber.Handler {
	return func(c fiber.Ctx) error {
		if !a.config.Enabled {
			return c.Next()
		}

		apiKey := c.Get("X-API-Key")
		if apiKey == "" {
			if auth := c.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				apiKey = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		keyID, valid := a.validateAPIKey(apiKey)
		if !valid {
			a.log.Warn("rejected api key", zap.Bool("missing", apiKey == ""), zap.String("ip", c.IP()), zap.String("path", c.Path()))
			return response.Error(c, bizerrors.New(bizerrors.ErrCodeUnauthenticated, "invalid api key"))
		}
		c.Locals("key_id", keyID)
		return c.Next()
	}
}

// validateAPIKey 使用 constant-time 比较防止时序攻击
func (a *APIKeyAuth) validateAPIKey(apiKey string) (string, bool) {
	if apiKey == "" {
		return "", false
	}
	for keyID, storedKey := range a.config.Keys {
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(storedKey)) == 1 {
			return keyID, true
		}
	}
	return "", false
}
