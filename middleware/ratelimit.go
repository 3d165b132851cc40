package middleware

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/aisgo/ais-workspace/response"
)

const (
	defaultRateLimit  = 50
	defaultRatePeriod = time.Second
)

// RateLimitConfig 限流配置，Store 为 redis 时多实例共享计数
type RateLimitConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	Limit   int64         `yaml:"limit" mapstructure:"limit"`
	Period  time.Duration `yaml:"period" mapstructure:"period"`
	Store   string        `yaml:"store" mapstructure:"store"` // memory | redis
}

// RateLimitKeyFunc returns an identifier used for rate limiting.
type RateLimitKeyFunc func(fiber.Ctx) string

// NewRateLimiter 按配置创建限流器；client 仅在 Store 为 redis 时使用
func NewRateLimiter(cfg RateLimitConfig, client redis.UniversalClient) (*limiter.Limiter, error) {
	rate := limiter.Rate{Period: cfg.Period, Limit: cfg.Limit}
	if rate.Period <= 0 {
		rate.Period = defaultRatePeriod
	}
	if rate.Limit <= 0 {
		rate.Limit = defaultRateLimit
	}

	switch cfg.Store {
	case "", "memory":
		return limiter.New(memory.NewStore(), rate), nil
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("rate limit store redis requires a redis client")
		}
		store, err := redisstore.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: "ws:ratelimit"})
		if err != nil {
			return nil, err
		}
		return limiter.New(store, rate), nil
	}
	return nil, fmt.Errorf("unknown rate limit store %q", cfg.Store)
}

// RateLimit applies request rate limiting. key 为空时按 IP 限流
func RateLimit(lim *limiter.Limiter, key RateLimitKeyFunc) fiber.Handler {
	return func(c fiber.Ctx) error {
		k := ""
		if key != nil {
			k = strings.TrimSpace(key(c))
		}
		if k == "" {
			k = "ip:" + c.IP()
		}

		ctx, err := lim.Get(c.Context(), k)
		if err != nil {
			return response.ErrorWithCode(c, fiber.StatusServiceUnavailable, fmt.Errorf("rate limit check failed: %w", err))
		}

		c.Set("X-RateLimit-Limit", strconv.FormatInt(ctx.Limit, 10))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(ctx.Remaining, 10))
		if ctx.Reached {
			c.Set("Retry-After", strconv.FormatInt(max(ctx.Reset-time.Now().Unix(), 1), 10))
			return response.ErrorWithCode(c, fiber.StatusTooManyRequests, fmt.Errorf("too many requests"))
		}
		return c.Next()
	}
}
