package metrics

import (
	"slices"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
)

// unmatchedPath 未命中任何路由的请求统一计入该标签，避免路径基数膨胀
const unmatchedPath = "unmatched"

// HTTPMiddlewareConfig HTTP 指标中间件配置
// 零值使用包级 HTTPRequestTotal / HTTPRequestDuration，并跳过探针与 /metrics
type HTTPMiddlewareConfig struct {
	RequestTotal    *prometheus.CounterVec   // labels: method, path, status
	RequestDuration *prometheus.HistogramVec // labels: method, path, status

	// SkipPaths 不记录的原始路径
	SkipPaths []string
}

var defaultSkipPaths = []string{"/healthz", "/readyz", "/metrics"}

// HTTPMetricsMiddleware 按路由模板记录请求数与耗时，/tasks/:id 不会按 id 展开
func HTTPMetricsMiddleware(cfg *HTTPMiddlewareConfig) fiber.Handler {
	var config HTTPMiddlewareConfig
	if cfg != nil {
		config = *cfg
	}
	if config.RequestTotal == nil {
		config.RequestTotal = HTTPRequestTotal
	}
	if config.RequestDuration == nil {
		config.RequestDuration = HTTPRequestDuration
	}
	if config.SkipPaths == nil {
		config.SkipPaths = defaultSkipPaths
	}

	return func(c fiber.Ctx) error {
		if slices.Contains(config.SkipPaths, c.Path()) {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()

		path := unmatchedPath
		if route := c.Route(); route != nil && route.Path != "" && route.Path != "/" {
			path = route.Path
		}
		labels := []string{c.Method(), path, strconv.Itoa(c.Response().StatusCode())}
		config.RequestTotal.WithLabelValues(labels...).Inc()
		config.RequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
		return err
	}
}
