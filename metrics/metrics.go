package metrics

import (
	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

/* ========================================================================
 * Prometheus Metrics - 租户访问层指标
 * ========================================================================
 * 职责: 注册并暴露访问层、工作区与 HTTP 指标
 * ======================================================================== */

const namespace = "ais_workspace"

var (
	// HTTPRequestDuration HTTP 请求延迟
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestTotal HTTP 请求总数
	HTTPRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// RepositoryOperationDuration 仓储操作耗时（含重试）
	RepositoryOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "repository",
			Name:      "operation_duration_seconds",
			Help:      "Scoped repository operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"entity", "operation", "outcome"},
	)

	// RepositoryRetryTotal 后端调用重试次数
	RepositoryRetryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "repository",
			Name:      "retry_total",
			Help:      "Total number of backend call retries",
		},
		[]string{"entity", "operation"},
	)

	// StaleResultTotal 因租户切换被丢弃的结果数
	StaleResultTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "repository",
			Name:      "stale_result_total",
			Help:      "Results dropped because the active workspace changed in flight",
		},
		[]string{"entity", "operation"},
	)

	// SecurityViolationTotal 跨租户访问尝试
	SecurityViolationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "security",
			Name:      "violation_total",
			Help:      "Total number of rejected cross-workspace access attempts",
		},
		[]string{"kind", "entity"},
	)

	// WorkspaceSwitchTotal 工作区切换次数
	WorkspaceSwitchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workspace",
			Name:      "switch_total",
			Help:      "Total number of active workspace changes",
		},
		[]string{"reason"},
	)

	// ActiveSessions 当前持有的工作区会话数
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "workspace",
			Name:      "active_sessions",
			Help:      "Number of workspace sessions held by the registry",
		},
	)
)

// RegisterMetricsEndpoint 注册 /metrics 端点，guards 在导出前执行（如 API Key 校验）
func RegisterMetricsEndpoint(app *fiber.App, guards ...fiber.Handler) {
	handler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	for _, g := range guards {
		app.Use("/metrics", g)
	}
	app.Get("/metrics", func(c fiber.Ctx) error {
		handler(c.RequestCtx())
		return nil
	})
}

// NewCounter 创建自定义 Counter
func NewCounter(subsystem, name, help string, labels []string) *prometheus.CounterVec {
	return promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}
