package commands

import (
	"context"

	"github.com/gofiber/fiber/v3"
	goredis "github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/aisgo/ais-workspace/api"
	"github.com/aisgo/ais-workspace/audit"
	"github.com/aisgo/ais-workspace/cache"
	"github.com/aisgo/ais-workspace/cache/redis"
	"github.com/aisgo/ais-workspace/conf"
	"github.com/aisgo/ais-workspace/database/mysql"
	"github.com/aisgo/ais-workspace/database/postgres"
	"github.com/aisgo/ais-workspace/database/sqlite"
	"github.com/aisgo/ais-workspace/events"
	"github.com/aisgo/ais-workspace/logger"
	"github.com/aisgo/ais-workspace/metrics"
	"github.com/aisgo/ais-workspace/middleware"
	"github.com/aisgo/ais-workspace/model"
	"github.com/aisgo/ais-workspace/mq"
	_ "github.com/aisgo/ais-workspace/mq/kafka"
	_ "github.com/aisgo/ais-workspace/mq/rocketmq"
	"github.com/aisgo/ais-workspace/repository"
	"github.com/aisgo/ais-workspace/shutdown"
	httpserver "github.com/aisgo/ais-workspace/transport/http"
	"github.com/aisgo/ais-workspace/workspace"
)

/* ========================================================================
 * 应用装配
 * ========================================================================
 * 数据库按 driver 三选一；redis 可选，关闭时偏好、锁、限流都回落到本地实现
 * shutdown.Module 放在最后，保证它的停止钩子最先执行:
 *   HTTP -> 事件发布 -> 其余 fx 钩子（消息、注册表、连接）
 * ======================================================================== */

const eventBuffer = 1024

func appOptions(cfg *conf.AppConfig, log *logger.Logger) []fx.Option {
	opts := []fx.Option{
		fxLogger(log),
		fx.Supply(cfg, log, cfg.Server, cfg.Workspace, cfg.MQ, cfg.Shutdown),
		databaseModule(cfg.Database),
	}
	if cfg.Redis.Enabled {
		opts = append(opts,
			fx.Supply(cfg.Redis.Config),
			cache.Module,
			fx.Provide(fx.Annotate(redisCheck, fx.ResultTags(`group:"readiness"`))),
		)
	}
	return append(opts,
		mq.Module,
		fx.Provide(
			provideEventPublisher,
			provideAuditRecorder,
			provideRepositoryOptions,
			provideVerifier,
			provideRateLimiter,
			provideMetricsAuth,
			func() fiber.ErrorHandler { return middleware.NewErrorHandler(log) },
			httpserver.NewHTTPServer,
		),
		workspace.Module,
		fx.Invoke(registerRoutes),
		shutdown.Module,
	)
}

func databaseModule(cfg conf.DatabaseConfig) fx.Option {
	switch cfg.Driver {
	case "postgres":
		return fx.Options(fx.Supply(cfg.Postgres), postgres.Module)
	case "mysql":
		return fx.Options(fx.Supply(cfg.MySQL), mysql.Module)
	default:
		return fx.Options(fx.Supply(cfg.SQLite), sqlite.Module)
	}
}

func redisCheck(c *redis.Client) httpserver.ReadinessCheck {
	return httpserver.ReadinessCheck{Name: "redis", Check: c.Ping}
}

func provideEventPublisher(producer mq.Producer, cfg *mq.Config, log *logger.Logger, mgr *shutdown.Manager) events.Publisher {
	pub := events.NewAsyncPublisher(events.NewMQPublisher(producer, cfg.Topic), log.Named("events"), eventBuffer)
	mgr.RegisterHookWithPriority("events", func(context.Context) error {
		return pub.Close()
	}, shutdown.PriorityMessaging)
	return pub
}

func provideAuditRecorder(log *logger.Logger, pub events.Publisher) audit.Recorder {
	return audit.NewLogRecorder(log.Named("audit"), pub)
}

type redisParams struct {
	fx.In
	Client *redis.Client `optional:"true"`
}

func provideRepositoryOptions(cfg *conf.AppConfig, p redisParams, rec audit.Recorder, log *logger.Logger) (repository.Options, error) {
	var client redis.Clienter
	if p.Client != nil {
		client = p.Client
	}
	return repository.NewOptions(cfg.Repository, client, rec, log)
}

func provideVerifier(cfg *conf.AppConfig, log *logger.Logger) *middleware.AuthHeaderVerifier {
	return middleware.NewAuthHeaderVerifier(cfg.Auth.Headers, log.Named("auth"))
}

// provideRateLimiter 未启用限流时返回 nil
func provideRateLimiter(cfg *conf.AppConfig, p redisParams) (*limiter.Limiter, error) {
	if !cfg.Auth.RateLimit.Enabled {
		return nil, nil
	}
	var raw goredis.UniversalClient
	if p.Client != nil {
		raw = p.Client.Raw()
	}
	return middleware.NewRateLimiter(cfg.Auth.RateLimit, raw)
}

// provideMetricsAuth 未配置 API Key 时 /metrics 不设防，返回 nil
func provideMetricsAuth(cfg *conf.AppConfig, log *logger.Logger) *middleware.APIKeyAuth {
	if !cfg.Auth.APIKey.Enabled {
		return nil
	}
	return middleware.NewAPIKeyAuth(cfg.Auth.APIKey, log.Named("apikey"))
}

type routeParams struct {
	fx.In
	DB       *gorm.DB
	Dir      workspace.Directory
	Registry *workspace.Registry
	Verifier *middleware.AuthHeaderVerifier
	Limiter  *limiter.Limiter
	Options  repository.Options
	Logger   *logger.Logger
	App      *fiber.App
}

// registerRoutes 挂载 /api/v1
// 顺序: request id -> 指标 -> 身份头 -> 工作区绑定 -> 按主体限流
func registerRoutes(p routeParams) {
	p.App.Use(middleware.RequestID(), metrics.HTTPMetricsMiddleware(nil))

	v1 := p.App.Group("/api/v1")
	chain := []any{
		p.Verifier.Authenticate(),
		middleware.NewWorkspaceBinder(p.Dir, p.Registry, p.Logger).Bind(),
	}
	if p.Limiter != nil {
		chain = append(chain, middleware.RateLimit(p.Limiter, middleware.PrincipalKey))
	}
	v1.Use(chain...)

	api.NewWorkspaceHandler(p.Dir, p.Registry, p.Logger).Register(v1)
	projects := repository.NewGormBackend[model.Project](p.DB)
	chats := repository.NewGormBackend[model.ChatSession](p.DB)
	projectLink := repository.LinkTo[model.Project]("project_id", "ProjectID", projects, p.Options.WithEntity("projects"))
	chatLink := repository.LinkTo[model.ChatSession]("chat_session_id", "ChatSessionID", chats, p.Options.WithEntity("chat_sessions"))

	api.RegisterEntity[model.Project](v1, "projects", projects, p.Options, "status")
	api.RegisterEntity[model.Task](v1, "tasks", repository.NewGormBackend[model.Task](p.DB), p.Options.WithLinks(projectLink), "status", "priority", "project_id", "assignee_id")
	api.RegisterEntity[model.Document](v1, "documents", repository.NewGormBackend[model.Document](p.DB), p.Options.WithLinks(projectLink), "project_id", "folder_id")
	api.RegisterEntity[model.Assignment](v1, "assignments", repository.NewGormBackend[model.Assignment](p.DB), p.Options.WithLinks(projectLink), "status", "course", "project_id")
	api.RegisterEntity[model.Note](v1, "notes", repository.NewGormBackend[model.Note](p.DB), p.Options)
	api.RegisterEntity[model.ChatSession](v1, "chat_sessions", chats, p.Options)
	api.RegisterEntity[model.Message](v1, "messages", repository.NewGormBackend[model.Message](p.DB), p.Options.WithLinks(chatLink), "chat_session_id", "sender_id")
}
