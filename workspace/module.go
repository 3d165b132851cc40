package workspace

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/aisgo/ais-workspace/audit"
	"github.com/aisgo/ais-workspace/cache/redis"
	"github.com/aisgo/ais-workspace/events"
	"github.com/aisgo/ais-workspace/logger"
	"github.com/aisgo/ais-workspace/mq"
)

// Config 工作区配置
type Config struct {
	PreferenceStore string        `yaml:"preference_store" mapstructure:"preference_store"` // database / redis
	SessionIdleTTL  time.Duration `yaml:"session_idle_ttl" mapstructure:"session_idle_ttl"`
}

// Module 提供 Directory、PreferenceStore、Registry，并订阅成员变更事件
var Module = fx.Module("workspace",
	fx.Provide(
		func(db *gorm.DB, pub events.Publisher, log *logger.Logger) Directory {
			return NewGormDirectory(db, pub, log.Named("directory"))
		},
		ProvidePreferences,
		ProvideRegistry,
	),
	fx.Invoke(SubscribeMembershipEvents),
)

// PreferenceParams fx 注入参数
type PreferenceParams struct {
	fx.In
	Config Config
	DB     *gorm.DB
	Redis  redis.Clienter `optional:"true"`
}

// ProvidePreferences 按配置选择偏好存储
func ProvidePreferences(p PreferenceParams) (PreferenceStore, error) {
	switch p.Config.PreferenceStore {
	case "", "database":
		return NewGormPreferences(p.DB), nil
	case "redis":
		if p.Redis == nil {
			return nil, fmt.Errorf("preference store redis requires a redis client")
		}
		return NewRedisPreferences(p.Redis), nil
	default:
		return nil, fmt.Errorf("unknown preference store %q", p.Config.PreferenceStore)
	}
}

// ProvideRegistry 创建注册表并启动空闲回收
func ProvideRegistry(lc fx.Lifecycle, cfg Config, dir Directory, prefs PreferenceStore, log *logger.Logger, pub events.Publisher, rec audit.Recorder) *Registry {
	r := NewRegistry(dir, prefs, log.Named("workspace"), cfg.SessionIdleTTL, WithPublisher(pub), WithRecorder(rec))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				r.Run(ctx)
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			<-done
			return nil
		},
	})
	return r
}

// SubscribeMembershipEvents 将注册表接到事件主题
func SubscribeMembershipEvents(consumer mq.Consumer, mqCfg *mq.Config, r *Registry, log *logger.Logger) error {
	return consumer.Subscribe(mqCfg.Topic, events.Dispatch(log, r.EventHandlers()))
}
