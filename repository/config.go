package repository

import (
	"fmt"
	"time"

	"github.com/aisgo/ais-workspace/audit"
	"github.com/aisgo/ais-workspace/cache/redis"
	"github.com/aisgo/ais-workspace/logger"
)

// Config 仓储配置
type Config struct {
	Legacy  string        `yaml:"legacy" mapstructure:"legacy"` // shared / read_only / hidden
	Retry   RetryPolicy   `yaml:"retry" mapstructure:"retry"`
	Locker  string        `yaml:"locker" mapstructure:"locker"` // local / redis
	LockTTL time.Duration `yaml:"lock_ttl" mapstructure:"lock_ttl"`
}

// NewOptions 按配置组装仓储选项；redis 锁需要 client
// 同一进程内的仓储共享返回的 Locker
func NewOptions(cfg Config, client redis.Clienter, recorder audit.Recorder, log *logger.Logger) (Options, error) {
	legacy, err := ParseLegacyMode(cfg.Legacy)
	if err != nil {
		return Options{}, err
	}

	var locker Locker
	switch cfg.Locker {
	case "", "local":
		locker = NewLocalLocker()
	case "redis":
		if client == nil {
			return Options{}, fmt.Errorf("redis locker requires a redis client")
		}
		locker = NewRedisLocker(client, cfg.LockTTL, log)
	default:
		return Options{}, fmt.Errorf("unknown locker %q", cfg.Locker)
	}

	return Options{
		Retry:    cfg.Retry,
		Locker:   locker,
		Recorder: recorder,
		Logger:   log.Named("repository"),
		Legacy:   legacy,
	}, nil
}

// WithEntity 返回设置了实体名的副本
func (o Options) WithEntity(entity string) Options {
	o.Entity = entity
	return o
}
