package conf

import (
	"fmt"
	"time"

	"github.com/aisgo/ais-workspace/cache/redis"
	"github.com/aisgo/ais-workspace/database/mysql"
	"github.com/aisgo/ais-workspace/database/postgres"
	"github.com/aisgo/ais-workspace/database/sqlite"
	"github.com/aisgo/ais-workspace/logger"
	"github.com/aisgo/ais-workspace/middleware"
	"github.com/aisgo/ais-workspace/mq"
	"github.com/aisgo/ais-workspace/repository"
	"github.com/aisgo/ais-workspace/shutdown"
	httpserver "github.com/aisgo/ais-workspace/transport/http"
	"github.com/aisgo/ais-workspace/workspace"
)

// AppConfig 服务完整配置，对应 workspace.yaml
type AppConfig struct {
	Server     httpserver.Config `yaml:"server" mapstructure:"server"`
	Logger     logger.Config     `yaml:"logger" mapstructure:"logger"`
	Database   DatabaseConfig    `yaml:"database" mapstructure:"database"`
	Redis      RedisConfig       `yaml:"redis" mapstructure:"redis"`
	MQ         *mq.Config        `yaml:"mq" mapstructure:"mq"`
	Workspace  workspace.Config  `yaml:"workspace" mapstructure:"workspace"`
	Repository repository.Config `yaml:"repository" mapstructure:"repository"`
	Auth       AuthConfig        `yaml:"auth" mapstructure:"auth"`
	Shutdown   *shutdown.Config  `yaml:"shutdown" mapstructure:"shutdown"`
}

// DatabaseConfig 按 Driver 选择其中一个后端
type DatabaseConfig struct {
	Driver   string          `yaml:"driver" mapstructure:"driver"` // postgres / mysql / sqlite
	Postgres postgres.Config `yaml:"postgres" mapstructure:"postgres"`
	MySQL    mysql.Config    `yaml:"mysql" mapstructure:"mysql"`
	SQLite   sqlite.Config   `yaml:"sqlite" mapstructure:"sqlite"`
}

// RedisConfig Enabled 为 false 时不连接 redis，相关组件回落到进程内实现
type RedisConfig struct {
	Enabled      bool `yaml:"enabled" mapstructure:"enabled"`
	redis.Config `yaml:",inline" mapstructure:",squash"`
}

// AuthConfig 身份头、运维 API Key 与限流
type AuthConfig struct {
	Headers   middleware.AuthHeaderVerifierConfig `yaml:"headers" mapstructure:"headers"`
	Signer    middleware.AuthHeaderSignerConfig   `yaml:"signer" mapstructure:"signer"`
	APIKey    middleware.APIKeyConfig             `yaml:"api_key" mapstructure:"api_key"`
	RateLimit middleware.RateLimitConfig          `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// DefaultAppConfig 单机默认值: sqlite + 进程内消息总线，不依赖 redis
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		Server: httpserver.Config{
			Port:    8080,
			AppName: "ais-workspace",
		},
		Logger: logger.Config{Level: "info", Format: "json"},
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: sqlite.Config{Path: "workspace.db"},
		},
		Redis:     RedisConfig{Config: redis.Config{Host: "127.0.0.1", Port: 6379, Prefix: "ws"}},
		MQ:        mq.DefaultConfig(),
		Workspace: workspace.Config{PreferenceStore: "database", SessionIdleTTL: 30 * time.Minute},
		Repository: repository.Config{
			Legacy: string(repository.LegacyShared),
			Retry:  repository.DefaultRetryPolicy(),
			Locker: "local",
		},
		Auth: AuthConfig{
			Headers:   middleware.AuthHeaderVerifierConfig{Enabled: true},
			RateLimit: middleware.RateLimitConfig{Enabled: true, Limit: 50, Period: time.Second},
		},
		Shutdown: shutdown.DefaultConfig(),
	}
}

// Validate 检查相互依赖的配置项
func (c *AppConfig) Validate() error {
	if err := logger.ValidateConfig(c.Logger); err != nil {
		return err
	}
	switch c.Database.Driver {
	case "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if _, err := repository.ParseLegacyMode(c.Repository.Legacy); err != nil {
		return err
	}
	if !c.Redis.Enabled {
		if c.Repository.Locker == "redis" {
			return fmt.Errorf("repository.locker redis requires redis.enabled")
		}
		if c.Workspace.PreferenceStore == "redis" {
			return fmt.Errorf("workspace.preference_store redis requires redis.enabled")
		}
		if c.Auth.RateLimit.Store == "redis" {
			return fmt.Errorf("auth.rate_limit.store redis requires redis.enabled")
		}
	}
	if c.Auth.Headers.Enabled && c.Auth.Headers.Secret == "" && len(c.Auth.Headers.Secrets) == 0 {
		return fmt.Errorf("auth.headers.secret is required when identity headers are enabled")
	}
	return nil
}

// LoadApp 从 dir/workspace.yaml 与 WORKSPACE_* 环境变量加载配置
func LoadApp(dir string, opts ...Option) (*AppConfig, error) {
	cfg := DefaultAppConfig()
	if err := NewLoader(dir, "workspace", "yaml", opts...).Load(cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
