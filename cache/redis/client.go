package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/aisgo/ais-workspace/logger"
)

/* ========================================================================
 * Redis Client
 * ========================================================================
 * 职责: 活动工作区偏好、按记录写锁、限流存储
 * 说明: 所有 key 自动加上 Prefix，多个环境可共用一个实例
 * ======================================================================== */

// Config Redis 配置
type Config struct {
	Host         string `yaml:"host" mapstructure:"host"`
	Port         int    `yaml:"port" mapstructure:"port"`
	Password     string `yaml:"password" mapstructure:"password"`
	DB           int    `yaml:"db" mapstructure:"db"`
	PoolSize     int    `yaml:"pool_size" mapstructure:"pool_size"`
	MinIdleConns int    `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	Prefix       string `yaml:"prefix" mapstructure:"prefix"`
}

// Addr 返回 host:port
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Clienter 供上层依赖的最小接口
type Clienter interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) error
	HGet(ctx context.Context, key, field string) (string, error)
	HSet(ctx context.Context, key string, values ...any) error
	HDel(ctx context.Context, key string, fields ...string) error
	NewLock(key string, opts ...LockOption) *Lock
	Ping(ctx context.Context) error
}

// Client Redis 客户端封装
type Client struct {
	rdb    redis.UniversalClient
	prefix string
	log    *logger.Logger
}

// ClientParams fx 注入参数
type ClientParams struct {
	fx.In
	Lc     fx.Lifecycle
	Config Config
	Logger *logger.Logger
}

// NewClient 创建客户端并注册生命周期钩子
func NewClient(p ClientParams) *Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:         p.Config.Addr(),
		Password:     p.Config.Password,
		DB:           p.Config.DB,
		PoolSize:     p.Config.PoolSize,
		MinIdleConns: p.Config.MinIdleConns,
	})
	c := New(rdb, p.Config.Prefix, p.Logger)

	p.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := rdb.Ping(ctx).Err(); err != nil {
				p.Logger.Error("Redis connection failed", zap.Error(err))
				return err
			}
			p.Logger.Info("Redis connected", zap.String("addr", p.Config.Addr()))
			return nil
		},
		OnStop: func(context.Context) error {
			return rdb.Close()
		},
	})
	return c
}

// New 包装已有连接，测试中配合 miniredis 使用
func New(rdb redis.UniversalClient, prefix string, log *logger.Logger) *Client {
	return &Client{rdb: rdb, prefix: prefix, log: log}
}

// Raw 返回底层客户端，限流存储等需要原生连接
func (c *Client) Raw() redis.UniversalClient {
	return c.rdb
}

// Key 为 key 加上命名空间前缀
func (c *Client) Key(key string) string {
	if c.prefix == "" {
		return key
	}
	return c.prefix + ":" + key
}

func (c *Client) keys(keys []string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = c.Key(k)
	}
	return out
}

// IsNil 判断是否为 key 不存在
func IsNil(err error) bool {
	return errors.Is(err, redis.Nil)
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	return c.rdb.Get(ctx, c.Key(key)).Result()
}

func (c *Client) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	return c.rdb.Set(ctx, c.Key(key), value, expiration).Err()
}

func (c *Client) SetNX(ctx context.Context, key string, value any, expiration time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, c.Key(key), value, expiration).Result()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, c.keys(keys)...).Err()
}

func (c *Client) HGet(ctx context.Context, key, field string) (string, error) {
	return c.rdb.HGet(ctx, c.Key(key), field).Result()
}

func (c *Client) HSet(ctx context.Context, key string, values ...any) error {
	return c.rdb.HSet(ctx, c.Key(key), values...).Err()
}

func (c *Client) HDel(ctx context.Context, key string, fields ...string) error {
	return c.rdb.HDel(ctx, c.Key(key), fields...).Err()
}

// Ping 健康检查
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
