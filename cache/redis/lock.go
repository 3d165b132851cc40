package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

/* ========================================================================
 * 分布式锁
 * ========================================================================
 * 职责: 多实例部署时串行化同一记录的写操作
 * 说明: SET NX PX 获取，Lua 脚本校验持有者后释放 / 续期
 * ======================================================================== */

var (
	ErrLockFailed   = errors.New("failed to acquire lock")
	ErrUnlockFailed = errors.New("failed to release lock")
)

var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// LockOption 锁选项
type LockOption struct {
	TTL        time.Duration // 过期时间，持有者崩溃后自动释放
	RetryTimes int           // 获取失败重试次数
	RetryDelay time.Duration // 重试间隔
}

// DefaultLockOption 默认锁选项
func DefaultLockOption() LockOption {
	return LockOption{
		TTL:        10 * time.Second,
		RetryTimes: 50,
		RetryDelay: 50 * time.Millisecond,
	}
}

// Lock 分布式锁，单次持有
type Lock struct {
	client *Client
	key    string
	value  string
	opt    LockOption
}

// NewLock 创建锁，key 自动加上 lock: 与客户端前缀
func (c *Client) NewLock(key string, opts ...LockOption) *Lock {
	opt := DefaultLockOption()
	if len(opts) > 0 {
		opt = opts[0]
	}
	if opt.RetryTimes <= 0 {
		opt.RetryTimes = 1
	}
	return &Lock{client: c, key: c.Key("lock:" + key), opt: opt}
}

// Acquire 获取锁，直到成功、重试耗尽或 ctx 取消
func (l *Lock) Acquire(ctx context.Context) error {
	value := uuid.NewString()
	for i := 0; i < l.opt.RetryTimes; i++ {
		ok, err := l.client.rdb.SetNX(ctx, l.key, value, l.opt.TTL).Result()
		if err != nil {
			return err
		}
		if ok {
			l.value = value
			return nil
		}
		if i == l.opt.RetryTimes-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.opt.RetryDelay):
		}
	}
	return ErrLockFailed
}

// Release 释放锁，只有持有者可以释放
func (l *Lock) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.client.rdb, []string{l.key}, l.value).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUnlockFailed
	}
	return nil
}

// Extend 延长锁
func (l *Lock) Extend(ctx context.Context, ttl time.Duration) error {
	n, err := extendScript.Run(ctx, l.client.rdb, []string{l.key}, l.value, ttl.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockFailed
	}
	return nil
}
