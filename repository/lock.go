package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aisgo/ais-workspace/cache/redis"
	bizerrors "github.com/aisgo/ais-workspace/errors"
	"github.com/aisgo/ais-workspace/logger"
)

// Locker 按 key 串行化写操作，key 为 实体:ID
type Locker interface {
	// Lock 阻塞直到获得锁或 ctx 结束
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

/* ========================================================================
 * LocalLocker - 进程内按 key 互斥
 * ======================================================================== */

// LocalLocker 进程内锁，空闲 key 自动回收
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*keyLock)}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, kl)
		return nil, bizerrors.Wrap(bizerrors.ErrCodeCanceled, "wait for write lock", ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-kl.ch
			l.release(key, kl)
		})
	}, nil
}

func (l *LocalLocker) release(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

// size 当前持有或等待中的 key 数
func (l *LocalLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

/* ========================================================================
 * RedisLocker - 多实例部署
 * ======================================================================== */

// RedisLocker 基于 redis 分布式锁
type RedisLocker struct {
	client redis.Clienter
	opt    redis.LockOption
	log    *logger.Logger
}

// NewRedisLocker ttl 需大于单次写操作的最长耗时（超时 × 重试次数）
func NewRedisLocker(client redis.Clienter, ttl time.Duration, log *logger.Logger) *RedisLocker {
	opt := redis.DefaultLockOption()
	if ttl > 0 {
		opt.TTL = ttl
	}
	return &RedisLocker{client: client, opt: opt, log: log}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	lock := l.client.NewLock("write:"+key, l.opt)
	if err := lock.Acquire(ctx); err != nil {
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, bizerrors.Wrap(bizerrors.ErrCodeCanceled, "wait for write lock", err)
		case errors.Is(err, redis.ErrLockFailed):
			return nil, bizerrors.Wrap(bizerrors.ErrCodeBackendUnavailable, "record is being modified, retry later", err)
		}
		return nil, bizerrors.Wrap(bizerrors.ErrCodeBackendUnavailable, "acquire write lock", err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// 释放使用独立 ctx，请求已取消时也要归还锁
			rctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := lock.Release(rctx); err != nil {
				l.log.Warn("release write lock failed", zap.String("key", key), zap.Error(err))
			}
		})
	}, nil
}
