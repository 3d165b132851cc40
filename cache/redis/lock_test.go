package redis

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLockAcquireRelease(t *testing.T) {
	client, _ := newTestClient(t, "ws")
	ctx := context.Background()
	opt := LockOption{TTL: time.Second, RetryTimes: 1, RetryDelay: 10 * time.Millisecond}

	lock := client.NewLock("tasks:t1", opt)
	if err := lock.Acquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	other := client.NewLock("tasks:t1", opt)
	if err := other.Acquire(ctx); !errors.Is(err, ErrLockFailed) {
		t.Fatalf("expected ErrLockFailed, got %v", err)
	}
	if err := other.Release(ctx); !errors.Is(err, ErrUnlockFailed) {
		t.Fatalf("non-holder must not release, got %v", err)
	}

	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := other.Acquire(ctx); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
}

func TestLockExpiresAndExtend(t *testing.T) {
	client, server := newTestClient(t, "")
	ctx := context.Background()

	lock := client.NewLock("note:n1", LockOption{TTL: time.Second, RetryTimes: 1})
	if err := lock.Acquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := lock.Extend(ctx, 5*time.Second); err != nil {
		t.Fatalf("extend: %v", err)
	}
	server.FastForward(2 * time.Second)
	if !server.Exists("lock:note:n1") {
		t.Fatalf("extended lock must survive original ttl")
	}
	server.FastForward(5 * time.Second)
	if err := lock.Extend(ctx, time.Second); !errors.Is(err, ErrLockFailed) {
		t.Fatalf("expected extend to fail after expiry, got %v", err)
	}
}

func TestLockAcquireHonoursContext(t *testing.T) {
	client, _ := newTestClient(t, "")
	held := client.NewLock("x", LockOption{TTL: time.Minute, RetryTimes: 1})
	if err := held.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	waiter := client.NewLock("x", LockOption{TTL: time.Minute, RetryTimes: 100, RetryDelay: 20 * time.Millisecond})
	if err := waiter.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
