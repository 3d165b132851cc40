package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/aisgo/ais-workspace/logger"
)

func newTestClient(t *testing.T, prefix string) (*Client, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, prefix, logger.NewNop()), server
}

func TestClientPrefixesKeys(t *testing.T) {
	client, server := newTestClient(t, "ws-test")
	ctx := context.Background()

	if err := client.Set(ctx, "k1", "v1", 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, _ := server.Get("ws-test:k1"); got != "v1" {
		t.Fatalf("expected prefixed key, got %q", got)
	}
	if v, err := client.Get(ctx, "k1"); err != nil || v != "v1" {
		t.Fatalf("get: %q %v", v, err)
	}
	if err := client.Del(ctx, "k1"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if _, err := client.Get(ctx, "k1"); !IsNil(err) {
		t.Fatalf("expected redis.Nil, got %v", err)
	}
}

func TestClientHashOps(t *testing.T) {
	client, _ := newTestClient(t, "")
	ctx := context.Background()

	if err := client.HSet(ctx, "active", "p1", "ws1", "p2", "ws2"); err != nil {
		t.Fatalf("hset: %v", err)
	}
	if v, err := client.HGet(ctx, "active", "p2"); err != nil || v != "ws2" {
		t.Fatalf("hget: %q %v", v, err)
	}
	if err := client.HDel(ctx, "active", "p2"); err != nil {
		t.Fatalf("hdel: %v", err)
	}
	if _, err := client.HGet(ctx, "active", "p2"); !IsNil(err) {
		t.Fatalf("expected missing field, got %v", err)
	}
	if err := client.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
}
