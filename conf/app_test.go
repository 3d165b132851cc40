package conf

import (
	"strings"
	"testing"
	"time"
)

func TestLoadAppMergesDefaults(t *testing.T) {
	t.Setenv("TEST_AUTH_SECRET", "s3cret")
	dir := writeConfig(t, `
server:
  port: 9090
database:
  driver: sqlite
  sqlite:
    path: ":memory:"
repository:
  legacy: read_only
  retry:
    max_attempts: 2
    timeout: 500ms
auth:
  headers:
    secret: ${TEST_AUTH_SECRET}
    allowed_issuers: "gateway,admin"
`)

	cfg, err := LoadApp(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9090 || cfg.Server.AppName != "ais-workspace" {
		t.Fatalf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Repository.Retry.MaxAttempts != 2 || cfg.Repository.Retry.Timeout != 500*time.Millisecond {
		t.Fatalf("unexpected retry policy: %+v", cfg.Repository.Retry)
	}
	if cfg.Repository.Retry.Multiplier == 0 {
		t.Fatalf("unset retry fields must keep defaults: %+v", cfg.Repository.Retry)
	}
	if cfg.Auth.Headers.Secret != "s3cret" || len(cfg.Auth.Headers.AllowedIssuers) != 2 {
		t.Fatalf("unexpected auth config: %+v", cfg.Auth.Headers)
	}
	if cfg.MQ == nil || cfg.MQ.Topic != "workspace-events" {
		t.Fatalf("expected default mq config, got %+v", cfg.MQ)
	}
}

func TestLoadAppValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"missing secret", "database:\n  driver: sqlite\n", "auth.headers.secret"},
		{"redis locker without redis", "auth:\n  headers:\n    secret: x\nrepository:\n  locker: redis\n", "redis.enabled"},
		{"bad legacy mode", "auth:\n  headers:\n    secret: x\nrepository:\n  legacy: everyone\n", "legacy"},
		{"unknown driver", "auth:\n  headers:\n    secret: x\ndatabase:\n  driver: oracle\n", "oracle"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadApp(writeConfig(t, tc.body))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}
