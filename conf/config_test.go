package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type testConfig struct {
	Server struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"server"`
	Repository struct {
		Timeout time.Duration `mapstructure:"timeout"`
		Legacy  string        `mapstructure:"legacy"`
	} `mapstructure:"repository"`
	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
	} `mapstructure:"kafka"`
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "workspace.yaml"), []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return dir
}

func TestLoadExpandsPlaceholders(t *testing.T) {
	t.Setenv("TEST_SERVER_PORT", "9001")
	dir := writeConfig(t, `
server:
  port: ${TEST_SERVER_PORT:-8080}
repository:
  timeout: ${TEST_REPO_TIMEOUT:-3s}
  legacy: shared
kafka:
  brokers: "k1:9092,k2:9092"
`)

	var cfg testConfig
	if err := NewLoader(dir, "workspace", "yaml").Load(&cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9001 {
		t.Fatalf("expected env value, got %d", cfg.Server.Port)
	}
	if cfg.Repository.Timeout != 3*time.Second {
		t.Fatalf("expected default duration, got %v", cfg.Repository.Timeout)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Fatalf("unexpected brokers: %v", cfg.Kafka.Brokers)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("WS_REPOSITORY_LEGACY", "hidden")
	dir := writeConfig(t, "repository:\n  legacy: shared\n")

	var cfg testConfig
	if err := NewLoader(dir, "workspace", "yaml", WithEnvPrefix("WS")).Load(&cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Repository.Legacy != "hidden" {
		t.Fatalf("expected env override, got %q", cfg.Repository.Legacy)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	var cfg testConfig
	loader := NewLoader(t.TempDir(), "absent", "yaml", WithDefault("server.port", 8080))
	if err := loader.Load(&cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port, got %d", cfg.Server.Port)
	}
}
