package logger

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestValidateConfig(t *testing.T) {
	if err := ValidateConfig(Config{Level: "info", Format: "json"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateConfig(Config{Level: "bad"}); err == nil {
		t.Fatalf("expected error for invalid level")
	}
	if err := ValidateConfig(Config{Format: "xml"}); err == nil {
		t.Fatalf("expected error for invalid format")
	}
}

func TestNewLoggerLevel(t *testing.T) {
	log := NewLogger(Config{Level: "debug"})
	if !log.Core().Enabled(zap.DebugLevel) {
		t.Fatalf("expected debug enabled")
	}

	log = NewLogger(Config{Level: "not-a-level"})
	if log.Core().Enabled(zap.DebugLevel) {
		t.Fatalf("expected debug disabled on invalid level")
	}
}

func TestNewLoggerFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workspace.log")

	log := NewLogger(Config{Level: "info", Format: "json", Output: path})
	log.Info("workspace switched", zap.String("tenant_id", "acme"))
	_ = log.Sync()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(raw), `"tenant_id":"acme"`) {
		t.Fatalf("expected tenant field in log file, got %s", raw)
	}
}

func TestWithContextAddsFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := &Logger{Logger: zap.New(core)}

	ctx := ContextWithFields(context.Background(), zap.String("tenant_id", "acme"))
	ctx = ContextWithFields(ctx, zap.String("principal_id", "p1"))
	log.WithContext(ctx).Info("list")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["tenant_id"] != "acme" || fields["principal_id"] != "p1" {
		t.Fatalf("unexpected fields: %v", fields)
	}
}
