package audit

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/aisgo/ais-workspace/events"
	"github.com/aisgo/ais-workspace/logger"
	"github.com/aisgo/ais-workspace/metrics"
)

type capture struct{ events []*events.Event }

func (c *capture) Publish(_ context.Context, e *events.Event) error {
	c.events = append(c.events, e)
	return nil
}

func TestLogRecorderLogsMetersAndPublishes(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	pub := &capture{}
	rec := NewLogRecorder(&logger.Logger{Logger: zap.New(core)}, pub)

	counter := metrics.SecurityViolationTotal.WithLabelValues(string(KindCrossTenantWrite), "tasks")
	before := testutil.ToFloat64(counter)

	rec.Record(context.Background(), Violation{
		Kind:           KindCrossTenantWrite,
		PrincipalID:    "p1",
		ActiveTenantID: "ws-a",
		TargetTenantID: "ws-b",
		Entity:         "tasks",
		EntityID:       "t1",
		Operation:      "create",
	})

	entries := logs.FilterField(zap.Bool("security_violation", true)).All()
	if len(entries) != 1 || entries[0].Level != zapcore.ErrorLevel {
		t.Fatalf("expected one error-level security entry, got %d", len(entries))
	}
	if entries[0].ContextMap()["target_tenant_id"] != "ws-b" {
		t.Fatalf("missing target tenant: %v", entries[0].ContextMap())
	}
	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Fatalf("expected counter +1, got %v", got)
	}
	if len(pub.events) != 1 || pub.events[0].Type != events.TypeSecurityViolation {
		t.Fatalf("expected security event, got %v", pub.events)
	}
	if pub.events[0].Attributes["target_tenant_id"] != "ws-b" {
		t.Fatalf("unexpected attributes: %v", pub.events[0].Attributes)
	}
}
