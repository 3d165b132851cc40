package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/aisgo/ais-workspace/events"
	"github.com/aisgo/ais-workspace/logger"
	"github.com/aisgo/ais-workspace/metrics"
)

/* ========================================================================
 * Security Audit - 安全违规记录
 * ========================================================================
 * 职责: 所有跨租户访问尝试统一在此记录：error 级日志、指标、领域事件
 * ======================================================================== */

// Kind 违规类型
type Kind string

const (
	KindUnauthorizedTenantAccess Kind = "unauthorized_tenant_access"
	KindCrossTenantWrite         Kind = "cross_tenant_write"
	KindMixedTenantOperation     Kind = "mixed_tenant_operation"
	KindForeignRecordFiltered    Kind = "foreign_record_filtered"
)

// Violation 一次违规
type Violation struct {
	Kind           Kind
	PrincipalID    string
	ActiveTenantID string
	TargetTenantID string
	Entity         string
	EntityID       string
	Operation      string
	Detail         string
}

// Recorder 违规记录接口
type Recorder interface {
	Record(ctx context.Context, v Violation)
}

// Nop 不记录任何内容
type Nop struct{}

func (Nop) Record(context.Context, Violation) {}

// LogRecorder 日志 + 指标 + 事件
type LogRecorder struct {
	log       *logger.Logger
	publisher events.Publisher
}

// NewLogRecorder 创建记录器；publisher 可为 nil
func NewLogRecorder(log *logger.Logger, publisher events.Publisher) *LogRecorder {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &LogRecorder{log: log.Named("security"), publisher: publisher}
}

func (r *LogRecorder) Record(ctx context.Context, v Violation) {
	r.log.WithContext(ctx).Error("cross-tenant access rejected",
		zap.Bool("security_violation", true),
		zap.String("kind", string(v.Kind)),
		zap.String("principal_id", v.PrincipalID),
		zap.String("active_tenant_id", v.ActiveTenantID),
		zap.String("target_tenant_id", v.TargetTenantID),
		zap.String("entity", v.Entity),
		zap.String("entity_id", v.EntityID),
		zap.String("operation", v.Operation),
		zap.String("detail", v.Detail),
	)
	metrics.SecurityViolationTotal.WithLabelValues(string(v.Kind), v.Entity).Inc()

	e := events.New(events.TypeSecurityViolation, v.ActiveTenantID, v.PrincipalID).
		WithSubject(v.EntityID).
		With("kind", string(v.Kind)).
		With("entity", v.Entity).
		With("operation", v.Operation)
	if v.TargetTenantID != "" {
		e.With("target_tenant_id", v.TargetTenantID)
	}
	if err := r.publisher.Publish(ctx, e); err != nil {
		r.log.Warn("failed to publish security event", zap.Error(err))
	}
}
