package repository

import (
	"context"
	"reflect"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aisgo/ais-workspace/audit"
	bizerrors "github.com/aisgo/ais-workspace/errors"
	"github.com/aisgo/ais-workspace/guard"
	"github.com/aisgo/ais-workspace/logger"
	"github.com/aisgo/ais-workspace/metrics"
	"github.com/aisgo/ais-workspace/model"
	"github.com/aisgo/ais-workspace/workspace"
)

/* ========================================================================
 * ScopedRepository - 租户隔离仓储
 * ========================================================================
 * 职责: 访问 ScopedEntity 的唯一路径
 * 约束:
 *   - 每个操作开始时读取一次活动租户快照，全程使用该快照
 *   - 读: 后端查询带 tenant_id 条件，返回前再次剔除其他租户的记录
 *   - 写: tenant_id 由活动租户决定，调用方不能覆盖
 *   - 其他租户的 ID 与不存在的 ID 返回相同的 ErrNotFound
 *   - 同一实体 ID 的写操作串行执行
 *   - 快照过期（期间切换了租户）的结果以 ErrStaleGeneration 丢弃
 *
 * 使用示例:
 *   tasks := repository.NewScoped[model.Task](repository.NewGormBackend[model.Task](db), wc, opts)
 *   list, err := tasks.List(ctx, repository.Filter{"status": "todo"}, repository.WithSort("position ASC"))
 * ======================================================================== */

// TenantSource 活动租户来源，*workspace.Context 实现了它
type TenantSource interface {
	Snapshot() (workspace.Snapshot, error)
	IsCurrent(workspace.Snapshot) bool
}

// Record 约束 *T 为可隔离的记录
type Record[T any] interface {
	*T
	model.Scoped
	model.TenantStamper
}

// Options 仓储选项，零值可用
type Options struct {
	Entity   string // 指标与日志中的实体名，默认取类型名
	Retry    RetryPolicy
	Locker   Locker
	Recorder audit.Recorder
	Logger   *logger.Logger
	Legacy   LegacyMode
	Links    []Link // 写入前校验的引用列
}

// ScopedRepository 租户隔离仓储
type ScopedRepository[T any, P Record[T]] struct {
	backend  Backend[T]
	source   TenantSource
	entity   string
	retry    RetryPolicy
	locker   Locker
	recorder audit.Recorder
	log      *logger.Logger
	legacy   LegacyMode
	links    []Link
}

// NewScoped 创建仓储
func NewScoped[T any, P Record[T]](backend Backend[T], source TenantSource, opts Options) *ScopedRepository[T, P] {
	r := &ScopedRepository[T, P]{
		backend:  backend,
		source:   source,
		entity:   opts.Entity,
		retry:    opts.Retry,
		locker:   opts.Locker,
		recorder: opts.Recorder,
		log:      opts.Logger,
		legacy:   opts.Legacy,
		links:    opts.Links,
	}
	if r.entity == "" {
		r.entity = strings.ToLower(reflect.TypeFor[T]().Name())
	}
	if r.locker == nil {
		r.locker = NewLocalLocker()
	}
	if r.recorder == nil {
		r.recorder = audit.Nop{}
	}
	if r.log == nil {
		r.log = logger.NewNop()
	}
	if r.legacy == "" {
		r.legacy = LegacyShared
	}
	return r
}

// Entity 实体名
func (r *ScopedRepository[T, P]) Entity() string {
	return r.entity
}

type call struct {
	name  string
	snap  workspace.Snapshot
	start time.Time
}

// begin 读取一次快照并写入 ctx
func (r *ScopedRepository[T, P]) begin(ctx context.Context, name string) (context.Context, *call, error) {
	snap, err := r.source.Snapshot()
	if err != nil {
		return ctx, nil, err
	}
	ctx = WithTenantContext(ctx, TenantContext{
		TenantID:    snap.TenantID,
		PrincipalID: snap.PrincipalID,
		Generation:  snap.Generation,
		Legacy:      r.legacy,
	})
	ctx = logger.ContextWithFields(ctx,
		zap.String("tenant_id", snap.TenantID),
		zap.String("principal_id", snap.PrincipalID),
		zap.Uint64("generation", snap.Generation),
	)
	return ctx, &call{name: name, snap: snap, start: time.Now()}, nil
}

// finish 记录耗时；成功但快照已过期时返回 ErrStaleGeneration
func (r *ScopedRepository[T, P]) finish(ctx context.Context, c *call, err error) error {
	if err == nil && !r.source.IsCurrent(c.snap) {
		metrics.StaleResultTotal.WithLabelValues(r.entity, c.name).Inc()
		r.log.WithContext(ctx).Info("dropped result from previous workspace", zap.String("entity", r.entity), zap.String("operation", c.name))
		err = bizerrors.ErrStaleGeneration
	}
	metrics.RepositoryOperationDuration.
		WithLabelValues(r.entity, c.name, outcome(err)).
		Observe(time.Since(c.start).Seconds())
	return err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case bizerrors.IsSecurityViolation(err):
		return "rejected"
	case bizerrors.IsNotFound(err):
		return "not_found"
	case bizerrors.Is(err, bizerrors.ErrStaleGeneration):
		return "stale"
	case bizerrors.IsRetryable(err):
		return "unavailable"
	default:
		return "error"
	}
}

func (r *ScopedRepository[T, P]) op(name string) operation {
	return operation{entity: r.entity, name: name}
}

func (r *ScopedRepository[T, P]) violation(ctx context.Context, c *call, kind audit.Kind, target, id string) {
	r.recorder.Record(ctx, audit.Violation{
		Kind:           kind,
		PrincipalID:    c.snap.PrincipalID,
		ActiveTenantID: c.snap.TenantID,
		TargetTenantID: target,
		Entity:         r.entity,
		EntityID:       id,
		Operation:      c.name,
	})
}

// owned 记录是否可由活动租户读取
func (r *ScopedRepository[T, P]) owned(c *call, rec *T) bool {
	tid := model.TenantOf(P(rec))
	if tid == "" {
		return r.legacy.Visible()
	}
	return tid == c.snap.TenantID
}

// contain 剔除不属于活动租户的记录；其他租户的记录同时记为安全违规
func (r *ScopedRepository[T, P]) contain(ctx context.Context, c *call, list []*T) []*T {
	out := list[:0:0]
	for _, rec := range list {
		if rec == nil {
			continue
		}
		if !r.owned(c, rec) {
			if tid := model.TenantOf(P(rec)); tid != "" {
				r.violation(ctx, c, audit.KindForeignRecordFiltered, tid, P(rec).GetID())
			}
			continue
		}
		out = append(out, rec)
	}
	return out
}

/* ========================================================================
 * 读操作
 * ======================================================================== */

// List 列出活动租户的记录；filter 中的 tenant_id 被忽略
func (r *ScopedRepository[T, P]) List(ctx context.Context, filter Filter, opts ...ListOption) ([]*T, error) {
	list, _, err := r.ListSnapshot(ctx, filter, opts...)
	return list, err
}

// ListSnapshot 与 List 相同，同时返回结果所属的快照，供 SessionCache 播种
func (r *ScopedRepository[T, P]) ListSnapshot(ctx context.Context, filter Filter, opts ...ListOption) ([]*T, workspace.Snapshot, error) {
	ctx, c, err := r.begin(ctx, "list")
	if err != nil {
		return nil, workspace.Snapshot{}, err
	}

	q := Query{Filter: filter}
	for _, opt := range opts {
		opt(&q)
	}
	if _, ok := filter[tenantColumn]; ok {
		r.log.WithContext(ctx).Debug("caller supplied tenant_id ignored", zap.String("entity", r.entity))
	}

	list, err := run(ctx, r.retry, r.log, r.op(c.name), func(ctx context.Context) ([]*T, error) {
		return r.backend.Find(ctx, q)
	})
	if err == nil {
		list = r.contain(ctx, c, list)
	}
	if err := r.finish(ctx, c, err); err != nil {
		return nil, workspace.Snapshot{}, err
	}
	return list, c.snap, nil
}

// Get 根据 ID 获取记录；其他租户的记录返回 ErrNotFound
func (r *ScopedRepository[T, P]) Get(ctx context.Context, id string) (*T, error) {
	ctx, c, err := r.begin(ctx, "get")
	if err != nil {
		return nil, err
	}
	rec, err := r.fetch(ctx, c, id)
	if err := r.finish(ctx, c, err); err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *ScopedRepository[T, P]) fetch(ctx context.Context, c *call, id string) (*T, error) {
	rec, err := run(ctx, r.retry, r.log, r.op(c.name), func(ctx context.Context) (*T, error) {
		return r.backend.Get(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	if rec == nil || len(r.contain(ctx, c, []*T{rec})) == 0 {
		return nil, bizerrors.ErrNotFound
	}
	return rec, nil
}

// FindByIDs 返回 ids 中属于活动租户的记录，其余忽略
func (r *ScopedRepository[T, P]) FindByIDs(ctx context.Context, ids []string) ([]*T, error) {
	if len(ids) == 0 {
		return []*T{}, nil
	}
	ctx, c, err := r.begin(ctx, "find_by_ids")
	if err != nil {
		return nil, err
	}
	list, err := run(ctx, r.retry, r.log, r.op(c.name), func(ctx context.Context) ([]*T, error) {
		return r.backend.Find(ctx, Query{IDs: ids})
	})
	if err == nil {
		list = r.contain(ctx, c, list)
	}
	if err := r.finish(ctx, c, err); err != nil {
		return nil, err
	}
	return list, nil
}

/* ========================================================================
 * 写操作
 * ======================================================================== */

// Create 写入活动租户；rec 已带有其他租户或引用了其他租户的记录时拒绝
// ID 在首次尝试前生成，重试不会产生重复记录
func (r *ScopedRepository[T, P]) Create(ctx context.Context, rec *T) (*T, error) {
	if rec == nil {
		return nil, bizerrors.ErrInvalidArgument
	}
	ctx, c, err := r.begin(ctx, "create")
	if err != nil {
		return nil, err
	}

	p := P(rec)
	if tid := p.GetTenantID(); tid != nil && *tid != c.snap.TenantID {
		r.violation(ctx, c, audit.KindCrossTenantWrite, *tid, p.GetID())
		return nil, r.finish(ctx, c, bizerrors.ErrCrossTenantWriteRejected)
	}
	tenantID := c.snap.TenantID
	p.SetTenantID(&tenantID)
	id := p.EnsureID()
	if err := r.checkLinks(ctx, c, rec, recordRefs(rec, r.links)); err != nil {
		return nil, r.finish(ctx, c, err)
	}

	attempts := 0
	_, err = run(ctx, r.retry, r.log, r.op(c.name), func(ctx context.Context) (struct{}, error) {
		attempts++
		err := r.backend.Create(ctx, rec)
		// 前一次尝试已提交但响应丢失
		if attempts > 1 && bizerrors.Code(err) == bizerrors.ErrCodeAlreadyExists {
			if stored, gerr := r.backend.Get(ctx, id); gerr == nil && model.TenantOf(P(stored)) == tenantID {
				*rec = *stored
				return struct{}{}, nil
			}
		}
		return struct{}{}, err
	})
	if err := r.finish(ctx, c, err); err != nil {
		return nil, err
	}
	return rec, nil
}

// Update 更新活动租户中的记录
// fields 中的 tenant_id 与活动租户不同（包括清空）时拒绝，相同时忽略
func (r *ScopedRepository[T, P]) Update(ctx context.Context, id string, fields map[string]any) (*T, error) {
	ctx, c, err := r.begin(ctx, "update")
	if err != nil {
		return nil, err
	}

	fields, err = r.stripTenant(ctx, c, id, fields)
	if err != nil {
		return nil, r.finish(ctx, c, err)
	}
	refs, err := updateRefs(fields, r.links)
	if err != nil {
		return nil, r.finish(ctx, c, err)
	}

	unlock, err := r.locker.Lock(ctx, r.entity+":"+id)
	if err != nil {
		return nil, r.finish(ctx, c, err)
	}
	defer unlock()

	current, err := r.writable(ctx, c, id)
	if err != nil {
		return nil, r.finish(ctx, c, err)
	}
	if err := r.checkLinks(ctx, c, current, refs); err != nil {
		return nil, r.finish(ctx, c, err)
	}

	updated, err := run(ctx, r.retry, r.log, r.op(c.name), func(ctx context.Context) (*T, error) {
		return r.backend.Update(ctx, id, fields)
	})
	if err == nil && !r.owned(c, updated) {
		r.violation(ctx, c, audit.KindForeignRecordFiltered, model.TenantOf(P(updated)), id)
		updated, err = nil, bizerrors.ErrNotFound
	}
	if err := r.finish(ctx, c, err); err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete 删除活动租户中的记录，存在性语义与 Update 相同
func (r *ScopedRepository[T, P]) Delete(ctx context.Context, id string) error {
	ctx, c, err := r.begin(ctx, "delete")
	if err != nil {
		return err
	}

	unlock, err := r.locker.Lock(ctx, r.entity+":"+id)
	if err != nil {
		return r.finish(ctx, c, err)
	}
	defer unlock()

	if _, err := r.writable(ctx, c, id); err != nil {
		return r.finish(ctx, c, err)
	}

	attempts := 0
	_, err = run(ctx, r.retry, r.log, r.op(c.name), func(ctx context.Context) (struct{}, error) {
		attempts++
		err := r.backend.Delete(ctx, id)
		// 前一次尝试已删除但响应丢失
		if attempts > 1 && bizerrors.IsNotFound(err) {
			return struct{}{}, nil
		}
		return struct{}{}, err
	})
	return r.finish(ctx, c, err)
}

// DeleteBatch 批量删除；不属于活动租户的 ID 被忽略，返回删除数量
// 删除前再次校验所有目标属于同一租户
func (r *ScopedRepository[T, P]) DeleteBatch(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	ctx, c, err := r.begin(ctx, "delete_batch")
	if err != nil {
		return 0, err
	}

	keys := slices.Clone(ids)
	slices.Sort(keys)
	keys = slices.Compact(keys)
	for _, id := range keys {
		unlock, err := r.locker.Lock(ctx, r.entity+":"+id)
		if err != nil {
			return 0, r.finish(ctx, c, err)
		}
		defer unlock()
	}

	found, err := run(ctx, r.retry, r.log, r.op(c.name), func(ctx context.Context) ([]*T, error) {
		return r.backend.Find(ctx, Query{IDs: keys})
	})
	if err != nil {
		return 0, r.finish(ctx, c, err)
	}
	if err := r.assertSingleTenant(ctx, c, found); err != nil {
		return 0, r.finish(ctx, c, err)
	}

	targets := make([]string, 0, len(found))
	for _, rec := range found {
		p := P(rec)
		if model.IsLegacy(p) && !r.legacy.Writable() {
			continue
		}
		targets = append(targets, p.GetID())
	}
	if len(targets) == 0 {
		return 0, r.finish(ctx, c, nil)
	}

	n, err := run(ctx, r.retry, r.log, r.op(c.name), func(ctx context.Context) (int64, error) {
		return r.backend.DeleteBatch(ctx, targets)
	})
	if err := r.finish(ctx, c, err); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *ScopedRepository[T, P]) assertSingleTenant(ctx context.Context, c *call, found []*T) error {
	records := make([]model.Scoped, 0, len(found))
	for _, rec := range found {
		records = append(records, P(rec))
	}
	if err := guard.AssertSingleTenant(c.snap.TenantID, records...); err != nil {
		for _, tid := range guard.TenantsOf(records...) {
			if tid != c.snap.TenantID {
				r.violation(ctx, c, audit.KindMixedTenantOperation, tid, "")
				break
			}
		}
		return err
	}
	return nil
}

// writable 载入记录并确认可由活动租户修改
func (r *ScopedRepository[T, P]) writable(ctx context.Context, c *call, id string) (*T, error) {
	current, err := r.fetch(ctx, c, id)
	if err != nil {
		return nil, err
	}
	if model.IsLegacy(P(current)) && !r.legacy.Writable() {
		return nil, bizerrors.New(bizerrors.ErrCodePermissionDenied, "legacy record is read-only")
	}
	return current, nil
}

// stripTenant 拒绝修改 tenant_id 的请求，移除等于活动租户的 tenant_id
func (r *ScopedRepository[T, P]) stripTenant(ctx context.Context, c *call, id string, fields map[string]any) (map[string]any, error) {
	var out map[string]any
	for _, key := range []string{tenantColumn, "TenantID"} {
		v, ok := fields[key]
		if !ok {
			continue
		}
		if tid := tenantString(v); tid != c.snap.TenantID {
			r.violation(ctx, c, audit.KindCrossTenantWrite, tid, id)
			return nil, bizerrors.ErrCrossTenantWriteRejected
		}
		if out == nil {
			out = make(map[string]any, len(fields))
			for k, v := range fields {
				out[k] = v
			}
		}
		delete(out, key)
	}
	if out == nil {
		return fields, nil
	}
	return out, nil
}
