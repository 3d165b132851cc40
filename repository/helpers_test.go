package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/aisgo/ais-workspace/audit"
	"github.com/aisgo/ais-workspace/database/sqlite"
	"github.com/aisgo/ais-workspace/logger"
	"github.com/aisgo/ais-workspace/model"
	"github.com/aisgo/ais-workspace/workspace"
)

const (
	acme   = "01HACME0000000000000000000"
	globex = "01HGL0BEX00000000000000000"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := sqlite.NewDB(sqlite.Config{Path: ":memory:"}, logger.NewNop())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(model.AllModels()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// fakeSource 可手动切换的活动租户
type fakeSource struct {
	mu   sync.Mutex
	snap workspace.Snapshot
	err  error
}

func newFakeSource(tenantID string) *fakeSource {
	return &fakeSource{snap: workspace.Snapshot{TenantID: tenantID, PrincipalID: "alice", Generation: 1}}
}

func (f *fakeSource) Snapshot() (workspace.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return workspace.Snapshot{}, f.err
	}
	return f.snap, nil
}

func (f *fakeSource) IsCurrent(s workspace.Snapshot) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err == nil && s == f.snap
}

func (f *fakeSource) switchTo(tenantID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap.TenantID = tenantID
	f.snap.Generation++
}

type recordingRecorder struct {
	mu         sync.Mutex
	violations []audit.Violation
}

func (r *recordingRecorder) Record(_ context.Context, v audit.Violation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.violations = append(r.violations, v)
}

func (r *recordingRecorder) all() []audit.Violation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audit.Violation(nil), r.violations...)
}

func fastRetry() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		Timeout:         time.Second,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Multiplier:      2,
	}
}

type taskRepo = ScopedRepository[model.Task, *model.Task]

func newTaskRepo(backend Backend[model.Task], source TenantSource, rec audit.Recorder, legacy LegacyMode) *taskRepo {
	return NewScoped[model.Task](backend, source, Options{
		Retry:    fastRetry(),
		Recorder: rec,
		Legacy:   legacy,
	})
}

// hookBackend 覆盖部分后端方法
type hookBackend struct {
	Backend[model.Task]

	mu     sync.Mutex
	calls  map[string]int
	find   func(ctx context.Context, q Query) ([]*model.Task, error)
	get    func(ctx context.Context, id string) (*model.Task, error)
	create func(ctx context.Context, rec *model.Task) error
	update func(ctx context.Context, id string, fields map[string]any) (*model.Task, error)
}

func newHookBackend(inner Backend[model.Task]) *hookBackend {
	return &hookBackend{Backend: inner, calls: make(map[string]int)}
}

func (h *hookBackend) count(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[name]
}

func (h *hookBackend) inc(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls[name]++
}

func (h *hookBackend) Find(ctx context.Context, q Query) ([]*model.Task, error) {
	h.inc("find")
	if h.find != nil {
		return h.find(ctx, q)
	}
	return h.Backend.Find(ctx, q)
}

func (h *hookBackend) Get(ctx context.Context, id string) (*model.Task, error) {
	h.inc("get")
	if h.get != nil {
		return h.get(ctx, id)
	}
	return h.Backend.Get(ctx, id)
}

func (h *hookBackend) Create(ctx context.Context, rec *model.Task) error {
	h.inc("create")
	if h.create != nil {
		return h.create(ctx, rec)
	}
	return h.Backend.Create(ctx, rec)
}

func (h *hookBackend) Update(ctx context.Context, id string, fields map[string]any) (*model.Task, error) {
	h.inc("update")
	if h.update != nil {
		return h.update(ctx, id, fields)
	}
	return h.Backend.Update(ctx, id, fields)
}

func taskIn(tenantID, title string) *model.Task {
	t := &model.Task{Title: title}
	if tenantID != "" {
		t.TenantID = model.StringPtr(tenantID)
	}
	t.EnsureID()
	return t
}

func titles(list []*model.Task) []string {
	out := make([]string, 0, len(list))
	for _, t := range list {
		out = append(out, t.Title)
	}
	return out
}
