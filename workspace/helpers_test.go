package workspace

import (
	"context"
	"sync"
	"testing"

	"gorm.io/gorm"

	"github.com/aisgo/ais-workspace/database/sqlite"
	bizerrors "github.com/aisgo/ais-workspace/errors"
	"github.com/aisgo/ais-workspace/events"
	"github.com/aisgo/ais-workspace/logger"
	"github.com/aisgo/ais-workspace/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := sqlite.NewDB(sqlite.Config{Path: ":memory:"}, logger.NewNop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
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

// fakeDirectory 内存目录，只实现上下文用到的 ListAccessible
type fakeDirectory struct {
	Directory

	mu      sync.Mutex
	tenants map[string][]model.Workspace
	err     error
	calls   int
	block   chan struct{}
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{tenants: make(map[string][]model.Workspace)}
}

func (f *fakeDirectory) set(principalID string, ws ...model.Workspace) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tenants[principalID] = ws
}

func (f *fakeDirectory) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeDirectory) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeDirectory) ListAccessible(ctx context.Context, principalID string) ([]model.Workspace, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	err := f.err
	list := append([]model.Workspace(nil), f.tenants[principalID]...)
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (f *fakeDirectory) EnsureDefault(_ context.Context, p *model.Principal) (*model.Workspace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range f.tenants[p.ID] {
		if w.IsDefault && w.OwnerID == p.ID {
			return &w, nil
		}
	}
	w := workspaceOf(p.ID+"-default", p.ID, true)
	f.tenants[p.ID] = append(f.tenants[p.ID], w)
	return &w, nil
}

type memoryPreferences struct {
	mu      sync.Mutex
	values  map[string]string
	loadErr error
	saveErr error
}

func newMemoryPreferences() *memoryPreferences {
	return &memoryPreferences{values: make(map[string]string)}
}

func (m *memoryPreferences) Load(_ context.Context, principalID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return "", m.loadErr
	}
	return m.values[principalID], nil
}

func (m *memoryPreferences) Save(_ context.Context, principalID, workspaceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.values[principalID] = workspaceID
	return nil
}

func (m *memoryPreferences) get(principalID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[principalID]
}

func workspaceOf(id, owner string, isDefault bool, members ...string) model.Workspace {
	w := model.Workspace{
		BaseModel: model.BaseModel{ID: id},
		Name:      id,
		OwnerID:   owner,
		IsDefault: isDefault,
	}
	for _, m := range members {
		w.Members = append(w.Members, model.Membership{WorkspaceID: id, PrincipalID: m})
	}
	return w
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*events.Event
}

func (r *recordingPublisher) Publish(_ context.Context, e *events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingPublisher) ofType(t events.Type) []*events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*events.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

var errBackendDown = bizerrors.Wrap(bizerrors.ErrCodeBackendUnavailable, "backend unavailable", context.DeadlineExceeded)
