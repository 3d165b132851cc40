package workspace

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aisgo/ais-workspace/events"
	"github.com/aisgo/ais-workspace/logger"
	"github.com/aisgo/ais-workspace/model"
)

func TestRegistryAcquireCreatesDefault(t *testing.T) {
	dir := newFakeDirectory()
	r := NewRegistry(dir, newMemoryPreferences(), logger.NewNop(), time.Minute)

	p := &model.Principal{BaseModel: model.BaseModel{ID: "alice"}}
	var wg sync.WaitGroup
	got := make([]*Context, 8)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			wc, err := r.Acquire(context.Background(), p)
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			got[i] = wc
		}(i)
	}
	wg.Wait()

	for _, wc := range got[1:] {
		if wc != got[0] {
			t.Fatalf("expected one context per principal")
		}
	}
	if r.Len() != 1 {
		t.Fatalf("expected one session, got %d", r.Len())
	}
	if got[0].ActiveTenantID() != "alice-default" {
		t.Fatalf("expected default workspace active, got %q", got[0].ActiveTenantID())
	}
}

func TestRegistrySweepEvictsIdleSessions(t *testing.T) {
	dir := newFakeDirectory()
	r := NewRegistry(dir, newMemoryPreferences(), logger.NewNop(), time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	for _, id := range []string{"alice", "bob"} {
		if _, err := r.Acquire(context.Background(), &model.Principal{BaseModel: model.BaseModel{ID: id}}); err != nil {
			t.Fatalf("acquire %s: %v", id, err)
		}
	}

	now = now.Add(45 * time.Second)
	r.Get("bob")
	now = now.Add(30 * time.Second)

	if n := r.Sweep(); n != 1 {
		t.Fatalf("expected one eviction, got %d", n)
	}
	if _, ok := r.Get("alice"); ok {
		t.Fatalf("idle session must be evicted")
	}
	if _, ok := r.Get("bob"); !ok {
		t.Fatalf("recently used session must survive")
	}
}

func TestRegistryMembershipEvents(t *testing.T) {
	dir := newFakeDirectory()
	dir.set("bob", workspaceOf("bob-default", "bob", true), workspaceOf("acme", "alice", false, "bob"))
	prefs := newMemoryPreferences()
	prefs.values["bob"] = "acme"
	r := NewRegistry(dir, prefs, logger.NewNop(), time.Minute)

	wc, err := r.Acquire(context.Background(), &model.Principal{BaseModel: model.BaseModel{ID: "bob"}})
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if wc.ActiveTenantID() != "acme" {
		t.Fatalf("expected preferred workspace, got %q", wc.ActiveTenantID())
	}

	handlers := r.EventHandlers()
	dir.set("bob", workspaceOf("bob-default", "bob", true))
	removed := events.New(events.TypeMembershipChanged, "acme", "alice").WithSubject("bob").With(AttrAction, "removed")
	if err := handlers[events.TypeMembershipChanged](context.Background(), removed); err != nil {
		t.Fatalf("handle membership change: %v", err)
	}
	if wc.ActiveTenantID() != "bob-default" {
		t.Fatalf("expected fallback after removal, got %q", wc.ActiveTenantID())
	}

	// 本实例没有会话的主体直接忽略
	deleted := events.New(events.TypeWorkspaceDeleted, "acme", "alice").With(AttrMembers, "alice,carol")
	if err := handlers[events.TypeWorkspaceDeleted](context.Background(), deleted); err != nil {
		t.Fatalf("handle delete: %v", err)
	}
}

func TestRegistryEvictsWhenNoTenantRemains(t *testing.T) {
	dir := newFakeDirectory()
	dir.set("bob", workspaceOf("acme", "alice", false, "bob"))
	r := NewRegistry(dir, newMemoryPreferences(), logger.NewNop(), time.Minute)
	wc := NewContext(dir, newMemoryPreferences())
	if err := wc.Initialize(context.Background(), model.Principal{BaseModel: model.BaseModel{ID: "bob"}}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	r.sessions["bob"] = &session{wc: wc, lastSeen: time.Now()}

	dir.set("bob")
	if err := r.RefreshPrincipal(context.Background(), "bob"); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if r.Len() != 0 {
		t.Fatalf("session without tenants must be evicted")
	}
}

func TestRoleFor(t *testing.T) {
	ws := workspaceOf("acme", "alice", false, "bob")
	cases := map[string]Role{"alice": RoleOwner, "bob": RoleMember, "eve": RoleNone, "": RoleNone}
	for pid, want := range cases {
		if got := RoleFor(pid, ws); got != want {
			t.Fatalf("RoleFor(%q) = %v, want %v", pid, got, want)
		}
	}
	if !RoleOwner.IsAdmin() || RoleMember.IsAdmin() || !RoleMember.CanAccess() || RoleNone.CanAccess() {
		t.Fatalf("unexpected role capabilities")
	}
}
