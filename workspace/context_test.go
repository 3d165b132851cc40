package workspace

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/aisgo/ais-workspace/audit"
	bizerrors "github.com/aisgo/ais-workspace/errors"
	"github.com/aisgo/ais-workspace/events"
	"github.com/aisgo/ais-workspace/model"
)

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

var alice = model.Principal{BaseModel: model.BaseModel{ID: "alice"}, Email: "alice@example.com"}

func readyContext(t *testing.T, dir *fakeDirectory, prefs *memoryPreferences, opts ...ContextOption) *Context {
	t.Helper()
	wc := NewContext(dir, prefs, opts...)
	if err := wc.Initialize(context.Background(), alice); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return wc
}

func TestInitializeChoosesActiveTenant(t *testing.T) {
	cases := []struct {
		name      string
		tenants   []model.Workspace
		preferred string
		want      string
	}{
		{
			name:      "accessible preference wins",
			tenants:   []model.Workspace{workspaceOf("home", "alice", true), workspaceOf("acme", "bob", false, "alice")},
			preferred: "acme",
			want:      "acme",
		},
		{
			name:      "revoked preference falls back to own default",
			tenants:   []model.Workspace{workspaceOf("acme", "bob", false, "alice"), workspaceOf("home", "alice", true)},
			preferred: "gone",
			want:      "home",
		},
		{
			name:    "no default uses first accessible",
			tenants: []model.Workspace{workspaceOf("acme", "bob", false, "alice"), workspaceOf("beta", "carol", false, "alice")},
			want:    "acme",
		},
		{
			name:    "foreign default is not ours",
			tenants: []model.Workspace{workspaceOf("acme", "bob", false, "alice"), workspaceOf("bobhome", "bob", true, "alice")},
			want:    "acme",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := newFakeDirectory()
			dir.set("alice", tc.tenants...)
			prefs := newMemoryPreferences()
			if tc.preferred != "" {
				prefs.values["alice"] = tc.preferred
			}

			wc := readyContext(t, dir, prefs)
			if got := wc.ActiveTenantID(); got != tc.want {
				t.Fatalf("active = %q, want %q", got, tc.want)
			}
			if wc.State() != StateReady {
				t.Fatalf("expected ready, got %v", wc.State())
			}
			if got := prefs.get("alice"); got != tc.want {
				t.Fatalf("preference = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestInitializeNoTenantAvailable(t *testing.T) {
	wc := NewContext(newFakeDirectory(), newMemoryPreferences())
	err := wc.Initialize(context.Background(), alice)
	if !bizerrors.Is(err, bizerrors.ErrNoTenantAvailable) {
		t.Fatalf("expected ErrNoTenantAvailable, got %v", err)
	}
	if wc.State() != StateUninitialized {
		t.Fatalf("expected uninitialized, got %v", wc.State())
	}
	if _, err := wc.Snapshot(); !bizerrors.Is(err, bizerrors.ErrWorkspaceNotReady) {
		t.Fatalf("expected not ready snapshot, got %v", err)
	}
}

func TestInitializeBackendFailureKeepsState(t *testing.T) {
	dir := newFakeDirectory()
	dir.fail(errBackendDown)
	wc := NewContext(dir, newMemoryPreferences())

	err := wc.Initialize(context.Background(), alice)
	if !bizerrors.Is(err, bizerrors.ErrBackendUnavailable) {
		t.Fatalf("expected backend unavailable, got %v", err)
	}
	if wc.State() != StateUninitialized {
		t.Fatalf("expected uninitialized, got %v", wc.State())
	}
}

func TestInitializeIgnoresPreferenceFailure(t *testing.T) {
	dir := newFakeDirectory()
	dir.set("alice", workspaceOf("home", "alice", true))
	prefs := newMemoryPreferences()
	prefs.loadErr = errBackendDown

	wc := readyContext(t, dir, prefs)
	if wc.ActiveTenantID() != "home" {
		t.Fatalf("expected default workspace, got %q", wc.ActiveTenantID())
	}
}

func TestSwitchTenant(t *testing.T) {
	dir := newFakeDirectory()
	dir.set("alice", workspaceOf("home", "alice", true), workspaceOf("acme", "bob", false, "alice"))
	prefs := newMemoryPreferences()
	pub := &recordingPublisher{}
	wc := readyContext(t, dir, prefs, WithPublisher(pub))

	before, err := wc.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if err := wc.SwitchTenant(context.Background(), "acme"); err != nil {
		t.Fatalf("switch: %v", err)
	}

	after, err := wc.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	want := Snapshot{TenantID: "acme", PrincipalID: "alice", Generation: before.Generation + 1}
	if diff := cmp.Diff(want, after); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}
	if wc.IsCurrent(before) {
		t.Fatalf("snapshot from previous tenant must be stale")
	}
	if !wc.IsCurrent(after) {
		t.Fatalf("fresh snapshot must be current")
	}
	if prefs.get("alice") != "acme" {
		t.Fatalf("preference not persisted: %q", prefs.get("alice"))
	}
	if wc.Role("acme") != RoleMember || wc.Role("home") != RoleOwner || wc.Role("nope") != RoleNone {
		t.Fatalf("unexpected roles: %v %v %v", wc.Role("acme"), wc.Role("home"), wc.Role("nope"))
	}

	switched := pub.ofType(events.TypeWorkspaceSwitched)
	if len(switched) != 1 || switched[0].WorkspaceID != "acme" || switched[0].Attributes["previous"] != "home" {
		t.Fatalf("unexpected switch events: %+v", switched)
	}
}

func TestSwitchToSameTenantIsNoop(t *testing.T) {
	dir := newFakeDirectory()
	dir.set("alice", workspaceOf("home", "alice", true))
	wc := readyContext(t, dir, newMemoryPreferences())

	gen := wc.Generation()
	if err := wc.SwitchTenant(context.Background(), "home"); err != nil {
		t.Fatalf("switch: %v", err)
	}
	if wc.Generation() != gen {
		t.Fatalf("generation must not change")
	}
}

func TestSwitchTenantUnauthorized(t *testing.T) {
	dir := newFakeDirectory()
	dir.set("alice", workspaceOf("home", "alice", true))
	rec := &recordingRecorder{}
	wc := readyContext(t, dir, newMemoryPreferences(), WithRecorder(rec))
	gen := wc.Generation()

	err := wc.SwitchTenant(context.Background(), "evil")
	if !bizerrors.Is(err, bizerrors.ErrUnauthorizedTenantAccess) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if wc.ActiveTenantID() != "home" || wc.Generation() != gen || wc.State() != StateReady {
		t.Fatalf("failed switch must not change state")
	}

	want := []audit.Violation{{
		Kind:           audit.KindUnauthorizedTenantAccess,
		PrincipalID:    "alice",
		ActiveTenantID: "home",
		TargetTenantID: "evil",
		Operation:      "switch",
	}}
	if diff := cmp.Diff(want, rec.all()); diff != "" {
		t.Fatalf("violation mismatch (-want +got):\n%s", diff)
	}
}

func TestSwitchTenantNotReady(t *testing.T) {
	wc := NewContext(newFakeDirectory(), newMemoryPreferences())
	if err := wc.SwitchTenant(context.Background(), "home"); !bizerrors.Is(err, bizerrors.ErrWorkspaceNotReady) {
		t.Fatalf("expected not ready, got %v", err)
	}
}

func TestSwitchTenantPreferenceFailure(t *testing.T) {
	dir := newFakeDirectory()
	dir.set("alice", workspaceOf("home", "alice", true), workspaceOf("acme", "bob", false, "alice"))
	prefs := newMemoryPreferences()
	wc := readyContext(t, dir, prefs)
	before, _ := wc.Snapshot()

	prefs.saveErr = errBackendDown
	if err := wc.SwitchTenant(context.Background(), "acme"); !bizerrors.Is(err, bizerrors.ErrBackendUnavailable) {
		t.Fatalf("expected backend unavailable, got %v", err)
	}
	if wc.ActiveTenantID() != "home" || wc.State() != StateReady {
		t.Fatalf("expected previous tenant to remain active")
	}
	after, err := wc.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if after != before || !wc.IsCurrent(before) {
		t.Fatalf("failed switch must keep tenant and generation: %+v -> %+v", before, after)
	}
}

func TestListenersRunBeforeNewTenantIsReadable(t *testing.T) {
	dir := newFakeDirectory()
	dir.set("alice", workspaceOf("home", "alice", true), workspaceOf("acme", "bob", false, "alice"))
	wc := readyContext(t, dir, newMemoryPreferences())

	var (
		changes     []Change
		snapshotErr error
	)
	unsubscribe := wc.Subscribe(ListenerFunc(func(c Change) {
		changes = append(changes, c)
		_, snapshotErr = wc.Snapshot()
	}))

	if err := wc.SwitchTenant(context.Background(), "acme"); err != nil {
		t.Fatalf("switch: %v", err)
	}
	if !bizerrors.Is(snapshotErr, bizerrors.ErrWorkspaceNotReady) {
		t.Fatalf("listener must run before the new tenant is readable, got %v", snapshotErr)
	}
	want := []Change{{Previous: "home", Current: "acme", Generation: wc.Generation(), Reason: ReasonSwitch}}
	if diff := cmp.Diff(want, changes); diff != "" {
		t.Fatalf("change mismatch (-want +got):\n%s", diff)
	}

	unsubscribe()
	if err := wc.SwitchTenant(context.Background(), "home"); err != nil {
		t.Fatalf("switch back: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("unsubscribed listener was notified")
	}
}

func TestRefreshFallsBackWhenActiveRevoked(t *testing.T) {
	dir := newFakeDirectory()
	dir.set("alice", workspaceOf("home", "alice", true), workspaceOf("acme", "bob", false, "alice"))
	prefs := newMemoryPreferences()
	prefs.values["alice"] = "acme"
	wc := readyContext(t, dir, prefs)
	stale, _ := wc.Snapshot()

	var got []Change
	wc.Subscribe(ListenerFunc(func(c Change) { got = append(got, c) }))

	dir.set("alice", workspaceOf("home", "alice", true))
	if err := wc.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if wc.ActiveTenantID() != "home" {
		t.Fatalf("expected fallback to default, got %q", wc.ActiveTenantID())
	}
	if wc.IsCurrent(stale) {
		t.Fatalf("snapshot of revoked tenant must be stale")
	}
	if len(got) != 1 || got[0].Reason != ReasonRevoked || got[0].Previous != "acme" {
		t.Fatalf("unexpected changes: %+v", got)
	}
	if prefs.get("alice") != "home" {
		t.Fatalf("expected preference updated, got %q", prefs.get("alice"))
	}
}

func TestRefreshKeepsSnapshotsWhenActiveRemains(t *testing.T) {
	dir := newFakeDirectory()
	dir.set("alice", workspaceOf("home", "alice", true))
	wc := readyContext(t, dir, newMemoryPreferences())
	snap, _ := wc.Snapshot()

	dir.set("alice", workspaceOf("home", "alice", true), workspaceOf("acme", "bob", false, "alice"))
	if err := wc.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if !wc.IsCurrent(snap) {
		t.Fatalf("refresh without revocation must keep snapshots current")
	}
	if len(wc.AccessibleTenants()) != 2 {
		t.Fatalf("expected new workspace to be accessible")
	}
}

func TestRefreshLosingEveryTenant(t *testing.T) {
	dir := newFakeDirectory()
	dir.set("alice", workspaceOf("acme", "bob", false, "alice"))
	wc := readyContext(t, dir, newMemoryPreferences())

	dir.set("alice")
	if err := wc.Refresh(context.Background()); !bizerrors.Is(err, bizerrors.ErrNoTenantAvailable) {
		t.Fatalf("expected no tenant available, got %v", err)
	}
	if wc.State() != StateUninitialized || wc.ActiveTenantID() != "" {
		t.Fatalf("expected cleared context, state=%v active=%q", wc.State(), wc.ActiveTenantID())
	}
}

func TestConcurrentRefreshIsCoalesced(t *testing.T) {
	dir := newFakeDirectory()
	dir.set("alice", workspaceOf("home", "alice", true))
	wc := readyContext(t, dir, newMemoryPreferences())
	initCalls := dir.callCount()

	dir.mu.Lock()
	dir.block = make(chan struct{})
	block := dir.block
	dir.mu.Unlock()

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs <- wc.Refresh(context.Background())
	}()
	waitFor(t, func() bool { return dir.callCount() == initCalls+1 })

	wg.Add(1)
	go func() {
		defer wg.Done()
		errs <- wc.Refresh(context.Background())
	}()
	time.Sleep(50 * time.Millisecond)
	close(block)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("refresh: %v", err)
		}
	}
	if got := dir.callCount() - initCalls; got != 1 {
		t.Fatalf("expected one directory call, got %d", got)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStateString(t *testing.T) {
	if StateUninitialized.String() != "uninitialized" || StateLoading.String() != "loading" || StateReady.String() != "ready" {
		t.Fatalf("unexpected state names")
	}
}
