package model

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestWorkspaceMemberIDsIncludesOwner(t *testing.T) {
	w := Workspace{
		OwnerID: "owner",
		Members: []Membership{{PrincipalID: "a"}, {PrincipalID: "owner"}, {PrincipalID: "b"}},
	}
	if diff := cmp.Diff([]string{"owner", "a", "b"}, w.MemberIDs()); diff != "" {
		t.Fatalf("member ids mismatch (-want +got):\n%s", diff)
	}
	if !w.HasMember("owner") || !w.HasMember("b") {
		t.Fatalf("expected owner and explicit member to be members")
	}
	if w.HasMember("") || w.HasMember("stranger") {
		t.Fatalf("unexpected membership")
	}
}

func TestPrincipalSameEmail(t *testing.T) {
	p := Principal{Email: "Alice@Example.com"}
	if !p.SameEmail("  alice@example.COM ") {
		t.Fatalf("expected case-insensitive match")
	}
	if p.SameEmail("bob@example.com") {
		t.Fatalf("unexpected match")
	}
}

func TestScopedHelpers(t *testing.T) {
	task := &Task{}
	if !IsLegacy(task) || TenantOf(task) != "" {
		t.Fatalf("new task without tenant should be legacy")
	}
	task.SetTenantID(StringPtr("acme"))
	if IsLegacy(task) || TenantOf(task) != "acme" {
		t.Fatalf("unexpected tenant: %q", TenantOf(task))
	}

	var nilTask *Task
	if !IsNil(nilTask) || !IsNil(nil) || IsNil(task) {
		t.Fatalf("IsNil misreported")
	}

	id := task.EnsureID()
	if len(id) != 26 || task.EnsureID() != id {
		t.Fatalf("EnsureID should generate once: %q", id)
	}
}

func TestWorkspaceTypeValid(t *testing.T) {
	for _, typ := range []WorkspaceType{WorkspaceTypePersonal, WorkspaceTypeTeam, WorkspaceTypeClient} {
		if !typ.Valid() {
			t.Fatalf("expected %s valid", typ)
		}
	}
	if WorkspaceType("agency").Valid() {
		t.Fatalf("unexpected valid type")
	}
}
