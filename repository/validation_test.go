package repository

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	bizerrors "github.com/aisgo/ais-workspace/errors"
	"github.com/aisgo/ais-workspace/model"
)

func taskSchema(t *testing.T) *schema.Schema {
	t.Helper()
	stmt := &gorm.Statement{DB: openTestDB(t)}
	if err := stmt.Parse(&model.Task{}); err != nil {
		t.Fatalf("parse schema: %v", err)
	}
	return stmt.Schema
}

func TestValidateOrderBy(t *testing.T) {
	s := taskSchema(t)

	valid := map[string]string{
		"":                            "",
		"title":                       "title ASC",
		"position desc":               "position DESC",
		"status ASC, create_time desc": "status ASC, create_time DESC",
	}
	for in, want := range valid {
		got, err := ValidateOrderBy(in, s)
		if err != nil {
			t.Fatalf("ValidateOrderBy(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ValidateOrderBy(%q) = %q, want %q", in, got, want)
		}
	}

	invalidInputs := []string{
		"title; DROP TABLE tasks",
		"title ASC -- comment",
		"(SELECT 1)",
		"missing_column",
		"title sideways",
		"title ASC DESC",
		"id UNION",
	}
	for _, in := range invalidInputs {
		_, err := ValidateOrderBy(in, s)
		if !bizerrors.Is(err, bizerrors.ErrInvalidArgument) {
			t.Fatalf("ValidateOrderBy(%q) expected invalid argument, got %v", in, err)
		}
		var vErr *ValidationError
		if !bizerrors.As(err, &vErr) || vErr.Field != "sort" {
			t.Fatalf("expected sort validation error for %q, got %v", in, err)
		}
	}
}

func TestKeywordMatchUsesWordBoundaries(t *testing.T) {
	cases := map[string]bool{
		"CREATED_AT":       false,
		"UPDATED_AT ASC":   false,
		"CREATE_TIME DROP": true,
		"X_DROP, DROP":     true,
		"TITLE--":          true,
	}
	for text, want := range cases {
		hit := false
		for _, kw := range dangerousKeywords {
			if isKeywordMatch(text, kw) {
				hit = true
				break
			}
		}
		if hit != want {
			t.Fatalf("isKeywordMatch(%q) = %v, want %v", text, hit, want)
		}
	}
}

func TestFilterColumnsDropsTenant(t *testing.T) {
	s := taskSchema(t)

	got, err := filterColumns(Filter{"tenant_id": globex, "Status": "todo", "assignee_id": nil}, s)
	if err != nil {
		t.Fatalf("filterColumns: %v", err)
	}
	want := map[string]any{"status": "todo", "assignee_id": nil}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("filter mismatch (-want +got):\n%s", diff)
	}

	if _, err := filterColumns(Filter{"1=1 OR title": "x"}, s); !bizerrors.Is(err, bizerrors.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for unknown column, got %v", err)
	}
}

func TestFilterUpdatesProtectsColumns(t *testing.T) {
	s := taskSchema(t)

	got, err := filterUpdates(map[string]any{
		"id":          "01HOTHER000000000000000000",
		"tenant_id":   globex,
		"TenantID":    globex,
		"title":       "renamed",
		"Position":    3,
		"create_time": "2000-01-01T00:00:00Z",
		"UpdateTime":  "2000-01-01T00:00:00Z",
		"deleted":     1,
	}, s)
	if err != nil {
		t.Fatalf("filterUpdates: %v", err)
	}
	want := map[string]any{"title": "renamed", "position": 3}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("updates mismatch (-want +got):\n%s", diff)
	}

	if _, err := filterUpdates(map[string]any{"is_admin": true}, s); !bizerrors.Is(err, bizerrors.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}
