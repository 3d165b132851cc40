package validator

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	bizerrors "github.com/aisgo/ais-workspace/errors"
)

type memberInput struct {
	PrincipalID string `json:"principal_id" validate:"required,ulid" error_msg:"required:principal_id is required|ulid:principal_id must be a ULID"`
}

type createInput struct {
	Name     string       `json:"name" validate:"required,max=16" error_msg:"required:name is required|max:name too long"`
	Type     string       `json:"type" validate:"omitempty,workspace_type" error_msg:"workspace_type:unknown workspace type"`
	Owner    memberInput  `json:"owner"`
	Invitee  *memberInput
	Deadline time.Time    `json:"deadline"`
}

func TestValidateCollectsFieldErrors(t *testing.T) {
	t.Parallel()

	v := New()
	err := v.Validate(createInput{Type: "galaxy", Owner: memberInput{PrincipalID: "not-a-ulid"}, Invitee: &memberInput{}})
	vErr, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T %v", err, err)
	}
	want := map[string][]string{
		"name":                 {"name is required"},
		"type":                 {"unknown workspace type"},
		"owner.principal_id":   {"principal_id must be a ULID"},
		"Invitee.principal_id": {"principal_id is required"},
	}
	if diff := cmp.Diff(want, vErr.Errors); diff != "" {
		t.Fatalf("errors mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Invitee.principal_id", "name", "owner.principal_id", "type"}, vErr.Fields()); diff != "" {
		t.Fatalf("fields mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateAcceptsValidInput(t *testing.T) {
	t.Parallel()

	in := &createInput{Name: "acme", Type: "team", Owner: memberInput{PrincipalID: "01HACME0000000000000000000"}}
	if err := New().Validate(in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := New().Validate(nil); err != nil {
		t.Fatalf("nil input must pass: %v", err)
	}
}

func TestCheckReturnsInvalidArgument(t *testing.T) {
	t.Parallel()

	err := New().Check(&memberInput{})
	if !bizerrors.Is(err, bizerrors.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if got := err.(*bizerrors.BizError).Message; got != "principal_id: principal_id is required" {
		t.Fatalf("unexpected message: %q", got)
	}
}

func TestDefaultMessageWithoutErrorTag(t *testing.T) {
	t.Parallel()

	type req struct {
		Email string `json:"email" validate:"required,email"`
	}
	err := New().Validate(req{Email: "nope"})
	vErr, ok := err.(*ValidationError)
	if !ok || vErr.Errors["email"][0] != "failed on the 'email' rule" {
		t.Fatalf("unexpected error: %v", err)
	}
}
