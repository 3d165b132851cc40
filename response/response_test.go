package response

import (
	"encoding/json"
	stderrors "errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/go-cmp/cmp"

	"github.com/aisgo/ais-workspace/errors"
	"github.com/aisgo/ais-workspace/model"
	"github.com/aisgo/ais-workspace/repository"
)

func call(t *testing.T, h fiber.Handler) (int, Result, map[string]any) {
	t.Helper()
	app := fiber.New()
	app.Get("/", h)

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil), fiber.TestConfig{Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	var got Result
	var fields map[string]any
	_ = json.Unmarshal(raw, &got)
	_ = json.Unmarshal(raw, &fields)
	return resp.StatusCode, got, fields
}

func TestErrorStatusMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err       error
		status    int
		code      int
		msg       string
		retryable bool
	}{
		{errors.New(errors.ErrCodeInvalidArgument, "bad request"), 400, int(errors.ErrCodeInvalidArgument), "bad request", false},
		{errors.ErrNotFound, 404, int(errors.ErrCodeNotFound), "record not found", false},
		{errors.ErrCrossTenantWriteRejected, 403, int(errors.ErrCodeCrossTenantWriteRejected), errors.ErrCrossTenantWriteRejected.Message, false},
		{errors.Wrap(errors.ErrCodeBackendUnavailable, "backend unavailable", stderrors.New("dial tcp 10.0.0.1")), 503, int(errors.ErrCodeBackendUnavailable), "backend unavailable", true},
		{stderrors.New("pq: secret detail"), 500, 500, "internal server error", false},
	}
	for _, tc := range cases {
		status, got, _ := call(t, func(c fiber.Ctx) error { return Error(c, tc.err) })
		if status != tc.status {
			t.Fatalf("%v: status = %d, want %d", tc.err, status, tc.status)
		}
		want := Result{Code: tc.code, Msg: tc.msg, Data: map[string]any{}, Retryable: tc.retryable}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("%v: body mismatch (-want +got):\n%s", tc.err, diff)
		}
	}
}

func TestPageIncludesGeneration(t *testing.T) {
	t.Parallel()

	_, _, fields := call(t, func(c fiber.Ctx) error {
		return Page(c, &repository.PageResult[model.Task]{Total: 0, Page: 1, PageSize: 20, Generation: 7})
	})
	data := fields["data"].(map[string]any)
	if data["generation"] != "7" {
		t.Fatalf("expected generation as string, got %v", data["generation"])
	}
	if list, ok := data["list"].([]any); !ok || len(list) != 0 {
		t.Fatalf("expected empty list, got %v", data["list"])
	}
}

func TestErrorWithCodeHidesServerErrors(t *testing.T) {
	t.Parallel()

	status, got, _ := call(t, func(c fiber.Ctx) error {
		return ErrorWithCode(c, fiber.StatusTooManyRequests, stderrors.New("too many requests"))
	})
	if status != 429 || got.Msg != "too many requests" {
		t.Fatalf("unexpected response: %d %+v", status, got)
	}

	status, got, _ = call(t, func(c fiber.Ctx) error {
		return ErrorWithCode(c, fiber.StatusInternalServerError, stderrors.New("redis: connection refused"))
	})
	if status != 500 || got.Msg != "Internal Server Error" {
		t.Fatalf("server error text must not leak: %d %+v", status, got)
	}
}
