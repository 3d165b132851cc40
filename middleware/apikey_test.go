package middleware

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/aisgo/ais-workspace/logger"
)

func newAPIKeyApp(cfg APIKeyConfig) *fiber.App {
	app := fiber.New()
	app.Use(NewAPIKeyAuth(cfg, logger.NewNop()).Authenticate())
	app.Get("/metrics", func(c fiber.Ctx) error {
		id, _ := c.Locals("key_id").(string)
		return c.SendString(id)
	})
	return app
}

func TestAPIKeyAuthDisabled(t *testing.T) {
	app := newAPIKeyApp(APIKeyConfig{Enabled: false})

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil), fiber.TestConfig{Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestAPIKeyAuthMissingKey(t *testing.T) {
	app := newAPIKeyApp(APIKeyConfig{Enabled: true, Keys: map[string]string{"ops": "sk_ops"}})

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil), fiber.TestConfig{Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["msg"] != "invalid api key" {
		t.Fatalf("unexpected msg: %v", body["msg"])
	}
}

func TestAPIKeyAuthAcceptedForms(t *testing.T) {
	app := newAPIKeyApp(APIKeyConfig{Enabled: true, Keys: map[string]string{"ops": "sk_ops"}})

	cases := []struct {
		name   string
		header string
		value  string
		status int
	}{
		{"x-api-key", "X-API-Key", "sk_ops", fiber.StatusOK},
		{"bearer", "Authorization", "Bearer sk_ops", fiber.StatusOK},
		{"wrong key", "X-API-Key", "sk_other", fiber.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/metrics", nil)
			req.Header.Set(tc.header, tc.value)
			resp, err := app.Test(req, fiber.TestConfig{Timeout: 2 * time.Second})
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, resp.StatusCode)
			}
		})
	}
}
