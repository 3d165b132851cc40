package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/go-cmp/cmp"

	"github.com/aisgo/ais-workspace/logger"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testSigner(secret string) *AuthHeaderSigner {
	return NewAuthHeaderSigner(AuthHeaderSignerConfig{
		Secret:  secret,
		Issuer:  "gateway",
		NowFunc: func() time.Time { return fixedNow },
	})
}

func testVerifier(now time.Time) *AuthHeaderVerifier {
	return NewAuthHeaderVerifier(AuthHeaderVerifierConfig{
		Enabled:        true,
		Secret:         "secret",
		AllowedIssuers: []string{"gateway"},
		MaxAge:         time.Minute,
		NowFunc:        func() time.Time { return now },
	}, logger.NewNop())
}

func TestAuthHeaderRoundTrip(t *testing.T) {
	user := &UserInfo{Subject: "u1", Email: "Alice@Example.com", DisplayName: "Alice"}
	values, err := testSigner("secret").BuildHeaders(user)
	if err != nil {
		t.Fatalf("build headers: %v", err)
	}

	h := http.Header{}
	WriteAuthHeaders(h, values)
	parsed, err := ParseAuthHeaderValuesFromHeader(h)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	got, err := testVerifier(fixedNow.Add(10 * time.Second)).Verify(parsed)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if diff := cmp.Diff(user, got.User); diff != "" {
		t.Fatalf("user mismatch (-want +got):\n%s", diff)
	}
	if got.Issuer != "gateway" || !got.IssuedAt.Equal(fixedNow) {
		t.Fatalf("unexpected context: %+v", got)
	}
}

func TestAuthHeaderRejections(t *testing.T) {
	user := &UserInfo{Email: "alice@example.com"}
	good, err := testSigner("secret").BuildHeaders(user)
	if err != nil {
		t.Fatalf("build headers: %v", err)
	}
	forged, err := testSigner("other").BuildHeaders(user)
	if err != nil {
		t.Fatalf("build headers: %v", err)
	}
	noEmail, err := testSigner("secret").BuildHeaders(&UserInfo{Subject: "u1"})
	if err != nil {
		t.Fatalf("build headers: %v", err)
	}
	foreignIssuer := good
	foreignIssuer.Issuer = "intruder"
	noNonce := good
	noNonce.Nonce = ""

	cases := []struct {
		name   string
		values AuthHeaderValues
		now    time.Time
		want   error
	}{
		{"forged signature", forged, fixedNow, ErrAuthHeaderInvalidSign},
		{"expired", good, fixedNow.Add(2 * time.Minute), ErrAuthHeaderExpired},
		{"future", good, fixedNow.Add(-time.Minute), ErrAuthHeaderNotYetValid},
		{"issuer not allowed", foreignIssuer, fixedNow, ErrAuthHeaderIssuerNotAllowed},
		{"missing nonce", noNonce, fixedNow, ErrAuthHeaderMissingNonce},
		{"missing email", noEmail, fixedNow, ErrAuthHeaderMissingUser},
		{"empty", AuthHeaderValues{}, fixedNow, ErrAuthHeaderMissing},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := testVerifier(tc.now).Verify(tc.values)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestAuthenticateMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(testVerifier(fixedNow).Authenticate())
	app.Get("/me", func(c fiber.Ctx) error {
		user, ok := UserFromContext(c)
		if !ok {
			return c.SendStatus(fiber.StatusTeapot)
		}
		return c.SendString(user.Email)
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	resp, err := app.Test(req, fiber.TestConfig{Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 without headers, got %d", resp.StatusCode)
	}

	values, err := testSigner("secret").BuildHeaders(&UserInfo{Email: "alice@example.com"})
	if err != nil {
		t.Fatalf("build headers: %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	WriteAuthHeaders(req.Header, values)
	resp, err = app.Test(req, fiber.TestConfig{Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 with signed headers, got %d", resp.StatusCode)
	}
}

func TestSignerRequiresSecret(t *testing.T) {
	if _, err := testSigner("").BuildHeaders(&UserInfo{Email: "a@b.c"}); !errors.Is(err, ErrAuthHeaderMissingSecret) {
		t.Fatalf("expected missing secret, got %v", err)
	}
}

func TestUserInfoEncoding(t *testing.T) {
	in := &UserInfo{Email: "bob@example.com", DisplayName: "Bob"}
	raw, err := EncodeUserInfo(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := DecodeUserInfo(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
	if _, err := DecodeUserInfo("%%%"); err == nil {
		t.Fatalf("expected decode error")
	}
}
