package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/bazaarpay/bazaarpay/internal/guard"
	"github.com/bazaarpay/bazaarpay/internal/identity"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, secret []byte, method jwt.SigningMethod, sub string, exp time.Time) string {
	t.Helper()
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(exp),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}}
	signed, err := jwt.NewWithClaims(method, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func authApp(tracker *guard.Tracker) *fiber.App {
	dir := identity.NewMemoryDirectory(
		identity.User{ID: "u1", Email: "alice@example.com"},
		identity.User{ID: "admin", Email: "ops@example.com", Role: identity.RoleAdmin},
	)
	app := fiber.New()
	app.Use(JWTAuth(testSecret, dir, tracker))
	app.Get("/me", func(c *fiber.Ctx) error { return c.SendString(UserID(c)) })
	app.Get("/admin", RequireRole(identity.RoleAdmin), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })
	return app
}

func call(t *testing.T, app *fiber.App, path, token string) int {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodGet, path, nil)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func TestJWTAuth(t *testing.T) {
	app := authApp(nil)
	valid := signToken(t, testSecret, jwt.SigningMethodHS256, "u1", time.Now().Add(time.Hour))

	cases := []struct {
		name  string
		token string
		want  int
	}{
		{"valid", valid, fiber.StatusOK},
		{"missing", "", fiber.StatusUnauthorized},
		{"expired", signToken(t, testSecret, jwt.SigningMethodHS256, "u1", time.Now().Add(-time.Minute)), fiber.StatusUnauthorized},
		{"wrong secret", signToken(t, []byte("other"), jwt.SigningMethodHS256, "u1", time.Now().Add(time.Hour)), fiber.StatusUnauthorized},
		{"wrong algorithm", signToken(t, testSecret, jwt.SigningMethodHS512, "u1", time.Now().Add(time.Hour)), fiber.StatusUnauthorized},
		{"unknown user", signToken(t, testSecret, jwt.SigningMethodHS256, "ghost", time.Now().Add(time.Hour)), fiber.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := call(t, app, "/me", tc.token); got != tc.want {
				t.Fatalf("expected %d got %d", tc.want, got)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	app := authApp(nil)
	user := signToken(t, testSecret, jwt.SigningMethodHS256, "u1", time.Now().Add(time.Hour))
	admin := signToken(t, testSecret, jwt.SigningMethodHS256, "admin", time.Now().Add(time.Hour))

	if got := call(t, app, "/admin", user); got != fiber.StatusForbidden {
		t.Fatalf("expected 403 for plain user, got %d", got)
	}
	if got := call(t, app, "/admin", admin); got != fiber.StatusNoContent {
		t.Fatalf("expected 204 for admin, got %d", got)
	}
}

func TestJWTAuthBlocksRepeatedFailures(t *testing.T) {
	tracker := guard.New(3, time.Minute)
	defer tracker.Stop()
	app := authApp(tracker)

	for i := 0; i < 2; i++ {
		if got := call(t, app, "/me", "garbage"); got != fiber.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401 got %d", i+1, got)
		}
	}
	if got := call(t, app, "/me", "garbage"); got != fiber.StatusTooManyRequests {
		t.Fatalf("expected 429 once the limit is reached, got %d", got)
	}

	valid := signToken(t, testSecret, jwt.SigningMethodHS256, "u1", time.Now().Add(time.Hour))
	if got := call(t, app, "/me", valid); got != fiber.StatusTooManyRequests {
		t.Fatalf("blocked client must stay blocked, got %d", got)
	}
}
