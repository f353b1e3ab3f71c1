package routes

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/bazaarpay/bazaarpay/internal/config"
	"github.com/bazaarpay/bazaarpay/internal/logging"
	"github.com/bazaarpay/bazaarpay/internal/middleware"
	"github.com/bazaarpay/bazaarpay/internal/response"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newApp(t *testing.T) *fiber.App {
	t.Helper()
	logger := logging.Discard()
	app := fiber.New(fiber.Config{ErrorHandler: response.ErrorHandler(logger)})
	err := Setup(app, Deps{
		Cfg:    config.Config{Env: "test", JWTSecret: testSecret, RequestTimeout: time.Second},
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	return app
}

func token(t *testing.T, sub string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

func request(t *testing.T, app *fiber.App, method, path, sub, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if sub != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token(t, sub))
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return resp.StatusCode, out
}

func TestSetupRequiresStoresOutsideDev(t *testing.T) {
	err := Setup(fiber.New(), Deps{Cfg: config.Config{Env: "production"}, Logger: logging.Discard()})
	if err == nil {
		t.Fatal("expected error without database in production")
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	app := newApp(t)
	status, body := request(t, app, fiber.MethodGet, "/api/wallet", "", "")
	if status != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", status)
	}
	if body["success"] != false {
		t.Fatalf("expected failure envelope, got %v", body)
	}
}

func TestDevelopmentPurchaseFlow(t *testing.T) {
	app := newApp(t)

	status, body := request(t, app, fiber.MethodPost, "/api/marketplace/items/demo-item/purchase", "demo-buyer", "")
	if status != fiber.StatusOK {
		t.Fatalf("purchase: expected 200 got %d: %v", status, body)
	}

	status, body = request(t, app, fiber.MethodGet, "/api/wallet", "demo-buyer", "")
	if status != fiber.StatusOK {
		t.Fatalf("wallet: expected 200 got %d", status)
	}
	data := body["data"].(map[string]any)
	w := data["wallet"].(map[string]any)
	if w["balance"] != "700.00" {
		t.Fatalf("expected balance 700.00, got %v", w["balance"])
	}
}

func TestAdminRoutesRequireRole(t *testing.T) {
	app := newApp(t)
	if status, _ := request(t, app, fiber.MethodGet, "/api/admin/wallets/demo-buyer/reconcile", "demo-buyer", ""); status != fiber.StatusForbidden {
		t.Fatalf("expected 403 got %d", status)
	}
	status, body := request(t, app, fiber.MethodGet, "/api/admin/wallets/demo-buyer/reconcile", "demo-admin", "")
	if status != fiber.StatusOK {
		t.Fatalf("expected 200 got %d", status)
	}
	if body["data"].(map[string]any)["consistent"] != true {
		t.Fatalf("expected consistent ledger, got %v", body)
	}
}

func TestHealthz(t *testing.T) {
	app := newApp(t)
	status, body := request(t, app, fiber.MethodGet, "/healthz", "", "")
	if status != fiber.StatusOK || body["success"] != true {
		t.Fatalf("unexpected health response %d %v", status, body)
	}
}
