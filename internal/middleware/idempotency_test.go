package middleware

import (
	"io"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/bazaarpay/bazaarpay/internal/logging"
)

func setupTestApp(t *testing.T) (*fiber.App, *int32, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}

	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	var calls int32
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(LocalUserID, c.Get("X-Test-User", "u1"))
		return c.Next()
	})
	app.Use(Idempotency(cache, time.Minute, logging.Discard()))
	app.Post("/resource", func(c *fiber.Ctx) error {
		n := atomic.AddInt32(&calls, 1)
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"call": n})
	})
	app.Post("/fail", func(c *fiber.Ctx) error {
		atomic.AddInt32(&calls, 1)
		return fiber.NewError(fiber.StatusBadRequest, "nope")
	})

	cleanup := func() {
		cache.Close()
		mr.Close()
	}
	return app, &calls, cleanup
}

func post(t *testing.T, app *fiber.App, path, key, user, body string) (int, string, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(payload), resp.Header.Get(ReplayedHeader)
}

func TestIdempotencyWithoutKeyPassesThrough(t *testing.T) {
	app, calls, cleanup := setupTestApp(t)
	defer cleanup()

	post(t, app, "/resource", "", "", "{}")
	post(t, app, "/resource", "", "", "{}")
	if got := atomic.LoadInt32(calls); got != 2 {
		t.Fatalf("expected handler to run twice, ran %d times", got)
	}
}

func TestIdempotencyReturnsCachedResponse(t *testing.T) {
	app, calls, cleanup := setupTestApp(t)
	defer cleanup()

	status, body, replayed := post(t, app, "/resource", "abc123", "", `{"amount":"10.00"}`)
	if status != fiber.StatusCreated || replayed != "" {
		t.Fatalf("first request: status %d replayed %q", status, replayed)
	}

	status2, body2, replayed2 := post(t, app, "/resource", "abc123", "", `{"amount":"10.00"}`)
	if status2 != fiber.StatusCreated {
		t.Fatalf("expected cached status %d got %d", fiber.StatusCreated, status2)
	}
	if body2 != body {
		t.Fatalf("expected cached payload %s got %s", body, body2)
	}
	if replayed2 != "true" {
		t.Fatalf("expected replay header, got %q", replayed2)
	}
	if got := atomic.LoadInt32(calls); got != 1 {
		t.Fatalf("handler ran %d times", got)
	}
}

func TestIdempotencyRejectsDifferentBody(t *testing.T) {
	app, _, cleanup := setupTestApp(t)
	defer cleanup()

	post(t, app, "/resource", "k1", "", `{"amount":"10.00"}`)
	status, _, _ := post(t, app, "/resource", "k1", "", `{"amount":"99.00"}`)
	if status != fiber.StatusUnprocessableEntity {
		t.Fatalf("expected %d got %d", fiber.StatusUnprocessableEntity, status)
	}
}

func TestIdempotencyKeysAreScopedPerUser(t *testing.T) {
	app, calls, cleanup := setupTestApp(t)
	defer cleanup()

	post(t, app, "/resource", "shared", "alice", "{}")
	_, _, replayed := post(t, app, "/resource", "shared", "bob", "{}")
	if replayed != "" {
		t.Fatal("bob must not receive alice's response")
	}
	if got := atomic.LoadInt32(calls); got != 2 {
		t.Fatalf("handler ran %d times", got)
	}
}

func TestIdempotencyDoesNotCacheErrors(t *testing.T) {
	app, calls, cleanup := setupTestApp(t)
	defer cleanup()

	post(t, app, "/fail", "retry-me", "", "{}")
	post(t, app, "/fail", "retry-me", "", "{}")
	if got := atomic.LoadInt32(calls); got != 2 {
		t.Fatalf("failed attempt should not be cached, handler ran %d times", got)
	}
}
