package routes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/bazaarpay/bazaarpay/internal/config"
	"github.com/bazaarpay/bazaarpay/internal/fees"
	"github.com/bazaarpay/bazaarpay/internal/guard"
	"github.com/bazaarpay/bazaarpay/internal/identity"
	"github.com/bazaarpay/bazaarpay/internal/ledger"
	"github.com/bazaarpay/bazaarpay/internal/marketplace"
	"github.com/bazaarpay/bazaarpay/internal/middleware"
	"github.com/bazaarpay/bazaarpay/internal/notification"
	"github.com/bazaarpay/bazaarpay/internal/reference"
	"github.com/bazaarpay/bazaarpay/internal/storage"
	"github.com/bazaarpay/bazaarpay/internal/transfer"
	"github.com/bazaarpay/bazaarpay/internal/wallet"
)

const instrumentationName = "github.com/bazaarpay/bazaarpay"

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
	// Guard tracks authentication failures. Its lifecycle belongs to the server.
	Guard *guard.Tracker
	// Notifier defaults to logging notifications.
	Notifier notification.Notifier
	// Directory overrides the user directory; tests use it with the memory backend.
	Directory identity.Directory
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though config also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.Env)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.Env)
		}
	}

	engine, dir, err := buildEngine(d)
	if err != nil {
		return err
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.Tracing(otel.Tracer(instrumentationName)))
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	// Health
	RegisterHealthRoutes(app, d)

	api := app.Group("/api", middleware.Deadline(d.Cfg.RequestTimeout))
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	protected := api.Group("",
		middleware.JWTAuth([]byte(d.Cfg.JWTSecret), dir, d.Guard),
		middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger),
	)
	RegisterTransferRoutes(protected, transfer.NewHandler(engine))

	return nil
}

// buildEngine picks the Postgres backend when a pool is configured and the
// in-memory one otherwise.
func buildEngine(d Deps) (*transfer.Engine, identity.Directory, error) {
	deps := transfer.Deps{
		Fees:     fees.NewCalculator(fees.DefaultPolicy()),
		Refs:     reference.NewGenerator(),
		Notifier: d.Notifier,
		Logger:   d.Logger,
		Tracer:   otel.Tracer(instrumentationName),
		Meter:    otel.Meter(instrumentationName),
	}

	dir := d.Directory
	if d.DB != nil {
		deps.Runner = storage.NewPostgres(d.DB)
		deps.Wallets = wallet.NewPostgresReader(d.DB)
		deps.Ledger = ledger.NewPostgresReader(d.DB)
		deps.Catalog = marketplace.NewPostgresCatalog(d.DB)
		if dir == nil {
			dir = identity.NewPostgresDirectory(d.DB)
		}
	} else {
		mem := storage.NewMemory()
		if dir == nil {
			memDir := identity.NewMemoryDirectory()
			if err := seedDevelopment(context.Background(), mem, memDir); err != nil {
				return nil, nil, fmt.Errorf("seed development data: %w", err)
			}
			dir = memDir
			d.Logger.Warn("running with in-memory storage; balances are lost on restart")
		}
		deps.Runner = mem
		deps.Wallets = mem.Wallets()
		deps.Ledger = mem.Transactions()
		deps.Catalog = mem.Catalog()
	}
	deps.Directory = dir

	if d.Cache != nil && d.Cfg.BalanceCacheTTL > 0 {
		cached := wallet.NewCachedReader(deps.Wallets, d.Cache, d.Cfg.BalanceCacheTTL, d.Logger)
		deps.Balances = cached
		deps.Cache = cached
	}

	engine, err := transfer.NewEngine(deps)
	if err != nil {
		return nil, nil, err
	}
	return engine, dir, nil
}
