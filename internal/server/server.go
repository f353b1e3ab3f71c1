package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/bazaarpay/bazaarpay/internal/config"
	"github.com/bazaarpay/bazaarpay/internal/guard"
	"github.com/bazaarpay/bazaarpay/internal/notification"
	"github.com/bazaarpay/bazaarpay/internal/response"
	"github.com/bazaarpay/bazaarpay/internal/routes"
)

const guardSweepInterval = time.Minute

// Server wraps the Fiber application and shared dependencies.
type Server struct {
	app    *fiber.App
	cfg    config.Config
	guard  *guard.Tracker
	logger *slog.Logger
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
// db and cache may be nil in development.
func New(cfg config.Config, db *pgxpool.Pool, cache *redis.Client, notifier notification.Notifier, logger *slog.Logger) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: response.ErrorHandler(logger),
	})

	tracker := guard.New(cfg.AuthFailureLimit, cfg.AuthFailureWindow)
	go tracker.Run(context.Background(), guardSweepInterval)
	if err := routes.Setup(app, routes.Deps{
		Cfg:      cfg,
		DB:       db,
		Cache:    cache,
		Logger:   logger,
		Guard:    tracker,
		Notifier: notifier,
	}); err != nil {
		tracker.Stop()
		return nil, err
	}

	return &Server{app: app, cfg: cfg, guard: tracker, logger: logger}, nil
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server and the sweeper.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.app.ShutdownWithContext(ctx)
	s.guard.Stop()
	select {
	case <-s.guard.Done():
	case <-ctx.Done():
		err = errors.Join(err, ctx.Err())
	}
	return err
}

// App exposes the Fiber app for in-process tests.
func (s *Server) App() *fiber.App { return s.app }
