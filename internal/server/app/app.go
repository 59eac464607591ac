// Package app wires the server together, the way taskTracker's
// internal/app.App does: a struct holding config, router and store,
// built up through an explicit Init step with registered shutdown hooks.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"todosync/internal/config"
	"todosync/internal/logging"
	"todosync/internal/server/auth"
	"todosync/internal/server/handlers"
	"todosync/internal/server/middleware"
	"todosync/internal/server/store"
	"todosync/internal/server/store/postgres"
)

type App struct {
	cfg       *config.ServerConfig
	Router    *chi.Mux
	Store     store.Store
	Auth      *auth.Authenticator
	shutdowns []func()
}

func New(cfg *config.ServerConfig) *App {
	return &App{cfg: cfg}
}

// Init wires logging, the store, auth and the router. st may be a
// memory.Store (tests/demo) or a postgres.Store (production).
func (a *App) Init(ctx context.Context, st store.Store) error {
	if err := logging.Init(logging.Options{
		Development: a.cfg.Logging.Development,
		LogFile:     a.cfg.Logging.File,
	}); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	a.shutdowns = append(a.shutdowns, logging.Sync)

	a.Store = st
	a.Auth = auth.New(st, a.cfg.Auth.BcryptCost)

	a.Router = chi.NewRouter()
	a.Router.Use(middleware.RequestID)
	a.Router.Use(middleware.Logging)
	a.Router.Use(middleware.Timeout(a.cfg.Server.RequestTimeout))
	a.Router.Use(middleware.RateLimit(a.cfg.Server.RateLimitPerMin))
	a.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
	}))

	h := handlers.New(st)

	a.Router.Get("/health", h.HealthCheck)

	a.Router.Group(func(r chi.Router) {
		r.Use(middleware.Auth(a.Auth))
		r.Get("/state", h.State)
		r.Get("/delta", h.Delta)
		r.Post("/push", h.Push)
		r.Delete("/reset", h.Reset)
	})

	logging.Info("app: initialized")
	return nil
}

func (a *App) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         a.cfg.Addr(),
		Handler:      a.Router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
}

func (a *App) Shutdown() {
	for i := len(a.shutdowns) - 1; i >= 0; i-- {
		a.shutdowns[i]()
	}
}

// OpenPostgres is a convenience constructor used by cmd/server; kept
// here so main stays a thin wiring shim, per the teacher's app pattern.
func OpenPostgres(ctx context.Context, cfg *config.ServerConfig) (*postgres.Store, error) {
	if err := postgres.Migrate(cfg.Database.URL); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return postgres.New(ctx, cfg.Database.URL, postgres.Config{
		MaxConns:    cfg.Database.MaxConnections,
		MinConns:    cfg.Database.MinConnections,
		IdleTimeout: cfg.Database.IdleTimeout,
	})
}
