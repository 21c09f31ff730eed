// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer — it connects handlers, middleware, and routes.
// Think of it as the control centre that decides:
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes
// - How the server starts and stops gracefully
//
// WHY SEPARATE FROM main.go?
// Keeping server setup in its own package makes it:
// - Testable (tests create a Server and drive its Handler() directly)
// - Reusable (multiple entry points could use the same server config)
// - Clean (main.go stays minimal — just "load config, start the server")
//
// DEPENDENCY INJECTION FLOW:
// main.go creates:
//   Config (from env) → passed to Server
//   Server.New() creates: record store → repositories → services → handlers
//
// This is the "composition root" pattern — all dependencies are wired
// in one place (New/setupRoutes), rather than scattered across the codebase.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/sakif/autohook/internal/auth"
	"github.com/sakif/autohook/internal/engine"
	"github.com/sakif/autohook/internal/handler"
	"github.com/sakif/autohook/internal/metrics"
	"github.com/sakif/autohook/internal/middleware"
	"github.com/sakif/autohook/internal/repository/record"
	"github.com/sakif/autohook/internal/service"
	sqlitestore "github.com/sakif/autohook/internal/store/sqlite"
)

// Config holds server configuration.
// Using a struct for config (instead of individual parameters) makes it easy to:
// - Add new config options without changing function signatures
// - Pass config around as a single value
// - Load config from files/env vars in one place
type Config struct {
	Port         int
	DBPath       string // path to the SQLite record store, ":memory:" in tests
	JWTSecret    string // signing key for access tokens, min 16 chars
	PasswordSalt string // process-wide PBKDF2 salt

	// GitHubWebhookSecret is the fallback HMAC secret for inbound
	// deliveries not covered by a per-registration secret. Empty disables
	// verification for those deliveries.
	GitHubWebhookSecret string

	// InboundRPS/InboundBurst throttle the unauthenticated inbound
	// endpoint per sender. Zero values pick sensible defaults.
	InboundRPS   float64
	InboundBurst int
}

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the record store connection. When the server shuts down,
// the store must be closed to flush the WAL and release the file lock.
// Start() handles that; tests that use Handler() directly call Close().
type Server struct {
	router   *chi.Mux
	config   Config
	logger   *slog.Logger
	store    *sqlitestore.Store
	registry *prometheus.Registry
}

// New creates a new Server with the given config.
//
// This is where the entire dependency chain is assembled:
//  1. Open the record store (sqlite)
//  2. Create repositories over the store
//  3. Create the service layer over the repositories
//  4. Create handlers over the services, wire them to routes
//
// Each layer only receives what it needs: services get repository
// interfaces, handlers get services. Nothing downstream touches the
// store directly.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	st, err := sqlitestore.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening record store: %w", err)
	}

	s := &Server{
		router:   chi.NewRouter(),
		config:   cfg,
		logger:   logger,
		store:    st,
		registry: prometheus.NewRegistry(),
	}

	if err := s.setupRoutes(); err != nil {
		st.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// Handler returns the server's root handler. Tests drive this directly
// with httptest instead of binding a port.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the server's resources without going through Start's
// shutdown path. Only needed by callers that never call Start.
func (s *Server) Close() error {
	return s.store.Close()
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	POST   /api/auth/register          → create an account
//	POST   /api/auth/login             → JSON login, returns bearer token
//	POST   /api/auth/token             → form-encoded login (OAuth2 password style)
//	GET    /api/auth/me                → authenticated user's profile      [auth]
//	POST   /api/webhooks/configs       → register a webhook               [auth]
//	GET    /api/webhooks/configs       → list own webhooks                [auth]
//	GET    /api/webhooks/configs/{id}  → fetch one webhook                [auth]
//	PATCH  /api/webhooks/configs/{id}  → partial update                   [auth]
//	DELETE /api/webhooks/configs/{id}  → delete (idempotent)              [auth]
//	GET    /api/webhooks/logs          → own delivery logs                [auth]
//	GET    /api/webhooks/logs/{id}     → fetch one delivery log           [auth]
//	POST   /api/webhooks/github        → inbound deliveries (HMAC, rate limited)
//	GET    /metrics                    → Prometheus metrics
//	GET    /healthz                    → liveness probe
//
// MIDDLEWARE ORDER MATTERS:
// Middleware executes in the order it's added:
// 1. RequestID — assigns unique ID to each request (for tracing)
// 2. RealIP — extracts real client IP from proxy headers
// 3. Recoverer — catches panics and returns 500 instead of crashing
// 4. Logger — logs each request with timing info
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	// === AMBIENT SERVICES ===
	collector := metrics.NewCollector(s.registry)

	tokens, err := auth.NewTokenService(s.config.JWTSecret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordService(s.config.PasswordSalt)

	// === REPOSITORIES & SERVICES ===
	users := record.NewUserRepo(s.store)
	webhooks := record.NewWebhookRepo(s.store)

	authSvc := service.NewAuthService(users, passwords, tokens, collector, s.logger)
	webhookSvc := service.NewWebhookService(webhooks, s.logger)
	dispatcher := service.NewDispatcher(webhooks, engine.NewLocal(s.logger), collector,
		s.config.GitHubWebhookSecret, s.logger)

	// === HANDLERS ===
	authHandler := handler.NewAuthHandler(authSvc, s.logger)
	webhookHandler := handler.NewWebhookHandler(webhookSvc, s.logger)
	inboundHandler := handler.NewInboundHandler(dispatcher, s.logger)

	// === OPERATIONAL ROUTES ===
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	s.router.Method(http.MethodGet, "/metrics", metrics.Handler(s.registry))

	// === API ROUTES ===
	requireAuth := auth.RequireAuth(tokens)

	inboundRPS := rate.Limit(s.config.InboundRPS)
	if inboundRPS <= 0 {
		inboundRPS = 10
	}
	inboundBurst := s.config.InboundBurst
	if inboundBurst <= 0 {
		inboundBurst = 30
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.HandleRegister)
			r.Post("/login", authHandler.HandleLogin)
			r.Post("/token", authHandler.HandleToken)

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Get("/me", authHandler.HandleMe)
			})
		})

		r.Route("/webhooks", func(r chi.Router) {
			// The inbound route is deliberately OUTSIDE requireAuth: the
			// sender authenticates with its HMAC signature, not a token.
			r.Group(func(r chi.Router) {
				r.Use(middleware.RateLimit(inboundRPS, inboundBurst))
				r.Post("/github", inboundHandler.HandleGitHub)
			})

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/configs", webhookHandler.HandleCreate)
				r.Get("/configs", webhookHandler.HandleList)
				r.Get("/configs/{id}", webhookHandler.HandleGet)
				r.Patch("/configs/{id}", webhookHandler.HandleUpdate)
				r.Delete("/configs/{id}", webhookHandler.HandleDelete)
				r.Get("/logs", webhookHandler.HandleListLogs)
				r.Get("/logs/{id}", webhookHandler.HandleGetLog)
			})
		})
	})

	return nil
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new HTTP connections
//  2. Wait for in-flight requests to finish (30s timeout)
//  3. Close the record store (flushes WAL, releases the file lock)
//
// If we skip step 3, the store file might be left in an inconsistent state.
// The `defer s.store.Close()` ensures this happens even if something panics.
func (s *Server) Start() error {
	defer s.store.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Channel to receive OS signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Channel to receive server errors
	serverErrors := make(chan error, 1)

	// Start the server in a goroutine (so it doesn't block)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("store", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	// Block until we receive a signal or server error
	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		// Give in-flight requests 30 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
