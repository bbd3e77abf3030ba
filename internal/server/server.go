// Package server sets up the HTTP server, router, and all route definitions.
//
// This package is the "wiring" layer: it connects services, handlers,
// middleware and routes, and owns the graceful shutdown sequence.
//
// DEPENDENCY INJECTION FLOW:
// main.go creates the store, the notification runner and the external
// providers, then hands them to New:
//
//	Deps.Store ──→ AuthService / ActivationService / PaymentService / WebhookService
//	Deps.Jobs  ──↗ (every side effect is a notify.Job enqueued after commit)
//	services   ──→ handlers ──→ routes
//
// This is the "composition root" pattern: all dependencies are wired in one
// place (New/setupRoutes) rather than scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/guildgate/internal/access"
	"github.com/sakif/guildgate/internal/auth"
	"github.com/sakif/guildgate/internal/config"
	"github.com/sakif/guildgate/internal/handler"
	"github.com/sakif/guildgate/internal/middleware"
	"github.com/sakif/guildgate/internal/notify"
	"github.com/sakif/guildgate/internal/payment"
	"github.com/sakif/guildgate/internal/repository"
	"github.com/sakif/guildgate/internal/repository/postgres"
	sqliteRepo "github.com/sakif/guildgate/internal/repository/sqlite"
	"github.com/sakif/guildgate/internal/service"
)

// shutdownTimeout bounds the whole shutdown: in-flight requests, the
// notification drain and closing the store.
const shutdownTimeout = 30 * time.Second

// Deps are the collaborators main constructs. Checkout may be nil, which
// disables card payments; Verifiers may be empty.
type Deps struct {
	Store     repository.Store
	Jobs      notify.Runner
	SignIn    handler.SignInProvider
	Checkout  payment.CheckoutProvider
	Verifiers []payment.WebhookVerifier
}

// Server represents the HTTP server and all its dependencies.
type Server struct {
	router     *chi.Mux
	config     config.Config
	logger     *slog.Logger
	deps       Deps
	sessions   *auth.Sessions
	activation *service.ActivationService
	shutdown   []func(context.Context) error
}

// New wires services and handlers over deps.
func New(cfg config.Config, deps Deps, logger *slog.Logger) (*Server, error) {
	if deps.Store == nil || deps.Jobs == nil || deps.SignIn == nil {
		return nil, errors.New("server: store, job runner and sign-in provider are required")
	}

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	s := &Server{
		router:   chi.NewRouter(),
		config:   cfg,
		logger:   logger,
		deps:     deps,
		sessions: auth.NewSessions(tokens, cfg.Auth.CookieName, cfg.Auth.BaseURL),
	}
	s.setupRoutes()
	return s, nil
}

// Handler returns the root handler. Tests drive it through httptest.
func (s *Server) Handler() http.Handler { return s.router }

// Activation returns the activation service so main can hand it to the
// Discord interaction listener. Both channels share one service.
func (s *Server) Activation() *service.ActivationService { return s.activation }

// OnShutdown registers fn to run after the HTTP server has stopped. Hooks
// run in reverse registration order, like defers.
func (s *Server) OnShutdown(fn func(context.Context) error) {
	s.shutdown = append(s.shutdown, fn)
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET  /healthz                        → liveness
//	GET  / /login /activation /pending /admin → page view state (access gate)
//	GET  /static/*                       → static assets
//	GET  /auth/discord/login             → OAuth redirect
//	GET  /auth/discord/callback          → OAuth completion
//	POST /auth/logout                    → clear session
//	GET  /api/me                         → profile, tier, activation status
//	POST /api/auth/activation/submit     → submit activation request
//	GET  /api/admin/activations          → pending queue
//	POST /api/admin/activations          → approve | reject
//	GET  /api/admin/payment-requests     → merged ledger
//	POST /api/admin/payment-requests     → approve | reject
//	POST /api/payments/checkout          → card or manual checkout
//	POST /api/webhooks/{provider}        → provider deliveries (signature only)
//
// MIDDLEWARE ORDER MATTERS:
// RequestID first so every later log line can carry it; Recoverer last so
// a panic is still logged as a 500 by Logger.
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	store, jobs := s.deps.Store, s.deps.Jobs
	role := service.RoleGrant{
		GuildID: s.config.Discord.GuildID,
		RoleID:  s.config.Discord.ActivatedRoleID,
	}

	authService := service.NewAuthService(store, s.logger)
	s.activation = service.NewActivationService(store, jobs, role, s.logger)
	paymentService := service.NewPaymentService(store, s.deps.Checkout, jobs, service.PaymentConfig{
		LocalCurrency: s.config.Payments.LocalCurrency,
		LocalRate:     s.config.Payments.LocalRate,
		PublicBaseURL: s.config.HTTP.PublicBaseURL,
	}, s.logger)
	webhookService := service.NewWebhookService(store, jobs, s.logger, s.deps.Verifiers...)

	authHandler := handler.NewAuthHandler(s.deps.SignIn, s.sessions, authService, s.logger)
	activationHandler := handler.NewActivationHandler(s.activation, s.logger)
	paymentHandler := handler.NewPaymentHandler(paymentService, s.logger)
	webhookHandler := handler.NewWebhookHandler(webhookService, s.logger)
	pageHandler := handler.NewPageHandler(s.activation, paymentService, s.logger)

	gate := access.NewGate(access.DefaultPolicy(), s.sessions, store, s.logger)

	s.router.Get("/healthz", handler.HandleHealth)

	// === Page Routes ===
	// One gate decision per request; the resolved viewer rides the context.
	s.router.Group(func(r chi.Router) {
		r.Use(gate.Pages)

		r.Get(access.PathHome, pageHandler.HandleHome)
		r.Get(access.PathLogin, pageHandler.HandleLogin)
		r.Get(access.PathActivation, pageHandler.HandleActivation)
		r.Get(access.PathPending, pageHandler.HandlePending)
		r.Get(access.PathAdmin, pageHandler.HandleAdmin)
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(s.config.HTTP.StaticDir))))

		r.Get("/auth/discord/login", authHandler.HandleDiscordLogin)
		r.Get("/auth/discord/callback", authHandler.HandleDiscordCallback)
		r.Post("/auth/logout", authHandler.HandleLogout)
	})

	// === API Routes ===
	s.router.Route("/api", func(r chi.Router) {
		r.Use(gate.API)
		r.NotFound(handler.HandleNotFound)

		r.Post("/webhooks/{provider}", webhookHandler.HandleWebhook)

		r.Get("/me", authHandler.HandleMe)
		r.Post("/auth/activation/submit", activationHandler.HandleSubmit)
		r.Post("/payments/checkout", paymentHandler.HandleCheckout)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/activations", activationHandler.HandleList)
			r.Post("/activations", activationHandler.HandleReview)
			r.Get("/payment-requests", paymentHandler.HandleList)
			r.Post("/payment-requests", paymentHandler.HandleReview)
		})
	})

	// Unrouted page paths still pass the gate, so a held subject is
	// redirected rather than shown a 404. Registered last so the /api
	// subrouter keeps its own handler.
	s.router.NotFound(gate.Pages(http.HandlerFunc(handler.HandleNotFound)).ServeHTTP)
}

// OpenStore selects the store: Postgres when a DATABASE_URL is configured,
// otherwise a sqlite file (its directory is created if needed).
func OpenStore(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (repository.Store, error) {
	if cfg.URL != "" {
		store, err := postgres.New(ctx, cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("opening postgres: %w", err)
		}
		logger.Info("store opened", slog.String("driver", "postgres"))
		return store, nil
	}

	if cfg.Path != ":memory:" {
		dir := filepath.Dir(cfg.Path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
		}
	}
	store, err := sqliteRepo.New(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	logger.Info("store opened", slog.String("driver", "sqlite"), slog.String("path", cfg.Path))
	return store, nil
}

// Start runs the HTTP server until SIGINT/SIGTERM, then shuts down:
//  1. Stop accepting connections and wait for in-flight requests
//  2. Run the shutdown hooks (notification drain, bot, store)
//
// Everything shares one 30s deadline.
func (s *Server) Start() error {
	srv := &http.Server{
		Addr:         s.config.HTTPAddress(),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.String("addr", srv.Addr),
			slog.String("url", s.config.HTTP.PublicBaseURL),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	var runErr error
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("server error: %w", err)
		}
	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("graceful shutdown failed: %w", err))
	}
	for i := len(s.shutdown) - 1; i >= 0; i-- {
		if err := s.shutdown[i](ctx); err != nil {
			s.logger.Error("shutdown hook failed", slog.String("error", err.Error()))
			runErr = errors.Join(runErr, err)
		}
	}

	if runErr == nil {
		s.logger.Info("server stopped gracefully")
	}
	return runErr
}
