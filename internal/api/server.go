// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package api wires together the HTTP router, middleware chain, and all
domain handlers into a runnable [http.Server].

Architecture:

  - This package is the topmost Presentation layer boundary.
  - It acts as the central composition root for the HTTP transport framework (chi router).
  - Only this package and cmd/api are allowed to import net/http server primitives.
*/
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/taibuivan/authgate/internal/admission"
	"github.com/taibuivan/authgate/internal/platform/config"
	"github.com/taibuivan/authgate/internal/platform/constants"
	"github.com/taibuivan/authgate/internal/platform/middleware"
	"github.com/taibuivan/authgate/internal/platform/respond"
	"github.com/taibuivan/authgate/internal/users/auth"
)

// # Server Definitions

// Server wraps the chi router and the [http.Server].
//
// It is constructed once in main.go with all dependencies injected.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	log        *slog.Logger
}

// # Handler Registry

// Handlers groups all HTTP handler sets.
type Handlers struct {
	// Liveness is the /health handler. It returns 200 while the process is alive.
	Liveness http.HandlerFunc

	// Readiness is the /ready handler. It returns 200 when all deps are healthy.
	Readiness http.HandlerFunc

	// Auth handles signup, sign-in and sign-out.
	Auth *auth.Handler
}

// Guards groups the request-level security collaborators.
type Guards struct {
	// Verifier resolves session tokens into claims.
	Verifier middleware.TokenVerifier

	// Session reads the session token from the request.
	Session middleware.SessionSource

	// Flood sheds per-IP floods before anything else runs.
	Flood *middleware.FloodGuard

	// Admission classifies and throttles by role.
	Admission *admission.Gate

	// Proxies lists the peers allowed to report the client address in
	// forwarding headers. Nil trusts none.
	Proxies *middleware.ProxyTrust
}

// # Server Initialization

// NewServer constructs the chi router with the full middleware chain and
// registers all route groups.
func NewServer(cfg *config.Config, log *slog.Logger, guards Guards, h Handlers) *Server {
	r := chi.NewRouter()

	// # Middleware Chain
	// ClientIP must precede everything keyed by address.
	// Authenticate must precede admission so the gate can pick the role tier.
	r.Use(middleware.RequestID())
	r.Use(middleware.ClientIP(guards.Proxies))
	r.Use(middleware.StructuredLogger(log))
	r.Use(chimw.Timeout(constants.GlobalRequestTimeout))
	r.Use(middleware.PanicRecovery())
	r.Use(guards.Flood.Middleware)
	r.Use(middleware.CORS(cfg, cfg.AllowedOrigins))
	r.Use(chimw.CleanPath)
	r.Use(middleware.Authenticate(guards.Verifier, guards.Session))
	r.Use(guards.Admission.Middleware)

	// # Infrastructure Endpoints
	r.Get("/", serviceInfo)
	r.Get("/api", serviceInfo)
	r.Get("/health", h.Liveness)
	r.Get("/ready", h.Readiness)

	// # Application API
	r.Mount("/api/auth", h.Auth.Routes())
	r.Mount("/api/admin/admission", guards.Admission.Routes())

	return &Server{
		router: r,
		log:    log,
		httpServer: &http.Server{
			Addr:              ":" + cfg.ServerPort,
			Handler:           r,
			ReadTimeout:       constants.DefaultReadTimeout,
			WriteTimeout:      constants.DefaultWriteTimeout,
			IdleTimeout:       constants.DefaultIdleTimeout,
			ReadHeaderTimeout: constants.DefaultReadHeaderTimeout,
		},
	}
}

// Handler exposes the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// serviceInfo handles GET / and GET /api.
func serviceInfo(writer http.ResponseWriter, _ *http.Request) {
	respond.OK(writer, map[string]string{
		"name":    constants.AppName,
		"version": constants.AppVersion,
	})
}

// # Server Lifecycle

// ListenAndServe starts the HTTP server.
//
// It blocks until the server is closed or an error occurs.
func (s *Server) ListenAndServe() error {
	s.log.Info("server_starting", slog.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
