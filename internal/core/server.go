// Package core provides the API chassis for the rollcall service. It creates
// the chi router and enforces the cross-cutting concerns (panic recovery,
// request correlation, structured request logging) before requests reach the
// domain handlers.
package core

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"rollcall/internal/config"
)

// Server bundles the dependencies of the HTTP surface, allowing injection
// during testing and distinct wiring per environment.
type Server struct {
	Config *config.Config
	Logger *slog.Logger

	// HealthProbes are executed concurrently by GET /health.
	HealthProbes []HealthProbe

	// V1RouteRegistrars are populated by the application entry point so the
	// handler packages can depend on core without an import cycle.
	V1RouteRegistrars []func(chi.Router)

	router *chi.Mux
}

// NewServer prepares the router for route mounting. The caller mounts routes
// via MountRoutes after registering the V1 registrars.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config: cfg,
		Logger: logger,
		router: chi.NewRouter(),
	}, nil
}

// Handler returns the router as an http.Handler for http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration in tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// MountRoutes registers the global middleware chain, the /v1 group, and the
// health endpoint. Middleware order matters: the recoverer is outermost so it
// catches everything, the request ID runs before the logger so every log line
// carries the correlation ID.
//
// There is deliberately no global request timeout: the subscribe endpoint
// holds its connection open for the stream lifetime, and a deadline here would
// sever every stream on the same cadence.
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(RequestIDMiddleware)
	s.router.Use(RequestLogger(s.Logger))

	s.router.Route("/v1", func(r chi.Router) {
		for _, registrar := range s.V1RouteRegistrars {
			registrar(r)
		}
	})

	s.router.Get("/health", s.HandleHealth)
}
