// Package core provides the HTTP chassis for the sagechat scheduler API.
// It creates a chi router and enforces cross-cutting concerns -- panic
// recovery, request IDs, logging, CORS, and service-key auth -- before
// requests reach domain handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"sagechat/internal/config"
)

// Server encapsulates the dependencies of the HTTP API, allowing injection
// during testing and distinct configuration for different environments.
type Server struct {
	Config *config.Config
	Logger *slog.Logger

	// V1RouteRegistrars are populated by the application entry point. This
	// indirection avoids import cycles between core and handler packages.
	V1RouteRegistrars []func(chi.Router)

	// ProcessHandler serves POST /process-scheduled-messages, the batch
	// sweep endpoint exposed outside the /v1 namespace.
	ProcessHandler http.HandlerFunc

	// HealthProbes are checked by GET /health.
	HealthProbes []HealthProbe

	router *chi.Mux
}

// NewServer initializes the server chassis. The caller mounts routes via
// MountRoutes after registering handlers.
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

// Handler returns the http.Handler for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration in tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown performs a graceful termination of server resources. Connection
// pools are owned by main and closed there; this hook exists for symmetry
// with the listener shutdown sequence.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown complete")
	return nil
}
