package core

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/go-chi/chi/v5"

	"sagechat/internal/types"
)

// defaultRedactedHeaders lists header names whose values are masked in
// request logs to prevent accidental leakage of credentials.
var defaultRedactedHeaders = []string{
	"Authorization",
	"Cookie",
}

// MountRoutes defines the top-level routing hierarchy: global middleware,
// the batch sweep endpoint, the /v1 group, and the health check.
func (s *Server) MountRoutes() {
	s.registerGlobalMiddleware()

	// Batch sweep endpoint. Lives outside /v1 to match the path the mobile
	// client and the cron trigger already call. OPTIONS is answered by the
	// CORS middleware; POST requires the service key.
	if s.ProcessHandler != nil {
		s.router.With(s.ServiceKeyAuth).Post("/process-scheduled-messages", s.ProcessHandler)
	}

	s.router.Route("/v1", func(r chi.Router) {
		r.Use(s.ServiceKeyAuth)
		for _, registrar := range s.V1RouteRegistrars {
			registrar(r)
		}
	})

	s.router.Get("/health", s.HandleHealth)
}

// registerGlobalMiddleware applies middleware in strict order:
//
//  1. Recoverer     - outermost, catches all panics.
//  2. RequestID     - correlation ID for tracing.
//  3. RequestLogger - structured logging with redacted headers.
//  4. CORS          - browser-originated sweep triggers need preflight.
func (s *Server) registerGlobalMiddleware() {
	s.router.Use(s.Recoverer)
	s.router.Use(RequestIDMiddleware)
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))
	s.router.Use(NewCORSMiddleware(s.corsAllowedOrigins()))
}

// corsAllowedOrigins returns the CORS allowed origins from configuration.
func (s *Server) corsAllowedOrigins() []string {
	if s.Config != nil && len(s.Config.Server.CorsAllowedOrigins) > 0 {
		return s.Config.Server.CorsAllowedOrigins
	}
	return []string{"*"}
}

// RequestIDMiddleware generates a request ID for each request (or propagates
// an incoming X-Request-Id header) and stores it in the context and the
// response headers.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = newRequestID()
		}

		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(types.WithRequestID(r.Context(), id)))
	})
}

// newRequestID returns a random 16-byte hex string.
func newRequestID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failure is effectively unrecoverable; fall back to a
		// fixed marker rather than panicking inside middleware.
		return "id-unavailable"
	}
	return hex.EncodeToString(buf)
}
