// Package core provides the HTTP chassis of the agriweather API. It builds a
// chi router, applies the cross-cutting middleware (recovery, request IDs,
// logging, CORS, operator auth) and leaves route registration to the handler
// packages through V1RouteRegistrars.
package core

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"agriweather/internal/config"
)

// Server holds the dependencies shared by every request.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator
	Metrics   RequestMetrics

	// HealthProbes are run by GET /health.
	HealthProbes []HealthProbe

	// V1RouteRegistrars mount the domain handlers under /v1. They are set by
	// main so that core never imports the handler packages.
	V1RouteRegistrars []func(chi.Router)

	// Closers are closed in order by Shutdown (database pool and similar).
	Closers []io.Closer

	router *chi.Mux
}

// NewServer creates a server. Routes are mounted separately by MountRoutes
// so tests can customise the registrars first.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown releases the server resources. It keeps closing after a failure
// and returns the first error.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.InfoContext(ctx, "server shutdown initiated")

	var first error
	for _, c := range s.Closers {
		if err := c.Close(); err != nil {
			s.Logger.ErrorContext(ctx, "error closing server resource", "error", err)
			if first == nil {
				first = fmt.Errorf("closing server resources: %w", err)
			}
		}
	}

	s.Logger.InfoContext(ctx, "server shutdown complete")
	return first
}
