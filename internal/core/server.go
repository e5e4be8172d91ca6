// Package core provides the API chassis for the TippSlottet service: the chi
// router, the middleware chain (security, identity, logging, error handling),
// response helpers, and the health endpoint. Domain handlers mount onto it
// through route registrars so the chassis stays free of handler imports.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tippslottet/internal/config"
	"tippslottet/internal/types"
)

// Server carries the shared dependencies of the HTTP surface, injected at
// construction so tests can swap any of them.
type Server struct {
	Config       *config.Config
	Logger       *slog.Logger
	Validator    *Validator
	Auth         types.AuthOracle
	HealthProbes []HealthProbe

	router *chi.Mux
}

// NewServer validates the critical dependencies and prepares the router. The
// caller mounts routes afterwards via MountRoutes.
func NewServer(cfg *config.Config, logger *slog.Logger, auth types.AuthOracle) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	if auth == nil {
		return nil, fmt.Errorf("auth oracle must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(),
		Auth:      auth,
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration in tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Serve runs the HTTP server until ctx is cancelled, then shuts down
// gracefully within the configured shutdown timeout.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:         ":" + s.Config.Server.Port,
		Handler:      s.router,
		ReadTimeout:  s.Config.Server.ReadTimeout,
		WriteTimeout: s.Config.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.Logger.Info("http server listening", slog.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.Logger.Info("server shutdown initiated")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	s.Logger.Info("server shutdown complete")
	return nil
}
