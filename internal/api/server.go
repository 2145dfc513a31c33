// Package api exposes the contract pipeline over HTTP. Handlers are thin:
// they resolve the template directory, open the target database, and call
// the same synchronous core the CLI uses.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/AlfRonDon/NeuraReport-sub002/internal/config"
	"github.com/AlfRonDon/NeuraReport-sub002/internal/contract"
	"github.com/AlfRonDon/NeuraReport-sub002/internal/llm"
)

// Server is the HTTP API server.
type Server struct {
	cfg     *config.ProjectConfig
	builder *contract.Builder
	client  llm.Client
	logger  *slog.Logger
}

// Config holds configuration for the API server.
type Config struct {
	Project *config.ProjectConfig
	Builder *contract.Builder
	Client  llm.Client
	Logger  *slog.Logger
}

// NewServer creates a new API server instance.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		cfg:     cfg.Project,
		builder: cfg.Builder,
		client:  cfg.Client,
		logger:  logger,
	}
}

// Serve starts the API server and blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	addr := s.cfg.Server.Addr
	s.logger.Info("starting api server", "addr", addr)

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    addr,
		Handler: s.Routes(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down api server...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// Routes builds the router. Exposed separately so tests can drive handlers
// without a listener.
func (s *Server) Routes() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.Logger,
		middleware.Recoverer,
	)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/api/chart-templates", s.handleChartTemplates)
	r.Route("/api/templates/{id}", func(r chi.Router) {
		r.Post("/contract/build", s.handleContractBuild)
		r.Get("/contract", s.handleContractGet)
		r.Post("/discovery", s.handleDiscovery)
		r.Post("/charts/suggest", s.handleChartsSuggest)
	})
	return r
}
