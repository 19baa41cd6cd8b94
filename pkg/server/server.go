// Package server exposes the feed over HTTP: a media-enriched page
// endpoint, owner and media lookups, health probes and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Sternrassler/feedagg/pkg/enrich"
	"github.com/Sternrassler/feedagg/pkg/logging"
	"github.com/Sternrassler/feedagg/pkg/metrics"
	"github.com/Sternrassler/feedagg/pkg/source"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Config holds server configuration.
type Config struct {
	Addr string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// DefaultLimit is the page size when the request names none.
	DefaultLimit int
	// MaxLimit bounds the requested page size.
	MaxLimit int

	// MaxConcurrency caps media fetches in flight per page.
	MaxConcurrency int
}

// DefaultConfig returns a configuration listening on addr.
func DefaultConfig(addr string) Config {
	return Config{
		Addr:           addr,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   60 * time.Second,
		IdleTimeout:    120 * time.Second,
		DefaultLimit:   10,
		MaxLimit:       100,
		MaxConcurrency: 0,
	}
}

// Deps are the collaborators the handlers use.
type Deps struct {
	Source source.Source

	// Reporter receives media failures absorbed by /api/v1/posts.
	// Nil discards them.
	Reporter enrich.Reporter

	// Redis, when set, is pinged by /ready.
	Redis *redis.Client
}

// Server is the feed HTTP server.
type Server struct {
	httpServer *http.Server
	config     Config
	deps       Deps
	media      *enrich.Aggregator
	logger     zerolog.Logger
}

// New creates a server with routes and middleware configured.
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Source == nil {
		return nil, fmt.Errorf("source is required")
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 10
	}
	if cfg.MaxLimit < cfg.DefaultLimit {
		cfg.MaxLimit = cfg.DefaultLimit
	}

	s := &Server{
		config: cfg,
		deps:   deps,
		media: enrich.New(deps.Source, enrich.Config{
			MaxConcurrency: cfg.MaxConcurrency,
			Owners:         false,
		}, deps.Reporter),
		logger: logging.NewLogger(logging.ComponentServer),
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(metricsMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/posts", s.handleListPosts)
		r.Get("/posts/{id}/images", s.handleListMedia)
		r.Get("/users/{id}", s.handleGetUser)
	})

	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe serves until Shutdown is called. It returns nil after a
// graceful shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info().Str("addr", s.config.Addr).Msg("Starting feed server")

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down feed server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
