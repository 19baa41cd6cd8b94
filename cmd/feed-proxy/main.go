// Command feed-proxy serves media-enriched feed pages and owner lookups
// over HTTP, backed by a JSONPlaceholder-style upstream.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/feedagg/internal/config"
	"github.com/Sternrassler/feedagg/pkg/cache"
	"github.com/Sternrassler/feedagg/pkg/enrich"
	"github.com/Sternrassler/feedagg/pkg/logging"
	"github.com/Sternrassler/feedagg/pkg/server"
	"github.com/Sternrassler/feedagg/pkg/source"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(cfg.LoggingConfig("feed-proxy"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("feed-proxy failed")
	}
}

// run serves until ctx is cancelled, then shuts down gracefully.
func run(ctx context.Context, cfg *config.Config) error {
	deps, cleanup, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	scfg := server.DefaultConfig(cfg.Addr())
	scfg.MaxConcurrency = cfg.MaxConcurrency

	srv, err := server.New(scfg, deps)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Info().
		Str("addr", cfg.Addr()).
		Str("upstream", cfg.UpstreamURL).
		Str("preset", cfg.UpstreamPreset).
		Str("user_agent", cfg.UserAgent).
		Msg("feed-proxy started")

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildDeps wires the upstream source behind the owner cache. With a Redis
// URL configured the cache is shared through Redis, otherwise it is a
// per-process LRU.
func buildDeps(ctx context.Context, cfg *config.Config) (server.Deps, func(), error) {
	httpSrc, err := source.New(cfg.SourceConfig())
	if err != nil {
		return server.Deps{}, nil, fmt.Errorf("create source: %w", err)
	}

	deps := server.Deps{
		Reporter: enrich.NewLogReporter(logging.NewLogger(logging.ComponentEnrich)),
	}
	cleanup := func() {}

	var store cache.Store
	if cfg.RedisURL != "" {
		opts, err := cfg.RedisOptions()
		if err != nil {
			return server.Deps{}, nil, err
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return server.Deps{}, nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
		}
		log.Info().Str("addr", opts.Addr).Msg("Connected to Redis")

		store = cache.NewRedisStore(client)
		deps.Redis = client
		cleanup = func() { client.Close() }
	} else {
		store = cache.NewMemoryStore(cfg.ProfileCacheSize)
	}

	deps.Source = source.WithOwnerCache(httpSrc, store, cfg.ProfileCacheTTL)
	return deps, cleanup, nil
}
