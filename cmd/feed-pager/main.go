// Command feed-pager runs one headless "load more" session against an
// upstream and prints the accumulated feed as JSON.
//
// Usage:
//
//	feed-pager -pages 3 -narrow -upstream https://jsonplaceholder.typicode.com
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/feedagg/internal/config"
	"github.com/Sternrassler/feedagg/pkg/cache"
	"github.com/Sternrassler/feedagg/pkg/enrich"
	"github.com/Sternrassler/feedagg/pkg/feed"
	"github.com/Sternrassler/feedagg/pkg/logging"
	"github.com/Sternrassler/feedagg/pkg/pagination"
	"github.com/Sternrassler/feedagg/pkg/source"
	"github.com/rs/zerolog/log"
)

// unknownOwner is rendered for records whose owner could not be resolved.
const unknownOwner = "unknown user"

type options struct {
	pages          int
	narrow         bool
	settle         time.Duration
	maxConcurrency int
	dedupe         bool
	owners         bool
	source         source.Config
	cacheSize      int
	cacheTTL       time.Duration
}

// postView is how one enriched record is presented.
type postView struct {
	ID     int      `json:"id"`
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	Author string   `json:"author"`
	Images []string `json:"images"`
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	opts := options{
		source:         cfg.SourceConfig(),
		maxConcurrency: cfg.MaxConcurrency,
		owners:         cfg.OwnersEnabled,
		cacheSize:      cfg.ProfileCacheSize,
		cacheTTL:       cfg.ProfileCacheTTL,
	}
	flag.IntVar(&opts.pages, "pages", 3, "number of pages to load")
	flag.BoolVar(&opts.narrow, "narrow", cfg.NarrowViewport, "request the narrow first page")
	flag.DurationVar(&opts.settle, "settle", cfg.SettleDelay, "quiet window after each page")
	flag.BoolVar(&opts.dedupe, "dedupe", false, "drop records whose id was already loaded")
	flag.StringVar(&opts.source.BaseURL, "upstream", opts.source.BaseURL, "upstream base URL")
	flag.Parse()

	lc := cfg.LoggingConfig("feed-pager")
	lc.Output = os.Stderr
	logging.Setup(lc)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout); err != nil {
		log.Fatal().Err(err).Msg("feed-pager failed")
	}
}

// run loads up to opts.pages pages and writes the result to out. It stops
// early once the upstream returns an empty page.
func run(ctx context.Context, opts options, out io.Writer) error {
	if opts.pages < 1 {
		return fmt.Errorf("pages must be >= 1, got %d", opts.pages)
	}

	httpSrc, err := source.New(opts.source)
	if err != nil {
		return fmt.Errorf("create source: %w", err)
	}
	src := source.WithOwnerCache(httpSrc, cache.NewMemoryStore(opts.cacheSize), opts.cacheTTL)

	agg := enrich.New(src, enrich.Config{
		MaxConcurrency: opts.maxConcurrency,
		Owners:         opts.owners,
	}, enrich.NewLogReporter(logging.NewLogger(logging.ComponentEnrich)))

	pcfg := pagination.DefaultConfig()
	pcfg.NarrowViewport = opts.narrow
	pcfg.SettleDelay = opts.settle
	pcfg.DedupeByID = opts.dedupe

	acc := pagination.New(src, agg, pcfg)
	defer acc.Close()

	updates, unsubscribe := acc.Subscribe()
	defer unsubscribe()

	if err := acc.Start(ctx); err != nil {
		return fmt.Errorf("first page: %w", err)
	}

	for page := 1; page < opts.pages; page++ {
		if err := waitIdle(ctx, acc, updates); err != nil {
			return err
		}

		if err := acc.LoadMore(ctx); err != nil {
			return fmt.Errorf("page %d: %w", page+1, err)
		}
		if acc.Snapshot().LastFetched == 0 {
			log.Info().Int("page", page+1).Msg("Upstream exhausted")
			break
		}
	}

	return render(out, acc.Snapshot())
}

// waitIdle blocks until the session leaves its settle window.
func waitIdle(ctx context.Context, acc *pagination.Accumulator, updates <-chan pagination.State) error {
	for acc.InFlight() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-updates:
			if !ok {
				return pagination.ErrClosed
			}
		}
	}
	return nil
}

func render(out io.Writer, state pagination.State) error {
	views := make([]postView, 0, state.Len())
	for _, rec := range state.Records {
		views = append(views, newPostView(rec))
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(views)
}

func newPostView(rec feed.EnrichedRecord) postView {
	author := unknownOwner
	if rec.HasOwner() {
		author = rec.Owner.Name
	}

	images := make([]string, 0, len(rec.Media))
	for _, m := range rec.Media {
		images = append(images, m.URL)
	}

	return postView{
		ID:     rec.ID,
		Title:  rec.Title,
		Body:   rec.Body,
		Author: author,
		Images: images,
	}
}
