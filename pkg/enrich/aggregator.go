// Package enrich fans a page of records out into their dependent media and
// owner fetches and merges the settled results into enriched records.
//
// A dependent fetch that fails never fails the page: the affected record
// carries an empty media list or an unknown owner and the failure goes to a
// Reporter.
package enrich

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/feedagg/pkg/feed"
	"github.com/Sternrassler/feedagg/pkg/logging"
	"github.com/Sternrassler/feedagg/pkg/source"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var (
	enrichDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "feed_enrich_duration_seconds",
		Help:    "Time to fan out and merge one page of records",
		Buckets: prometheus.DefBuckets,
	})

	enrichRecordsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_enrich_records_total",
		Help: "Records emitted by the aggregator",
	})
)

// Config holds aggregator configuration.
type Config struct {
	// MaxConcurrency caps dependent fetches in flight per page. Zero means
	// every fetch for the page is issued at once.
	MaxConcurrency int

	// Owners enables the owner fetch. When false every record's owner is
	// left nil and no owner requests are made.
	Owners bool
}

// DefaultConfig returns an unbounded configuration with owner enrichment.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 0,
		Owners:         true,
	}
}

// Aggregator enriches pages of records from a source.
type Aggregator struct {
	src      source.Source
	config   Config
	reporter Reporter
	logger   zerolog.Logger
}

// New creates an aggregator. A nil reporter discards failure reports.
func New(src source.Source, cfg Config, reporter Reporter) *Aggregator {
	if src == nil {
		panic("source cannot be nil")
	}
	if cfg.MaxConcurrency < 0 {
		cfg.MaxConcurrency = 0
	}
	if reporter == nil {
		reporter = NopReporter{}
	}
	return &Aggregator{
		src:      src,
		config:   cfg,
		reporter: reporter,
		logger:   logging.NewLogger(logging.ComponentEnrich),
	}
}

// Enrich returns one enriched record per input record, in input order.
//
// One media fetch is issued per record and one owner fetch per distinct
// owner id, and Enrich returns only after every one of them has settled.
// Dependent fetches run on a context detached from ctx's cancellation, so
// a page once started is always completed. Enrich never fails.
func (a *Aggregator) Enrich(ctx context.Context, page []feed.Record) []feed.EnrichedRecord {
	if len(page) == 0 {
		return []feed.EnrichedRecord{}
	}

	start := time.Now()
	ctx = context.WithoutCancel(ctx)

	ownerIDs := distinctOwners(page)
	media := make([]Outcome[[]feed.MediaItem], len(page))
	owners := make([]Outcome[feed.Owner], len(ownerIDs))

	var g errgroup.Group
	if a.config.MaxConcurrency > 0 {
		g.SetLimit(a.config.MaxConcurrency)
	}

	for i, rec := range page {
		g.Go(func() error {
			media[i] = settleSafely(func() ([]feed.MediaItem, error) {
				return a.src.FetchMedia(ctx, rec.ID)
			})
			return nil
		})
	}

	if a.config.Owners {
		for j, id := range ownerIDs {
			g.Go(func() error {
				owners[j] = settleSafely(func() (feed.Owner, error) {
					return a.src.FetchOwner(ctx, id)
				})
				return nil
			})
		}
	}

	_ = g.Wait()

	slot := make(map[int]int, len(ownerIDs))
	for j, id := range ownerIDs {
		slot[id] = j
	}

	out := make([]feed.EnrichedRecord, len(page))
	for i, rec := range page {
		owner := Skipped[feed.Owner]()
		if a.config.Owners {
			owner = owners[slot[rec.OwnerID]]
		}
		out[i] = Merge(rec, media[i], owner, a.reporter)
	}

	elapsed := time.Since(start)
	enrichDuration.Observe(elapsed.Seconds())
	enrichRecordsTotal.Add(float64(len(out)))

	a.logger.Debug().
		Int("records", len(page)).
		Int("owners", len(ownerIDs)).
		Dur("duration", elapsed).
		Msg("Page enriched")

	return out
}

// distinctOwners returns the owner ids of page in first-appearance order.
func distinctOwners(page []feed.Record) []int {
	seen := make(map[int]struct{}, len(page))
	ids := make([]int, 0, len(page))
	for _, rec := range page {
		if _, ok := seen[rec.OwnerID]; ok {
			continue
		}
		seen[rec.OwnerID] = struct{}{}
		ids = append(ids, rec.OwnerID)
	}
	return ids
}

// settleSafely runs fetch and turns a panic into a failed outcome.
func settleSafely[T any](fetch func() (T, error)) (out Outcome[T]) {
	defer func() {
		if r := recover(); r != nil {
			out = Failure[T](fmt.Errorf("fetch panicked: %v", r))
		}
	}()
	v, err := fetch()
	return Settle(v, err)
}
