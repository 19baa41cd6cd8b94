package pagination

import (
	"context"
	"sync"
	"time"

	"github.com/Sternrassler/feedagg/pkg/enrich"
	"github.com/Sternrassler/feedagg/pkg/feed"
	"github.com/Sternrassler/feedagg/pkg/logging"
	"github.com/Sternrassler/feedagg/pkg/source"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	pageFetchFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_page_fetch_failures_total",
		Help: "Base page fetches that failed during a pagination session",
	})

	pagesLoadedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_pages_loaded_total",
		Help: "Pages fetched, enriched and appended by pagination sessions",
	})
)

// Config holds accumulator configuration.
type Config struct {
	// NarrowViewport selects NarrowLimit over WideLimit for the first page.
	NarrowViewport bool

	WideLimit     int
	NarrowLimit   int
	LoadMoreLimit int

	// SettleDelay is the quiet window after a successful load before the
	// session accepts another one. Zero disables it.
	SettleDelay time.Duration

	// DedupeByID drops records whose id is already accumulated.
	DedupeByID bool
}

// DefaultConfig returns the standard page sizes and a 3s settle delay.
func DefaultConfig() Config {
	return Config{
		NarrowViewport: false,
		WideLimit:      10,
		NarrowLimit:    5,
		LoadMoreLimit:  5,
		SettleDelay:    3 * time.Second,
		DedupeByID:     false,
	}
}

// stopper is the part of *time.Timer the accumulator needs.
type stopper interface {
	Stop() bool
}

// Accumulator drives one pagination session: it fetches pages from a
// source, enriches them and accumulates the results.
//
// All methods are safe for concurrent use. Concurrent loads never race on
// the cursor because every load but one fails with ErrInFlight.
type Accumulator struct {
	src    source.Source
	agg    *enrich.Aggregator
	config Config
	logger zerolog.Logger

	afterFunc func(time.Duration, func()) stopper

	mu      sync.Mutex
	state   State
	narrow  bool
	started bool
	closed  bool
	timer   stopper
	subs    map[int]chan State
	nextSub int
}

// New creates an accumulator. Non-positive limits fall back to DefaultConfig
// values.
func New(src source.Source, agg *enrich.Aggregator, cfg Config) *Accumulator {
	if src == nil {
		panic("source cannot be nil")
	}
	if agg == nil {
		panic("aggregator cannot be nil")
	}

	def := DefaultConfig()
	if cfg.WideLimit <= 0 {
		cfg.WideLimit = def.WideLimit
	}
	if cfg.NarrowLimit <= 0 {
		cfg.NarrowLimit = def.NarrowLimit
	}
	if cfg.LoadMoreLimit <= 0 {
		cfg.LoadMoreLimit = def.LoadMoreLimit
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}

	return &Accumulator{
		src:    src,
		agg:    agg,
		config: cfg,
		logger: logging.NewLogger(logging.ComponentPagination),
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
		state:  NewState(feed.Cursor{Start: 0, Limit: cfg.WideLimit}),
		narrow: cfg.NarrowViewport,
		subs:   make(map[int]chan State),
	}
}

// SetNarrowViewport updates the viewport flag. It only affects a Start
// that has not succeeded yet.
func (a *Accumulator) SetNarrowViewport(narrow bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.narrow = narrow
}

// Start loads the first page. A failed Start returns *PageFetchError and
// may be retried.
func (a *Accumulator) Start(ctx context.Context) error {
	a.mu.Lock()
	switch {
	case a.closed:
		a.mu.Unlock()
		return ErrClosed
	case a.started:
		a.mu.Unlock()
		return ErrAlreadyStarted
	case a.state.InFlight():
		a.mu.Unlock()
		return ErrInFlight
	}

	limit := a.config.WideLimit
	if a.narrow {
		limit = a.config.NarrowLimit
	}
	first := NewState(feed.Cursor{Start: 0, Limit: limit})
	first.LastError = a.state.LastError

	loading, cursor, err := first.Begin()
	if err != nil {
		a.mu.Unlock()
		return err
	}
	a.publishLocked(loading)
	a.mu.Unlock()

	return a.load(ctx, cursor, true)
}

// LoadMore loads the next page.
func (a *Accumulator) LoadMore(ctx context.Context) error {
	a.mu.Lock()
	switch {
	case a.closed:
		a.mu.Unlock()
		return ErrClosed
	case !a.started:
		inFlight := a.state.InFlight()
		a.mu.Unlock()
		if inFlight {
			return ErrInFlight
		}
		return ErrNotStarted
	}

	loading, cursor, err := a.state.Begin()
	if err != nil {
		a.mu.Unlock()
		return err
	}
	a.publishLocked(loading)
	a.mu.Unlock()

	return a.load(ctx, cursor, false)
}

// load runs one Loading cycle to completion. The caller has already moved
// the state to Loading.
func (a *Accumulator) load(ctx context.Context, cursor feed.Cursor, first bool) error {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()

	records, err := a.src.FetchPage(ctx, cursor)
	if err != nil {
		pageFetchFailuresTotal.Inc()
		a.logger.Error().
			Err(err).
			Int("start", cursor.Start).
			Int("limit", cursor.Limit).
			Msg("Page fetch failed")

		a.mu.Lock()
		if failed, terr := a.state.Fail(err); terr == nil {
			a.publishLocked(failed)
		}
		a.mu.Unlock()
		return &PageFetchError{Cursor: cursor, Err: err}
	}

	enriched := a.agg.Enrich(ctx, records)

	a.mu.Lock()
	defer a.mu.Unlock()

	fetched := len(enriched)
	if a.config.DedupeByID {
		enriched = dropSeen(a.state.Records, enriched)
	}

	settling, err := a.state.Succeed(enriched, cursor.Next(a.config.LoadMoreLimit))
	if err != nil {
		return err
	}
	settling.LastFetched = fetched
	if first {
		a.started = true
	}
	pagesLoadedTotal.Inc()
	a.publishLocked(settling)

	a.logger.Info().
		Int("start", cursor.Start).
		Int("limit", cursor.Limit).
		Int("fetched", fetched).
		Int("appended", len(enriched)).
		Int("total", settling.Len()).
		Dur("duration", time.Since(start)).
		Msg("Page loaded")

	if a.closed || a.config.SettleDelay == 0 {
		a.settleLocked()
		return nil
	}
	a.timer = a.afterFunc(a.config.SettleDelay, a.settle)
	return nil
}

func (a *Accumulator) settle() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settleLocked()
}

func (a *Accumulator) settleLocked() {
	a.timer = nil
	idle, err := a.state.Settle()
	if err != nil {
		return
	}
	a.publishLocked(idle)
}

// Snapshot returns the current state.
func (a *Accumulator) Snapshot() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// InFlight reports whether a load is Loading or Settling.
func (a *Accumulator) InFlight() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.InFlight()
}

// Subscribe returns a channel receiving the latest state after every
// transition, and a function that cancels the subscription. A slow reader
// only ever sees the most recent state.
func (a *Accumulator) Subscribe() (<-chan State, func()) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ch := make(chan State, 1)
	if a.closed {
		close(ch)
		return ch, func() {}
	}

	id := a.nextSub
	a.nextSub++
	a.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			a.mu.Lock()
			defer a.mu.Unlock()
			if c, ok := a.subs[id]; ok {
				delete(a.subs, id)
				close(c)
			}
		})
	}
}

// Close ends the session: it stops a pending settle timer and closes every
// subscription. A load already running completes but is not announced.
func (a *Accumulator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}
	a.closed = true

	if a.timer != nil {
		a.timer.Stop()
		a.settleLocked()
	}
	for id, ch := range a.subs {
		delete(a.subs, id)
		close(ch)
	}
}

func (a *Accumulator) publishLocked(s State) {
	a.state = s
	for _, ch := range a.subs {
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}

// dropSeen returns the records of page whose id is not in existing or
// earlier in page.
func dropSeen(existing, page []feed.EnrichedRecord) []feed.EnrichedRecord {
	seen := make(map[int]struct{}, len(existing)+len(page))
	for _, rec := range existing {
		seen[rec.ID] = struct{}{}
	}
	out := make([]feed.EnrichedRecord, 0, len(page))
	for _, rec := range page {
		if _, ok := seen[rec.ID]; ok {
			continue
		}
		seen[rec.ID] = struct{}{}
		out = append(out, rec)
	}
	return out
}
