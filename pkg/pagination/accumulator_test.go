package pagination

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/feedagg/internal/testutil"
	"github.com/Sternrassler/feedagg/pkg/enrich"
	"github.com/Sternrassler/feedagg/pkg/feed"
	"github.com/Sternrassler/feedagg/pkg/source"
)

type manualTimer struct {
	mu      sync.Mutex
	stopped bool
}

func (t *manualTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	wasActive := !t.stopped
	t.stopped = true
	return wasActive
}

// manualClock replaces time.AfterFunc; timers only fire via fire.
type manualClock struct {
	mu     sync.Mutex
	delays []time.Duration
	fns    []func()
	timers []*manualTimer
}

func (c *manualClock) afterFunc(d time.Duration, f func()) stopper {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{}
	c.delays = append(c.delays, d)
	c.fns = append(c.fns, f)
	c.timers = append(c.timers, t)
	return t
}

func (c *manualClock) fire(t *testing.T) {
	t.Helper()
	c.mu.Lock()
	if len(c.fns) == 0 {
		c.mu.Unlock()
		t.Fatal("no timer scheduled")
	}
	f := c.fns[len(c.fns)-1]
	c.mu.Unlock()
	f()
}

func seededFake(n int) *testutil.FakeSource {
	fake := testutil.NewFakeSource()
	for id := 1; id <= n; id++ {
		owner := (id-1)/10 + 1
		fake.Posts = append(fake.Posts, feed.Record{ID: id, OwnerID: owner, Title: "title"})
		fake.Media[id] = []feed.MediaItem{{URL: "https://example.com/media"}}
		fake.Owners[owner] = feed.Owner{ID: owner, Name: "owner"}
	}
	return fake
}

func newTestAccumulator(fake *testutil.FakeSource, cfg Config) (*Accumulator, *manualClock) {
	agg := enrich.New(fake, enrich.DefaultConfig(), nil)
	acc := New(fake, agg, cfg)
	clock := &manualClock{}
	acc.afterFunc = clock.afterFunc
	return acc, clock
}

func TestAccumulator_FirstPageLimit(t *testing.T) {
	tests := []struct {
		name   string
		narrow bool
		want   feed.Cursor
	}{
		{"wide", false, feed.Cursor{Start: 0, Limit: 10}},
		{"narrow", true, feed.Cursor{Start: 0, Limit: 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := seededFake(30)
			cfg := DefaultConfig()
			cfg.NarrowViewport = tt.narrow
			acc, _ := newTestAccumulator(fake, cfg)
			defer acc.Close()

			if err := acc.Start(context.Background()); err != nil {
				t.Fatalf("Start failed: %v", err)
			}

			calls := fake.PageCallsSnapshot()
			if len(calls) != 1 || calls[0] != tt.want {
				t.Errorf("page calls = %v, want [%v]", calls, tt.want)
			}
			if got := acc.Snapshot().Len(); got != tt.want.Limit {
				t.Errorf("Len = %d, want %d", got, tt.want.Limit)
			}
		})
	}
}

func TestAccumulator_LoadMoreIgnoresViewport(t *testing.T) {
	fake := seededFake(30)
	cfg := DefaultConfig()
	cfg.NarrowViewport = true
	acc, clock := newTestAccumulator(fake, cfg)
	defer acc.Close()
	ctx := context.Background()

	if err := acc.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	clock.fire(t)

	acc.SetNarrowViewport(false)
	if err := acc.LoadMore(ctx); err != nil {
		t.Fatalf("LoadMore failed: %v", err)
	}

	want := []feed.Cursor{{Start: 0, Limit: 5}, {Start: 5, Limit: 5}}
	calls := fake.PageCallsSnapshot()
	if len(calls) != len(want) {
		t.Fatalf("page calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %v, want %v", i, calls[i], want[i])
		}
	}
}

func TestAccumulator_CursorNeverOverlaps(t *testing.T) {
	fake := seededFake(40)
	acc, clock := newTestAccumulator(fake, DefaultConfig())
	defer acc.Close()
	ctx := context.Background()

	if err := acc.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		clock.fire(t)
		if err := acc.LoadMore(ctx); err != nil {
			t.Fatalf("LoadMore #%d failed: %v", i+1, err)
		}
	}

	want := []feed.Cursor{
		{Start: 0, Limit: 10},
		{Start: 10, Limit: 5},
		{Start: 15, Limit: 5},
		{Start: 20, Limit: 5},
	}
	calls := fake.PageCallsSnapshot()
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %v, want %v", i, calls[i], want[i])
		}
	}

	snap := acc.Snapshot()
	if snap.Len() != 25 || snap.Pages != 4 {
		t.Fatalf("Len = %d, Pages = %d, want 25 and 4", snap.Len(), snap.Pages)
	}
	for i, rec := range snap.Records {
		if rec.ID != i+1 {
			t.Fatalf("Records[%d].ID = %d, want %d", i, rec.ID, i+1)
		}
		if !rec.HasOwner() || len(rec.Media) != 1 {
			t.Errorf("record %d not enriched: %+v", rec.ID, rec)
		}
	}
}

func TestAccumulator_SettlingRejectsLoads(t *testing.T) {
	fake := seededFake(30)
	acc, clock := newTestAccumulator(fake, DefaultConfig())
	defer acc.Close()
	ctx := context.Background()

	if err := acc.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if !acc.InFlight() || acc.Snapshot().Status != StatusSettling {
		t.Fatalf("status after load = %s, want settling", acc.Snapshot().Status)
	}
	if len(clock.delays) != 1 || clock.delays[0] != 3*time.Second {
		t.Errorf("settle delays = %v, want [3s]", clock.delays)
	}

	if err := acc.LoadMore(ctx); !errors.Is(err, ErrInFlight) {
		t.Errorf("LoadMore while settling = %v, want ErrInFlight", err)
	}
	if got := len(fake.PageCallsSnapshot()); got != 1 {
		t.Errorf("rejected load reached the source: %d page calls", got)
	}

	clock.fire(t)
	if acc.InFlight() {
		t.Error("still in flight after settle")
	}
	if err := acc.LoadMore(ctx); err != nil {
		t.Errorf("LoadMore after settle failed: %v", err)
	}
}

func TestAccumulator_ConcurrentLoadMoreRejected(t *testing.T) {
	fake := seededFake(30)
	acc, clock := newTestAccumulator(fake, DefaultConfig())
	defer acc.Close()
	ctx := context.Background()

	if err := acc.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	clock.fire(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	fake.BeforePage = func(feed.Cursor) {
		close(entered)
		<-release
	}

	done := make(chan error, 1)
	go func() { done <- acc.LoadMore(ctx) }()
	<-entered

	if err := acc.LoadMore(ctx); !errors.Is(err, ErrInFlight) {
		t.Errorf("concurrent LoadMore = %v, want ErrInFlight", err)
	}
	if got := acc.Snapshot().Status; got != StatusLoading {
		t.Errorf("status = %s, want loading", got)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first LoadMore failed: %v", err)
	}
	if got := len(fake.PageCallsSnapshot()); got != 2 {
		t.Errorf("page calls = %d, want 2", got)
	}
}

func TestAccumulator_PageFailureLeavesStateUnchanged(t *testing.T) {
	fake := seededFake(30)
	acc, clock := newTestAccumulator(fake, DefaultConfig())
	defer acc.Close()
	ctx := context.Background()

	if err := acc.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	clock.fire(t)
	before := acc.Snapshot()

	fake.SetFailPage(true)
	err := acc.LoadMore(ctx)

	var pfe *PageFetchError
	if !errors.As(err, &pfe) {
		t.Fatalf("err = %v, want *PageFetchError", err)
	}
	if pfe.Cursor != (feed.Cursor{Start: 10, Limit: 5}) {
		t.Errorf("failed cursor = %v", pfe.Cursor)
	}
	if !source.IsTransport(err) {
		t.Error("PageFetchError should unwrap to the transport error")
	}

	after := acc.Snapshot()
	if after.Len() != before.Len() || after.Cursor != before.Cursor || after.Pages != before.Pages {
		t.Errorf("state changed on failure: before %+v after %+v", before.Cursor, after.Cursor)
	}
	if after.Status != StatusIdle || after.LastError == nil {
		t.Errorf("status = %s, LastError = %v", after.Status, after.LastError)
	}
	if len(clock.fns) != 1 {
		t.Error("a failed load must not schedule a settle timer")
	}

	fake.SetFailPage(false)
	if err := acc.LoadMore(ctx); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	calls := fake.PageCallsSnapshot()
	if calls[len(calls)-1] != pfe.Cursor {
		t.Errorf("retry used %v, want %v", calls[len(calls)-1], pfe.Cursor)
	}
}

func TestAccumulator_SessionErrors(t *testing.T) {
	fake := seededFake(30)
	acc, clock := newTestAccumulator(fake, DefaultConfig())
	ctx := context.Background()

	if err := acc.LoadMore(ctx); !errors.Is(err, ErrNotStarted) {
		t.Errorf("LoadMore before Start = %v, want ErrNotStarted", err)
	}

	fake.SetFailPage(true)
	if err := acc.Start(ctx); err == nil {
		t.Fatal("expected Start to fail")
	}
	if err := acc.LoadMore(ctx); !errors.Is(err, ErrNotStarted) {
		t.Errorf("LoadMore after failed Start = %v, want ErrNotStarted", err)
	}

	fake.SetFailPage(false)
	if err := acc.Start(ctx); err != nil {
		t.Fatalf("retried Start failed: %v", err)
	}
	clock.fire(t)
	if err := acc.Start(ctx); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start = %v, want ErrAlreadyStarted", err)
	}

	acc.Close()
	if err := acc.LoadMore(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("LoadMore after Close = %v, want ErrClosed", err)
	}
}

func TestAccumulator_Duplicates(t *testing.T) {
	tests := []struct {
		name    string
		dedupe  bool
		wantLen int
	}{
		{"kept by default", false, 15},
		{"dropped when deduping", true, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := seededFake(10)
			// Positions 10..14 repeat ids 1..5.
			fake.Posts = append(fake.Posts, fake.Posts[:5]...)

			cfg := DefaultConfig()
			cfg.DedupeByID = tt.dedupe
			acc, clock := newTestAccumulator(fake, cfg)
			defer acc.Close()
			ctx := context.Background()

			if err := acc.Start(ctx); err != nil {
				t.Fatalf("Start failed: %v", err)
			}
			clock.fire(t)
			if err := acc.LoadMore(ctx); err != nil {
				t.Fatalf("LoadMore failed: %v", err)
			}

			snap := acc.Snapshot()
			if snap.Len() != tt.wantLen {
				t.Errorf("Len = %d, want %d", snap.Len(), tt.wantLen)
			}
			if snap.Cursor != (feed.Cursor{Start: 15, Limit: 5}) {
				t.Errorf("cursor = %v, want start=15 limit=5", snap.Cursor)
			}
			if snap.LastFetched != 5 {
				t.Errorf("LastFetched = %d, want 5", snap.LastFetched)
			}
		})
	}
}

func TestAccumulator_Subscribe(t *testing.T) {
	fake := seededFake(30)
	acc, clock := newTestAccumulator(fake, DefaultConfig())
	ctx := context.Background()

	updates, cancel := acc.Subscribe()
	defer cancel()

	if err := acc.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Only the latest state is buffered.
	latest := <-updates
	if latest.Status != StatusSettling || latest.Len() != 10 {
		t.Errorf("latest = %s with %d records, want settling with 10", latest.Status, latest.Len())
	}

	clock.fire(t)
	if s := <-updates; s.Status != StatusIdle {
		t.Errorf("after settle = %s, want idle", s.Status)
	}

	acc.Close()
	if _, ok := <-updates; ok {
		t.Error("subscription not closed by Close")
	}
	cancel()
}

func TestAccumulator_Unsubscribe(t *testing.T) {
	acc, _ := newTestAccumulator(seededFake(10), DefaultConfig())
	defer acc.Close()

	updates, cancel := acc.Subscribe()
	cancel()
	cancel()

	if _, ok := <-updates; ok {
		t.Error("channel still open after cancel")
	}
	if err := acc.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
}

func TestAccumulator_CloseStopsTimer(t *testing.T) {
	acc, clock := newTestAccumulator(seededFake(10), DefaultConfig())

	if err := acc.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	acc.Close()
	acc.Close()

	if !clock.timers[0].stopped {
		t.Error("settle timer not stopped")
	}
	if acc.InFlight() {
		t.Error("closed session still in flight")
	}
	updates, _ := acc.Subscribe()
	if _, ok := <-updates; ok {
		t.Error("Subscribe after Close returned an open channel")
	}
}

func TestAccumulator_NoSettleDelay(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SettleDelay = 0
	acc, clock := newTestAccumulator(seededFake(30), cfg)
	defer acc.Close()
	ctx := context.Background()

	if err := acc.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if acc.InFlight() {
		t.Error("in flight with settle delay disabled")
	}
	if err := acc.LoadMore(ctx); err != nil {
		t.Errorf("LoadMore failed: %v", err)
	}
	if len(clock.fns) != 0 {
		t.Error("timer scheduled with settle delay disabled")
	}
}

func TestAccumulator_RealTimer(t *testing.T) {
	fake := seededFake(30)
	cfg := DefaultConfig()
	cfg.SettleDelay = 10 * time.Millisecond
	acc := New(fake, enrich.New(fake, enrich.DefaultConfig(), nil), cfg)
	defer acc.Close()

	if err := acc.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for acc.InFlight() {
		if time.Now().After(deadline) {
			t.Fatal("session never settled")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestAccumulator_CancelledContextCompletes(t *testing.T) {
	fake := seededFake(30)
	acc, _ := newTestAccumulator(fake, DefaultConfig())
	defer acc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := acc.Start(ctx); err != nil {
		t.Fatalf("Start with cancelled context failed: %v", err)
	}
	if acc.Snapshot().Len() != 10 {
		t.Errorf("Len = %d, want 10", acc.Snapshot().Len())
	}
}

func TestNew_DefaultsLimits(t *testing.T) {
	fake := seededFake(1)
	acc := New(fake, enrich.New(fake, enrich.DefaultConfig(), nil), Config{SettleDelay: -time.Second})

	if acc.config.WideLimit != 10 || acc.config.NarrowLimit != 5 || acc.config.LoadMoreLimit != 5 {
		t.Errorf("limits = %+v", acc.config)
	}
	if acc.config.SettleDelay != 0 {
		t.Errorf("SettleDelay = %v, want 0", acc.config.SettleDelay)
	}
}
