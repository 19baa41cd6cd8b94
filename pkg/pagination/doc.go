// Package pagination accumulates enriched pages across a "load more" session.
//
// A session is an explicit state machine held in an immutable State value:
//
//	Idle -> Loading      Start or LoadMore dispatches the current cursor
//	Loading -> Settling  the page was fetched, enriched and appended
//	Loading -> Idle      the page fetch failed; records and cursor unchanged
//	Settling -> Idle     a fixed quiet delay elapsed
//
// Example usage:
//
//	agg := enrich.New(src, enrich.DefaultConfig(), enrich.NewLogReporter(logger))
//	acc := pagination.New(src, agg, pagination.DefaultConfig())
//	defer acc.Close()
//
//	if err := acc.Start(ctx); err != nil {
//	    // *PageFetchError, retry with Start
//	}
//	...
//	if err := acc.LoadMore(ctx); errors.Is(err, pagination.ErrInFlight) {
//	    // ignored, a load is already running or settling
//	}
//
// The first page requests NarrowLimit or WideLimit records depending on the
// viewport flag at the time Start is called. Every later page requests
// LoadMoreLimit records whatever the flag says. The cursor advances by the
// limit actually requested, so requested offsets never overlap.
//
// Loads are never queued: while a load is Loading or Settling further
// requests fail fast with ErrInFlight.
package pagination
