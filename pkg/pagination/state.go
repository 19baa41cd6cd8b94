package pagination

import (
	"fmt"
	"slices"

	"github.com/Sternrassler/feedagg/pkg/feed"
)

// Status is the load status of a session.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSettling
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusSettling:
		return "settling"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// State is an immutable snapshot of a pagination session. Transitions
// return a new State and never modify the receiver or its Records.
type State struct {
	// Records holds every enriched record accumulated so far, in page order.
	// It must not be modified by readers.
	Records []feed.EnrichedRecord

	// Cursor is the cursor the next load will request.
	Cursor feed.Cursor

	Status Status

	// Pages counts successfully loaded pages.
	Pages int

	// LastFetched is the number of records the upstream returned for the
	// most recent successful load, before any deduplication. Zero after a
	// load means the upstream is exhausted.
	LastFetched int

	// LastError is the cause of the most recent failed load, cleared by the
	// next successful one.
	LastError error
}

// NewState returns an idle state whose first load requests first.
func NewState(first feed.Cursor) State {
	return State{
		Records: []feed.EnrichedRecord{},
		Cursor:  first,
		Status:  StatusIdle,
	}
}

// InFlight reports whether a load is Loading or Settling.
func (s State) InFlight() bool {
	return s.Status == StatusLoading || s.Status == StatusSettling
}

// Len returns the number of accumulated records.
func (s State) Len() int {
	return len(s.Records)
}

// Begin moves Idle to Loading and returns the cursor to request.
func (s State) Begin() (State, feed.Cursor, error) {
	if s.Status != StatusIdle {
		return s, feed.Cursor{}, ErrInFlight
	}
	s.Status = StatusLoading
	return s, s.Cursor, nil
}

// Succeed moves Loading to Settling, appending page and advancing the
// cursor to next.
func (s State) Succeed(page []feed.EnrichedRecord, next feed.Cursor) (State, error) {
	if s.Status != StatusLoading {
		return s, fmt.Errorf("%w: succeed from %s", ErrInvalidTransition, s.Status)
	}
	if next.Start < s.Cursor.Start {
		return s, fmt.Errorf("%w: cursor would rewind from %d to %d", ErrInvalidTransition, s.Cursor.Start, next.Start)
	}
	s.Records = slices.Concat(s.Records, page)
	if s.Records == nil {
		s.Records = []feed.EnrichedRecord{}
	}
	s.Cursor = next
	s.Status = StatusSettling
	s.Pages++
	s.LastError = nil
	return s, nil
}

// Fail moves Loading back to Idle without touching records or cursor.
func (s State) Fail(err error) (State, error) {
	if s.Status != StatusLoading {
		return s, fmt.Errorf("%w: fail from %s", ErrInvalidTransition, s.Status)
	}
	s.Status = StatusIdle
	s.LastError = err
	return s, nil
}

// Settle moves Settling to Idle.
func (s State) Settle() (State, error) {
	if s.Status != StatusSettling {
		return s, fmt.Errorf("%w: settle from %s", ErrInvalidTransition, s.Status)
	}
	s.Status = StatusIdle
	return s, nil
}
