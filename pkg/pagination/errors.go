package pagination

import (
	"errors"
	"fmt"

	"github.com/Sternrassler/feedagg/pkg/feed"
)

var (
	// ErrInFlight is returned when a load is requested while another one is
	// Loading or Settling.
	ErrInFlight = errors.New("pagination: load already in flight")

	// ErrInvalidTransition is returned by a State transition that is not
	// allowed from the current status.
	ErrInvalidTransition = errors.New("pagination: invalid state transition")

	// ErrAlreadyStarted is returned by a second successful Start.
	ErrAlreadyStarted = errors.New("pagination: session already started")

	// ErrNotStarted is returned by LoadMore before the first page loaded.
	ErrNotStarted = errors.New("pagination: session not started")

	// ErrClosed is returned by any load after Close.
	ErrClosed = errors.New("pagination: session closed")
)

// PageFetchError reports a failed base page fetch. The session state is
// unchanged and the same cursor is retried by the next load.
type PageFetchError struct {
	Cursor feed.Cursor
	Err    error
}

func (e *PageFetchError) Error() string {
	return fmt.Sprintf("fetch page (%s): %v", e.Cursor, e.Err)
}

func (e *PageFetchError) Unwrap() error {
	return e.Err
}
