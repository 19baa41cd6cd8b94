// Package source abstracts the network boundary of the feed pipeline:
// fetching a page of base records, the media of one record, and the owner
// profile behind one owner identifier. It holds no business logic and never
// retries; every call is a single attempt.
package source

import (
	"context"

	"github.com/Sternrassler/feedagg/pkg/feed"
)

// Source is the upstream contract consumed by the aggregator and the
// pagination accumulator.
type Source interface {
	// FetchPage returns the records covered by cursor. It fails with a
	// *TransportError and never returns a partial page.
	FetchPage(ctx context.Context, cursor feed.Cursor) ([]feed.Record, error)

	// FetchMedia returns the media of one record. An empty slice is a
	// successful result.
	FetchMedia(ctx context.Context, recordID int) ([]feed.MediaItem, error)

	// FetchOwner resolves one owner. It fails with a *NotFoundError when the
	// identifier does not resolve and a *TransportError otherwise.
	FetchOwner(ctx context.Context, ownerID int) (feed.Owner, error)
}
