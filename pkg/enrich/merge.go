package enrich

import (
	"github.com/Sternrassler/feedagg/pkg/feed"
)

// Merge builds the enriched record for base from the settled outcomes of
// its dependent fetches.
//
// A failed media fetch yields an empty media slice and a failed owner fetch
// yields a nil owner; both are handed to r and never propagated. A skipped
// owner fetch leaves the owner nil without a report. Merge never panics and
// copies the media slice, so the result shares no memory with the inputs.
func Merge(base feed.Record, media Outcome[[]feed.MediaItem], owner Outcome[feed.Owner], r Reporter) feed.EnrichedRecord {
	if r == nil {
		r = NopReporter{}
	}

	out := feed.EnrichedRecord{
		Record: base,
		Media:  []feed.MediaItem{},
	}

	switch {
	case media.IsSkipped():
	case media.Err != nil:
		r.MediaFailed(base.ID, media.Err)
	default:
		out.Media = append(make([]feed.MediaItem, 0, len(media.Value)), media.Value...)
	}

	switch {
	case owner.IsSkipped():
	case owner.Err != nil:
		r.OwnerFailed(base.OwnerID, base.ID, owner.Err)
	default:
		o := owner.Value
		out.Owner = &o
	}

	return out
}
