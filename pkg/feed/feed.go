// Package feed defines the records that flow through the aggregation pipeline:
// base records as fetched from the upstream, their media items and owners,
// and the enriched records handed to consumers.
package feed

import "fmt"

// Record is a content item before enrichment.
type Record struct {
	ID      int    `json:"id"`
	OwnerID int    `json:"userId"`
	Title   string `json:"title"`
	Body    string `json:"body"`
}

// MediaItem is a single media reference attached to a record.
type MediaItem struct {
	URL string `json:"url"`
}

// Owner is the author profile referenced by Record.OwnerID.
type Owner struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// EnrichedRecord is a Record merged with its media and owner.
//
// Media is never nil once produced by the merge step, so it always encodes
// as a JSON array. Owner is nil when the owner could not be resolved;
// consumers render that as an unknown user.
type EnrichedRecord struct {
	Record
	Media []MediaItem `json:"images"`
	Owner *Owner      `json:"user,omitempty"`
}

// HasOwner reports whether the owner was resolved.
func (r EnrichedRecord) HasOwner() bool {
	return r.Owner != nil
}

// Cursor identifies the page to request next.
type Cursor struct {
	Start int `json:"start"`
	Limit int `json:"limit"`
}

// Validate checks that the cursor can be sent upstream.
func (c Cursor) Validate() error {
	if c.Start < 0 {
		return fmt.Errorf("cursor start must be >= 0 (got %d)", c.Start)
	}
	if c.Limit <= 0 {
		return fmt.Errorf("cursor limit must be > 0 (got %d)", c.Limit)
	}
	return nil
}

// Next returns the cursor following c: it starts right after the page c
// covers and requests limit records.
func (c Cursor) Next(limit int) Cursor {
	return Cursor{Start: c.Start + c.Limit, Limit: limit}
}

// String renders the cursor for logs and errors.
func (c Cursor) String() string {
	return fmt.Sprintf("start=%d limit=%d", c.Start, c.Limit)
}
