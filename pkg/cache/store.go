package cache

import (
	"context"
	"errors"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Store is a TTL-aware key/value store for cache entries.
type Store interface {
	// Get returns ErrCacheMiss if the key doesn't exist or the entry is expired.
	Get(ctx context.Context, key Key) (*Entry, error)

	// Set stores entry until entry.Expires. Already expired entries are dropped.
	Set(ctx context.Context, key Key, entry *Entry) error

	// Delete removes a cache entry. Deleting a missing key is not an error.
	Delete(ctx context.Context, key Key) error
}
