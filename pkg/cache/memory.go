package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const layerMemory = "memory"

// DefaultMemoryTTL bounds how long the LRU keeps an entry regardless of the
// entry's own expiry.
const DefaultMemoryTTL = 10 * time.Minute

// MemoryStore is a per-process LRU cache. Entries are evicted when the LRU
// is full, when DefaultMemoryTTL elapses, or when their own Expires passes.
type MemoryStore struct {
	lru *expirable.LRU[string, *Entry]
}

// NewMemoryStore creates an in-memory store holding at most size entries.
func NewMemoryStore(size int) *MemoryStore {
	if size <= 0 {
		size = 1024
	}
	return &MemoryStore{
		lru: expirable.NewLRU[string, *Entry](size, nil, DefaultMemoryTTL),
	}
}

// Get retrieves a cache entry by key.
func (s *MemoryStore) Get(_ context.Context, key Key) (*Entry, error) {
	k := key.String()

	entry, ok := s.lru.Get(k)
	if !ok {
		CacheMisses.WithLabelValues(layerMemory).Inc()
		return nil, ErrCacheMiss
	}

	if entry.IsExpired() {
		s.lru.Remove(k)
		CacheMisses.WithLabelValues(layerMemory).Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues(layerMemory).Inc()
	copied := *entry
	return &copied, nil
}

// Set stores a cache entry. Already expired entries are not stored.
func (s *MemoryStore) Set(_ context.Context, key Key, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}
	if entry.TTL() <= 0 {
		return nil
	}

	copied := *entry
	s.lru.Add(key.String(), &copied)
	return nil
}

// Delete removes a cache entry.
func (s *MemoryStore) Delete(_ context.Context, key Key) error {
	s.lru.Remove(key.String())
	return nil
}

// Len returns the number of entries currently held, expired ones included.
func (s *MemoryStore) Len() int {
	return s.lru.Len()
}
