// Package cache provides short-lived storage for dependent lookups of the
// feed pipeline, currently owner profiles.
//
// Two stores implement Store:
//
//   - MemoryStore: per-process expirable LRU, the default.
//   - RedisStore: shared across instances of the aggregation server.
//
// Pages of base records are never cached; every page request reaches the
// upstream.
//
// # Basic Usage
//
//	store := cache.NewMemoryStore(1024)
//
//	key := cache.Key{Resource: "owner", ID: 10}
//	entry, err := store.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from upstream, then
//		_ = store.Set(ctx, key, cache.NewEntry(data, 5*time.Minute))
//	}
//
// # Metrics
//
//   - feed_cache_hits_total{layer} - Cache hits by store ("memory", "redis")
//   - feed_cache_misses_total{layer} - Cache misses by store
//   - feed_cache_errors_total{operation} - Store operation errors
package cache
