package source

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Sternrassler/feedagg/pkg/cache"
	"github.com/Sternrassler/feedagg/pkg/feed"
	"github.com/Sternrassler/feedagg/pkg/logging"
	"github.com/rs/zerolog"
)

// ResourceOwner is the cache resource name for owner profiles.
const ResourceOwner = "owner"

// ownerCachingSource serves FetchOwner from a cache store and delegates
// everything else. Pages and media are never cached.
type ownerCachingSource struct {
	Source
	store  cache.Store
	ttl    time.Duration
	logger zerolog.Logger
}

// WithOwnerCache wraps src so that owner profiles are looked up in store
// before reaching the upstream. Successful lookups are kept for ttl;
// failures, NotFound included, are never cached. Store errors are logged
// and fall through to the upstream.
func WithOwnerCache(src Source, store cache.Store, ttl time.Duration) Source {
	if store == nil || ttl <= 0 {
		return src
	}
	return &ownerCachingSource{
		Source: src,
		store:  store,
		ttl:    ttl,
		logger: logging.NewLogger(logging.ComponentCache),
	}
}

// FetchOwner implements Source.
func (s *ownerCachingSource) FetchOwner(ctx context.Context, ownerID int) (feed.Owner, error) {
	key := cache.Key{Resource: ResourceOwner, ID: ownerID}

	entry, err := s.store.Get(ctx, key)
	switch {
	case err == nil:
		var owner feed.Owner
		jsonErr := json.Unmarshal(entry.Data, &owner)
		if jsonErr == nil {
			return owner, nil
		}
		s.logger.Warn().Err(jsonErr).Int("owner_id", ownerID).Msg("Dropping undecodable cached owner")
		_ = s.store.Delete(ctx, key)
	case !errors.Is(err, cache.ErrCacheMiss):
		s.logger.Warn().Err(err).Int("owner_id", ownerID).Msg("Owner cache get error")
	}

	owner, err := s.Source.FetchOwner(ctx, ownerID)
	if err != nil {
		return feed.Owner{}, err
	}

	data, err := json.Marshal(owner)
	if err != nil {
		return owner, nil
	}
	if err := s.store.Set(ctx, key, cache.NewEntry(data, s.ttl)); err != nil {
		s.logger.Warn().Err(err).Int("owner_id", ownerID).Msg("Failed to cache owner")
	}

	return owner, nil
}
