// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package postgres

import (
	"context"
	"encoding/json"
	"slices"
	"time"

	"github.com/MadsRC/sixlab"
	"github.com/MadsRC/sixlab/internal/cache"
)

// CachedOptionRepository wraps a ConfigStore with caching
type CachedOptionRepository struct {
	underlying sixlab.ConfigStore
	cache      *cache.Cache[string, json.RawMessage]
	cacheTTL   time.Duration
}

var _ sixlab.ConfigStore = (*CachedOptionRepository)(nil)

// NewCachedOptionRepository creates a new cached option repository
func NewCachedOptionRepository(underlying sixlab.ConfigStore, cacheTTL time.Duration) *CachedOptionRepository {
	return &CachedOptionRepository{
		underlying: underlying,
		cache:      cache.New[string, json.RawMessage](cacheTTL),
		cacheTTL:   cacheTTL,
	}
}

// GetOption retrieves an option with caching. Missing options are not cached.
func (r *CachedOptionRepository) GetOption(ctx context.Context, key string) (json.RawMessage, error) {
	if cached, found := r.cache.Get(key); found {
		return slices.Clone(cached), nil
	}

	value, err := r.underlying.GetOption(ctx, key)
	if err != nil {
		return nil, err
	}

	r.cache.Set(key, slices.Clone(value))
	return value, nil
}

// SetOption stores an option and invalidates its cache entry
func (r *CachedOptionRepository) SetOption(ctx context.Context, key string, value json.RawMessage) error {
	if err := r.underlying.SetOption(ctx, key, value); err != nil {
		return err
	}
	r.cache.Delete(key)
	return nil
}

// GetCacheStats returns cache statistics for monitoring
func (r *CachedOptionRepository) GetCacheStats() map[string]any {
	return map[string]any{
		"option_cache_size":        r.cache.Size(),
		"option_cache_ttl_seconds": r.cacheTTL.Seconds(),
	}
}

// Close stops the cache cleanup goroutine
func (r *CachedOptionRepository) Close() {
	r.cache.Close()
}
