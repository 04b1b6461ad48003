// Package cache provides RepoCache backends: an in-process map and Redis.
package cache

import (
	"context"
	"slices"
	"sync"

	"github.com/ericfisherdev/giteemirror/internal/domain/model"
	"github.com/ericfisherdev/giteemirror/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.RepoCache = (*MemoryCache)(nil)

// MemoryCache keeps listings in a map guarded by a RWMutex. Entries never
// expire on their own; the lister decides freshness.
type MemoryCache struct {
	mu       sync.RWMutex
	listings map[int64]model.RepoListing
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{listings: map[int64]model.RepoListing{}}
}

// Get returns a copy of the user's listing so callers cannot mutate the cached slice.
func (c *MemoryCache) Get(_ context.Context, userID int64) (model.RepoListing, bool, error) {
	c.mu.RLock()
	listing, ok := c.listings[userID]
	c.mu.RUnlock()

	if !ok {
		return model.RepoListing{}, false, nil
	}
	listing.Repos = slices.Clone(listing.Repos)
	return listing, true, nil
}

// Put replaces the user's listing. The lock is held only for the assignment.
func (c *MemoryCache) Put(_ context.Context, listing model.RepoListing) error {
	listing.Repos = slices.Clone(listing.Repos)

	c.mu.Lock()
	c.listings[listing.UserID] = listing
	c.mu.Unlock()
	return nil
}

// Invalidate drops the user's listing.
func (c *MemoryCache) Invalidate(_ context.Context, userID int64) error {
	c.mu.Lock()
	delete(c.listings, userID)
	c.mu.Unlock()
	return nil
}
