package driven

import (
	"context"

	"github.com/ericfisherdev/giteemirror/internal/domain/model"
)

// RepoCache stores the last successful repository listing per user.
// Freshness is judged by the caller from RepoListing.FetchedAt, so an
// implementation must keep stale entries available for fallback.
type RepoCache interface {
	// Get returns the cached listing and true, or false when none exists.
	Get(ctx context.Context, userID int64) (model.RepoListing, bool, error)

	// Put replaces the user's listing as a single unit.
	Put(ctx context.Context, listing model.RepoListing) error

	// Invalidate drops the user's listing.
	Invalidate(ctx context.Context, userID int64) error
}
