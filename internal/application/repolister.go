package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ericfisherdev/giteemirror/internal/domain/model"
	"github.com/ericfisherdev/giteemirror/internal/domain/port/driven"
)

// Defaults for RepoLister.
const (
	DefaultRepoCacheTTL   = 5 * time.Minute
	DefaultListingTimeout = 30 * time.Second
)

// RepoLister returns the repositories of a user's linked GitHub account,
// served from cache while the entry is fresh. When GitHub cannot be reached
// the last good listing is returned even if stale.
type RepoLister struct {
	creds   driven.CredentialStore
	hosts   *HostRegistry
	cache   driven.RepoCache
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time

	// refreshes collapses concurrent fetches for one user into a single call.
	refreshes singleflight.Group
}

// NewRepoLister creates a RepoLister. Non-positive ttl or timeout fall back
// to the package defaults.
func NewRepoLister(
	creds driven.CredentialStore,
	hosts *HostRegistry,
	cache driven.RepoCache,
	ttl time.Duration,
	timeout time.Duration,
) *RepoLister {
	if ttl <= 0 {
		ttl = DefaultRepoCacheTTL
	}
	if timeout <= 0 {
		timeout = DefaultListingTimeout
	}
	return &RepoLister{
		creds:   creds,
		hosts:   hosts,
		cache:   cache,
		ttl:     ttl,
		timeout: timeout,
		now:     time.Now,
	}
}

// List returns the user's GitHub repositories. forceRefresh skips a fresh
// cache entry but still falls back to it if the remote fetch fails.
func (l *RepoLister) List(ctx context.Context, userID int64, forceRefresh bool) ([]model.RepoSummary, error) {
	cached, ok := l.cached(ctx, userID)
	if ok && !forceRefresh && cached.IsFresh(l.now(), l.ttl) {
		return cached.Repos, nil
	}

	v, err, _ := l.refreshes.Do(strconv.FormatInt(userID, 10), func() (any, error) {
		return l.refresh(ctx, userID, forceRefresh)
	})
	if err != nil {
		if ok && !errors.Is(err, driven.ErrNotFound) {
			slog.Warn("serving stale repository listing",
				"user_id", userID,
				"fetched_at", cached.FetchedAt,
				"error", err,
			)
			return cached.Repos, nil
		}
		return nil, err
	}
	return v.([]model.RepoSummary), nil
}

// refresh fetches and caches the listing. It runs once per user at a time,
// with its result shared by every caller that joined while it ran, so it is
// detached from any one caller's cancellation.
func (l *RepoLister) refresh(ctx context.Context, userID int64, forceRefresh bool) ([]model.RepoSummary, error) {
	ctx = context.WithoutCancel(ctx)

	// Another caller may have refreshed since our first cache read.
	if !forceRefresh {
		if again, ok := l.cached(ctx, userID); ok && again.IsFresh(l.now(), l.ttl) {
			return again.Repos, nil
		}
	}

	repos, err := l.fetch(ctx, userID)
	if err != nil {
		return nil, err
	}

	listing := model.RepoListing{UserID: userID, FetchedAt: l.now().UTC(), Repos: repos}
	if err := l.cache.Put(ctx, listing); err != nil {
		slog.Warn("failed to cache repository listing", "user_id", userID, "error", err)
	}

	return repos, nil
}

func (l *RepoLister) fetch(ctx context.Context, userID int64) ([]model.RepoSummary, error) {
	cred, err := l.creds.Get(ctx, userID, model.PlatformGitHub)
	if err != nil {
		return nil, fmt.Errorf("loading github credential for user %d: %w", userID, err)
	}

	host, err := l.hosts.github()
	if err != nil {
		return nil, err
	}

	fetchCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	start := l.now()
	repos, err := host.ListRepos(fetchCtx, cred.AccessToken)
	if err != nil {
		if errors.Is(fetchCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, driven.ErrTimeout) {
			err = fmt.Errorf("%w: %w", driven.ErrTimeout, err)
		}
		return nil, fmt.Errorf("listing github repositories for user %d: %w", userID, err)
	}

	slog.Debug("repository listing refreshed",
		"user_id", userID,
		"repos", len(repos),
		"duration", l.now().Sub(start).Round(time.Millisecond),
	)
	return repos, nil
}

// cached reads the cache, treating a backend error as a miss.
func (l *RepoLister) cached(ctx context.Context, userID int64) (model.RepoListing, bool) {
	listing, ok, err := l.cache.Get(ctx, userID)
	if err != nil {
		slog.Warn("repository cache read failed", "user_id", userID, "error", err)
		return model.RepoListing{}, false
	}
	return listing, ok
}
