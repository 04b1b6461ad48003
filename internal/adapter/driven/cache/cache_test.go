package cache_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/giteemirror/internal/adapter/driven/cache"
	"github.com/ericfisherdev/giteemirror/internal/domain/model"
	"github.com/ericfisherdev/giteemirror/internal/domain/port/driven"
)

func sampleListing(userID int64) model.RepoListing {
	return model.RepoListing{
		UserID:    userID,
		FetchedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Repos: []model.RepoSummary{
			{Name: "hello", FullName: "octo/hello", HTMLURL: "https://github.com/octo/hello", CloneURL: "https://github.com/octo/hello.git"},
			{Name: "secret", FullName: "octo/secret", Private: true},
		},
	}
}

// exerciseCache runs the behavior every RepoCache backend must share.
func exerciseCache(t *testing.T, c driven.RepoCache) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := c.Get(ctx, 41)
	require.NoError(t, err)
	assert.False(t, ok)

	listing := sampleListing(41)
	require.NoError(t, c.Put(ctx, listing))

	got, ok, err := c.Get(ctx, 41)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, listing.Repos, got.Repos)
	assert.True(t, listing.FetchedAt.Equal(got.FetchedAt))

	replacement := sampleListing(41)
	replacement.Repos = replacement.Repos[:1]
	require.NoError(t, c.Put(ctx, replacement))

	got, ok, err = c.Get(ctx, 41)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, got.Repos, 1)

	require.NoError(t, c.Invalidate(ctx, 41))
	_, ok, err = c.Get(ctx, 41)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCache(t *testing.T) {
	exerciseCache(t, cache.NewMemoryCache())
}

func TestMemoryCache_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemoryCache()
	require.NoError(t, c.Put(ctx, sampleListing(1)))

	got, _, err := c.Get(ctx, 1)
	require.NoError(t, err)
	got.Repos[0].Name = "mutated"

	again, _, err := c.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "hello", again.Repos[0].Name)
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("GITEEMIRROR_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("GITEEMIRROR_TEST_REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())

	exerciseCache(t, cache.NewRedisCache(client, time.Hour))
}

func TestNewRedisCacheFromURL_InvalidURL(t *testing.T) {
	_, err := cache.NewRedisCacheFromURL(context.Background(), "not a url", time.Hour)
	assert.Error(t, err)
}
