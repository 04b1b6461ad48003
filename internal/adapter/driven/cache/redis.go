package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ericfisherdev/giteemirror/internal/domain/model"
	"github.com/ericfisherdev/giteemirror/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.RepoCache = (*RedisCache)(nil)

// RedisCache stores listings as JSON under user:{id}:github_repos. Redis
// expiry is only a retention bound and should be well above the listing TTL,
// so a stale listing stays available when GitHub is unreachable.
type RedisCache struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
}

// NewRedisCache creates a RedisCache. retention <= 0 keeps keys forever.
func NewRedisCache(client *redis.Client, retention time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: "giteemirror:", retention: retention}
}

// NewRedisCacheFromURL parses a redis:// URL, connects and pings the server.
func NewRedisCacheFromURL(ctx context.Context, rawURL string, retention time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return NewRedisCache(client, retention), nil
}

func (c *RedisCache) key(userID int64) string {
	return fmt.Sprintf("%suser:%d:github_repos", c.prefix, userID)
}

// Get returns the user's listing, or false when the key is absent.
func (c *RedisCache) Get(ctx context.Context, userID int64) (model.RepoListing, bool, error) {
	b, err := c.client.Get(ctx, c.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.RepoListing{}, false, nil
	}
	if err != nil {
		return model.RepoListing{}, false, fmt.Errorf("reading cached listing for user %d: %w", userID, err)
	}

	var listing model.RepoListing
	if err := json.Unmarshal(b, &listing); err != nil {
		return model.RepoListing{}, false, fmt.Errorf("decoding cached listing for user %d: %w", userID, err)
	}
	return listing, true, nil
}

// Put replaces the user's listing with a single SET.
func (c *RedisCache) Put(ctx context.Context, listing model.RepoListing) error {
	b, err := json.Marshal(listing)
	if err != nil {
		return fmt.Errorf("encoding listing for user %d: %w", listing.UserID, err)
	}

	retention := c.retention
	if retention < 0 {
		retention = 0
	}
	if err := c.client.Set(ctx, c.key(listing.UserID), b, retention).Err(); err != nil {
		return fmt.Errorf("caching listing for user %d: %w", listing.UserID, err)
	}
	return nil
}

// Invalidate deletes the user's listing.
func (c *RedisCache) Invalidate(ctx context.Context, userID int64) error {
	if err := c.client.Del(ctx, c.key(userID)).Err(); err != nil {
		return fmt.Errorf("invalidating listing for user %d: %w", userID, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
