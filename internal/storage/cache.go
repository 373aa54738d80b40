package storage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pixelnest/gallery/internal/metrics"
)

const signedKeyPrefix = "signed:"

// minCacheMargin is the smallest slice of validity a cached URL gives up.
const minCacheMargin = time.Minute

// CachedStorage wraps a Storage and keeps signed URLs in Redis until shortly
// before they expire. Every other call passes through unchanged.
type CachedStorage struct {
	Storage
	client redis.Cmdable
	logger *slog.Logger
}

// NewCachedStorage decorates next with a Redis-backed signed URL cache.
func NewCachedStorage(next Storage, client redis.Cmdable, logger *slog.Logger) *CachedStorage {
	return &CachedStorage{Storage: next, client: client, logger: logger}
}

// SignedURL returns a cached URL when one is still comfortably valid,
// otherwise signs a fresh one and caches it for ttl minus a margin.
func (c *CachedStorage) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	cacheKey := signedKeyPrefix + key

	cached, err := c.client.Get(ctx, cacheKey).Result()
	switch {
	case err == nil && cached != "":
		metrics.SignedURLCacheTotal.WithLabelValues("hit").Inc()
		return cached, nil
	case err != nil && !errors.Is(err, redis.Nil):
		c.logger.Warn("signed url cache read failed", "key", key, "error", err)
	}
	metrics.SignedURLCacheTotal.WithLabelValues("miss").Inc()

	signed, err := c.Storage.SignedURL(ctx, key, ttl)
	if err != nil {
		return "", err
	}

	if keep := CacheLifetime(ttl); keep > 0 {
		if err := c.client.Set(ctx, cacheKey, signed, keep).Err(); err != nil {
			c.logger.Warn("signed url cache write failed", "key", key, "error", err)
		}
	}
	return signed, nil
}

// Remove deletes the objects and drops their cached URLs, even when removal fails.
func (c *CachedStorage) Remove(ctx context.Context, keys ...string) error {
	err := c.Storage.Remove(ctx, keys...)

	cacheKeys := make([]string, len(keys))
	for i, k := range keys {
		cacheKeys[i] = signedKeyPrefix + k
	}
	if len(cacheKeys) > 0 {
		if delErr := c.client.Del(ctx, cacheKeys...).Err(); delErr != nil {
			c.logger.Warn("signed url cache invalidation failed", "error", delErr)
		}
	}
	return err
}

// CacheLifetime is how long a URL signed for ttl may be served from cache:
// ttl minus 10% of ttl, the margin never below one minute. Zero means do not cache.
func CacheLifetime(ttl time.Duration) time.Duration {
	margin := ttl / 10
	if margin < minCacheMargin {
		margin = minCacheMargin
	}
	if ttl <= margin {
		return 0
	}
	return ttl - margin
}
