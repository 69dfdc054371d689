package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marcel-gle/gb-qr-tracker/internal/model"
)

// Cache key prefixes and TTLs.
const (
	linkKeyPrefix     = "link:"
	negCacheKeySuffix = ":neg"

	// DefaultLinkTTL is the TTL for cached link snapshots. It is short
	// because deactivation is not pushed to the cache.
	DefaultLinkTTL = 60 * time.Second

	// NegativeCacheTTL is the TTL for negative cache entries.
	NegativeCacheTTL = 30 * time.Second
)

// Common cache errors.
var (
	ErrCacheMiss = errors.New("cache miss")
)

func linkKey(id string) string { return linkKeyPrefix + id }

// LinkCachingEnabled reports whether link snapshots are cached at all.
func (c *Cache) LinkCachingEnabled() bool {
	return c.linkTTL > 0
}

// GetLink retrieves a link snapshot by identifier.
// Returns ErrCacheMiss if not found.
func (c *Cache) GetLink(ctx context.Context, id string) (*model.CachedLink, error) {
	if !c.LinkCachingEnabled() {
		return nil, ErrCacheMiss
	}

	cmd := c.client.HGetAll(ctx, linkKey(id))
	result, err := cmd.Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}
	if len(result) == 0 {
		return nil, ErrCacheMiss
	}

	var cached model.CachedLink
	if err := cmd.Scan(&cached); err != nil {
		return nil, fmt.Errorf("decode cached link: %w", err)
	}
	return &cached, nil
}

// SetLink stores a link snapshot and clears any negative entry.
func (c *Cache) SetLink(ctx context.Context, link *model.Link) error {
	if !c.LinkCachingEnabled() {
		return nil
	}
	key := linkKey(link.ID)

	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key, link.ToCachedLink())
	pipe.Expire(ctx, key, c.linkTTL)
	pipe.Del(ctx, key+negCacheKeySuffix)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache link: %w", err)
	}
	return nil
}

// DeleteLink removes a link and its negative entry from cache.
func (c *Cache) DeleteLink(ctx context.Context, id string) error {
	key := linkKey(id)
	if err := c.client.Del(ctx, key, key+negCacheKeySuffix).Err(); err != nil {
		return fmt.Errorf("failed to delete link from cache: %w", err)
	}
	return nil
}

// IsNegativelyCached checks if an identifier is in negative cache.
func (c *Cache) IsNegativelyCached(ctx context.Context, id string) (bool, error) {
	if !c.LinkCachingEnabled() {
		return false, nil
	}
	exists, err := c.client.Exists(ctx, linkKey(id)+negCacheKeySuffix).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check negative cache: %w", err)
	}
	return exists > 0, nil
}

// SetNegativeCache marks an identifier as not found.
func (c *Cache) SetNegativeCache(ctx context.Context, id string) error {
	if !c.LinkCachingEnabled() {
		return nil
	}
	if err := c.client.SetEx(ctx, linkKey(id)+negCacheKeySuffix, "", c.negTTL).Err(); err != nil {
		return fmt.Errorf("failed to set negative cache: %w", err)
	}
	return nil
}
