package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/constituency-streets/internal/errors"
	"github.com/constituency-streets/internal/models"
	"github.com/constituency-streets/internal/types"
	"github.com/redis/go-redis/v9"
)

// LookupCache caches parsed lookup responses per postcode, so re-runs within
// the TTL spend no provider quota. A miss returns (nil, false, nil).
type LookupCache struct {
	redis *RedisCache
	ttl   time.Duration
}

// NewLookupCache creates a lookup cache with the given TTL
func NewLookupCache(redis *RedisCache, ttl time.Duration) *LookupCache {
	return &LookupCache{redis: redis, ttl: ttl}
}

func lookupKey(postcode types.Postcode, full bool) string {
	mode := "top"
	if full {
		mode = "all"
	}
	return fmt.Sprintf("lookup:%s:%s", postcode.Normalize(), mode)
}

// Get returns the cached addresses for a postcode, if present
func (c *LookupCache) Get(ctx context.Context, postcode types.Postcode, full bool) ([]*models.Address, bool, error) {
	raw, err := c.redis.Client().Get(ctx, lookupKey(postcode, full)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, apperrors.NewCacheError("read lookup entry", err)
	}

	var addresses []*models.Address
	if err := json.Unmarshal([]byte(raw), &addresses); err != nil {
		// A corrupt entry is treated as a miss and dropped.
		_ = c.redis.Client().Del(ctx, lookupKey(postcode, full)).Err()
		return nil, false, nil
	}
	return addresses, true, nil
}

// Set stores the addresses for a postcode
func (c *LookupCache) Set(ctx context.Context, postcode types.Postcode, full bool, addresses []*models.Address) error {
	raw, err := json.Marshal(addresses)
	if err != nil {
		return fmt.Errorf("failed to encode lookup cache entry: %w", err)
	}
	if err := c.redis.Client().Set(ctx, lookupKey(postcode, full), raw, c.ttl).Err(); err != nil {
		return apperrors.NewCacheError("write lookup entry", err)
	}
	return nil
}
