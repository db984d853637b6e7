package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// listPrefixes are the key families the list endpoints populate; a
// successful pipeline run clears them so readers see fresh data.
var listPrefixes = []string{"products:", "promotions:", "pricechanges:"}

// ResponseCache keeps rendered JSON payloads in Redis so repeated list
// queries skip the database. A nil cache is valid and never hits.
type ResponseCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewResponseCache(rdb *redis.Client, ttl time.Duration) *ResponseCache {
	return &ResponseCache{rdb: rdb, ttl: ttl}
}

func (c *ResponseCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	payload, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
		}
		return nil, false
	}
	return payload, true
}

func (c *ResponseCache) Set(ctx context.Context, key string, payload []byte) {
	if c == nil {
		return
	}
	if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}

// InvalidateLists drops every cached list page.
func (c *ResponseCache) InvalidateLists(ctx context.Context) error {
	if c == nil {
		return nil
	}
	for _, prefix := range listPrefixes {
		var cursor uint64
		for {
			keys, next, err := c.rdb.Scan(ctx, cursor, prefix+"*", 100).Result()
			if err != nil {
				return fmt.Errorf("scanning cache keys %s*: %w", prefix, err)
			}
			if len(keys) > 0 {
				if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
					return fmt.Errorf("dropping %d cache keys: %w", len(keys), err)
				}
			}
			if cursor = next; cursor == 0 {
				break
			}
		}
	}
	return nil
}
