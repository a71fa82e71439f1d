package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sapphirelabs/sapphire-exchange/internal/domain"
)

// EntityCache implements domain.EntityCache on plain Redis string keys with
// per-key TTLs. The cached store decorators own the key schema; this layer
// only namespaces everything under "sx:" to keep the keyspace shareable.
type EntityCache struct {
	rdb *redis.Client
}

// NewEntityCache creates an EntityCache backed by the given Client.
func NewEntityCache(c *Client) *EntityCache {
	return &EntityCache{rdb: c.Underlying()}
}

func entityKey(key string) string { return "sx:" + key }

// Set stores value under key for ttl. A non-positive ttl falls back to the
// default entity TTL.
func (ec *EntityCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = domain.DefaultCacheTTL
	}
	if err := ec.rdb.Set(ctx, entityKey(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	return nil
}

// Get returns the cached value or domain.ErrNotFound on a miss.
func (ec *EntityCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := ec.rdb.Get(ctx, entityKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get %s: %w", key, err)
	}
	return data, nil
}

// Delete removes the given keys. Missing keys are not an error.
func (ec *EntityCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	namespaced := make([]string, len(keys))
	for i, k := range keys {
		namespaced[i] = entityKey(k)
	}
	if err := ec.rdb.Del(ctx, namespaced...).Err(); err != nil {
		return fmt.Errorf("redis: delete: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.EntityCache = (*EntityCache)(nil)
