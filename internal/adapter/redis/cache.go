// Package redis shares result snapshots between service replicas.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

type client interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
	Ping(ctx context.Context) *goredis.StatusCmd
	Close() error
}

// SnapshotCache stores encoded snapshots under their key with a TTL.
// It implements pipeline.SnapshotCache.
type SnapshotCache struct {
	rdb client
}

// NewSnapshotCache connects to the Redis server at addr.
func NewSnapshotCache(addr string) *SnapshotCache {
	return &SnapshotCache{rdb: goredis.NewClient(&goredis.Options{Addr: addr})}
}

// Get returns the cached bytes and whether the key exists.
func (c *SnapshotCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, true, nil
}

// Set stores data under key, expiring after ttl.
func (c *SnapshotCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// CheckReadiness pings the server.
func (c *SnapshotCache) CheckReadiness(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *SnapshotCache) Close() error {
	return c.rdb.Close()
}
