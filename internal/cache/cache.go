// Package cache keeps Hireloop's short-lived shared state in Redis: auth
// contexts, entitlements, payment event claims and rate limit buckets.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyspace prefixes every key so the instance can be shared.
const keyspace = "hl"

// Cache wraps a Redis client with Hireloop's key layout.
type Cache struct {
	client *redis.Client
}

// New connects to redisURL. Pool settings given as URL query parameters
// (pool_size, min_idle_conns, ...) win over the defaults here.
func New(ctx context.Context, redisURL string) (*Cache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if opt.PoolSize == 0 {
		opt.PoolSize = 10
	}
	if opt.MinIdleConns == 0 {
		opt.MinIdleConns = 2
	}
	if opt.ConnMaxIdleTime == 0 {
		opt.ConnMaxIdleTime = 5 * time.Minute
	}
	opt.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Cache{client: client}, nil
}

func (c *Cache) Ping(ctx context.Context) error { return c.client.Ping(ctx).Err() }

func (c *Cache) Close() error { return c.client.Close() }

// Client exposes the raw client to the careers view stream, which needs
// stream commands rather than cache semantics.
func (c *Cache) Client() *redis.Client { return c.client }

// key joins parts under the keyspace: key("auth", "ctx", k) = "hl:auth:ctx:k".
func key(parts ...string) string {
	return keyspace + ":" + strings.Join(parts, ":")
}

// getJSON loads k into dst. A missing or undecodable entry is a miss, not
// an error; callers fall back to the database either way.
func (c *Cache) getJSON(ctx context.Context, k string, dst any) (bool, error) {
	data, err := c.client.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if json.Unmarshal(data, dst) != nil {
		return false, nil
	}
	return true, nil
}
