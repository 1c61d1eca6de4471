package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient implements Client over a Redis backend.
type RedisClient struct {
	rdb *redis.Client
}

// NewRedisClient connects to Redis and verifies the connection with a
// short ping. A failed ping is returned to the caller, which decides
// whether to fall back to an in-memory cache.
func NewRedisClient(addr, password string, db int) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("cache: ping redis %s: %w", addr, err)
	}

	return &RedisClient{rdb: rdb}, nil
}

// Get retrieves a single value. A redis.Nil reply is a plain miss.
func (c *RedisClient) Get(ctx context.Context, key Key) ([]byte, bool, error) {
	val, err := c.rdb.Get(ctx, key.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: get %s: %w", key, err)
	}
	return val, true, nil
}

// MGet retrieves many keys in one round-trip. Missing keys are simply
// absent from the returned map.
func (c *RedisClient) MGet(ctx context.Context, keys []Key) (map[Key][]byte, error) {
	if len(keys) == 0 {
		return map[Key][]byte{}, nil
	}

	raw := make([]string, len(keys))
	for i, k := range keys {
		raw[i] = k.String()
	}

	vals, err := c.rdb.MGet(ctx, raw...).Result()
	if err != nil {
		return nil, fmt.Errorf("cache: mget %d keys: %w", len(keys), err)
	}

	out := make(map[Key][]byte, len(keys))
	for i, v := range vals {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok {
			out[keys[i]] = []byte(s)
		}
	}
	return out, nil
}

// Set stores a value with a TTL. Last write wins; version keys make that
// safe for concurrent repopulation.
func (c *RedisClient) Set(ctx context.Context, key Key, value []byte, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, key.String(), value, ttl).Err(); err != nil {
		return fmt.Errorf("cache: set %s: %w", key, err)
	}
	return nil
}

// Close releases the Redis connection.
func (c *RedisClient) Close() error {
	return c.rdb.Close()
}
