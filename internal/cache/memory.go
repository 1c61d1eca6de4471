package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// memoryEntry pairs a value with its expiry.
type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryClient implements Client with an in-process LRU. It is the
// fallback when no Redis address is configured, and the standard fake in
// tests. LRU eviction bounds memory; TTL expiry is checked on read.
type MemoryClient struct {
	entries *lru.Cache[string, memoryEntry]
}

// NewMemoryClient creates an in-memory cache holding at most maxEntries.
func NewMemoryClient(maxEntries int) (*MemoryClient, error) {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	entries, err := lru.New[string, memoryEntry](maxEntries)
	if err != nil {
		return nil, err
	}
	return &MemoryClient{entries: entries}, nil
}

// Get retrieves a value, treating expired entries as misses.
func (c *MemoryClient) Get(_ context.Context, key Key) ([]byte, bool, error) {
	entry, ok := c.entries.Get(key.String())
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		c.entries.Remove(key.String())
		return nil, false, nil
	}
	// Copy so callers cannot mutate the cached bytes.
	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, true, nil
}

// MGet performs per-key lookups; in-process access makes batching moot.
func (c *MemoryClient) MGet(ctx context.Context, keys []Key) (map[Key][]byte, error) {
	out := make(map[Key][]byte, len(keys))
	for _, k := range keys {
		if v, ok, _ := c.Get(ctx, k); ok {
			out[k] = v
		}
	}
	return out, nil
}

// Set stores a value with a TTL.
func (c *MemoryClient) Set(_ context.Context, key Key, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	c.entries.Add(key.String(), memoryEntry{
		value:     stored,
		expiresAt: time.Now().Add(ttl),
	})
	return nil
}

// Close is a no-op for the in-memory client.
func (c *MemoryClient) Close() error {
	c.entries.Purge()
	return nil
}
