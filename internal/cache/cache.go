// Package cache provides the versioned, TTL-based cache client used by
// hydration and the graph adjacency source. The cache is never a source of
// truth: a miss must be transparent to the caller, and disabling the cache
// entirely must not change result correctness, only latency.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Kind names the entity kind segment of a cache key.
type Kind string

const (
	KindDocument  Kind = "doc"
	KindChunk     Kind = "chunk"
	KindAdjacency Kind = "adj"
)

// Key is a versioned cache key. Writes are last-write-wins by version key,
// which makes best-effort repopulation idempotent: a stale writer lands on
// a different key than current readers.
type Key struct {
	WorkspaceID string
	Kind        Kind
	ID          string
	Version     int
}

// String renders the key in its canonical wire form.
func (k Key) String() string {
	return fmt.Sprintf("rr:%s:%s:%s:v%d", k.WorkspaceID, k.Kind, k.ID, k.Version)
}

// Client is the cache contract shared by all implementations. Get returns
// (nil, false, nil) on a miss; errors are reserved for backend failures,
// which callers treat the same as misses.
type Client interface {
	Get(ctx context.Context, key Key) ([]byte, bool, error)
	MGet(ctx context.Context, keys []Key) (map[Key][]byte, error)
	Set(ctx context.Context, key Key, value []byte, ttl time.Duration) error
	Close() error
}
