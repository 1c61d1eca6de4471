package cache

import (
	"context"
	"time"
)

// NoopClient always misses. It exists to verify cache transparency: the
// router must produce identical rankings with the cache disabled.
type NoopClient struct{}

// NewNoopClient returns a cache client that stores nothing.
func NewNoopClient() *NoopClient { return &NoopClient{} }

func (NoopClient) Get(context.Context, Key) ([]byte, bool, error) { return nil, false, nil }

func (NoopClient) MGet(_ context.Context, _ []Key) (map[Key][]byte, error) {
	return map[Key][]byte{}, nil
}

func (NoopClient) Set(context.Context, Key, []byte, time.Duration) error { return nil }

func (NoopClient) Close() error { return nil }
