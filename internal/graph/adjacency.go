package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lightfast/retrieval-router/internal/cache"
	"github.com/lightfast/retrieval-router/internal/logger"
	"github.com/lightfast/retrieval-router/pkg/types"
)

// adjacencyVersion is bumped when the serialized edge-list shape changes,
// which retires every previously written adjacency key at once.
const adjacencyVersion = 1

// CachedAdjacency layers the cache in front of a durable adjacency source.
// Cache failures in either direction fall through to the source; the cache
// only ever changes latency, never the edge set.
type CachedAdjacency struct {
	source Adjacency
	cache  cache.Client
	ttl    time.Duration
}

// NewCachedAdjacency wraps source with read-through caching.
func NewCachedAdjacency(source Adjacency, client cache.Client, ttl time.Duration) *CachedAdjacency {
	return &CachedAdjacency{source: source, cache: client, ttl: ttl}
}

// EdgesFrom returns outbound edges, cached per node.
func (c *CachedAdjacency) EdgesFrom(ctx context.Context, workspaceID string, ref types.Ref) ([]*types.Relationship, error) {
	return c.edges(ctx, workspaceID, ref, "out", c.source.EdgesFrom)
}

// EdgesTo returns inbound edges, cached per node.
func (c *CachedAdjacency) EdgesTo(ctx context.Context, workspaceID string, ref types.Ref) ([]*types.Relationship, error) {
	return c.edges(ctx, workspaceID, ref, "in", c.source.EdgesTo)
}

func (c *CachedAdjacency) edges(ctx context.Context, workspaceID string, ref types.Ref, direction string, load func(context.Context, string, types.Ref) ([]*types.Relationship, error)) ([]*types.Relationship, error) {
	key := cache.Key{
		WorkspaceID: workspaceID,
		Kind:        cache.KindAdjacency,
		ID:          fmt.Sprintf("%s:%s:%s", direction, ref.Kind, ref.ID),
		Version:     adjacencyVersion,
	}

	if raw, ok, err := c.cache.Get(ctx, key); err == nil && ok {
		var edges []*types.Relationship
		if err := json.Unmarshal(raw, &edges); err == nil {
			return edges, nil
		}
		// Corrupt entry: reload from source and overwrite below.
	} else if err != nil {
		logger.Warn("graph: adjacency cache read failed for %s: %v", key, err)
	}

	edges, err := load(ctx, workspaceID, ref)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(edges); err == nil {
		if err := c.cache.Set(ctx, key, raw, c.ttl); err != nil {
			logger.Warn("graph: adjacency cache write failed for %s: %v", key, err)
		}
	}
	return edges, nil
}
