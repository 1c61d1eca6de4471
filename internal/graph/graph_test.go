package graph

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightfast/retrieval-router/internal/cache"
	"github.com/lightfast/retrieval-router/pkg/types"
)

// fakeAdjacency serves edges from an in-memory map and counts reads.
type fakeAdjacency struct {
	from  map[types.Ref][]*types.Relationship
	to    map[types.Ref][]*types.Relationship
	calls int
	fail  bool
}

func (f *fakeAdjacency) EdgesFrom(_ context.Context, _ string, ref types.Ref) ([]*types.Relationship, error) {
	f.calls++
	if f.fail {
		return nil, errors.New("adjacency down")
	}
	return f.from[ref], nil
}

func (f *fakeAdjacency) EdgesTo(_ context.Context, _ string, ref types.Ref) ([]*types.Relationship, error) {
	f.calls++
	if f.fail {
		return nil, errors.New("adjacency down")
	}
	return f.to[ref], nil
}

func entityRef(id string) types.Ref   { return types.Ref{Kind: types.RefEntity, ID: id} }
func documentRef(id string) types.Ref { return types.Ref{Kind: types.RefDocument, ID: id} }

func edge(from, to types.Ref, typ types.EdgeType, confidence float64) *types.Relationship {
	return &types.Relationship{
		ID:          from.ID + "->" + to.ID,
		WorkspaceID: "ws-test",
		From:        from,
		To:          to,
		Type:        typ,
		Confidence:  confidence,
		DetectedBy:  types.DetectedByRule,
	}
}

func TestTraverse_RequiresWorkspace(t *testing.T) {
	engine := New(&fakeAdjacency{})
	_, err := engine.Traverse(context.Background(), "", []types.Ref{entityRef("e1")}, Spec{MaxHops: 2})
	assert.ErrorIs(t, err, types.ErrWorkspaceRequired)
}

func TestTraverse_SingleHopBoost(t *testing.T) {
	adj := &fakeAdjacency{
		from: map[types.Ref][]*types.Relationship{
			entityRef("alice"): {edge(entityRef("alice"), documentRef("d1"), types.EdgeOwnedBy, 0.9)},
		},
	}
	engine := New(adj)

	res, err := engine.Traverse(context.Background(), "ws-test", []types.Ref{entityRef("alice")}, Spec{
		MaxHops: 2,
		Decay:   0.5,
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.5*0.9, res.Boosts["d1"], 1e-9)
	require.Len(t, res.Edges, 1)
	assert.Equal(t, 1, res.Edges[0].Hop)
}

func TestTraverse_HopLimit(t *testing.T) {
	// alice -> team -> d1 requires two hops; MaxHops 1 must not reach d1.
	adj := &fakeAdjacency{
		from: map[types.Ref][]*types.Relationship{
			entityRef("alice"): {edge(entityRef("alice"), entityRef("team"), types.EdgeMemberOf, 1.0)},
			entityRef("team"):  {edge(entityRef("team"), documentRef("d1"), types.EdgeOwnedBy, 1.0)},
		},
	}
	engine := New(adj)

	res, err := engine.Traverse(context.Background(), "ws-test", []types.Ref{entityRef("alice")}, Spec{MaxHops: 1, Decay: 0.5})
	require.NoError(t, err)
	assert.Empty(t, res.Boosts)

	res, err = engine.Traverse(context.Background(), "ws-test", []types.Ref{entityRef("alice")}, Spec{MaxHops: 2, Decay: 0.5})
	require.NoError(t, err)
	assert.InDelta(t, 0.25, res.Boosts["d1"], 1e-9)
}

func TestTraverse_AllowlistFiltersEdgeTypes(t *testing.T) {
	adj := &fakeAdjacency{
		from: map[types.Ref][]*types.Relationship{
			entityRef("alice"): {
				edge(entityRef("alice"), documentRef("d-owned"), types.EdgeOwnedBy, 1.0),
				edge(entityRef("alice"), documentRef("d-mentioned"), types.EdgeMentions, 1.0),
			},
		},
	}
	engine := New(adj)

	res, err := engine.Traverse(context.Background(), "ws-test", []types.Ref{entityRef("alice")}, Spec{
		MaxHops:   2,
		Decay:     0.5,
		Allowlist: AllowlistForIntent("ownership"),
	})
	require.NoError(t, err)
	assert.Contains(t, res.Boosts, "d-owned")
	assert.NotContains(t, res.Boosts, "d-mentioned")
}

func TestTraverse_CycleTerminates(t *testing.T) {
	a, b := entityRef("a"), entityRef("b")
	adj := &fakeAdjacency{
		from: map[types.Ref][]*types.Relationship{
			a: {edge(a, b, types.EdgeMemberOf, 1.0)},
			b: {edge(b, a, types.EdgeMemberOf, 1.0)},
		},
	}
	engine := New(adj)

	res, err := engine.Traverse(context.Background(), "ws-test", []types.Ref{a}, Spec{MaxHops: 10, Decay: 0.9})
	require.NoError(t, err)
	assert.Empty(t, res.Boosts)
	assert.Len(t, res.Entities, 1)
}

func TestTraverse_InboundEdgesAreFollowed(t *testing.T) {
	// d1 OWNED_BY alice points at alice; traversal from alice walks it
	// backwards to reach d1.
	adj := &fakeAdjacency{
		to: map[types.Ref][]*types.Relationship{
			entityRef("alice"): {edge(documentRef("d1"), entityRef("alice"), types.EdgeOwnedBy, 0.8)},
		},
	}
	engine := New(adj)

	res, err := engine.Traverse(context.Background(), "ws-test", []types.Ref{entityRef("alice")}, Spec{MaxHops: 1, Decay: 0.5})
	require.NoError(t, err)
	assert.InDelta(t, 0.4, res.Boosts["d1"], 1e-9)
}

func TestTraverse_ExpiredEdgeIsSkipped(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	expired := edge(entityRef("alice"), documentRef("d1"), types.EdgeOwnedBy, 1.0)
	expired.Until = &past

	adj := &fakeAdjacency{
		from: map[types.Ref][]*types.Relationship{entityRef("alice"): {expired}},
	}
	engine := New(adj)

	res, err := engine.Traverse(context.Background(), "ws-test", []types.Ref{entityRef("alice")}, Spec{MaxHops: 2, Decay: 0.5})
	require.NoError(t, err)
	assert.Empty(t, res.Boosts)
}

func TestTraverse_BoostIsClamped(t *testing.T) {
	adj := &fakeAdjacency{
		from: map[types.Ref][]*types.Relationship{
			entityRef("a"): {edge(entityRef("a"), documentRef("d1"), types.EdgeOwnedBy, 1.0)},
			entityRef("b"): {edge(entityRef("b"), documentRef("d1"), types.EdgeResolves, 1.0)},
		},
	}
	engine := New(adj)

	res, err := engine.Traverse(context.Background(), "ws-test",
		[]types.Ref{entityRef("a"), entityRef("b")},
		Spec{MaxHops: 1, Decay: 1.0, MaxBoost: 1.0})
	require.NoError(t, err)
	assert.LessOrEqual(t, res.Boosts["d1"], 1.0)
}

func TestTraverse_ExpiredBudgetReturnsPartial(t *testing.T) {
	adj := &fakeAdjacency{
		from: map[types.Ref][]*types.Relationship{
			entityRef("alice"): {edge(entityRef("alice"), documentRef("d1"), types.EdgeOwnedBy, 1.0)},
		},
	}
	engine := New(adj)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := engine.Traverse(ctx, "ws-test", []types.Ref{entityRef("alice")}, Spec{MaxHops: 2, Decay: 0.5})
	require.NoError(t, err, "an exhausted budget degrades, never fails")
	assert.Empty(t, res.Boosts)
}

func TestTraverse_AdjacencyFailureSkipsNode(t *testing.T) {
	adj := &fakeAdjacency{fail: true}
	engine := New(adj)

	res, err := engine.Traverse(context.Background(), "ws-test", []types.Ref{entityRef("alice")}, Spec{MaxHops: 2, Decay: 0.5})
	require.NoError(t, err)
	assert.Empty(t, res.Boosts)
}

func TestCachedAdjacency_ReadThrough(t *testing.T) {
	source := &fakeAdjacency{
		from: map[types.Ref][]*types.Relationship{
			entityRef("alice"): {edge(entityRef("alice"), documentRef("d1"), types.EdgeOwnedBy, 0.9)},
		},
	}
	client, err := cache.NewMemoryClient(100)
	require.NoError(t, err)
	cached := NewCachedAdjacency(source, client, time.Minute)

	first, err := cached.EdgesFrom(context.Background(), "ws-test", entityRef("alice"))
	require.NoError(t, err)
	require.Len(t, first, 1)
	callsAfterFirst := source.calls

	second, err := cached.EdgesFrom(context.Background(), "ws-test", entityRef("alice"))
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, callsAfterFirst, source.calls, "second read must come from cache")
	assert.Equal(t, first[0].ID, second[0].ID)
}

func TestCachedAdjacency_NoopCacheStillServes(t *testing.T) {
	source := &fakeAdjacency{
		from: map[types.Ref][]*types.Relationship{
			entityRef("alice"): {edge(entityRef("alice"), documentRef("d1"), types.EdgeOwnedBy, 0.9)},
		},
	}
	cached := NewCachedAdjacency(source, cache.NewNoopClient(), time.Minute)

	for i := 0; i < 3; i++ {
		edges, err := cached.EdgesFrom(context.Background(), "ws-test", entityRef("alice"))
		require.NoError(t, err)
		require.Len(t, edges, 1)
	}
	assert.Equal(t, 3, source.calls, "every read goes to the source without a cache")
}
