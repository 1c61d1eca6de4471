// Package graph implements bounded-hop breadth-first expansion over the
// relationship adjacency structure. Traversal produces per-document graph
// boosts and the edge paths behind them, which the composer surfaces as a
// rationale trace.
package graph

import (
	"context"
	"time"

	"github.com/lightfast/retrieval-router/internal/logger"
	"github.com/lightfast/retrieval-router/pkg/types"
)

// Adjacency is the edge source the engine traverses. Both directions are
// needed: ownership points from owned to owner, but an ownership query
// walks it either way.
type Adjacency interface {
	EdgesFrom(ctx context.Context, workspaceID string, ref types.Ref) ([]*types.Relationship, error)
	EdgesTo(ctx context.Context, workspaceID string, ref types.Ref) ([]*types.Relationship, error)
}

// Spec bounds one traversal.
type Spec struct {
	MaxHops   int
	Allowlist map[types.EdgeType]bool // nil allows every edge type
	Decay     float64                 // per-hop contribution decay in (0, 1]
	MaxBoost  float64                 // clamp for accumulated boosts; <=0 means 1.0
}

// Result is the traversal output: bounded boosts per reached document and
// the evidence used to reach them.
type Result struct {
	// Boosts maps document ID to its accumulated graph boost.
	Boosts map[string]float64
	// Edges lists traversed edges that contributed boost, for rationale.
	Edges []types.RationaleEdge
	// Entities lists entities crossed during traversal, for rationale.
	Entities []types.RationaleEntity
}

// Engine runs breadth-first expansions against an adjacency source.
type Engine struct {
	adjacency Adjacency
}

// New creates a traversal engine.
func New(adjacency Adjacency) *Engine {
	return &Engine{adjacency: adjacency}
}

// maxRationaleEdges bounds the evidence trace attached to a response.
const maxRationaleEdges = 24

// Traverse expands breadth-first from the seeds, hop-limited and
// deduplicated by a visited set (the graph may be cyclic). Each traversed
// edge contributes confidence * decay^hop to the documents it reaches.
// When the context deadline expires mid-expansion the engine returns the
// frontier it completed rather than blocking; a partial traversal degrades
// bias, not correctness.
func (e *Engine) Traverse(ctx context.Context, workspaceID string, seeds []types.Ref, spec Spec) (*Result, error) {
	if workspaceID == "" {
		return nil, types.ErrWorkspaceRequired
	}

	result := &Result{Boosts: make(map[string]float64)}
	if len(seeds) == 0 || spec.MaxHops <= 0 {
		return result, nil
	}

	decay := spec.Decay
	if decay <= 0 || decay > 1 {
		decay = 0.5
	}
	maxBoost := spec.MaxBoost
	if maxBoost <= 0 {
		maxBoost = 1.0
	}

	now := time.Now()
	visited := make(map[types.Ref]bool, len(seeds))
	frontier := make([]types.Ref, 0, len(seeds))
	for _, seed := range seeds {
		if !visited[seed] {
			visited[seed] = true
			frontier = append(frontier, seed)
		}
	}

	contribution := 1.0
	for hop := 1; hop <= spec.MaxHops && len(frontier) > 0; hop++ {
		contribution *= decay
		next := make([]types.Ref, 0)

		for _, ref := range frontier {
			if ctx.Err() != nil {
				logger.Warn("graph: traversal budget exhausted at hop %d for workspace %s", hop, workspaceID)
				return result, nil
			}

			edges, err := e.neighbors(ctx, workspaceID, ref)
			if err != nil {
				// A failed expansion skips this node, not the traversal.
				logger.Warn("graph: adjacency read failed for %s/%s: %v", ref.Kind, ref.ID, err)
				continue
			}

			for _, edge := range edges {
				if spec.Allowlist != nil && !spec.Allowlist[edge.Type] {
					continue
				}
				if !edge.ValidAt(now) {
					continue
				}

				target := edge.To
				if target == ref {
					target = edge.From
				}
				if visited[target] {
					continue
				}
				visited[target] = true

				if target.Kind == types.RefDocument {
					boost := result.Boosts[target.ID] + contribution*edge.Confidence
					if boost > maxBoost {
						boost = maxBoost
					}
					result.Boosts[target.ID] = boost
				} else {
					result.Entities = append(result.Entities, types.RationaleEntity{ID: target.ID})
				}

				if len(result.Edges) < maxRationaleEdges {
					result.Edges = append(result.Edges, types.RationaleEdge{
						From: edge.From,
						To:   edge.To,
						Type: edge.Type,
						Hop:  hop,
					})
				}

				next = append(next, target)
			}
		}

		frontier = next
	}

	return result, nil
}

// neighbors returns edges in both directions for a ref.
func (e *Engine) neighbors(ctx context.Context, workspaceID string, ref types.Ref) ([]*types.Relationship, error) {
	outbound, err := e.adjacency.EdgesFrom(ctx, workspaceID, ref)
	if err != nil {
		return nil, err
	}
	inbound, err := e.adjacency.EdgesTo(ctx, workspaceID, ref)
	if err != nil {
		// Outbound succeeded; use what we have.
		return outbound, nil
	}
	return append(outbound, inbound...), nil
}

// AllowlistForIntent maps a query intent to the edge types worth
// expanding. Ownership queries follow organizational edges; dependency
// queries follow work-graph edges. The default covers both plus mentions.
func AllowlistForIntent(intent string) map[types.EdgeType]bool {
	switch intent {
	case "ownership":
		return map[types.EdgeType]bool{
			types.EdgeOwnedBy:  true,
			types.EdgeMemberOf: true,
		}
	case "dependency":
		return map[types.EdgeType]bool{
			types.EdgeDependsOn: true,
			types.EdgeBlockedBy: true,
			types.EdgeResolves:  true,
		}
	default:
		return map[types.EdgeType]bool{
			types.EdgeOwnedBy:    true,
			types.EdgeMemberOf:   true,
			types.EdgeDependsOn:  true,
			types.EdgeBlockedBy:  true,
			types.EdgeResolves:   true,
			types.EdgeMentions:   true,
			types.EdgeAuthoredBy: true,
		}
	}
}
