// Package fusion merges per-source candidate lists into one deterministically
// ordered list. Fusion is a pure function of its inputs: no clock, no I/O,
// no map-iteration-order dependence. The same inputs always produce the
// same output, which is what makes cache transparency and degraded-branch
// behavior testable at all.
package fusion

import (
	"math"
	"sort"

	"github.com/lightfast/retrieval-router/pkg/types"
)

// Weights are the per-source multipliers applied to raw adapter scores.
type Weights struct {
	Lexical float64
	Vector  float64
	Graph   float64
}

// Input carries everything one fusion pass consumes. GraphBoosts are keyed
// by document ID; a boost applies to every candidate of that document, and
// a boosted document with no chunk candidate enters as a document-level
// candidate so graph-only evidence still surfaces.
type Input struct {
	Lexical     []types.ScoredCandidate
	Vector      []types.ScoredCandidate
	GraphBoosts map[string]float64
	Weights     Weights
	TopK        int
}

// Fuse merges the inputs by candidate identity, sums weighted contributions,
// and returns at most TopK candidates in deterministic order.
//
// Ties on fused score break by, in order: more contributing sources, more
// recent occurredAt, lexicographically smaller identity. A candidate that
// appears in several sources therefore always outranks an equal-scored
// single-source one.
func Fuse(in Input) []*types.Candidate {
	merged := make(map[string]*types.Candidate)

	accumulate(merged, in.Lexical, types.SourceLexical, in.Weights.Lexical)
	accumulate(merged, in.Vector, types.SourceVector, in.Weights.Vector)

	// Graph boosts apply at document granularity.
	if len(in.GraphBoosts) > 0 && in.Weights.Graph > 0 {
		boosted := make(map[string]bool, len(in.GraphBoosts))
		for _, cand := range merged {
			boost, ok := in.GraphBoosts[cand.DocumentID]
			if !ok {
				continue
			}
			boost = clampScore(boost)
			boosted[cand.DocumentID] = true
			cand.Score += boost * in.Weights.Graph
			cand.Contributions = append(cand.Contributions, types.Contribution{
				Source:   types.SourceGraph,
				RawScore: boost,
			})
		}

		// Documents reached only through the graph become document-level
		// candidates (no chunk identity) so hydration can still show them.
		for docID, boost := range in.GraphBoosts {
			if boosted[docID] {
				continue
			}
			boost = clampScore(boost)
			merged[identity("", docID)] = &types.Candidate{
				DocumentID: docID,
				Score:      boost * in.Weights.Graph,
				Contributions: []types.Contribution{
					{Source: types.SourceGraph, RawScore: boost},
				},
			}
		}
	}

	out := make([]*types.Candidate, 0, len(merged))
	for _, cand := range merged {
		out = append(out, cand)
	}
	Sort(out)

	if in.TopK > 0 && len(out) > in.TopK {
		out = out[:in.TopK]
	}
	return out
}

// Sort orders candidates by the fusion tie-break rules, in place.
func Sort(cands []*types.Candidate) {
	sort.Slice(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if len(a.Contributions) != len(b.Contributions) {
			return len(a.Contributions) > len(b.Contributions)
		}
		if !a.OccurredAt.Equal(b.OccurredAt) {
			return a.OccurredAt.After(b.OccurredAt)
		}
		return identity(a.ChunkID, a.DocumentID) < identity(b.ChunkID, b.DocumentID)
	})
}

// accumulate folds one adapter's candidates into the merge map.
func accumulate(merged map[string]*types.Candidate, cands []types.ScoredCandidate, source types.Source, weight float64) {
	if weight <= 0 {
		return
	}
	for _, sc := range cands {
		key := identity(sc.ChunkID, sc.DocumentID)
		cand, ok := merged[key]
		if !ok {
			cand = &types.Candidate{
				ChunkID:     sc.ChunkID,
				DocumentID:  sc.DocumentID,
				WorkspaceID: sc.WorkspaceID,
				OccurredAt:  sc.OccurredAt,
			}
			merged[key] = cand
		}
		raw := clampScore(sc.Score)
		cand.Score += raw * weight
		cand.Contributions = append(cand.Contributions, types.Contribution{
			Source:   source,
			RawScore: raw,
		})
		if cand.OccurredAt.IsZero() {
			cand.OccurredAt = sc.OccurredAt
		}
	}
}

// clampScore normalizes a raw adapter score before weighting. Vector
// backends can report negative similarity for anti-correlated embeddings,
// and a misbehaving adapter can emit NaN or infinities; fused totals must
// stay finite and non-negative.
func clampScore(raw float64) float64 {
	if math.IsNaN(raw) || math.IsInf(raw, 0) || raw < 0 {
		return 0
	}
	return raw
}

// identity is the merge key: chunk ID when present, document ID for
// document-level candidates. The "d:" prefix keeps the two namespaces from
// colliding.
func identity(chunkID, documentID string) string {
	if chunkID != "" {
		return chunkID
	}
	return "d:" + documentID
}
