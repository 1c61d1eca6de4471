// Package lexical wraps the full-text index as a stateless search adapter.
// Timeouts and backend errors degrade to empty results so fusion can
// proceed with whatever the other branches produced.
package lexical

import (
	"context"
	"errors"

	"github.com/lightfast/retrieval-router/internal/logger"
	"github.com/lightfast/retrieval-router/internal/storage"
	"github.com/lightfast/retrieval-router/pkg/types"
)

// Index is the slice of the durable store the adapter needs.
type Index interface {
	SearchChunks(ctx context.Context, workspaceID, match string, limit int, filter *storage.ChunkFilter) ([]storage.TextHit, error)
}

// Request carries the lexical query terms and metadata filter.
type Request struct {
	Terms  string
	Filter *storage.ChunkFilter
}

// Adapter performs full-text candidate retrieval within one workspace.
type Adapter struct {
	index Index
}

// New creates a lexical search adapter over the given index.
func New(index Index) *Adapter {
	return &Adapter{index: index}
}

// Search returns scored chunk candidates for the request, best first.
// A deadline expiry or backend error returns empty candidates and nil:
// a slow or broken lexical branch degrades recall, not correctness.
func (a *Adapter) Search(ctx context.Context, workspaceID string, req Request, topK int) ([]types.ScoredCandidate, error) {
	if workspaceID == "" {
		return nil, types.ErrWorkspaceRequired
	}

	hits, err := a.index.SearchChunks(ctx, workspaceID, req.Terms, topK, req.Filter)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			logger.Warn("lexical: search timed out for workspace %s", workspaceID)
			return []types.ScoredCandidate{}, nil
		}
		logger.Warn("lexical: search failed for workspace %s: %v", workspaceID, err)
		return []types.ScoredCandidate{}, nil
	}

	candidates := make([]types.ScoredCandidate, len(hits))
	for i, hit := range hits {
		candidates[i] = types.ScoredCandidate{
			ChunkID:     hit.ChunkID,
			DocumentID:  hit.DocumentID,
			WorkspaceID: workspaceID,
			Score:       hit.Score,
			OccurredAt:  hit.OccurredAt,
		}
	}
	return candidates, nil
}
