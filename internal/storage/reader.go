package storage

import (
	"context"
	"time"

	"github.com/lightfast/retrieval-router/pkg/types"
)

// TextHit is one lexical match from the full-text index, with a normalized
// relevance score in (0, 1].
type TextHit struct {
	ChunkID    string
	DocumentID string
	Score      float64
	OccurredAt time.Time
}

// ChunkFilter narrows lexical search to a metadata subset. All fields are
// conjunctive; zero values mean "no constraint".
type ChunkFilter struct {
	Sources []string
	Types   []string
	Authors []string
	After   time.Time
	Before  time.Time
}

// Reader is the durable store contract. The router is strictly read-only
// with respect to documents, chunks, entities, and relationships; ingestion
// owns all writes to those tables.
type Reader interface {
	// Document operations
	GetDocument(ctx context.Context, workspaceID, id string) (*types.Document, error)
	GetDocumentsByID(ctx context.Context, workspaceID string, ids []string) (map[string]*types.Document, error)

	// Chunk operations
	GetChunk(ctx context.Context, workspaceID, id string) (*types.Chunk, error)
	GetChunksByID(ctx context.Context, workspaceID string, ids []string) (map[string]*types.Chunk, error)

	// LookupIdentifier resolves an identifier-shaped token (issue number,
	// namespaced code) to matching documents by exact source-ref match.
	// This path never touches the vector index.
	LookupIdentifier(ctx context.Context, workspaceID, identifier string) ([]types.ScoredCandidate, error)

	// SearchChunks runs a full-text match over active chunks in one
	// workspace, highest relevance first.
	SearchChunks(ctx context.Context, workspaceID, match string, limit int, filter *ChunkFilter) ([]TextHit, error)

	// Entity operations
	GetEntity(ctx context.Context, workspaceID, id string) (*types.Entity, error)
	FindEntitiesByName(ctx context.Context, workspaceID, name string, limit int) ([]*types.Entity, error)

	// Adjacency operations. Both directions are exposed because ownership
	// and dependency edges are traversed against their direction too.
	EdgesFrom(ctx context.Context, workspaceID string, ref types.Ref) ([]*types.Relationship, error)
	EdgesTo(ctx context.Context, workspaceID string, ref types.Ref) ([]*types.Relationship, error)

	// ChunksForDocument lists active chunk IDs for a document in
	// chunk-index order, used to materialize graph-reached documents.
	ChunksForDocument(ctx context.Context, workspaceID, documentID string) ([]string, error)

	Close() error
}
