package types

import (
	"math"
	"time"
)

// Source identifies the retrieval subsystem that produced a contribution.
type Source string

const (
	SourceLexical Source = "lexical"
	SourceVector  Source = "vector"
	SourceGraph   Source = "graph"
	SourceRerank  Source = "rerank"
	SourceDirect  Source = "direct"
)

// Contribution records one subsystem's raw score for a candidate before
// weighting. Contributions are kept on the fused candidate so callers can
// see which backends agreed on a result.
type Contribution struct {
	Source   Source  `json:"source"`
	RawScore float64 `json:"rawScore"`
}

// ScoredCandidate is the unit returned by a single retrieval adapter:
// a chunk reference with that adapter's native score.
type ScoredCandidate struct {
	ChunkID     string    `json:"chunkId"`
	DocumentID  string    `json:"documentId"`
	WorkspaceID string    `json:"workspaceId"`
	Score       float64   `json:"score"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// Candidate is the ephemeral per-query fusion unit. It exists only within
// a single query's lifetime and is never persisted.
type Candidate struct {
	ChunkID       string         `json:"chunkId"`
	DocumentID    string         `json:"documentId"`
	WorkspaceID   string         `json:"workspaceId"`
	Score         float64        `json:"score"`
	OccurredAt    time.Time      `json:"occurredAt"`
	Contributions []Contribution `json:"contributions"`
}

// ValidScore reports whether the fused score satisfies the fusion
// invariant: finite and non-negative.
func (c *Candidate) ValidScore() bool {
	return !math.IsNaN(c.Score) && !math.IsInf(c.Score, 0) && c.Score >= 0
}
