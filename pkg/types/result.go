package types

import "time"

// Result is one entry in the final ranked result set.
type Result struct {
	DocumentID    string         `json:"documentId"`
	ChunkID       string         `json:"chunkId"`
	Score         float64        `json:"score"`
	Title         string         `json:"title"`
	Source        string         `json:"source"`
	OccurredAt    time.Time      `json:"occurredAt"`
	Highlight     string         `json:"highlight,omitempty"`
	Contributions []Contribution `json:"contributions"`
}

// Latency is the per-stage latency breakdown, in milliseconds.
// Stages that did not run report zero.
type Latency struct {
	TotalMs     int64 `json:"total"`
	LexicalMs   int64 `json:"lexical"`
	VectorMs    int64 `json:"vector"`
	GraphMs     int64 `json:"graph"`
	RerankMs    int64 `json:"rerank"`
	HydrationMs int64 `json:"hydration"`
}

// RationaleEntity names an entity that influenced ranking via graph bias.
type RationaleEntity struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// RationaleEdge records one traversed edge that contributed graph bias,
// with the hop depth at which it was crossed.
type RationaleEdge struct {
	From Ref      `json:"from"`
	To   Ref      `json:"to"`
	Type EdgeType `json:"type"`
	Hop  int      `json:"hop"`
}

// Rationale is the compact evidence trace attached to a response when
// graph bias was applied.
type Rationale struct {
	Entities []RationaleEntity `json:"entities"`
	Edges    []RationaleEdge   `json:"edges"`
}

// RankedResults is the response envelope for Search and Similar, and the
// only structure returned across the system boundary.
//
// Partial is set when the whole-query deadline forced composition with
// incomplete data. Degraded is set when every candidate failed hydration.
// Single-branch degradation (one adapter timing out) sets neither; it only
// shows up as an absent contribution and a warning annotation.
type RankedResults struct {
	QueryID         string     `json:"queryId"`
	Results         []Result   `json:"results"`
	TotalCandidates int        `json:"totalCandidates"`
	LatencyMs       Latency    `json:"latencyMs"`
	Rationale       *Rationale `json:"rationale,omitempty"`
	Warnings        []string   `json:"warnings,omitempty"`
	Partial         bool       `json:"partial,omitempty"`
	Degraded        bool       `json:"degraded,omitempty"`
}

// HydratedPayload is the full display payload for a known ID, returned by
// the Contents bypass.
type HydratedPayload struct {
	Document *Document `json:"document"`
	Chunk    *Chunk    `json:"chunk,omitempty"`
	Snippet  string    `json:"snippet,omitempty"`
}
