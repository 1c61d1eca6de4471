package types

import (
	"errors"
	"time"
)

// Document represents a canonical normalized source artifact.
// Documents are immutable per version; a new version supersedes the prior
// one but does not delete it, preserving lineage. The router only reads
// documents; ingestion owns all writes.
type Document struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspaceId"`
	Source      string    `json:"source"`
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	Author      string    `json:"author,omitempty"`
	OccurredAt  time.Time `json:"occurredAt"`
	ContentHash string    `json:"contentHash"`
	Version     int       `json:"version"`
}

// Chunk represents a windowed text slice of a document, the atomic unit
// indexed for retrieval. A chunk belongs to exactly one document; chunk
// ordering within a document is stable (ChunkIndex monotonic).
type Chunk struct {
	ID               string     `json:"id"`
	DocumentID       string     `json:"documentId"`
	WorkspaceID      string     `json:"workspaceId"`
	ChunkIndex       int        `json:"chunkIndex"`
	Content          string     `json:"content"`
	EmbeddingVersion string     `json:"embeddingVersion"`
	ChunkHash        string     `json:"chunkHash"`
	SupersededAt     *time.Time `json:"supersededAt,omitempty"`
}

// Active reports whether the chunk participates in retrieval.
// Superseded chunks remain queryable for audit only.
func (c *Chunk) Active() bool {
	return c.SupersededAt == nil
}

// EntityType classifies a node in the relationship graph.
type EntityType string

const (
	EntityPerson     EntityType = "person"
	EntityRepository EntityType = "repository"
	EntityProject    EntityType = "project"
	EntityGoal       EntityType = "goal"
	EntityTeam       EntityType = "team"
)

// Entity represents a node in the relationship graph.
type Entity struct {
	ID          string     `json:"id"`
	WorkspaceID string     `json:"workspaceId"`
	Type        EntityType `json:"type"`
	Name        string     `json:"name"`
	Aliases     []string   `json:"aliases,omitempty"`
}

// RefKind distinguishes the two node kinds a relationship edge may touch.
type RefKind string

const (
	RefEntity   RefKind = "entity"
	RefDocument RefKind = "document"
)

// Ref identifies a graph node: either an entity or a document.
type Ref struct {
	Kind RefKind `json:"kind"`
	ID   string  `json:"id"`
}

// EdgeType names a relationship edge type. Traversals operate against an
// allowlist of edge types appropriate to the query intent.
type EdgeType string

const (
	EdgeOwnedBy    EdgeType = "OWNED_BY"
	EdgeMemberOf   EdgeType = "MEMBER_OF"
	EdgeDependsOn  EdgeType = "DEPENDS_ON"
	EdgeBlockedBy  EdgeType = "BLOCKED_BY"
	EdgeResolves   EdgeType = "RESOLVES"
	EdgeMentions   EdgeType = "MENTIONS"
	EdgeAuthoredBy EdgeType = "AUTHORED_BY"
)

// DetectionMethod records how a relationship edge was discovered.
type DetectionMethod string

const (
	DetectedByRule   DetectionMethod = "rule"
	DetectedByModel  DetectionMethod = "model"
	DetectedByManual DetectionMethod = "manual"
)

// Relationship is a directed typed edge between two refs. Multiple edges
// between the same pair with different types may coexist; duplicate edges
// of the same type are deduplicated by upsert on the write side.
type Relationship struct {
	ID          string          `json:"id"`
	WorkspaceID string          `json:"workspaceId"`
	From        Ref             `json:"from"`
	To          Ref             `json:"to"`
	Type        EdgeType        `json:"type"`
	Confidence  float64         `json:"confidence"`
	DetectedBy  DetectionMethod `json:"detectedBy"`
	Since       *time.Time      `json:"since,omitempty"`
	Until       *time.Time      `json:"until,omitempty"`
}

// Validate checks relationship field invariants.
func (r *Relationship) Validate() error {
	if r.WorkspaceID == "" {
		return ErrWorkspaceRequired
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return errors.New("confidence must be between 0 and 1")
	}
	switch r.DetectedBy {
	case DetectedByRule, DetectedByModel, DetectedByManual:
	default:
		return errors.New("invalid detection method")
	}
	if r.From.ID == "" || r.To.ID == "" {
		return errors.New("edge endpoints are required")
	}
	return nil
}

// ValidAt reports whether the edge's validity window covers t.
// A nil bound is open-ended on that side.
func (r *Relationship) ValidAt(t time.Time) bool {
	if r.Since != nil && t.Before(*r.Since) {
		return false
	}
	if r.Until != nil && t.After(*r.Until) {
		return false
	}
	return true
}
