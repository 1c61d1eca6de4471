package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lightfast/retrieval-router/pkg/types"
)

// Fixture seeding helpers. The router itself never writes document, chunk,
// entity, or relationship rows; ingestion owns those tables in production.
// These exist so tests and local development can populate a read replica.

// SeedDocument inserts a document row.
func (s *SQLiteReader) SeedDocument(ctx context.Context, doc *types.Document, sourceRef string) error {
	query := `
		INSERT INTO documents (id, workspace_id, source, type, title, author, occurred_at, content_hash, version, source_ref)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		doc.ID, doc.WorkspaceID, doc.Source, doc.Type, doc.Title, nullIfEmpty(doc.Author),
		timeOrNil(doc.OccurredAt), doc.ContentHash, doc.Version, nullIfEmpty(sourceRef))
	if err != nil {
		return fmt.Errorf("failed to seed document %s: %w", doc.ID, err)
	}
	return nil
}

// SeedChunk inserts a chunk row.
func (s *SQLiteReader) SeedChunk(ctx context.Context, chunk *types.Chunk) error {
	query := `
		INSERT INTO chunks (id, document_id, workspace_id, chunk_index, content, embedding_version, chunk_hash, superseded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	var superseded interface{}
	if chunk.SupersededAt != nil {
		superseded = *chunk.SupersededAt
	}
	_, err := s.db.ExecContext(ctx, query,
		chunk.ID, chunk.DocumentID, chunk.WorkspaceID, chunk.ChunkIndex,
		chunk.Content, chunk.EmbeddingVersion, chunk.ChunkHash, superseded)
	if err != nil {
		return fmt.Errorf("failed to seed chunk %s: %w", chunk.ID, err)
	}
	return nil
}

// SeedEntity inserts an entity row.
func (s *SQLiteReader) SeedEntity(ctx context.Context, entity *types.Entity) error {
	aliases, err := json.Marshal(entity.Aliases)
	if err != nil {
		return fmt.Errorf("failed to encode aliases for %s: %w", entity.ID, err)
	}
	query := `
		INSERT INTO entities (id, workspace_id, type, name, aliases)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query,
		entity.ID, entity.WorkspaceID, string(entity.Type), entity.Name, string(aliases)); err != nil {
		return fmt.Errorf("failed to seed entity %s: %w", entity.ID, err)
	}
	return nil
}

// SeedRelationship upserts a relationship edge. Duplicate edges of the
// same type between the same pair collapse onto the existing row.
func (s *SQLiteReader) SeedRelationship(ctx context.Context, rel *types.Relationship) error {
	if err := rel.Validate(); err != nil {
		return fmt.Errorf("invalid relationship %s: %w", rel.ID, err)
	}
	query := `
		INSERT INTO relationships (id, workspace_id, from_kind, from_id, to_kind, to_id, type, confidence, detected_by, since, until)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(workspace_id, from_kind, from_id, to_kind, to_id, type)
		DO UPDATE SET confidence = excluded.confidence, detected_by = excluded.detected_by,
		              since = excluded.since, until = excluded.until
	`
	var since, until interface{}
	if rel.Since != nil {
		since = *rel.Since
	}
	if rel.Until != nil {
		until = *rel.Until
	}
	_, err := s.db.ExecContext(ctx, query,
		rel.ID, rel.WorkspaceID, string(rel.From.Kind), rel.From.ID,
		string(rel.To.Kind), rel.To.ID, string(rel.Type), rel.Confidence,
		string(rel.DetectedBy), since, until)
	if err != nil {
		return fmt.Errorf("failed to seed relationship %s: %w", rel.ID, err)
	}
	return nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
