package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/lightfast/retrieval-router/pkg/types"
)

// SQLiteReader implements the Reader interface over a SQLite read replica.
type SQLiteReader struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Read-mostly workload; a single connection avoids SQLITE_BUSY churn
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteReader opens the durable store and applies any pending schema
// migrations (a no-op against an up-to-date replica).
func NewSQLiteReader(dbPath string) (*SQLiteReader, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteReader{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteReader) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for fixture seeding in tests.
func (s *SQLiteReader) DB() *sql.DB {
	return s.db
}

// Document operations

const documentColumns = `id, workspace_id, source, type, title, author, occurred_at, content_hash, version`

func scanDocument(row interface{ Scan(...interface{}) error }) (*types.Document, error) {
	var doc types.Document
	var author sql.NullString
	var occurredAt sql.NullTime
	err := row.Scan(&doc.ID, &doc.WorkspaceID, &doc.Source, &doc.Type,
		&doc.Title, &author, &occurredAt, &doc.ContentHash, &doc.Version)
	if err == sql.ErrNoRows {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if author.Valid {
		doc.Author = author.String
	}
	if occurredAt.Valid {
		doc.OccurredAt = occurredAt.Time
	}
	return &doc, nil
}

func (s *SQLiteReader) GetDocument(ctx context.Context, workspaceID, id string) (*types.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE workspace_id = ? AND id = ?`
	return scanDocument(s.db.QueryRowContext(ctx, query, workspaceID, id))
}

func (s *SQLiteReader) GetDocumentsByID(ctx context.Context, workspaceID string, ids []string) (map[string]*types.Document, error) {
	if len(ids) == 0 {
		return map[string]*types.Document{}, nil
	}

	query := `SELECT ` + documentColumns + ` FROM documents WHERE workspace_id = ? AND id IN (` +
		placeholders(len(ids)) + `)`
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, workspaceID)
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to batch-read documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]*types.Document, len(ids))
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out[doc.ID] = doc
	}
	return out, rows.Err()
}

// Chunk operations

const chunkColumns = `id, document_id, workspace_id, chunk_index, content, embedding_version, chunk_hash, superseded_at`

func scanChunk(row interface{ Scan(...interface{}) error }) (*types.Chunk, error) {
	var chunk types.Chunk
	var superseded sql.NullTime
	err := row.Scan(&chunk.ID, &chunk.DocumentID, &chunk.WorkspaceID, &chunk.ChunkIndex,
		&chunk.Content, &chunk.EmbeddingVersion, &chunk.ChunkHash, &superseded)
	if err == sql.ErrNoRows {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if superseded.Valid {
		t := superseded.Time
		chunk.SupersededAt = &t
	}
	return &chunk, nil
}

func (s *SQLiteReader) GetChunk(ctx context.Context, workspaceID, id string) (*types.Chunk, error) {
	query := `SELECT ` + chunkColumns + ` FROM chunks WHERE workspace_id = ? AND id = ?`
	return scanChunk(s.db.QueryRowContext(ctx, query, workspaceID, id))
}

func (s *SQLiteReader) GetChunksByID(ctx context.Context, workspaceID string, ids []string) (map[string]*types.Chunk, error) {
	if len(ids) == 0 {
		return map[string]*types.Chunk{}, nil
	}

	query := `SELECT ` + chunkColumns + ` FROM chunks WHERE workspace_id = ? AND id IN (` +
		placeholders(len(ids)) + `)`
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, workspaceID)
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to batch-read chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]*types.Chunk, len(ids))
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out[chunk.ID] = chunk
	}
	return out, rows.Err()
}

func (s *SQLiteReader) ChunksForDocument(ctx context.Context, workspaceID, documentID string) ([]string, error) {
	query := `
		SELECT id FROM chunks
		WHERE workspace_id = ? AND document_id = ? AND superseded_at IS NULL
		ORDER BY chunk_index
	`
	rows, err := s.db.QueryContext(ctx, query, workspaceID, documentID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LookupIdentifier resolves identifier tokens (e.g. "#482", "PROJ-12") via
// an exact source_ref match, newest version first. No embedding is ever
// generated on this path.
func (s *SQLiteReader) LookupIdentifier(ctx context.Context, workspaceID, identifier string) ([]types.ScoredCandidate, error) {
	query := `
		SELECT id, workspace_id, occurred_at FROM documents
		WHERE workspace_id = ? AND source_ref = ?
		ORDER BY version DESC, occurred_at DESC
		LIMIT 10
	`
	rows, err := s.db.QueryContext(ctx, query, workspaceID, identifier)
	if err != nil {
		return nil, fmt.Errorf("identifier lookup failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	candidates := make([]types.ScoredCandidate, 0)
	for rows.Next() {
		var c types.ScoredCandidate
		var occurredAt sql.NullTime
		if err := rows.Scan(&c.DocumentID, &c.WorkspaceID, &occurredAt); err != nil {
			return nil, err
		}
		if occurredAt.Valid {
			c.OccurredAt = occurredAt.Time
		}
		// Exact identifier matches are authoritative.
		c.Score = 1.0
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// SearchChunks runs an FTS5 MATCH over active chunks scoped to one
// workspace and returns normalized relevance scores, best first.
func (s *SQLiteReader) SearchChunks(ctx context.Context, workspaceID, match string, limit int, filter *ChunkFilter) ([]TextHit, error) {
	sanitized := sanitizeFTSQuery(match)
	if sanitized == "" {
		return nil, types.ErrEmptyQuery
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT c.id, c.document_id, bm25(chunks_fts) AS score, d.occurred_at
		FROM chunks_fts
		INNER JOIN chunks c ON chunks_fts.rowid = c.rowid
		INNER JOIN documents d ON c.document_id = d.id
		WHERE chunks_fts MATCH ?
		AND c.workspace_id = ?
		AND c.superseded_at IS NULL
	`
	args := []interface{}{sanitized, workspaceID}
	query, args = applyChunkFilter(query, args, filter)

	// BM25 is lower-is-better; order ascending then normalize.
	query += " ORDER BY score LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute FTS search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	hits := make([]TextHit, 0)
	for rows.Next() {
		var hit TextHit
		var raw float64
		var occurredAt sql.NullTime
		if err := rows.Scan(&hit.ChunkID, &hit.DocumentID, &raw, &occurredAt); err != nil {
			return nil, err
		}
		if occurredAt.Valid {
			hit.OccurredAt = occurredAt.Time
		}
		// Convert BM25 (negative, lower is better) to a (0, 1] score.
		hit.Score = 1.0 / (1.0 + math.Abs(raw)/50.0)
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// applyChunkFilter appends metadata constraints to a lexical query.
func applyChunkFilter(query string, args []interface{}, filter *ChunkFilter) (string, []interface{}) {
	if filter == nil {
		return query, args
	}

	if len(filter.Sources) > 0 {
		query += " AND d.source IN (" + placeholders(len(filter.Sources)) + ")"
		for _, src := range filter.Sources {
			args = append(args, src)
		}
	}

	if len(filter.Types) > 0 {
		query += " AND d.type IN (" + placeholders(len(filter.Types)) + ")"
		for _, t := range filter.Types {
			args = append(args, t)
		}
	}

	if len(filter.Authors) > 0 {
		query += " AND d.author IN (" + placeholders(len(filter.Authors)) + ")"
		for _, a := range filter.Authors {
			args = append(args, a)
		}
	}

	if !filter.After.IsZero() {
		query += " AND d.occurred_at >= ?"
		args = append(args, filter.After)
	}

	if !filter.Before.IsZero() {
		query += " AND d.occurred_at <= ?"
		args = append(args, filter.Before)
	}

	return query, args
}

// Entity operations

func (s *SQLiteReader) GetEntity(ctx context.Context, workspaceID, id string) (*types.Entity, error) {
	query := `SELECT id, workspace_id, type, name, aliases FROM entities WHERE workspace_id = ? AND id = ?`
	return scanEntity(s.db.QueryRowContext(ctx, query, workspaceID, id))
}

func (s *SQLiteReader) FindEntitiesByName(ctx context.Context, workspaceID, name string, limit int) ([]*types.Entity, error) {
	if limit <= 0 {
		limit = 5
	}
	// Alias matching is a JSON substring probe; names are exact
	// case-insensitive. Good enough for seed resolution.
	query := `
		SELECT id, workspace_id, type, name, aliases FROM entities
		WHERE workspace_id = ? AND (name = ? COLLATE NOCASE OR aliases LIKE ?)
		LIMIT ?
	`
	pattern := `%"` + strings.ReplaceAll(name, `"`, ``) + `"%`
	rows, err := s.db.QueryContext(ctx, query, workspaceID, name, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	entities := make([]*types.Entity, 0)
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	return entities, rows.Err()
}

func scanEntity(row interface{ Scan(...interface{}) error }) (*types.Entity, error) {
	var entity types.Entity
	var aliases sql.NullString
	err := row.Scan(&entity.ID, &entity.WorkspaceID, &entity.Type, &entity.Name, &aliases)
	if err == sql.ErrNoRows {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if aliases.Valid && aliases.String != "" {
		if err := json.Unmarshal([]byte(aliases.String), &entity.Aliases); err != nil {
			// Malformed aliases should not sink the row.
			entity.Aliases = nil
		}
	}
	return &entity, nil
}

// Adjacency operations

const relationshipColumns = `id, workspace_id, from_kind, from_id, to_kind, to_id, type, confidence, detected_by, since, until`

func (s *SQLiteReader) EdgesFrom(ctx context.Context, workspaceID string, ref types.Ref) ([]*types.Relationship, error) {
	query := `SELECT ` + relationshipColumns + ` FROM relationships WHERE workspace_id = ? AND from_kind = ? AND from_id = ?`
	return s.queryEdges(ctx, query, workspaceID, string(ref.Kind), ref.ID)
}

func (s *SQLiteReader) EdgesTo(ctx context.Context, workspaceID string, ref types.Ref) ([]*types.Relationship, error) {
	query := `SELECT ` + relationshipColumns + ` FROM relationships WHERE workspace_id = ? AND to_kind = ? AND to_id = ?`
	return s.queryEdges(ctx, query, workspaceID, string(ref.Kind), ref.ID)
}

func (s *SQLiteReader) queryEdges(ctx context.Context, query string, args ...interface{}) ([]*types.Relationship, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read adjacency: %w", err)
	}
	defer func() { _ = rows.Close() }()

	edges := make([]*types.Relationship, 0)
	for rows.Next() {
		var rel types.Relationship
		var since, until sql.NullTime
		err := rows.Scan(&rel.ID, &rel.WorkspaceID, &rel.From.Kind, &rel.From.ID,
			&rel.To.Kind, &rel.To.ID, &rel.Type, &rel.Confidence, &rel.DetectedBy,
			&since, &until)
		if err != nil {
			return nil, err
		}
		if since.Valid {
			t := since.Time
			rel.Since = &t
		}
		if until.Valid {
			t := until.Time
			rel.Until = &t
		}
		edges = append(edges, &rel)
	}
	return edges, rows.Err()
}

// Helpers

// placeholders builds "?, ?, ?" for IN clauses.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

// FTS5 operator pattern for escaping Boolean operators
var ftsOperatorPattern = regexp.MustCompile(`\b(AND|OR|NOT|NEAR)\b`)

// sanitizeFTSQuery sanitizes a search query for FTS5 so user text cannot
// inject match-expression syntax.
func sanitizeFTSQuery(query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return ""
	}

	replacer := strings.NewReplacer(
		`"`, ` `,
		`*`, ` `,
		`(`, ` `,
		`)`, ` `,
		`:`, ` `,
		`^`, ` `,
		`-`, ` `,
	)
	escaped := replacer.Replace(query)

	escaped = ftsOperatorPattern.ReplaceAllStringFunc(escaped, strings.ToLower)

	// Quote each remaining term so plain tokens match literally.
	terms := strings.Fields(escaped)
	if len(terms) == 0 {
		return ""
	}
	for i, t := range terms {
		terms[i] = `"` + t + `"`
	}
	return strings.Join(terms, " ")
}

// timeOrNil converts a zero time to a SQL NULL.
func timeOrNil(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
