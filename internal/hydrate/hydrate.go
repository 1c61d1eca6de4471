// Package hydrate resolves ranked candidate IDs into display payloads.
// Reads go cache-first in one batched round trip, fall back to the durable
// store for misses, and repopulate the cache off the request path. A
// candidate that cannot be fully resolved is dropped from the response
// rather than failing it; only a total hydration failure degrades the
// query.
package hydrate

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lightfast/retrieval-router/internal/cache"
	"github.com/lightfast/retrieval-router/internal/logger"
	"github.com/lightfast/retrieval-router/internal/storage"
	"github.com/lightfast/retrieval-router/pkg/types"
)

// payloadVersion is bumped when the cached JSON shape changes, retiring
// every previously written hydration key at once.
const payloadVersion = 1

// snippetRunes bounds the content excerpt attached to each result.
const snippetRunes = 280

// Hydrated pairs a ranked candidate with its resolved display payload.
// Chunk is nil for document-level candidates.
type Hydrated struct {
	Candidate *types.Candidate
	Document  *types.Document
	Chunk     *types.Chunk
	Snippet   string
}

// Service performs batched, cache-fronted hydration.
type Service struct {
	reader storage.Reader
	cache  cache.Client
	ttl    time.Duration
}

// New creates a hydration service.
func New(reader storage.Reader, client cache.Client, ttl time.Duration) *Service {
	return &Service{reader: reader, cache: client, ttl: ttl}
}

// Hydrate resolves the candidates in ranked order. The second return value
// reports total degradation: candidates existed but none could be resolved.
func (s *Service) Hydrate(ctx context.Context, workspaceID string, cands []*types.Candidate) ([]Hydrated, bool, error) {
	if workspaceID == "" {
		return nil, false, types.ErrWorkspaceRequired
	}
	if len(cands) == 0 {
		return []Hydrated{}, false, nil
	}

	docIDs := make([]string, 0, len(cands))
	chunkIDs := make([]string, 0, len(cands))
	seenDoc := make(map[string]bool, len(cands))
	for _, cand := range cands {
		if cand.DocumentID != "" && !seenDoc[cand.DocumentID] {
			seenDoc[cand.DocumentID] = true
			docIDs = append(docIDs, cand.DocumentID)
		}
		if cand.ChunkID != "" {
			chunkIDs = append(chunkIDs, cand.ChunkID)
		}
	}

	docs, missedDocs := fromCache[types.Document](ctx, s.cache, workspaceID, cache.KindDocument, docIDs)
	chunks, missedChunks := fromCache[types.Chunk](ctx, s.cache, workspaceID, cache.KindChunk, chunkIDs)

	if len(missedDocs) > 0 {
		loaded, err := s.reader.GetDocumentsByID(ctx, workspaceID, missedDocs)
		if err != nil {
			logger.Warn("hydrate: document batch read failed for workspace %s: %v", workspaceID, err)
		} else {
			for id, doc := range loaded {
				docs[id] = doc
			}
			repopulate(s.cache, workspaceID, cache.KindDocument, loaded, s.ttl)
		}
	}
	if len(missedChunks) > 0 {
		loaded, err := s.reader.GetChunksByID(ctx, workspaceID, missedChunks)
		if err != nil {
			logger.Warn("hydrate: chunk batch read failed for workspace %s: %v", workspaceID, err)
		} else {
			for id, chunk := range loaded {
				chunks[id] = chunk
			}
			repopulate(s.cache, workspaceID, cache.KindChunk, loaded, s.ttl)
		}
	}

	out := make([]Hydrated, 0, len(cands))
	for _, cand := range cands {
		doc, ok := docs[cand.DocumentID]
		if !ok || doc == nil {
			continue
		}
		h := Hydrated{Candidate: cand, Document: doc}
		if cand.ChunkID != "" {
			chunk, ok := chunks[cand.ChunkID]
			if !ok || chunk == nil {
				// Unresolved chunk means an unrenderable result; drop it.
				continue
			}
			h.Chunk = chunk
			h.Snippet = Snippet(chunk.Content)
		}
		out = append(out, h)
	}

	degraded := len(out) == 0
	return out, degraded, nil
}

// Contents resolves a single known ID directly, chunk first, then document.
// This is the bypass path for callers that already hold an ID.
func (s *Service) Contents(ctx context.Context, workspaceID, id string) (*types.HydratedPayload, error) {
	if workspaceID == "" {
		return nil, types.ErrWorkspaceRequired
	}

	if chunk, err := s.reader.GetChunk(ctx, workspaceID, id); err == nil {
		doc, err := s.reader.GetDocument(ctx, workspaceID, chunk.DocumentID)
		if err != nil {
			return nil, err
		}
		return &types.HydratedPayload{
			Document: doc,
			Chunk:    chunk,
			Snippet:  Snippet(chunk.Content),
		}, nil
	}

	doc, err := s.reader.GetDocument(ctx, workspaceID, id)
	if err != nil {
		return nil, err
	}
	return &types.HydratedPayload{Document: doc}, nil
}

// Snippet truncates content to the excerpt length on a rune boundary.
func Snippet(content string) string {
	runes := []rune(content)
	if len(runes) <= snippetRunes {
		return content
	}
	return string(runes[:snippetRunes]) + "…"
}

// repopulate writes freshly loaded entities back to the cache off the
// request path, detached from the query context so a finished request does
// not cancel the write. Failures are invisible: the next reader just misses
// again.
func repopulate[T any](client cache.Client, workspaceID string, kind cache.Kind, loaded map[string]*T, ttl time.Duration) {
	if len(loaded) == 0 {
		return
	}
	entries := make(map[cache.Key][]byte, len(loaded))
	for id, entity := range loaded {
		raw, err := json.Marshal(entity)
		if err != nil {
			continue
		}
		entries[cache.Key{WorkspaceID: workspaceID, Kind: kind, ID: id, Version: payloadVersion}] = raw
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		for key, raw := range entries {
			if err := client.Set(ctx, key, raw, ttl); err != nil {
				logger.Debug("hydrate: cache repopulate failed for %s: %v", key, err)
				return
			}
		}
	}()
}

// fromCache batch-reads entities of one kind and reports which IDs missed.
// Cache errors count as misses.
func fromCache[T any](ctx context.Context, client cache.Client, workspaceID string, kind cache.Kind, ids []string) (map[string]*T, []string) {
	found := make(map[string]*T, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	keys := make([]cache.Key, len(ids))
	for i, id := range ids {
		keys[i] = cache.Key{WorkspaceID: workspaceID, Kind: kind, ID: id, Version: payloadVersion}
	}

	hits, err := client.MGet(ctx, keys)
	if err != nil {
		logger.Warn("hydrate: cache batch read failed: %v", err)
		return found, ids
	}

	missed := make([]string, 0, len(ids))
	for i, id := range ids {
		raw, ok := hits[keys[i]]
		if !ok {
			missed = append(missed, id)
			continue
		}
		var entity T
		if err := json.Unmarshal(raw, &entity); err != nil {
			missed = append(missed, id)
			continue
		}
		found[id] = &entity
	}
	return found, missed
}
