// Package router orchestrates the retrieval pipeline: query processing,
// concurrent adapter fan-out, fusion, the rerank gate, hydration, and
// response composition. The router holds no per-query state beyond the
// request lifetime and is safe for concurrent use.
package router

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lightfast/retrieval-router/internal/config"
	"github.com/lightfast/retrieval-router/internal/embedder"
	"github.com/lightfast/retrieval-router/internal/fusion"
	"github.com/lightfast/retrieval-router/internal/graph"
	"github.com/lightfast/retrieval-router/internal/hydrate"
	"github.com/lightfast/retrieval-router/internal/lexical"
	"github.com/lightfast/retrieval-router/internal/logger"
	"github.com/lightfast/retrieval-router/internal/query"
	"github.com/lightfast/retrieval-router/internal/rerank"
	"github.com/lightfast/retrieval-router/internal/storage"
	"github.com/lightfast/retrieval-router/internal/vector"
	"github.com/lightfast/retrieval-router/pkg/types"
)

// maxGraphSeeds bounds entity resolution per query.
const maxGraphSeeds = 8

// Router wires the retrieval stages together.
type Router struct {
	cfg      *config.Config
	reader   storage.Reader
	lexical  *lexical.Adapter
	vector   vector.Searcher
	graph    *graph.Engine
	embedder embedder.Embedder
	gate     *rerank.Gate
	hydrator *hydrate.Service
}

// New assembles a router from its stages. The vector searcher, embedder,
// and gate may be nil when the corresponding backend is not configured;
// the affected branch simply contributes nothing.
func New(cfg *config.Config, reader storage.Reader, lex *lexical.Adapter, vec vector.Searcher, gr *graph.Engine, emb embedder.Embedder, gate *rerank.Gate, hyd *hydrate.Service) *Router {
	return &Router{
		cfg:      cfg,
		reader:   reader,
		lexical:  lex,
		vector:   vec,
		graph:    gr,
		embedder: emb,
		gate:     gate,
		hydrator: hyd,
	}
}

// SearchOptions carries per-query overrides. The zero Mode defers to
// input-shape classification; Rerank requests the cross-encoder pass,
// which the gate may still decline.
type SearchOptions struct {
	Mode   query.Mode
	Rerank bool
}

// Search runs the full pipeline for a raw query string with the default
// options: auto mode and rerank requested. Identifier-shaped queries
// resolve through the durable store alone; semantic queries fan out to
// every configured branch. The overall deadline bounds the whole call;
// a response is always composed from whatever completed in time.
func (r *Router) Search(ctx context.Context, workspaceID, rawQuery string, limit int) (*types.RankedResults, error) {
	return r.SearchWithOptions(ctx, workspaceID, rawQuery, limit, SearchOptions{Mode: query.ModeAuto, Rerank: true})
}

// SearchWithOptions is Search with explicit mode and rerank overrides.
func (r *Router) SearchWithOptions(ctx context.Context, workspaceID, rawQuery string, limit int, opts SearchOptions) (*types.RankedResults, error) {
	if workspaceID == "" {
		return nil, types.ErrWorkspaceRequired
	}
	if limit <= 0 {
		limit = r.cfg.Rerank.TopN
	}

	parsed, warnings, err := query.Parse(rawQuery, opts.Mode)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeouts.Overall)
	defer cancel()

	queryID := uuid.NewString()

	switch q := parsed.(type) {
	case query.IdentifierQuery:
		return r.searchIdentifier(ctx, workspaceID, queryID, q, limit, warnings, start)
	case query.SemanticQuery:
		return r.searchSemantic(ctx, workspaceID, queryID, q, limit, warnings, start, opts.Rerank)
	default:
		return nil, types.ErrEmptyQuery
	}
}

// searchIdentifier is the exact-lookup path. It never touches the vector
// index or the reranker.
func (r *Router) searchIdentifier(ctx context.Context, workspaceID, queryID string, q query.IdentifierQuery, limit int, warnings []string, start time.Time) (*types.RankedResults, error) {
	matches, err := r.reader.LookupIdentifier(ctx, workspaceID, q.Identifier)
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		return nil, err
	}

	cands := make([]*types.Candidate, 0, len(matches))
	for _, m := range matches {
		cands = append(cands, &types.Candidate{
			ChunkID:     m.ChunkID,
			DocumentID:  m.DocumentID,
			WorkspaceID: workspaceID,
			Score:       m.Score,
			OccurredAt:  m.OccurredAt,
			Contributions: []types.Contribution{
				{Source: types.SourceDirect, RawScore: m.Score},
			},
		})
	}
	fusion.Sort(cands)

	resp, lat := r.compose(ctx, workspaceID, queryID, cands, nil, limit, len(cands), warnings)
	lat.TotalMs = time.Since(start).Milliseconds()
	resp.LatencyMs = *lat
	return resp, nil
}

// branchTimings records per-branch elapsed time and deadline expiry.
type branchTimings struct {
	lexicalMs, vectorMs, graphMs int64
	lexicalCut, vectorCut        bool
}

// searchSemantic fans out to the lexical, vector, and graph branches
// concurrently, joins all of them, and feeds the fused list through the
// rerank gate and hydration.
func (r *Router) searchSemantic(ctx context.Context, workspaceID, queryID string, q query.SemanticQuery, limit int, warnings []string, start time.Time, rerankRequested bool) (*types.RankedResults, error) {
	var (
		lexicalHits []types.ScoredCandidate
		vectorHits  []types.ScoredCandidate
		graphResult *graph.Result
		timings     branchTimings
	)

	chunkFilter := &storage.ChunkFilter{
		Sources: q.Filter.Sources,
		Types:   q.Filter.Types,
		Authors: q.Filter.Authors,
		After:   q.Filter.After,
		Before:  q.Filter.Before,
	}

	// Join, not race: every branch runs to completion or to its own
	// sub-timeout, and fusion waits for all of them.
	var g errgroup.Group

	g.Go(func() error {
		branchStart := time.Now()
		branchCtx, branchCancel := context.WithTimeout(ctx, r.cfg.Timeouts.Lexical)
		defer branchCancel()
		hits, err := r.lexical.Search(branchCtx, workspaceID, lexical.Request{Terms: q.Text(), Filter: chunkFilter}, r.cfg.FusedTopK)
		if err != nil {
			return err
		}
		lexicalHits = hits
		timings.lexicalMs = time.Since(branchStart).Milliseconds()
		timings.lexicalCut = branchCtx.Err() != nil
		return nil
	})

	g.Go(func() error {
		branchStart := time.Now()
		defer func() { timings.vectorMs = time.Since(branchStart).Milliseconds() }()
		if r.vector == nil || r.embedder == nil {
			return nil
		}
		emb, err := r.embedder.Embed(ctx, q.Text())
		if err != nil {
			logger.Warn("router: query embedding failed for workspace %s: %v", workspaceID, err)
			timings.vectorCut = true
			return nil
		}
		branchCtx, branchCancel := context.WithTimeout(ctx, r.cfg.Timeouts.Vector)
		defer branchCancel()
		hits, err := r.vector.Search(branchCtx, workspaceID, r.cfg.EmbeddingVersion, emb.Vector, r.cfg.FusedTopK, &vector.Filter{Sources: q.Filter.Sources, Types: q.Filter.Types, Authors: q.Filter.Authors})
		if err != nil {
			return err
		}
		vectorHits = hits
		timings.vectorCut = branchCtx.Err() != nil
		return nil
	})

	g.Go(func() error {
		branchStart := time.Now()
		defer func() { timings.graphMs = time.Since(branchStart).Milliseconds() }()
		if r.graph == nil {
			return nil
		}
		branchCtx, branchCancel := context.WithTimeout(ctx, r.cfg.Timeouts.Graph)
		defer branchCancel()
		seeds := r.resolveSeeds(branchCtx, workspaceID, q.Terms)
		if len(seeds) == 0 {
			return nil
		}
		res, err := r.graph.Traverse(branchCtx, workspaceID, seeds, graph.Spec{
			MaxHops:   r.cfg.Graph.MaxHops,
			Allowlist: graph.AllowlistForIntent(q.Intent),
			Decay:     r.cfg.Graph.Decay,
		})
		if err != nil {
			logger.Warn("router: graph traversal failed for workspace %s: %v", workspaceID, err)
			return nil
		}
		graphResult = res
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if timings.lexicalCut && len(lexicalHits) == 0 {
		warnings = append(warnings, "lexical branch degraded")
	}
	if timings.vectorCut && len(vectorHits) == 0 {
		warnings = append(warnings, "vector branch degraded")
	}

	var boosts map[string]float64
	if graphResult != nil {
		boosts = graphResult.Boosts
	}

	fused := fusion.Fuse(fusion.Input{
		Lexical:     lexicalHits,
		Vector:      vectorHits,
		GraphBoosts: boosts,
		Weights: fusion.Weights{
			Lexical: r.cfg.Weights.Lexical,
			Vector:  r.cfg.Weights.Vector,
			Graph:   r.cfg.Weights.Graph,
		},
		TopK: r.cfg.FusedTopK,
	})
	total := len(fused)

	ranked, rerankMs, rerankWarn := r.applyRerank(ctx, workspaceID, q, fused, rerankRequested)
	if rerankWarn != "" {
		warnings = append(warnings, rerankWarn)
	}

	resp, lat := r.compose(ctx, workspaceID, queryID, ranked, graphResult, limit, total, warnings)
	lat.LexicalMs = timings.lexicalMs
	lat.VectorMs = timings.vectorMs
	lat.GraphMs = timings.graphMs
	lat.RerankMs = rerankMs
	lat.TotalMs = time.Since(start).Milliseconds()
	resp.LatencyMs = *lat
	return resp, nil
}

// applyRerank runs the gate over the fused list, falling back to the fused
// order on any failure. The shortlist is only loaded once the gate could
// actually open; a gate that is certain to stay closed costs no store read.
func (r *Router) applyRerank(ctx context.Context, workspaceID string, q query.SemanticQuery, fused []*types.Candidate, requested bool) ([]*types.Candidate, int64, string) {
	if !requested || r.gate == nil || len(fused) == 0 || !r.gate.Admits(len(fused)) {
		return fused, 0, ""
	}

	rerankStart := time.Now()
	rerankCtx, rerankCancel := context.WithTimeout(ctx, r.cfg.Timeouts.Rerank)
	defer rerankCancel()

	texts := r.shortlistTexts(rerankCtx, workspaceID, fused)
	ranked, err := r.gate.Apply(rerankCtx, workspaceID, q.Text(), fused, texts)
	elapsed := time.Since(rerankStart).Milliseconds()
	if err != nil {
		if errors.Is(err, rerank.ErrGateClosed) {
			return fused, 0, ""
		}
		return fused, elapsed, "rerank unavailable, results in fused order"
	}
	return ranked, elapsed, ""
}

// shortlistTexts loads chunk content for the rerank shortlist. A failed
// load returns nil, which closes the gate.
func (r *Router) shortlistTexts(ctx context.Context, workspaceID string, fused []*types.Candidate) map[string]string {
	topN := r.cfg.Rerank.TopN
	if topN > len(fused) {
		topN = len(fused)
	}
	ids := make([]string, 0, topN)
	for _, cand := range fused[:topN] {
		if cand.ChunkID != "" {
			ids = append(ids, cand.ChunkID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	chunks, err := r.reader.GetChunksByID(ctx, workspaceID, ids)
	if err != nil {
		logger.Warn("router: shortlist load failed for workspace %s: %v", workspaceID, err)
		return nil
	}
	texts := make(map[string]string, len(chunks))
	for id, chunk := range chunks {
		texts[id] = chunk.Content
	}
	return texts
}

// resolveSeeds maps query terms to entity refs for graph traversal. Terms
// shorter than three runes never resolve; the seed set is bounded.
func (r *Router) resolveSeeds(ctx context.Context, workspaceID string, terms []string) []types.Ref {
	seeds := make([]types.Ref, 0, maxGraphSeeds)
	seen := make(map[string]bool)
	for _, term := range terms {
		if len(seeds) >= maxGraphSeeds {
			break
		}
		if len([]rune(term)) < 3 {
			continue
		}
		entities, err := r.reader.FindEntitiesByName(ctx, workspaceID, term, 2)
		if err != nil {
			continue
		}
		for _, ent := range entities {
			if seen[ent.ID] || len(seeds) >= maxGraphSeeds {
				continue
			}
			seen[ent.ID] = true
			seeds = append(seeds, types.Ref{Kind: types.RefEntity, ID: ent.ID})
		}
	}
	return seeds
}

// compose hydrates the ranked candidates and assembles the response
// envelope. TotalCandidates reports the pre-truncation candidate count on
// every path. Partial is set when the overall deadline expired before
// composition; Degraded when candidates existed but none hydrated.
func (r *Router) compose(ctx context.Context, workspaceID, queryID string, ranked []*types.Candidate, graphResult *graph.Result, limit, total int, warnings []string) (*types.RankedResults, *types.Latency) {
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	lat := &types.Latency{}
	hydStart := time.Now()
	hydCtx, hydCancel := context.WithTimeout(ctx, r.cfg.Timeouts.Hydration)
	hydrated, degraded, err := r.hydrator.Hydrate(hydCtx, workspaceID, ranked)
	hydCancel()
	lat.HydrationMs = time.Since(hydStart).Milliseconds()
	if err != nil {
		logger.Warn("router: hydration failed for workspace %s: %v", workspaceID, err)
		hydrated = nil
		degraded = len(ranked) > 0
	}
	if degraded && len(ranked) > 0 {
		warnings = append(warnings, "hydration degraded, no candidates resolved")
	}

	results := make([]types.Result, 0, len(hydrated))
	for _, h := range hydrated {
		res := types.Result{
			DocumentID:    h.Document.ID,
			ChunkID:       h.Candidate.ChunkID,
			Score:         h.Candidate.Score,
			Title:         h.Document.Title,
			Source:        h.Document.Source,
			OccurredAt:    h.Document.OccurredAt,
			Highlight:     h.Snippet,
			Contributions: h.Candidate.Contributions,
		}
		results = append(results, res)
	}

	resp := &types.RankedResults{
		QueryID:         queryID,
		Results:         results,
		TotalCandidates: total,
		Warnings:        warnings,
		Partial:         ctx.Err() != nil,
		Degraded:        degraded && len(ranked) > 0,
	}
	if graphResult != nil && (len(graphResult.Edges) > 0 || len(graphResult.Entities) > 0) {
		resp.Rationale = &types.Rationale{
			Entities: graphResult.Entities,
			Edges:    graphResult.Edges,
		}
	}
	return resp, lat
}

// Contents resolves a single known ID to its full display payload. This is
// a pure hydration bypass: no retrieval, no ranking.
func (r *Router) Contents(ctx context.Context, workspaceID, id string) (*types.HydratedPayload, error) {
	if strings.TrimSpace(id) == "" {
		return nil, types.ErrNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeouts.Overall)
	defer cancel()
	return r.hydrator.Contents(ctx, workspaceID, id)
}

// ContentsBatch resolves several known IDs in one call, preserving input
// order. IDs that do not resolve in the workspace are dropped rather than
// failing the batch.
func (r *Router) ContentsBatch(ctx context.Context, workspaceID string, ids []string) ([]*types.HydratedPayload, error) {
	if workspaceID == "" {
		return nil, types.ErrWorkspaceRequired
	}
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeouts.Overall)
	defer cancel()

	out := make([]*types.HydratedPayload, 0, len(ids))
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			continue
		}
		payload, err := r.hydrator.Contents(ctx, workspaceID, id)
		if err != nil {
			if errors.Is(err, types.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, payload)
	}
	return out, nil
}

// Similar finds chunks near a known chunk or document in embedding space.
// The anchor itself is excluded from the results.
func (r *Router) Similar(ctx context.Context, workspaceID, id string, limit int) (*types.RankedResults, error) {
	if workspaceID == "" {
		return nil, types.ErrWorkspaceRequired
	}
	if r.vector == nil || r.embedder == nil {
		return nil, types.ErrBackendUnavailable
	}
	if limit <= 0 {
		limit = r.cfg.Rerank.TopN
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeouts.Overall)
	defer cancel()

	anchor, err := r.anchorChunk(ctx, workspaceID, id)
	if err != nil {
		return nil, err
	}

	emb, err := r.embedder.Embed(ctx, anchor.Content)
	if err != nil {
		return nil, types.ErrBackendUnavailable
	}

	vecCtx, vecCancel := context.WithTimeout(ctx, r.cfg.Timeouts.Vector)
	hits, err := r.vector.Search(vecCtx, workspaceID, r.cfg.EmbeddingVersion, emb.Vector, limit+1, nil)
	vecCancel()
	if err != nil {
		return nil, err
	}

	cands := neighborCandidates(workspaceID, hits, anchor.ID)
	resp, lat := r.compose(ctx, workspaceID, uuid.NewString(), cands, nil, limit, len(cands), nil)
	lat.TotalMs = time.Since(start).Milliseconds()
	resp.LatencyMs = *lat
	return resp, nil
}

// SimilarText finds chunks near free text in embedding space. The text is
// embedded directly; there is no anchor chunk and nothing to exclude.
func (r *Router) SimilarText(ctx context.Context, workspaceID, text string, limit int) (*types.RankedResults, error) {
	if workspaceID == "" {
		return nil, types.ErrWorkspaceRequired
	}
	if r.vector == nil || r.embedder == nil {
		return nil, types.ErrBackendUnavailable
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, types.ErrEmptyQuery
	}
	if limit <= 0 {
		limit = r.cfg.Rerank.TopN
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeouts.Overall)
	defer cancel()

	emb, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return nil, types.ErrBackendUnavailable
	}

	vecCtx, vecCancel := context.WithTimeout(ctx, r.cfg.Timeouts.Vector)
	hits, err := r.vector.Search(vecCtx, workspaceID, r.cfg.EmbeddingVersion, emb.Vector, limit, nil)
	vecCancel()
	if err != nil {
		return nil, err
	}

	cands := neighborCandidates(workspaceID, hits, "")
	resp, lat := r.compose(ctx, workspaceID, uuid.NewString(), cands, nil, limit, len(cands), nil)
	lat.TotalMs = time.Since(start).Milliseconds()
	resp.LatencyMs = *lat
	return resp, nil
}

// neighborCandidates converts nearest-neighbor hits into sorted candidates,
// skipping the anchor chunk when one exists.
func neighborCandidates(workspaceID string, hits []types.ScoredCandidate, anchorID string) []*types.Candidate {
	cands := make([]*types.Candidate, 0, len(hits))
	for _, hit := range hits {
		if anchorID != "" && hit.ChunkID == anchorID {
			continue
		}
		cands = append(cands, &types.Candidate{
			ChunkID:     hit.ChunkID,
			DocumentID:  hit.DocumentID,
			WorkspaceID: workspaceID,
			Score:       hit.Score,
			OccurredAt:  hit.OccurredAt,
			Contributions: []types.Contribution{
				{Source: types.SourceVector, RawScore: hit.Score},
			},
		})
	}
	fusion.Sort(cands)
	return cands
}

// anchorChunk resolves the Similar anchor: a chunk ID directly, or a
// document ID via its first active chunk.
func (r *Router) anchorChunk(ctx context.Context, workspaceID, id string) (*types.Chunk, error) {
	if chunk, err := r.reader.GetChunk(ctx, workspaceID, id); err == nil {
		return chunk, nil
	}
	chunkIDs, err := r.reader.ChunksForDocument(ctx, workspaceID, id)
	if err != nil {
		return nil, err
	}
	if len(chunkIDs) == 0 {
		return nil, types.ErrNotFound
	}
	return r.reader.GetChunk(ctx, workspaceID, chunkIDs[0])
}
