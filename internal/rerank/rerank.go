// Package rerank implements the gated cross-encoder pass over the fused
// shortlist. Reranking is strictly optional: every failure mode falls back
// to the fused order, so the gate can only improve precision, never cost
// availability.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/lightfast/retrieval-router/internal/logger"
	"github.com/lightfast/retrieval-router/pkg/types"
)

// ErrGateClosed reports that gating conditions kept the cross-encoder from
// running. Callers use the fused order unchanged.
var ErrGateClosed = errors.New("rerank: gate closed")

// Doc is one shortlist entry submitted to the cross-encoder.
type Doc struct {
	ID   string
	Text string
}

// Scorer scores query/document pairs. Implementations must be safe for
// concurrent use.
type Scorer interface {
	Score(ctx context.Context, query string, docs []Doc) ([]float64, error)
}

// Options configure one Gate.
type Options struct {
	MinInput     int     // fused candidates required before the gate opens
	TopN         int     // shortlist size submitted to the cross-encoder
	DefaultFloor float64 // relevance floor when no workspace floor exists
	Floors       map[string]float64
	RateLimit    float64 // cross-encoder calls per second; <=0 disables limiting
}

// Gate decides whether a query earns a cross-encoder pass and applies the
// result when it does.
type Gate struct {
	scorer  Scorer
	opts    Options
	limiter *rate.Limiter
}

// NewGate builds a gate around a scorer. A nil scorer produces a gate that
// is permanently closed, which is the configured state when no rerank
// endpoint is set.
func NewGate(scorer Scorer, opts Options) *Gate {
	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	return &Gate{scorer: scorer, opts: opts, limiter: limiter}
}

// Admits reports whether a fused list of the given size could open the
// gate. Callers check it before preparing the shortlist so a gate that is
// certain to stay closed costs nothing.
func (g *Gate) Admits(fusedLen int) bool {
	return g.scorer != nil && fusedLen >= g.opts.MinInput
}

// floorFor returns the calibrated relevance floor for a workspace.
func (g *Gate) floorFor(workspaceID string) float64 {
	if f, ok := g.opts.Floors[workspaceID]; ok {
		return f
	}
	return g.opts.DefaultFloor
}

// Apply reranks the head of the fused list when gating conditions hold and
// returns the adjusted ordering. The returned slice is always a valid
// ranking: on a closed gate or any scorer failure it is the fused input,
// and the error (ErrGateClosed or the scorer's) tells the caller which.
//
// Reranked candidates whose cross-encoder score falls below the workspace
// relevance floor are dropped; fused-order candidates past the shortlist
// are kept behind the reranked head untouched.
func (g *Gate) Apply(ctx context.Context, workspaceID, query string, fused []*types.Candidate, texts map[string]string) ([]*types.Candidate, error) {
	if g.scorer == nil {
		return fused, ErrGateClosed
	}
	if len(fused) < g.opts.MinInput {
		return fused, ErrGateClosed
	}
	if g.limiter != nil && !g.limiter.Allow() {
		logger.Warn("rerank: rate limit reached for workspace %s, using fused order", workspaceID)
		return fused, ErrGateClosed
	}

	topN := g.opts.TopN
	if topN > len(fused) {
		topN = len(fused)
	}

	head := fused[:topN]
	docs := make([]Doc, 0, topN)
	members := make([]*types.Candidate, 0, topN)
	for _, cand := range head {
		text, ok := texts[cand.ChunkID]
		if !ok || text == "" {
			// Document-level candidates carry no chunk text to score.
			continue
		}
		docs = append(docs, Doc{ID: cand.ChunkID, Text: text})
		members = append(members, cand)
	}
	if len(docs) == 0 {
		return fused, ErrGateClosed
	}

	scores, err := g.scorer.Score(ctx, query, docs)
	if err != nil {
		logger.Warn("rerank: scorer failed for workspace %s: %v", workspaceID, err)
		return fused, err
	}
	if len(scores) != len(docs) {
		logger.Warn("rerank: score count mismatch (%d docs, %d scores), using fused order", len(docs), len(scores))
		return fused, fmt.Errorf("rerank: score count mismatch")
	}

	floor := g.floorFor(workspaceID)
	reranked := make([]*types.Candidate, 0, len(members))
	for i, cand := range members {
		if scores[i] < floor {
			continue
		}
		adjusted := *cand
		adjusted.Score = scores[i]
		adjusted.Contributions = append(append([]types.Contribution{}, cand.Contributions...), types.Contribution{
			Source:   types.SourceRerank,
			RawScore: scores[i],
		})
		reranked = append(reranked, &adjusted)
	}

	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].Score > reranked[j].Score
	})

	// Unscored head entries and the tail keep their fused order behind the
	// reranked block.
	inHead := make(map[string]bool, len(members))
	for _, cand := range members {
		inHead[cand.ChunkID] = true
	}
	out := reranked
	for _, cand := range head {
		if !inHead[cand.ChunkID] {
			out = append(out, cand)
		}
	}
	out = append(out, fused[topN:]...)
	return out, nil
}

// HTTPScorer calls a Cohere-compatible rerank endpoint.
type HTTPScorer struct {
	httpClient *http.Client
	url        string
	apiKey     string
	model      string
}

// NewHTTPScorer validates the endpoint and returns a scorer. The client
// timeout is a backstop; the per-call budget comes from the context.
func NewHTTPScorer(url, apiKey, model string) (*HTTPScorer, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("rerank: endpoint URL required")
	}
	if model == "" {
		model = "rerank-v3.5"
	}
	return &HTTPScorer{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		url:        url,
		apiKey:     apiKey,
		model:      model,
	}, nil
}

// Score submits the query/document pairs and returns one relevance score
// per document, in input order.
func (s *HTTPScorer) Score(ctx context.Context, query string, docs []Doc) ([]float64, error) {
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}

	body, err := json.Marshal(map[string]interface{}{
		"model":     s.model,
		"query":     query,
		"documents": texts,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("rerank error %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded struct {
		Results []struct {
			Index          int     `json:"index"`
			RelevanceScore float64 `json:"relevance_score"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	scores := make([]float64, len(docs))
	for _, r := range decoded.Results {
		if r.Index < 0 || r.Index >= len(scores) {
			return nil, fmt.Errorf("rerank returned out-of-range index %d", r.Index)
		}
		scores[r.Index] = r.RelevanceScore
	}
	return scores, nil
}
