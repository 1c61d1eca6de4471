// Package vector wraps the nearest-neighbor index as a stateless search
// adapter. Collections are partitioned by workspace and embedding-model
// version; a query can only ever touch the partition matching its own
// version, so stale and current embeddings never mix in one fused result.
package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lightfast/retrieval-router/internal/logger"
	"github.com/lightfast/retrieval-router/pkg/types"
)

// Hit is one nearest-neighbor match with its chunk payload.
type Hit struct {
	ChunkID    string
	DocumentID string
	Score      float64
	OccurredAt time.Time
}

// Filter narrows vector search by document metadata, mirrored into the
// index payload by ingestion.
type Filter struct {
	Sources []string
	Types   []string
	Authors []string
}

// Searcher is the adapter contract the router depends on.
type Searcher interface {
	Search(ctx context.Context, workspaceID, embeddingVersion string, vec []float32, topK int, filter *Filter) ([]types.ScoredCandidate, error)
}

// QdrantAdapter implements Searcher over the Qdrant HTTP API.
type QdrantAdapter struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewQdrantAdapter validates the endpoint and returns an adapter. The HTTP
// client timeout is a backstop; per-call budgets come from the context.
func NewQdrantAdapter(baseURL, apiKey string) (*QdrantAdapter, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "http://localhost:6333"
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("vector: invalid qdrant URL %q", baseURL)
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("vector: parse qdrant URL: %w", err)
	}

	return &QdrantAdapter{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
	}, nil
}

// CollectionName derives the partition for a workspace and embedding
// version. Encoding the version into the collection name makes
// cross-version queries impossible by construction.
func CollectionName(workspaceID, embeddingVersion string) string {
	return fmt.Sprintf("chunks_%s_%s", workspaceID, embeddingVersion)
}

// Search queries the matching partition and returns scored candidates,
// best first. Timeouts and backend errors degrade to empty results.
func (a *QdrantAdapter) Search(ctx context.Context, workspaceID, embeddingVersion string, vec []float32, topK int, filter *Filter) ([]types.ScoredCandidate, error) {
	if workspaceID == "" {
		return nil, types.ErrWorkspaceRequired
	}
	if embeddingVersion == "" {
		return nil, types.ErrVersionMismatch
	}
	if len(vec) == 0 {
		return []types.ScoredCandidate{}, nil
	}
	if topK <= 0 {
		topK = 50
	}

	hits, err := a.search(ctx, CollectionName(workspaceID, embeddingVersion), vec, topK, filter)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			logger.Warn("vector: search timed out for workspace %s", workspaceID)
			return []types.ScoredCandidate{}, nil
		}
		logger.Warn("vector: search failed for workspace %s: %v", workspaceID, err)
		return []types.ScoredCandidate{}, nil
	}

	candidates := make([]types.ScoredCandidate, 0, len(hits))
	for _, hit := range hits {
		candidates = append(candidates, types.ScoredCandidate{
			ChunkID:     hit.ChunkID,
			DocumentID:  hit.DocumentID,
			WorkspaceID: workspaceID,
			Score:       hit.Score,
			OccurredAt:  hit.OccurredAt,
		})
	}
	return candidates, nil
}

func (a *QdrantAdapter) search(ctx context.Context, collection string, vec []float32, limit int, filter *Filter) ([]Hit, error) {
	payload := map[string]interface{}{
		"vector":       vec,
		"limit":        limit,
		"with_payload": true,
	}
	if qf := buildQdrantFilter(filter); qf != nil {
		payload["filter"] = qf
	}

	body := &bytes.Buffer{}
	if err := json.NewEncoder(body).Encode(payload); err != nil {
		return nil, fmt.Errorf("encode search payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/collections/%s/points/search", a.baseURL, url.PathEscape(collection))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("api-key", a.apiKey)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		// Collection absent means this workspace has no vectors at this
		// version yet; that is an empty result, not a failure.
		return []Hit{}, nil
	}
	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("search status %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	var decoded struct {
		Result []struct {
			ID      interface{}            `json:"id"`
			Score   float64                `json:"score"`
			Payload map[string]interface{} `json:"payload"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	hits := make([]Hit, 0, len(decoded.Result))
	for _, item := range decoded.Result {
		hit := Hit{
			ChunkID: payloadString(item.Payload, "chunkId"),
			Score:   item.Score,
		}
		if hit.ChunkID == "" {
			hit.ChunkID = fmt.Sprint(item.ID)
		}
		hit.DocumentID = payloadString(item.Payload, "documentId")
		if raw := payloadString(item.Payload, "occurredAt"); raw != "" {
			if t, err := time.Parse(time.RFC3339, raw); err == nil {
				hit.OccurredAt = t
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// buildQdrantFilter translates the metadata filter into Qdrant's
// must-match form.
func buildQdrantFilter(filter *Filter) map[string]interface{} {
	if filter == nil || (len(filter.Sources) == 0 && len(filter.Types) == 0 && len(filter.Authors) == 0) {
		return nil
	}

	must := make([]map[string]interface{}, 0, 3)
	if len(filter.Sources) > 0 {
		must = append(must, map[string]interface{}{
			"key":   "source",
			"match": map[string]interface{}{"any": filter.Sources},
		})
	}
	if len(filter.Types) > 0 {
		must = append(must, map[string]interface{}{
			"key":   "type",
			"match": map[string]interface{}{"any": filter.Types},
		})
	}
	if len(filter.Authors) > 0 {
		must = append(must, map[string]interface{}{
			"key":   "author",
			"match": map[string]interface{}{"any": filter.Authors},
		})
	}
	return map[string]interface{}{"must": must}
}

func payloadString(payload map[string]interface{}, key string) string {
	if payload == nil {
		return ""
	}
	if s, ok := payload[key].(string); ok {
		return s
	}
	return ""
}
