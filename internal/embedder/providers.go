package embedder

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Provider names.
const (
	ProviderOpenAI = "openai"
	ProviderJina   = "jina"
	ProviderLocal  = "local"

	openAIEndpoint = "https://api.openai.com/v1/embeddings"
	jinaEndpoint   = "https://api.jina.ai/v1/embeddings"

	defaultOpenAIModel = "text-embedding-3-small"
	defaultJinaModel   = "jina-embeddings-v3"

	openAIDimension = 1536
	jinaDimension   = 1024
	localDimension  = 384
)

// HTTPProvider implements Embedder against any OpenAI-compatible
// embeddings endpoint (OpenAI and Jina share the request shape).
type HTTPProvider struct {
	name       string
	endpoint   string
	apiKey     string
	model      string
	dimension  int
	httpClient *http.Client
	cache      *Cache
}

// NewOpenAIProvider creates an embedder backed by the OpenAI API.
func NewOpenAIProvider(apiKey string, cache *Cache) (*HTTPProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: openai api key not set", ErrNoProviderEnabled)
	}
	return newHTTPProvider(ProviderOpenAI, openAIEndpoint, apiKey, defaultOpenAIModel, openAIDimension, cache), nil
}

// NewJinaProvider creates an embedder backed by the Jina AI API.
func NewJinaProvider(apiKey string, cache *Cache) (*HTTPProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: jina api key not set", ErrNoProviderEnabled)
	}
	return newHTTPProvider(ProviderJina, jinaEndpoint, apiKey, defaultJinaModel, jinaDimension, cache), nil
}

func newHTTPProvider(name, endpoint, apiKey, model string, dimension int, cache *Cache) *HTTPProvider {
	return &HTTPProvider{
		name:      name,
		endpoint:  endpoint,
		apiKey:    apiKey,
		model:     model,
		dimension: dimension,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		cache: cache,
	}
}

// Embed returns the embedding for a query string, consulting the cache
// first. API failures retry with exponential backoff up to the configured
// attempt limit; the caller's context bounds the whole exchange.
func (p *HTTPProvider) Embed(ctx context.Context, text string) (*Embedding, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	hash := HashText(text)
	if p.cache != nil {
		if emb, ok := p.cache.Get(hash); ok {
			return emb, nil
		}
	}

	config := DefaultRetryConfig()
	emb, err := retryWithBackoff(ctx, config, func() (*Embedding, error) {
		return p.callAPI(ctx, text)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}

	if p.cache != nil {
		p.cache.Set(hash, emb)
	}
	return emb, nil
}

func (p *HTTPProvider) callAPI(ctx context.Context, text string) (*Embedding, error) {
	body, err := json.Marshal(map[string]interface{}{
		"input": []string{text},
		"model": p.model,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("api error %d: %s", resp.StatusCode, string(snippet))
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
		Model string `json:"model"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(apiResp.Data) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}

	return &Embedding{
		Vector:    apiResp.Data[0].Embedding,
		Dimension: len(apiResp.Data[0].Embedding),
		Provider:  p.name,
		Model:     apiResp.Model,
	}, nil
}

func (p *HTTPProvider) Dimension() int   { return p.dimension }
func (p *HTTPProvider) Provider() string { return p.name }
func (p *HTTPProvider) Model() string    { return p.model }

func (p *HTTPProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

// LocalProvider produces deterministic hash-derived vectors. It exists for
// development and tests where no embedding API is reachable; identical text
// always embeds identically, which is the only property the router needs
// from it.
type LocalProvider struct {
	model string
	cache *Cache
}

// NewLocalProvider creates the local deterministic embedder.
func NewLocalProvider(cache *Cache) (*LocalProvider, error) {
	return &LocalProvider{model: "local-embeddings", cache: cache}, nil
}

func (l *LocalProvider) Embed(_ context.Context, text string) (*Embedding, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	hash := HashText(text)
	if l.cache != nil {
		if emb, ok := l.cache.Get(hash); ok {
			return emb, nil
		}
	}

	vector := make([]float32, localDimension)
	textHash := sha256.Sum256([]byte(text))
	for i := 0; i < localDimension && i < len(textHash); i++ {
		vector[i] = float32(textHash[i]) / 255.0
	}

	emb := &Embedding{
		Vector:    vector,
		Dimension: localDimension,
		Provider:  ProviderLocal,
		Model:     l.model,
	}
	if l.cache != nil {
		l.cache.Set(hash, emb)
	}
	return emb, nil
}

func (l *LocalProvider) Dimension() int   { return localDimension }
func (l *LocalProvider) Provider() string { return ProviderLocal }
func (l *LocalProvider) Model() string    { return l.model }
func (l *LocalProvider) Close() error     { return nil }
