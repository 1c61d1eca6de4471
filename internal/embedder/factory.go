package embedder

import (
	"fmt"
	"os"
	"strings"
)

// Environment variables consulted by NewFromEnv.
const (
	EnvProvider     = "RETRIEVAL_EMBEDDING_PROVIDER"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	EnvJinaAPIKey   = "JINA_API_KEY"
)

// NewFromEnv creates an embedder based on environment variables.
// Priority:
//  1. RETRIEVAL_EMBEDDING_PROVIDER (openai, jina, local)
//  2. Whichever API key is present: OPENAI_API_KEY, JINA_API_KEY
//  3. The local deterministic provider
func NewFromEnv(cacheSize int) (Embedder, error) {
	provider := strings.ToLower(os.Getenv(EnvProvider))
	openaiKey := os.Getenv(EnvOpenAIAPIKey)
	jinaKey := os.Getenv(EnvJinaAPIKey)

	cache := NewCache(cacheSize)

	if provider != "" {
		switch provider {
		case ProviderOpenAI:
			return NewOpenAIProvider(openaiKey, cache)
		case ProviderJina:
			return NewJinaProvider(jinaKey, cache)
		case ProviderLocal:
			return NewLocalProvider(cache)
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
		}
	}

	if openaiKey != "" {
		return NewOpenAIProvider(openaiKey, cache)
	}
	if jinaKey != "" {
		return NewJinaProvider(jinaKey, cache)
	}

	return NewLocalProvider(cache)
}
