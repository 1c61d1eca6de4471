// Package config defines the typed configuration for the retrieval router.
//
// Every recognized option is an explicit struct field with a documented
// effect; nothing is consumed as an untyped map at call sites. Config is
// parsed from environment variables once at startup and validated by
// Validate. A validation failure is the only condition that prevents the
// router from serving at all.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variable names recognized by Load.
const (
	EnvDBPath           = "RETRIEVAL_DB_PATH"
	EnvQdrantURL        = "QDRANT_URL"
	EnvQdrantAPIKey     = "QDRANT_API_KEY"
	EnvRedisAddr        = "REDIS_ADDR"
	EnvRedisPassword    = "REDIS_PASSWORD"
	EnvRedisDB          = "REDIS_DB"
	EnvRerankURL        = "RERANK_URL"
	EnvRerankAPIKey     = "RERANK_API_KEY"
	EnvEmbeddingVersion = "RETRIEVAL_EMBEDDING_VERSION"
	EnvLexicalWeight    = "RETRIEVAL_LEXICAL_WEIGHT"
	EnvVectorWeight     = "RETRIEVAL_VECTOR_WEIGHT"
	EnvGraphWeight      = "RETRIEVAL_GRAPH_WEIGHT"
	EnvRelevanceFloors  = "RETRIEVAL_RELEVANCE_FLOORS"
	EnvVerbose          = "RETRIEVAL_VERBOSE"
)

// Defaults for tunable parameters.
const (
	DefaultLexicalTimeout   = 30 * time.Millisecond
	DefaultVectorTimeout    = 40 * time.Millisecond
	DefaultGraphTimeout     = 40 * time.Millisecond
	DefaultRerankTimeout    = 60 * time.Millisecond
	DefaultHydrationTimeout = 50 * time.Millisecond

	// Hard ceiling of 2x the semantic p95 target (150ms).
	DefaultOverallDeadline = 300 * time.Millisecond

	DefaultFusedTopK       = 50
	DefaultRerankMinInput  = 20
	DefaultRerankTopN      = 10
	DefaultGraphMaxHops    = 2
	DefaultGraphDecay      = 0.5
	DefaultCacheTTL        = 15 * time.Minute
	DefaultEmbeddingCache  = 10000
	DefaultRelevanceFloor  = 0.0
	DefaultRerankRateLimit = 20 // requests per second
)

// Weights holds the per-source fusion weights. All must be >= 0.
type Weights struct {
	Lexical float64
	Vector  float64
	Graph   float64
}

// Timeouts holds the per-branch sub-timeouts nested inside the overall
// per-query deadline.
type Timeouts struct {
	Lexical   time.Duration
	Vector    time.Duration
	Graph     time.Duration
	Rerank    time.Duration
	Hydration time.Duration
	Overall   time.Duration
}

// Rerank holds the reranker gate configuration. The per-workspace floors
// are calibrated by an offline process and injected here; the router never
// computes them inline.
type Rerank struct {
	URL             string
	APIKey          string
	MinInput        int     // minimum fused candidates before the gate opens
	TopN            int     // size of the reranked shortlist
	DefaultFloor    float64 // relevance floor for workspaces without a calibrated one
	WorkspaceFloors map[string]float64
	RateLimit       float64 // cross-encoder requests per second
}

// Graph holds traversal tuning.
type Graph struct {
	MaxHops int
	Decay   float64 // per-hop contribution decay, in (0, 1]
}

// Config is the full router configuration.
type Config struct {
	DBPath           string
	QdrantURL        string
	QdrantAPIKey     string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	EmbeddingVersion string
	EmbeddingCache   int

	Weights   Weights
	Timeouts  Timeouts
	Rerank    Rerank
	Graph     Graph
	FusedTopK int
	CacheTTL  time.Duration
	Verbose   bool
}

// Load builds a Config from environment variables, applying defaults for
// anything unset.
func Load() (*Config, error) {
	cfg := &Config{
		DBPath:           strings.TrimSpace(os.Getenv(EnvDBPath)),
		QdrantURL:        strings.TrimSpace(os.Getenv(EnvQdrantURL)),
		QdrantAPIKey:     strings.TrimSpace(os.Getenv(EnvQdrantAPIKey)),
		RedisAddr:        strings.TrimSpace(os.Getenv(EnvRedisAddr)),
		RedisPassword:    os.Getenv(EnvRedisPassword),
		EmbeddingVersion: strings.TrimSpace(os.Getenv(EnvEmbeddingVersion)),
		EmbeddingCache:   DefaultEmbeddingCache,
		Weights: Weights{
			Lexical: envFloat(EnvLexicalWeight, 1.0),
			Vector:  envFloat(EnvVectorWeight, 1.0),
			Graph:   envFloat(EnvGraphWeight, 0.5),
		},
		Timeouts: Timeouts{
			Lexical:   DefaultLexicalTimeout,
			Vector:    DefaultVectorTimeout,
			Graph:     DefaultGraphTimeout,
			Rerank:    DefaultRerankTimeout,
			Hydration: DefaultHydrationTimeout,
			Overall:   DefaultOverallDeadline,
		},
		Rerank: Rerank{
			URL:          strings.TrimSpace(os.Getenv(EnvRerankURL)),
			APIKey:       strings.TrimSpace(os.Getenv(EnvRerankAPIKey)),
			MinInput:     DefaultRerankMinInput,
			TopN:         DefaultRerankTopN,
			DefaultFloor: DefaultRelevanceFloor,
			RateLimit:    DefaultRerankRateLimit,
		},
		Graph: Graph{
			MaxHops: DefaultGraphMaxHops,
			Decay:   DefaultGraphDecay,
		},
		FusedTopK: DefaultFusedTopK,
		CacheTTL:  DefaultCacheTTL,
		Verbose:   envBool(EnvVerbose),
	}

	if raw := strings.TrimSpace(os.Getenv(EnvRedisDB)); raw != "" {
		db, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", EnvRedisDB, err)
		}
		cfg.RedisDB = db
	}

	floors, err := parseFloors(os.Getenv(EnvRelevanceFloors))
	if err != nil {
		return nil, err
	}
	cfg.Rerank.WorkspaceFloors = floors

	if cfg.EmbeddingVersion == "" {
		cfg.EmbeddingVersion = "v1"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration can serve queries. Missing
// required backends are fatal; everything else has a safe default.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("config: %s is required", EnvDBPath)
	}
	if c.Weights.Lexical < 0 || c.Weights.Vector < 0 || c.Weights.Graph < 0 {
		return fmt.Errorf("config: fusion weights must be >= 0")
	}
	if c.Graph.MaxHops < 0 {
		return fmt.Errorf("config: graph max hops must be >= 0")
	}
	if c.Graph.Decay <= 0 || c.Graph.Decay > 1 {
		return fmt.Errorf("config: graph decay must be in (0, 1]")
	}
	if c.FusedTopK <= 0 {
		return fmt.Errorf("config: fused top-K must be positive")
	}
	if c.Rerank.TopN <= 0 || c.Rerank.MinInput < 0 {
		return fmt.Errorf("config: invalid rerank thresholds")
	}
	for ws, floor := range c.Rerank.WorkspaceFloors {
		if floor < 0 || floor > 1 {
			return fmt.Errorf("config: relevance floor for %s must be in [0, 1]", ws)
		}
	}
	if c.Timeouts.Overall <= 0 {
		return fmt.Errorf("config: overall deadline must be positive")
	}
	return nil
}

// FloorFor returns the calibrated relevance floor for a workspace, or the
// default when none has been injected.
func (c *Config) FloorFor(workspaceID string) float64 {
	if f, ok := c.Rerank.WorkspaceFloors[workspaceID]; ok {
		return f
	}
	return c.Rerank.DefaultFloor
}

// parseFloors parses "ws1=0.42,ws2=0.35" into a floor map.
func parseFloors(raw string) (map[string]float64, error) {
	floors := make(map[string]float64)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return floors, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, val, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("config: malformed relevance floor %q", pair)
		}
		floor, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return nil, fmt.Errorf("config: parse relevance floor %q: %w", pair, err)
		}
		floors[strings.TrimSpace(key)] = floor
	}
	return floors, nil
}

func envFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return raw == "1" || raw == "true" || raw == "yes"
}
