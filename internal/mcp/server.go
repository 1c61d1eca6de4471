package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/server"

	"github.com/lightfast/retrieval-router/internal/cache"
	"github.com/lightfast/retrieval-router/internal/config"
	"github.com/lightfast/retrieval-router/internal/embedder"
	"github.com/lightfast/retrieval-router/internal/graph"
	"github.com/lightfast/retrieval-router/internal/hydrate"
	"github.com/lightfast/retrieval-router/internal/lexical"
	"github.com/lightfast/retrieval-router/internal/logger"
	"github.com/lightfast/retrieval-router/internal/rerank"
	"github.com/lightfast/retrieval-router/internal/router"
	"github.com/lightfast/retrieval-router/internal/storage"
	"github.com/lightfast/retrieval-router/internal/vector"
)

const (
	// ServerName is the MCP server name
	ServerName = "retrieval-router"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with the assembled retrieval pipeline.
type Server struct {
	mcp    *server.MCPServer
	router *router.Router
	reader storage.Reader
	cache  cache.Client
}

// NewServer assembles the full pipeline from configuration. Optional
// backends (vector index, reranker, Redis) that are not configured are
// left nil; the router degrades the corresponding stages per query.
func NewServer(cfg *config.Config) (*Server, error) {
	reader, err := storage.NewSQLiteReader(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	cacheClient := newCacheClient(cfg)

	var vec vector.Searcher
	var emb embedder.Embedder
	if cfg.QdrantURL != "" {
		adapter, err := vector.NewQdrantAdapter(cfg.QdrantURL, cfg.QdrantAPIKey)
		if err != nil {
			_ = reader.Close()
			return nil, fmt.Errorf("failed to initialize vector adapter: %w", err)
		}
		vec = adapter

		emb, err = embedder.NewFromEnv(cfg.EmbeddingCache)
		if err != nil {
			_ = reader.Close()
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
	}

	var gate *rerank.Gate
	if cfg.Rerank.URL != "" {
		scorer, err := rerank.NewHTTPScorer(cfg.Rerank.URL, cfg.Rerank.APIKey, "")
		if err != nil {
			_ = reader.Close()
			return nil, fmt.Errorf("failed to initialize reranker: %w", err)
		}
		gate = rerank.NewGate(scorer, rerank.Options{
			MinInput:     cfg.Rerank.MinInput,
			TopN:         cfg.Rerank.TopN,
			DefaultFloor: cfg.Rerank.DefaultFloor,
			Floors:       cfg.Rerank.WorkspaceFloors,
			RateLimit:    cfg.Rerank.RateLimit,
		})
	}

	adjacency := graph.NewCachedAdjacency(reader, cacheClient, cfg.CacheTTL)
	engine := graph.New(adjacency)
	hydrator := hydrate.New(reader, cacheClient, cfg.CacheTTL)

	rt := router.New(cfg, reader, lexical.New(reader), vec, engine, emb, gate, hydrator)

	mcpServer := server.NewMCPServer(ServerName, ServerVersion)
	s := &Server{
		mcp:    mcpServer,
		router: rt,
		reader: reader,
		cache:  cacheClient,
	}
	s.registerTools()
	return s, nil
}

// newCacheClient prefers Redis when configured and falls back to the
// in-process cache when Redis is absent or unreachable at startup.
func newCacheClient(cfg *config.Config) cache.Client {
	if cfg.RedisAddr != "" {
		client, err := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err == nil {
			return client
		}
		logger.Warn("mcp: redis unavailable at %s, using in-process cache: %v", cfg.RedisAddr, err)
	}
	client, err := cache.NewMemoryClient(0)
	if err != nil {
		return cache.NewNoopClient()
	}
	return client
}

// Serve starts the MCP server on stdio and blocks until shutdown.
func (s *Server) Serve(ctx context.Context) error {
	defer func() {
		_ = s.cache.Close()
		_ = s.reader.Close()
	}()
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools.
func (s *Server) registerTools() {
	s.mcp.AddTool(searchTool(), s.handleSearch)
	s.mcp.AddTool(getContentsTool(), s.handleGetContents)
	s.mcp.AddTool(findSimilarTool(), s.handleFindSimilar)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
