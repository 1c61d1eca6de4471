package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightfast/retrieval-router/internal/config"
	"github.com/lightfast/retrieval-router/internal/storage"
	"github.com/lightfast/retrieval-router/pkg/types"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		DBPath:           filepath.Join(t.TempDir(), "router.db"),
		EmbeddingVersion: "v1",
		Weights:          config.Weights{Lexical: 1.0, Vector: 1.0, Graph: 0.5},
		Timeouts: config.Timeouts{
			Lexical:   config.DefaultLexicalTimeout,
			Vector:    config.DefaultVectorTimeout,
			Graph:     config.DefaultGraphTimeout,
			Rerank:    config.DefaultRerankTimeout,
			Hydration: config.DefaultHydrationTimeout,
			Overall:   config.DefaultOverallDeadline,
		},
		Rerank: config.Rerank{
			MinInput: config.DefaultRerankMinInput,
			TopN:     config.DefaultRerankTopN,
		},
		Graph:     config.Graph{MaxHops: 2, Decay: 0.5},
		FusedTopK: config.DefaultFusedTopK,
		CacheTTL:  config.DefaultCacheTTL,
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestServer_Initialization(t *testing.T) {
	t.Run("server has all required components", func(t *testing.T) {
		server, err := NewServer(testConfig(t))
		require.NoError(t, err)
		defer func() { _ = server.reader.Close() }()

		assert.NotNil(t, server.mcp, "MCP server should be initialized")
		assert.NotNil(t, server.router, "Router should be initialized")
		assert.NotNil(t, server.reader, "Storage should be initialized")
		assert.NotNil(t, server.cache, "Cache should be initialized")
	})

	t.Run("missing db path fails validation", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.DBPath = ""
		assert.Error(t, cfg.Validate())
	})
}

func callTool(t *testing.T, server *Server, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]interface{}) (*mcp.CallToolResult, error) {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return handler(context.Background(), req)
}

func TestServer_SearchTool(t *testing.T) {
	server, err := NewServer(testConfig(t))
	require.NoError(t, err)
	defer func() { _ = server.reader.Close() }()

	t.Run("missing workspace is invalid params", func(t *testing.T) {
		_, err := callTool(t, server, server.handleSearch, map[string]interface{}{
			"query": "billing outage",
		})
		require.Error(t, err)
		var mcpErr *MCPError
		require.ErrorAs(t, err, &mcpErr)
		assert.Equal(t, ErrorCodeInvalidParams, mcpErr.Code)
	})

	t.Run("empty query is rejected", func(t *testing.T) {
		_, err := callTool(t, server, server.handleSearch, map[string]interface{}{
			"workspace_id": "ws-test",
			"query":        "",
		})
		require.Error(t, err)
		var mcpErr *MCPError
		require.ErrorAs(t, err, &mcpErr)
		assert.Equal(t, ErrorCodeEmptyQuery, mcpErr.Code)
	})

	t.Run("out of range limit is rejected", func(t *testing.T) {
		_, err := callTool(t, server, server.handleSearch, map[string]interface{}{
			"workspace_id": "ws-test",
			"query":        "billing",
			"limit":        float64(500),
		})
		require.Error(t, err)
		var mcpErr *MCPError
		require.ErrorAs(t, err, &mcpErr)
		assert.Equal(t, ErrorCodeInvalidParams, mcpErr.Code)
	})

	t.Run("unrecognized mode is rejected", func(t *testing.T) {
		_, err := callTool(t, server, server.handleSearch, map[string]interface{}{
			"workspace_id": "ws-test",
			"query":        "billing",
			"mode":         "hybrid",
		})
		require.Error(t, err)
		var mcpErr *MCPError
		require.ErrorAs(t, err, &mcpErr)
		assert.Equal(t, ErrorCodeInvalidParams, mcpErr.Code)
	})

	t.Run("explicit mode and rerank flags are accepted", func(t *testing.T) {
		result, err := callTool(t, server, server.handleSearch, map[string]interface{}{
			"workspace_id": "ws-empty",
			"query":        "ENG-442",
			"mode":         "semantic",
			"rerank":       false,
		})
		require.NoError(t, err)
		require.NotNil(t, result)
	})

	t.Run("empty workspace returns empty results", func(t *testing.T) {
		result, err := callTool(t, server, server.handleSearch, map[string]interface{}{
			"workspace_id": "ws-empty",
			"query":        "billing outage",
		})
		require.NoError(t, err)
		require.NotNil(t, result)

		var decoded struct {
			QueryID string `json:"queryId"`
			Results []any  `json:"results"`
		}
		require.NoError(t, json.Unmarshal([]byte(textContent(t, result)), &decoded))
		assert.NotEmpty(t, decoded.QueryID)
		assert.Empty(t, decoded.Results)
	})
}

func TestServer_GetContentsTool(t *testing.T) {
	cfg := testConfig(t)
	server, err := NewServer(cfg)
	require.NoError(t, err)
	defer func() { _ = server.reader.Close() }()

	seedFixtures(t, cfg.DBPath)

	t.Run("unknown id maps to not found", func(t *testing.T) {
		_, err := callTool(t, server, server.handleGetContents, map[string]interface{}{
			"workspace_id": "ws-test",
			"id":           "missing",
		})
		require.Error(t, err)
		var mcpErr *MCPError
		require.ErrorAs(t, err, &mcpErr)
		assert.Equal(t, ErrorCodeNotFound, mcpErr.Code)
	})

	t.Run("known document resolves", func(t *testing.T) {
		result, err := callTool(t, server, server.handleGetContents, map[string]interface{}{
			"workspace_id": "ws-test",
			"id":           "doc-1",
		})
		require.NoError(t, err)

		var decoded struct {
			Document struct {
				ID    string `json:"id"`
				Title string `json:"title"`
			} `json:"document"`
		}
		require.NoError(t, json.Unmarshal([]byte(textContent(t, result)), &decoded))
		assert.Equal(t, "doc-1", decoded.Document.ID)
		assert.Equal(t, "Billing runbook", decoded.Document.Title)
	})

	t.Run("id batch drops unresolved entries", func(t *testing.T) {
		result, err := callTool(t, server, server.handleGetContents, map[string]interface{}{
			"workspace_id": "ws-test",
			"ids":          []interface{}{"doc-1", "missing"},
		})
		require.NoError(t, err)

		var decoded []struct {
			Document struct {
				ID string `json:"id"`
			} `json:"document"`
		}
		require.NoError(t, json.Unmarshal([]byte(textContent(t, result)), &decoded))
		require.Len(t, decoded, 1)
		assert.Equal(t, "doc-1", decoded[0].Document.ID)
	})

	t.Run("malformed id batch is invalid params", func(t *testing.T) {
		_, err := callTool(t, server, server.handleGetContents, map[string]interface{}{
			"workspace_id": "ws-test",
			"ids":          []interface{}{"doc-1", 7},
		})
		require.Error(t, err)
		var mcpErr *MCPError
		require.ErrorAs(t, err, &mcpErr)
		assert.Equal(t, ErrorCodeInvalidParams, mcpErr.Code)
	})

	t.Run("neither id nor ids is invalid params", func(t *testing.T) {
		_, err := callTool(t, server, server.handleGetContents, map[string]interface{}{
			"workspace_id": "ws-test",
		})
		require.Error(t, err)
		var mcpErr *MCPError
		require.ErrorAs(t, err, &mcpErr)
		assert.Equal(t, ErrorCodeInvalidParams, mcpErr.Code)
	})
}

func TestServer_FindSimilarTool(t *testing.T) {
	server, err := NewServer(testConfig(t))
	require.NoError(t, err)
	defer func() { _ = server.reader.Close() }()

	t.Run("unconfigured vector backend is reported", func(t *testing.T) {
		_, err := callTool(t, server, server.handleFindSimilar, map[string]interface{}{
			"workspace_id": "ws-test",
			"id":           "doc-1",
		})
		require.Error(t, err)
		var mcpErr *MCPError
		require.ErrorAs(t, err, &mcpErr)
		assert.Equal(t, ErrorCodeUnavailable, mcpErr.Code)
	})

	t.Run("text anchor also needs the vector backend", func(t *testing.T) {
		_, err := callTool(t, server, server.handleFindSimilar, map[string]interface{}{
			"workspace_id": "ws-test",
			"text":         "billing invoices",
		})
		require.Error(t, err)
		var mcpErr *MCPError
		require.ErrorAs(t, err, &mcpErr)
		assert.Equal(t, ErrorCodeUnavailable, mcpErr.Code)
	})

	t.Run("neither id nor text is invalid params", func(t *testing.T) {
		_, err := callTool(t, server, server.handleFindSimilar, map[string]interface{}{
			"workspace_id": "ws-test",
		})
		require.Error(t, err)
		var mcpErr *MCPError
		require.ErrorAs(t, err, &mcpErr)
		assert.Equal(t, ErrorCodeInvalidParams, mcpErr.Code)
	})
}

func TestServer_GetStatusTool(t *testing.T) {
	server, err := NewServer(testConfig(t))
	require.NoError(t, err)
	defer func() { _ = server.reader.Close() }()

	result, err := callTool(t, server, server.handleGetStatus, map[string]interface{}{})
	require.NoError(t, err)

	var decoded struct {
		Store struct {
			Configured bool   `json:"configured"`
			Status     string `json:"status"`
		} `json:"store"`
		Version string `json:"embeddingVersion"`
	}
	require.NoError(t, json.Unmarshal([]byte(textContent(t, result)), &decoded))
	assert.True(t, decoded.Store.Configured)
	assert.Equal(t, "ok", decoded.Store.Status)
	assert.Equal(t, "v1", decoded.Version)
}

// textContent extracts the text payload from a tool result.
func textContent(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")
	return text.Text
}

// seedFixtures writes a minimal corpus through a separate handle.
func seedFixtures(t *testing.T, dbPath string) {
	t.Helper()
	seeder, err := storage.NewSQLiteReader(dbPath)
	require.NoError(t, err)
	defer func() { _ = seeder.Close() }()

	require.NoError(t, seeder.SeedDocument(context.Background(), &types.Document{
		ID:          "doc-1",
		WorkspaceID: "ws-test",
		Source:      "notion",
		Type:        "doc",
		Title:       "Billing runbook",
		Version:     1,
	}, "ENG-1"))
}
