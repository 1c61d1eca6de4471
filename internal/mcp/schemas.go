package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// searchTool returns the tool definition for search
func searchTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search",
		Description: "Search a workspace with natural language, keywords, or an identifier like #123 or ENG-442",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"workspace_id": map[string]interface{}{
					"type":        "string",
					"description": "Workspace to search; results never cross workspaces",
				},
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Query text. Supports inline filters: source:github type:issue author:alice after:2026-01-01 before:2026-06-01",
				},
				"mode": map[string]interface{}{
					"type":        "string",
					"description": "Query mode: auto classifies from the input shape, semantic forces retrieval, identifier forces an exact lookup",
					"enum":        []string{"auto", "semantic", "identifier"},
					"default":     "auto",
				},
				"rerank": map[string]interface{}{
					"type":        "boolean",
					"description": "Request the cross-encoder rerank pass; the gate may still decline",
					"default":     true,
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
			},
			Required: []string{"workspace_id", "query"},
		},
	}
}

// getContentsTool returns the tool definition for get_contents
func getContentsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_contents",
		Description: "Fetch the full contents of known documents or chunks by ID, bypassing search. Takes a single id or a batch of ids",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"workspace_id": map[string]interface{}{
					"type":        "string",
					"description": "Workspace the IDs belong to",
				},
				"id": map[string]interface{}{
					"type":        "string",
					"description": "Document or chunk ID",
				},
				"ids": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Batch of document or chunk IDs; unresolved IDs are dropped",
				},
			},
			Required: []string{"workspace_id"},
		},
	}
}

// findSimilarTool returns the tool definition for find_similar
func findSimilarTool() mcp.Tool {
	return mcp.Tool{
		Name:        "find_similar",
		Description: "Find chunks semantically similar to a known chunk or document, or to free text",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"workspace_id": map[string]interface{}{
					"type":        "string",
					"description": "Workspace to search within",
				},
				"id": map[string]interface{}{
					"type":        "string",
					"description": "Anchor chunk or document ID; the anchor is excluded from results",
				},
				"text": map[string]interface{}{
					"type":        "string",
					"description": "Free text to embed as the anchor instead of an ID",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
			},
			Required: []string{"workspace_id"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report backend availability and the active embedding version",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
