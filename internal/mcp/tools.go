package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/lightfast/retrieval-router/internal/query"
	"github.com/lightfast/retrieval-router/internal/router"
	"github.com/lightfast/retrieval-router/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams = -32602 // Invalid method parameters
	ErrorCodeInternalError = -32603 // Internal JSON-RPC error
	ErrorCodeNotFound      = -32001 // Requested document or chunk does not exist
	ErrorCodeEmptyQuery    = -32004 // Query parameter is empty
	ErrorCodeUnavailable   = -32005 // Required backend is not configured
)

// handleSearch handles the search tool invocation.
func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	workspaceID, err := requiredString(args, "workspace_id")
	if err != nil {
		return nil, err
	}
	rawQuery, err := requiredString(args, "query")
	if err != nil {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	mode, err := query.ParseMode(optionalString(args, "mode"))
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "mode must be auto, semantic, or identifier", map[string]interface{}{
			"param": "mode",
			"value": args["mode"],
		})
	}

	limit := getIntDefault(args, "limit", 10)
	if limit < 1 || limit > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	results, err := s.router.SearchWithOptions(ctx, workspaceID, rawQuery, limit, router.SearchOptions{
		Mode:   mode,
		Rerank: getBoolDefault(args, "rerank", true),
	})
	if err != nil {
		return nil, mapRouterError(err)
	}
	return mcp.NewToolResultText(formatResponse(results)), nil
}

// handleGetContents handles the get_contents tool invocation.
func (s *Server) handleGetContents(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	workspaceID, err := requiredString(args, "workspace_id")
	if err != nil {
		return nil, err
	}

	if _, present := args["ids"]; present {
		ids, err := stringList(args, "ids")
		if err != nil {
			return nil, err
		}
		payloads, err := s.router.ContentsBatch(ctx, workspaceID, ids)
		if err != nil {
			return nil, mapRouterError(err)
		}
		return mcp.NewToolResultText(formatResponse(payloads)), nil
	}

	id, err := requiredString(args, "id")
	if err != nil {
		return nil, err
	}

	payload, err := s.router.Contents(ctx, workspaceID, id)
	if err != nil {
		return nil, mapRouterError(err)
	}
	return mcp.NewToolResultText(formatResponse(payload)), nil
}

// handleFindSimilar handles the find_similar tool invocation.
func (s *Server) handleFindSimilar(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	workspaceID, err := requiredString(args, "workspace_id")
	if err != nil {
		return nil, err
	}

	limit := getIntDefault(args, "limit", 10)
	if limit < 1 || limit > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	if text := optionalString(args, "text"); text != "" {
		results, err := s.router.SimilarText(ctx, workspaceID, text, limit)
		if err != nil {
			return nil, mapRouterError(err)
		}
		return mcp.NewToolResultText(formatResponse(results)), nil
	}

	id := optionalString(args, "id")
	if id == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "either id or text is required", map[string]interface{}{
			"param":  "id",
			"reason": "missing or empty",
		})
	}

	results, err := s.router.Similar(ctx, workspaceID, id, limit)
	if err != nil {
		return nil, mapRouterError(err)
	}
	return mcp.NewToolResultText(formatResponse(results)), nil
}

// handleGetStatus handles the get_status tool invocation.
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	health := s.router.Health(ctx)
	return mcp.NewToolResultText(formatResponse(health)), nil
}

// mapRouterError translates pipeline errors into MCP protocol errors.
func mapRouterError(err error) error {
	switch {
	case errors.Is(err, types.ErrNotFound):
		return newMCPError(ErrorCodeNotFound, "not found", map[string]interface{}{"error": err.Error()})
	case errors.Is(err, types.ErrEmptyQuery):
		return newMCPError(ErrorCodeEmptyQuery, "query is empty", nil)
	case errors.Is(err, types.ErrWorkspaceRequired):
		return newMCPError(ErrorCodeInvalidParams, "workspace_id parameter is required", map[string]interface{}{
			"param":  "workspace_id",
			"reason": "missing or empty",
		})
	case errors.Is(err, types.ErrBackendUnavailable):
		return newMCPError(ErrorCodeUnavailable, "required backend is not configured", nil)
	default:
		return newMCPError(ErrorCodeInternalError, "query failed", map[string]interface{}{"error": err.Error()})
	}
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// requiredString extracts a required string parameter.
func requiredString(args map[string]interface{}, key string) (string, error) {
	val, ok := args[key].(string)
	if !ok || val == "" {
		return "", newMCPError(ErrorCodeInvalidParams, key+" parameter is required", map[string]interface{}{
			"param":  key,
			"reason": "missing or empty",
		})
	}
	return val, nil
}

// optionalString extracts an optional string parameter; absent means "".
func optionalString(args map[string]interface{}, key string) string {
	val, _ := args[key].(string)
	return val
}

// stringList extracts a non-empty array-of-strings parameter.
func stringList(args map[string]interface{}, key string) ([]string, error) {
	raw, ok := args[key].([]interface{})
	if !ok || len(raw) == 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, key+" must be a non-empty array of strings", map[string]interface{}{
			"param": key,
		})
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok || s == "" {
			return nil, newMCPError(ErrorCodeInvalidParams, key+" must be a non-empty array of strings", map[string]interface{}{
				"param": key,
			})
		}
		out = append(out, s)
	}
	return out, nil
}

// getBoolDefault extracts a boolean parameter with a default value.
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// formatResponse renders a response value as indented JSON.
func formatResponse(data interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}
