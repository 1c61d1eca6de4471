// Package mcp implements the Model Context Protocol (MCP) server for the
// retrieval router.
//
// The server exposes four tools to MCP clients:
//   - search: rank workspace content for a text or identifier query
//   - get_contents: fetch a known document or chunk by ID, bypassing search
//   - find_similar: nearest neighbors of a known chunk or document
//   - get_status: backend availability and the active embedding version
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// Stdout is reserved for protocol messages; all logging goes to stderr.
//
// # Tool: search
//
//	Request:
//	{
//	  "name": "search",
//	  "arguments": {
//	    "workspace_id": "ws-acme",
//	    "query": "who owns the billing service type:doc",
//	    "limit": 10
//	  }
//	}
//
//	Response:
//	{
//	  "queryId": "9f2c...",
//	  "results": [
//	    {
//	      "documentId": "doc-17",
//	      "chunkId": "doc-17:3",
//	      "score": 0.87,
//	      "title": "Billing service runbook",
//	      "contributions": [
//	        {"source": "lexical", "rawScore": 0.61},
//	        {"source": "vector", "rawScore": 0.74}
//	      ]
//	    }
//	  ],
//	  "latencyMs": {"total": 112, "lexical": 14, "vector": 38},
//	  "rationale": {"edges": [...], "entities": [...]}
//	}
//
// Identifier-shaped queries ("#123", "ENG-442") resolve by exact lookup
// and never touch the vector index.
//
// # Error Handling
//
// The server returns standard JSON-RPC error responses. Error codes:
//   - -32602: Invalid params (missing/invalid arguments)
//   - -32603: Internal error
//   - -32001: Document or chunk not found
//   - -32004: Empty query
//   - -32005: Required backend not configured
//
// Branch-level failures inside a query are not errors: a timed-out
// adapter, a failed rerank, or a cache outage degrades the response and
// is reported in its warnings field instead.
//
// # MCP Client Configuration
//
//	{
//	  "mcpServers": {
//	    "retrieval": {
//	      "command": "/usr/local/bin/retrievald",
//	      "env": {
//	        "RETRIEVAL_DB_PATH": "/var/lib/retrieval/router.db",
//	        "QDRANT_URL": "http://localhost:6333"
//	      }
//	    }
//	  }
//	}
package mcp
