// Package types provides shared type definitions for the retrieval router.
//
// This package defines the domain types that cross component boundaries:
// documents, chunks, entities, relationship edges, per-query candidates,
// and the ranked result envelope returned to callers.
//
// # Core Types
//
// Document is the canonical normalized source artifact delivered by the
// ingestion pipeline. The router only reads documents; a new version
// supersedes the prior one without deleting it:
//
//	doc := &types.Document{
//	    ID:          "doc_8f2a",
//	    WorkspaceID: "ws_acme",
//	    Source:      "github",
//	    Title:       "Fix token refresh race",
//	    Version:     3,
//	}
//
// Chunk is the retrieval unit derived from a document. Chunks with a
// non-zero SupersededAt remain queryable for audit but are excluded from
// active retrieval.
//
// Candidate is the ephemeral per-query unit flowing through fusion and
// reranking. It combines a chunk/document reference with a fused score and
// one Contribution per retrieval source. Candidates are never persisted.
//
// # Workspace Isolation
//
// Every persisted row type carries a WorkspaceID, and query-time filtering
// must never cross workspace boundaries. Adapters enforce this at the
// request level; fusion re-checks it as a final guard.
//
// # Results
//
// RankedResults is the only structure returned across the system boundary.
// It carries the ordered results, a per-stage latency breakdown, and, when
// graph bias influenced ranking, a compact rationale trace.
package types
