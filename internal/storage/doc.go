// Package storage provides the durable store reader for the retrieval
// router: documents, chunks, entities, and relationship adjacency over a
// SQLite read replica, plus the FTS5 full-text index backing the lexical
// search adapter.
//
// # Architecture
//
// The router is read-only with respect to durable storage. Ingestion
// delivers versioned documents, chunks, entities, and edges; this package
// only queries them. The one write surface is fixture seeding (seed.go)
// for tests and local development.
//
// # Build Modes
//
// Two SQLite drivers are supported via build tags:
//
//   - Default (pure Go): modernc.org/sqlite, CGO_ENABLED=0
//   - cgo_sqlite: github.com/mattn/go-sqlite3, CGO_ENABLED=1
//
// Both compile the same schema and queries; the CGO build is faster on
// large replicas.
//
// # Workspace Isolation
//
// Every query takes a workspaceID and filters on it in SQL. No call path
// exists that reads rows across workspaces.
package storage
