// Package embedder generates query embeddings for the vector search path.
// Document embeddings are produced by the ingestion pipeline; the router
// only ever embeds short query strings, and caches them aggressively since
// query text repeats.
package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Common errors
var (
	ErrEmptyText         = errors.New("text cannot be empty")
	ErrProviderFailed    = errors.New("embedding provider failed")
	ErrUnknownProvider   = errors.New("unknown embedding provider")
	ErrNoProviderEnabled = errors.New("no embedding provider configured")
)

// Embedding is a query vector with provenance metadata. The Model tag maps
// to the embedding version the vector index is partitioned by.
type Embedding struct {
	Vector    []float32
	Dimension int
	Provider  string
	Model     string
}

// Embedder generates embeddings for query text.
type Embedder interface {
	// Embed returns the embedding for a single query string.
	Embed(ctx context.Context, text string) (*Embedding, error)

	// Dimension returns the embedding dimension for this provider.
	Dimension() int

	// Provider returns the provider name.
	Provider() string

	// Model returns the model name.
	Model() string

	// Close releases any resources held by the embedder.
	Close() error
}

// Cache provides in-memory LRU caching of query embeddings by text hash.
type Cache struct {
	cache *lru.Cache[string, *Embedding]
}

// NewCache creates a query-embedding cache with LRU eviction.
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = 10000
	}
	cache, err := lru.New[string, *Embedding](maxLen)
	if err != nil {
		// Only reachable with a non-positive size, which we just guarded.
		cache, _ = lru.New[string, *Embedding](10000)
	}
	return &Cache{cache: cache}
}

// Get retrieves a deep copy of a cached embedding. The copy keeps caller
// mutations from corrupting the cached vector.
func (c *Cache) Get(hash string) (*Embedding, bool) {
	emb, ok := c.cache.Get(hash)
	if !ok {
		return nil, false
	}

	vectorCopy := make([]float32, len(emb.Vector))
	copy(vectorCopy, emb.Vector)

	return &Embedding{
		Vector:    vectorCopy,
		Dimension: emb.Dimension,
		Provider:  emb.Provider,
		Model:     emb.Model,
	}, true
}

// Set stores an embedding; LRU eviction bounds memory automatically.
func (c *Cache) Set(hash string, emb *Embedding) {
	c.cache.Add(hash, emb)
}

// Size returns the current cache size.
func (c *Cache) Size() int {
	return c.cache.Len()
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.cache.Purge()
}

// HashText computes the SHA-256 cache key for query text.
func HashText(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}
