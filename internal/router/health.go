package router

import (
	"context"
	"time"
)

// ComponentHealth reports one backend's availability.
type ComponentHealth struct {
	Configured bool   `json:"configured"`
	Status     string `json:"status"`
}

// Health is a point-in-time snapshot of backend availability, served
// without touching the retrieval pipeline.
type Health struct {
	Store    ComponentHealth `json:"store"`
	Vector   ComponentHealth `json:"vector"`
	Rerank   ComponentHealth `json:"rerank"`
	Embedder string          `json:"embedder,omitempty"`
	Version  string          `json:"embeddingVersion"`
}

// Health probes the durable store with a cheap read and reports which
// optional backends are wired. Optional backends are never probed on the
// health path; their failures already degrade gracefully per query.
func (r *Router) Health(ctx context.Context) Health {
	h := Health{Version: r.cfg.EmbeddingVersion}

	probeCtx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
	defer cancel()
	h.Store = ComponentHealth{Configured: true, Status: "ok"}
	if _, err := r.reader.FindEntitiesByName(probeCtx, "healthcheck", "healthcheck", 1); err != nil {
		h.Store.Status = "unavailable"
	}

	h.Vector = ComponentHealth{Configured: r.vector != nil && r.embedder != nil, Status: "not configured"}
	if h.Vector.Configured {
		h.Vector.Status = "ok"
	}
	h.Rerank = ComponentHealth{Configured: r.gate != nil, Status: "not configured"}
	if h.Rerank.Configured {
		h.Rerank.Status = "ok"
	}
	if r.embedder != nil {
		h.Embedder = r.embedder.Provider() + "/" + r.embedder.Model()
	}
	return h
}
