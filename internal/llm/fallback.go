package llm

import (
	"context"
	"log/slog"

	"github.com/loomchat/loom/internal/vector"
)

// FallbackEmbedder produces deterministic hash-based vectors locally.
// It never fails and needs no network. Its dimension intentionally differs
// from provider dimensions so fallback vectors only ever compare against
// other fallback vectors (cross-length cosine similarity is zero).
type FallbackEmbedder struct{}

var _ Embedder = FallbackEmbedder{}

// Embed returns a deterministic unit vector derived from text.
func (FallbackEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return vector.Hash(text, vector.FallbackDimension), nil
}

// EmbedBatch returns deterministic vectors for each text.
func (f FallbackEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = f.Embed(ctx, t)
	}
	return out, nil
}

// Dimension returns the fallback vector dimension.
func (FallbackEmbedder) Dimension() int {
	return vector.FallbackDimension
}

// Resilient wraps an Embedder so that provider failures degrade to local
// fallback vectors instead of errors. The tree must never block or fail
// node creation on an embedding call.
type Resilient struct {
	inner    Embedder
	fallback FallbackEmbedder
}

var _ Embedder = (*Resilient)(nil)

// NewResilient wraps inner with fallback behavior. A nil inner embedder
// degrades every call to the fallback.
func NewResilient(inner Embedder) *Resilient {
	return &Resilient{inner: inner}
}

// Embed returns the provider vector, or a local fallback vector on any
// provider failure. It never returns an error.
func (r *Resilient) Embed(ctx context.Context, text string) ([]float32, error) {
	if r.inner != nil {
		v, err := r.inner.Embed(ctx, text)
		if err == nil {
			return v, nil
		}
		slog.Warn("embedding provider failed, using local fallback", "error", err)
	}
	return r.fallback.Embed(ctx, text)
}

// EmbedBatch embeds all texts, degrading the whole batch to fallback
// vectors if the provider rejects it.
func (r *Resilient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if r.inner != nil {
		vs, err := r.inner.EmbedBatch(ctx, texts)
		if err == nil {
			return vs, nil
		}
		slog.Warn("batch embedding failed, using local fallback", "count", len(texts), "error", err)
	}
	return r.fallback.EmbedBatch(ctx, texts)
}

// Dimension returns the provider dimension when available.
func (r *Resilient) Dimension() int {
	if r.inner != nil {
		return r.inner.Dimension()
	}
	return r.fallback.Dimension()
}
