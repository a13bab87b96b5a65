package llm

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedEmbedder memoizes embeddings by exact text. The embedding contract
// requires idempotent results for identical text, which makes an LRU safe.
type CachedEmbedder struct {
	inner Embedder
	cache *lru.Cache[string, []float32]
}

var _ Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder wraps inner with an LRU of the given size.
func NewCachedEmbedder(inner Embedder, size int) (*CachedEmbedder, error) {
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &CachedEmbedder{inner: inner, cache: cache}, nil
}

// Embed returns a cached vector when available.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		return v, nil
	}

	v, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(text, v)
	return v, nil
}

// EmbedBatch serves cached entries and only sends misses to the provider.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int

	for i, t := range texts {
		if v, ok := c.cache.Get(t); ok {
			out[i] = v
		} else {
			missing = append(missing, t)
			missingIdx = append(missingIdx, i)
		}
	}

	if len(missing) == 0 {
		return out, nil
	}

	vs, err := c.inner.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, v := range vs {
		out[missingIdx[j]] = v
		c.cache.Add(missing[j], v)
	}
	return out, nil
}

// Dimension returns the wrapped embedder's dimension.
func (c *CachedEmbedder) Dimension() int {
	return c.inner.Dimension()
}

// Len reports the number of cached entries.
func (c *CachedEmbedder) Len() int {
	return c.cache.Len()
}
