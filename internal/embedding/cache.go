package embedding

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/neuroidss/ToolArtifact/internal/logging"
)

// CachedEngine memoizes embeddings of an underlying engine keyed by text.
// Resolver queries repeat the same context strings often, and a tool's
// "{name}: {description}" text is embedded once per creation attempt.
type CachedEngine struct {
	inner EmbeddingEngine
	cache *lru.Cache[string, []float32]
}

// NewCachedEngine wraps inner with an LRU of the given size.
func NewCachedEngine(inner EmbeddingEngine, size int) (*CachedEngine, error) {
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &CachedEngine{inner: inner, cache: cache}, nil
}

// Embed returns the cached vector for text or computes and caches it.
func (c *CachedEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := c.cache.Get(text); ok {
		return vec, nil
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(text, vec)
	return vec, nil
}

// EmbedBatch serves cached texts locally and sends only misses to the inner engine.
func (c *CachedEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		if vec, ok := c.cache.Get(text); ok {
			out[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	logging.EmbeddingDebug("Embedding cache: %d hits, %d misses", len(texts)-len(missTexts), len(missTexts))
	vecs, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("embedding engine returned %d vectors for %d texts", len(vecs), len(missTexts))
	}
	for j, idx := range missIdx {
		out[idx] = vecs[j]
		c.cache.Add(texts[idx], vecs[j])
	}
	return out, nil
}

// Dimensions returns the inner engine's dimensionality.
func (c *CachedEngine) Dimensions() int { return c.inner.Dimensions() }

// Name returns the inner engine's name.
func (c *CachedEngine) Name() string { return c.inner.Name() }

// Len reports how many texts are cached.
func (c *CachedEngine) Len() int { return c.cache.Len() }
