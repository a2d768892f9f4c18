package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the bounded LRU cache size for embeddings (spec §4.1).
const DefaultCacheSize = 10000

// cachedEmbedder wraps an Embedder with an LRU cache keyed by text+model, so
// repeated store/recall calls over the same content skip recomputation.
type cachedEmbedder struct {
	inner Embedder
	cache *lru.Cache[string, []float32]
}

func newCachedEmbedder(inner Embedder, cacheSize int) *cachedEmbedder {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, _ := lru.New[string, []float32](cacheSize)
	return &cachedEmbedder{inner: inner, cache: cache}
}

func (c *cachedEmbedder) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text + "\x00" + c.inner.ModelName()))
	return hex.EncodeToString(sum[:])
}

func (c *cachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)
	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, vec)
	return vec, nil
}

func (c *cachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	results := make([][]float32, len(texts))
	missIdx := make([]int, 0, len(texts))
	missTexts := make([]string, 0, len(texts))

	for i, text := range texts {
		if vec, ok := c.cache.Get(c.cacheKey(text)); ok {
			results[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return results, nil
	}

	computed, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, idx := range missIdx {
		results[idx] = computed[j]
		c.cache.Add(c.cacheKey(texts[idx]), computed[j])
	}
	return results, nil
}

func (c *cachedEmbedder) Dimensions() int { return c.inner.Dimensions() }

func (c *cachedEmbedder) ModelName() string { return c.inner.ModelName() }

func (c *cachedEmbedder) Available(ctx context.Context) bool { return c.inner.Available(ctx) }

func (c *cachedEmbedder) Close() error { return c.inner.Close() }

// Len reports the number of entries currently cached, used by tests that
// exercise the cache's eviction boundary.
func (c *cachedEmbedder) Len() int { return c.cache.Len() }
