// Package embed implements the embedding service (spec §4.1): a single
// local model wrapped in a bounded LRU cache, with single-flight
// initialization and a terminal broken state on init failure.
package embed

import (
	"context"
	"math"
)

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelName() string
	// Available reports whether the embedder can currently serve requests.
	Available(ctx context.Context) bool
	Close() error
}

// normalizeVector scales v to unit length in place, used by cosine-based
// callers that expect pre-normalized vectors. A zero vector is left as-is.
func normalizeVector(v []float32) {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return
	}
	norm := float32(1.0 / math.Sqrt(sumSq))
	for i := range v {
		v[i] *= norm
	}
}
