package embed

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/context-fabric/contextfabric/internal/ferrors"
)

// ModelName identifies the embedder's model to downstream cache keys and
// diagnostics. It does not need to resolve to any real model registry.
const ModelName = "context-fabric-local-v1"

// Service is the embedding service facade used by the rest of the engine
// (spec §4.1). It lazily initializes the underlying model exactly once,
// even under concurrent first callers, caches results, and enforces a
// per-call deadline. A failed initialization is terminal: Service never
// retries model load on its own, so a caller that keeps calling a broken
// service fails fast instead of retry-looping.
type Service struct {
	modelPath string
	dims      int
	cacheSize int
	deadline  time.Duration

	initGroup singleflight.Group

	mu      sync.RWMutex
	ready   *cachedEmbedder
	broken  bool
	initErr error
}

// NewService constructs a Service. Initialization is deferred to the first
// call that needs the model (Embed, EmbedBatch, or Warm).
func NewService(modelPath string, dims, cacheSize int, deadline time.Duration) *Service {
	if dims <= 0 {
		dims = 384
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	if deadline <= 0 {
		deadline = 30 * time.Second
	}
	return &Service{modelPath: modelPath, dims: dims, cacheSize: cacheSize, deadline: deadline}
}

// Warm forces initialization without embedding anything. Safe to call from
// multiple goroutines; only one actually loads the model.
func (s *Service) Warm(ctx context.Context) error {
	_, err := s.embedder(ctx)
	return err
}

// Dimensions returns the configured embedding width, available even before
// the model has initialized.
func (s *Service) Dimensions() int { return s.dims }

// Available reports whether the service can currently serve embed calls.
func (s *Service) Available(ctx context.Context) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.broken
}

// Embed embeds a single text, applying the configured call deadline.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	e, err := s.embedder(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.deadline)
	defer cancel()
	vec, err := e.Embed(ctx, text)
	if err != nil {
		return nil, ferrors.EmbeddingUnavailable(err)
	}
	return vec, nil
}

// EmbedBatch embeds multiple texts under a single shared deadline.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e, err := s.embedder(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.deadline)
	defer cancel()
	vecs, err := e.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, ferrors.EmbeddingUnavailable(err)
	}
	return vecs, nil
}

// CacheLen reports the number of cached embeddings, used by cache-boundary
// tests.
func (s *Service) CacheLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ready == nil {
		return 0
	}
	return s.ready.Len()
}

// embedder returns the initialized inner embedder, initializing it at most
// once. Concurrent first callers collapse onto a single init via
// singleflight; a failed init permanently marks the service broken.
func (s *Service) embedder(ctx context.Context) (*cachedEmbedder, error) {
	s.mu.RLock()
	if s.broken {
		err := s.initErr
		s.mu.RUnlock()
		return nil, ferrors.EmbeddingUnavailable(err)
	}
	if s.ready != nil {
		e := s.ready
		s.mu.RUnlock()
		return e, nil
	}
	s.mu.RUnlock()

	v, err, _ := s.initGroup.Do("init", func() (interface{}, error) {
		s.mu.RLock()
		if s.ready != nil {
			e := s.ready
			s.mu.RUnlock()
			return e, nil
		}
		if s.broken {
			err := s.initErr
			s.mu.RUnlock()
			return nil, err
		}
		s.mu.RUnlock()

		runner, err := runnerFromPath(s.modelPath, s.dims)
		if err != nil {
			s.mu.Lock()
			s.broken = true
			s.initErr = err
			s.mu.Unlock()
			return nil, err
		}
		inner := newRunnerEmbedder(runner, ModelName)
		cached := newCachedEmbedder(inner, s.cacheSize)

		s.mu.Lock()
		s.ready = cached
		s.mu.Unlock()
		return cached, nil
	})
	if err != nil {
		return nil, ferrors.EmbeddingUnavailable(err)
	}
	return v.(*cachedEmbedder), nil
}

// Close releases the underlying model, if initialized.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready == nil {
		return nil
	}
	return s.ready.Close()
}
