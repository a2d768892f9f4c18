// Package engine implements the Context Engine facade (spec §4.9): the
// composition root that wires tier 1/2/3 storage, the embedding service, the
// smart router, the hybrid recall pipeline, the decay scheduler, and the
// per-project code index into the single set of operations the RPC shell
// calls. Grounded on the teacher's internal/daemon composition root (the
// place the teacher wires its own store+index+search stack together).
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/context-fabric/contextfabric/internal/config"
	"github.com/context-fabric/contextfabric/internal/decay"
	"github.com/context-fabric/contextfabric/internal/embed"
	"github.com/context-fabric/contextfabric/internal/ferrors"
	"github.com/context-fabric/contextfabric/internal/store"
)

// Shared owns every process-global component: the one embedding model
// instance, the global tier-3 store, and the decay scheduler that sweeps it
// (spec §5: "one embedding model instance per process shared by all tier-3
// stores and the code index"; "tier-3 store is process-global").
type Shared struct {
	cfg      *config.Config
	embedder *embed.Service
	semantic *store.SemanticStore
	decay    *decay.Scheduler
}

// newShared constructs the process-global components from cfg. The
// embedding service and code-index parsers are lazily initialized on first
// use by their own internals (spec §5: "lazy init for heavyweight
// components ... first query after startup expected to be slow"); only the
// tier-3 store is opened eagerly here since it must exist before any engine
// can be constructed.
func newShared(cfg *config.Config) (*Shared, error) {
	if err := os.MkdirAll(cfg.Storage.RootDir, 0o755); err != nil {
		return nil, ferrors.StoreUnavailable(fmt.Errorf("create storage root: %w", err))
	}

	embedder := embed.NewService(cfg.Embedding.ModelPath, cfg.Embedding.Dimensions, cfg.Embedding.CacheSize, cfg.Embedding.CallDeadline)

	semanticPath := semanticStorePath(cfg.Storage.RootDir)
	if err := os.MkdirAll(filepath.Dir(semanticPath), 0o755); err != nil {
		return nil, ferrors.StoreUnavailable(fmt.Errorf("create semantic store dir: %w", err))
	}
	decayCfg := store.DecayConfig{DecayDays: cfg.Context.DecayDays, Threshold: cfg.Context.DecayThreshold}
	semantic, err := store.OpenSemanticStore(semanticPath, cfg.Embedding.Dimensions, decayCfg)
	if err != nil {
		return nil, err
	}

	sched := decay.New(semantic.ApplyDecay, cfg.Context.DecayPeriod)

	s := &Shared{cfg: cfg, embedder: embedder, semantic: semantic, decay: sched}
	sched.Start(context.Background())
	return s, nil
}

// close tears down every shared component (spec §5 Shutdown): periodic
// tasks stop, the tier-3 handle closes cleanly.
func (s *Shared) close() error {
	s.decay.Stop()
	if err := s.embedder.Close(); err != nil {
		slog.Warn("embedding service close failed", slog.String("error", err.Error()))
	}
	return s.semantic.Close()
}

