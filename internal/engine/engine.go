package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/context-fabric/contextfabric/internal/codeindex"
	"github.com/context-fabric/contextfabric/internal/ferrors"
	"github.com/context-fabric/contextfabric/internal/l1"
	"github.com/context-fabric/contextfabric/internal/store"
)

// Engine owns one project's tier-1 (in-process) and tier-2 (durable) stores
// plus its code index, and references the process-wide Shared components
// for tier-3 and embedding (spec §5: "tier-1 is per-engine (per-project) and
// in-process; each project gets its own tier-2 store file").
type Engine struct {
	shared      *Shared
	projectPath string

	working *l1.Store
	project *store.ProjectStore
	code    *codeindex.Index

	codeIndexOnce sync.Once
	codeIndexErr  error

	// bgCtx/bgCancel/bgWG give fire-and-forget tasks spawned by orient (decay
	// trigger, incremental code-index refresh) their own cancellation scope,
	// joined on teardown (spec §5: "spawn-and-detach tasks with their own
	// cancellation scope owned by the engine").
	bgCtx    context.Context
	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// newEngine constructs a single project's engine, opening its tier-2 store
// and building (but not yet indexing) its code index.
func newEngine(shared *Shared, projectPath string) (*Engine, error) {
	projectDBPath := projectStorePath(shared.cfg.Storage.RootDir, projectPath)
	if err := os.MkdirAll(filepath.Dir(projectDBPath), 0o755); err != nil {
		return nil, ferrors.StoreUnavailable(fmt.Errorf("create project store dir: %w", err))
	}
	projectStore, err := store.OpenProjectStore(projectDBPath)
	if err != nil {
		return nil, err
	}

	codeDBPath := codeIndexPath(shared.cfg.Storage.RootDir, projectPath)
	if err := os.MkdirAll(filepath.Dir(codeDBPath), 0o755); err != nil {
		_ = projectStore.Close()
		return nil, ferrors.StoreUnavailable(fmt.Errorf("create code index dir: %w", err))
	}
	codeStore, err := codeindex.Open(codeDBPath)
	if err != nil {
		_ = projectStore.Close()
		return nil, err
	}

	opts := codeindex.DefaultOptions()
	opts.Exclude = shared.cfg.CodeIndex.Exclude
	opts.MaxFileSizeBytes = shared.cfg.CodeIndex.MaxFileSizeBytes
	opts.MaxFiles = shared.cfg.CodeIndex.MaxFiles
	opts.ChunkLines = shared.cfg.CodeIndex.ChunkLines
	opts.ChunkOverlap = shared.cfg.CodeIndex.ChunkOverlap
	opts.SemanticThreshold = shared.cfg.CodeIndex.SemanticThreshold
	opts.DebounceInterval = shared.cfg.CodeIndex.DebounceInterval
	opts.Watch = shared.cfg.CodeIndex.Watch

	codeIdx := codeindex.New(projectPath, opts, shared.embedder, codeStore)

	bgCtx, bgCancel := context.WithCancel(context.Background())
	return &Engine{
		shared:      shared,
		projectPath: projectPath,
		working:     l1.New(shared.cfg.Context.L1Capacity),
		project:     projectStore,
		code:        codeIdx,
		bgCtx:       bgCtx,
		bgCancel:    bgCancel,
	}, nil
}

// close tears down this project's per-engine resources (spec §5 Shutdown:
// "tier-2/tier-3 handles close cleanly, tier-1 dropped"). The shared tier-3
// store and embedder are not touched here.
func (e *Engine) close() error {
	e.bgCancel()
	e.bgWG.Wait()
	e.code.StopWatching()
	_ = e.code.Close()
	return e.project.Close()
}

// spawnBackground runs fn in the engine's background scope, joined on
// close. Used by orient's fire-and-forget decay trigger and incremental
// code-index refresh (spec §4.9, §7).
func (e *Engine) spawnBackground(fn func(ctx context.Context)) {
	e.bgWG.Add(1)
	go func() {
		defer e.bgWG.Done()
		fn(e.bgCtx)
	}()
}

// ensureCodeIndexBuilt lazily builds the project's code index and starts its
// watcher on first use, exactly once per engine (spec §5: "lazy init for
// heavyweight components... first query after startup expected to be
// slow").
func (e *Engine) ensureCodeIndexBuilt(ctx context.Context) error {
	e.codeIndexOnce.Do(func() {
		if err := e.code.Build(ctx); err != nil {
			e.codeIndexErr = err
			return
		}
		if e.shared.cfg.CodeIndex.Watch {
			e.codeIndexErr = e.code.StartWatching(ctx)
		}
	})
	return e.codeIndexErr
}

// refreshCodeIndex runs an incremental rebuild, used by orient's
// fire-and-forget refresh (spec §4.9, §7: "incremental code-index updates
// are fire-and-forget").
func (e *Engine) refreshCodeIndex(ctx context.Context) error {
	return e.code.Build(ctx)
}
