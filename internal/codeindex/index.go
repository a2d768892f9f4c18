// Package codeindex implements the per-project code index (spec §4.8): a
// walk-and-chunk builder, incremental mtime-based re-indexing, a debounced
// file watcher, and text/symbol/semantic search over the result. Grounded
// on the teacher's internal/chunk (tree-sitter parsing) and internal/watcher
// (fsnotify + debouncing) packages, adapted from a whole-repo search index
// to a per-project incremental one.
package codeindex

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/context-fabric/contextfabric/internal/embed"
	"github.com/context-fabric/contextfabric/internal/gitignore"
)

// Options configures one project's code index (spec §4.8 defaults).
type Options struct {
	Exclude           []string
	MaxFileSizeBytes  int64
	MaxFiles          int
	ChunkLines        int
	ChunkOverlap      int
	SemanticThreshold float64
	DebounceInterval  time.Duration
	Watch             bool
}

// DefaultOptions matches config.CodeIndexConfig's defaults, except that
// Exclude is left empty here (config supplies its default exclude list).
func DefaultOptions() Options {
	return Options{
		MaxFileSizeBytes:  1 << 20,
		MaxFiles:          10000,
		ChunkLines:        150,
		ChunkOverlap:      10,
		SemanticThreshold: 0.5,
		DebounceInterval:  500 * time.Millisecond,
		Watch:             true,
	}
}

// Status reports the index's build state (spec §4.8 status()).
type Status struct {
	TotalFiles    int
	TotalSymbols  int
	LastIndexedAt time.Time
	IsStale       bool
}

// Index owns one project's code index: the chunk/symbol store, the file
// walker, and (optionally) a background watcher feeding incremental
// updates.
type Index struct {
	rootPath string
	opts     Options
	store    *Store
	embedder *embed.Service // shared process-wide instance (spec §5 "Shared resources")
	ignore   *gitignore.Matcher

	mu            sync.Mutex
	lastIndexedAt time.Time
	building      bool

	watcher    *Watcher
	stopWatch  context.CancelFunc
	watchGroup sync.WaitGroup
}

// New creates an index for rootPath. The embedder is shared with the rest
// of the engine (one model instance per process, spec §5).
func New(rootPath string, opts Options, embedder *embed.Service, store *Store) *Index {
	if opts.ChunkLines <= 0 {
		opts = DefaultOptions()
	}
	ignore := gitignore.New()
	for _, pattern := range opts.Exclude {
		ignore.AddPattern(pattern)
	}
	_ = ignore.AddFromFile(filepath.Join(rootPath, ".gitignore"), "")

	return &Index{
		rootPath: rootPath,
		opts:     opts,
		store:    store,
		embedder: embedder,
		ignore:   ignore,
	}
}

// Build performs a full walk-and-chunk pass, skipping files already
// up to date by mtime (so Build doubles as the incremental refresh used by
// orient and by the watcher).
func (idx *Index) Build(ctx context.Context) error {
	idx.mu.Lock()
	if idx.building {
		idx.mu.Unlock()
		return nil
	}
	idx.building = true
	idx.mu.Unlock()
	defer func() {
		idx.mu.Lock()
		idx.building = false
		idx.lastIndexedAt = time.Now()
		idx.mu.Unlock()
	}()

	seen := make(map[string]struct{})
	fileCount := 0

	walkErr := filepath.WalkDir(idx.rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // best-effort walk; skip unreadable entries
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rel, relErr := filepath.Rel(idx.rootPath, path)
		if relErr != nil {
			return nil
		}
		if rel == "." {
			return nil
		}
		if idx.ignore.Match(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if fileCount >= idx.opts.MaxFiles {
			return nil
		}

		language := LanguageForPath(rel)
		if language == "" {
			return nil // unrecognized extension: not indexed
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Size() > idx.opts.MaxFileSizeBytes {
			return nil
		}

		fileCount++
		seen[rel] = struct{}{}
		if err := idx.reindexIfChanged(ctx, rel, language, info); err != nil {
			slog.Warn("code index: failed to index file", slog.String("path", rel), slog.String("error", err.Error()))
		}
		return nil
	})
	if walkErr != nil && walkErr != context.Canceled {
		return walkErr
	}

	return idx.pruneDeleted(ctx, seen)
}

// reindexIfChanged re-chunks and re-embeds a single file unless its mtime and
// size both equal the values recorded when it was last indexed (spec §4.8
// "incremental").
func (idx *Index) reindexIfChanged(ctx context.Context, rel, language string, info os.FileInfo) error {
	meta, err := idx.store.GetFileMeta(ctx, rel)
	if err != nil {
		return err
	}
	mtime := info.ModTime().Unix()
	if meta != nil && meta.MtimeUnix == mtime && meta.SizeBytes == info.Size() {
		return nil
	}
	return idx.reindexFile(ctx, rel, language, mtime, info.Size())
}

// reindexFile always re-chunks, regardless of mtime bookkeeping (used by the
// watcher path, which already knows the file changed).
func (idx *Index) reindexFile(ctx context.Context, rel, language string, mtime, size int64) error {
	content, err := os.ReadFile(filepath.Join(idx.rootPath, rel))
	if err != nil {
		return err
	}

	chunker := NewChunker(idx.opts.ChunkLines, idx.opts.ChunkOverlap)
	defer chunker.Close()

	chunks, symbols, err := chunker.ChunkFile(ctx, rel, language, content)
	if err != nil {
		return err
	}

	if idx.embedder != nil {
		for i := range chunks {
			vec, err := idx.embedder.Embed(ctx, chunks[i].Content)
			if err != nil {
				// Embedding failures degrade to text/symbol-only search for
				// this chunk; they do not fail the whole index pass.
				slog.Warn("code index: embed failed", slog.String("path", rel), slog.String("error", err.Error()))
				continue
			}
			chunks[i].Embedding = vec
		}
	}

	return idx.store.ReplaceFile(ctx, FileMeta{Path: rel, Language: language, MtimeUnix: mtime, SizeBytes: size}, chunks, symbols)
}

// pruneDeleted removes index rows for files that no longer exist or are now
// excluded, using the prior full-walk result as the source of truth.
func (idx *Index) pruneDeleted(ctx context.Context, seen map[string]struct{}) error {
	all, err := idx.store.AllFileMeta(ctx)
	if err != nil {
		return err
	}
	for _, meta := range all {
		if _, ok := seen[meta.Path]; ok {
			continue
		}
		if err := idx.store.RemoveFile(ctx, meta.Path); err != nil {
			return err
		}
	}
	return nil
}

// Status reports the index's build state.
func (idx *Index) Status(ctx context.Context) (Status, error) {
	totalFiles, totalSymbols, err := idx.store.Counts(ctx)
	if err != nil {
		return Status{}, err
	}
	idx.mu.Lock()
	lastIndexed := idx.lastIndexedAt
	idx.mu.Unlock()

	return Status{
		TotalFiles:    totalFiles,
		TotalSymbols:  totalSymbols,
		LastIndexedAt: lastIndexed,
		IsStale:       idx.isStale(lastIndexed),
	}, nil
}

// isStale reports whether the index has never run, or any watched file has
// an mtime newer than the last indexed timestamp (cheap staleness check,
// avoiding a full re-walk just to answer status()).
func (idx *Index) isStale(lastIndexed time.Time) bool {
	if lastIndexed.IsZero() {
		return true
	}
	stale := false
	_ = filepath.WalkDir(idx.rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || stale {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().After(lastIndexed) {
			stale = true
		}
		return nil
	})
	return stale
}

// StartWatching launches the debounced file watcher, feeding incremental
// reindexFile/RemoveFile calls as events arrive. Safe to call once; a
// second call is a no-op. Spec §5: "a single file-watcher per code index
// (optional)".
func (idx *Index) StartWatching(ctx context.Context) error {
	if !idx.opts.Watch {
		return nil
	}
	idx.mu.Lock()
	if idx.watcher != nil {
		idx.mu.Unlock()
		return nil
	}
	w, err := NewWatcher(idx.opts.DebounceInterval)
	if err != nil {
		idx.mu.Unlock()
		return err
	}
	idx.watcher = w
	watchCtx, cancel := context.WithCancel(ctx)
	idx.stopWatch = cancel
	idx.mu.Unlock()

	if err := w.Start(watchCtx, idx.rootPath); err != nil {
		return err
	}

	idx.watchGroup.Add(1)
	go idx.consumeEvents(watchCtx, w)
	return nil
}

func (idx *Index) consumeEvents(ctx context.Context, w *Watcher) {
	defer idx.watchGroup.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-w.Output():
			if !ok {
				return
			}
			idx.applyBatch(ctx, batch)
		}
	}
}

func (idx *Index) applyBatch(ctx context.Context, batch []FileEvent) {
	for _, ev := range batch {
		rel := ev.Path
		if filepath.IsAbs(rel) {
			r, err := filepath.Rel(idx.rootPath, rel)
			if err != nil {
				continue
			}
			rel = r
		}
		if idx.ignore.Match(rel, false) {
			continue
		}
		switch ev.Operation {
		case OpDelete:
			if err := idx.store.RemoveFile(ctx, rel); err != nil {
				slog.Warn("code index: remove failed", slog.String("path", rel), slog.String("error", err.Error()))
			}
		default:
			language := LanguageForPath(rel)
			if language == "" {
				continue
			}
			info, err := os.Stat(filepath.Join(idx.rootPath, rel))
			if err != nil {
				continue
			}
			if info.Size() > idx.opts.MaxFileSizeBytes {
				continue
			}
			if err := idx.reindexFile(ctx, rel, language, info.ModTime().Unix(), info.Size()); err != nil {
				slog.Warn("code index: reindex failed", slog.String("path", rel), slog.String("error", err.Error()))
			}
		}
	}
}

// StopWatching stops the background watcher, if running.
func (idx *Index) StopWatching() {
	idx.mu.Lock()
	stop := idx.stopWatch
	w := idx.watcher
	idx.watcher = nil
	idx.mu.Unlock()

	if stop != nil {
		stop()
	}
	if w != nil {
		_ = w.Stop()
	}
	idx.watchGroup.Wait()
}

// Close stops watching and closes the underlying store.
func (idx *Index) Close() error {
	idx.StopWatching()
	return idx.store.Close()
}
