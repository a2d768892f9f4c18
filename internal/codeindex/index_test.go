package codeindex

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func newTestIndex(t *testing.T, root string, opts Options) *Index {
	t.Helper()
	store, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	if opts.ChunkLines == 0 {
		opts = DefaultOptions()
		opts.Watch = false
	}
	return New(root, opts, nil, store)
}

func TestIndexBuildIndexesRecognizedFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n\nfunc main() {}\n")
	writeFile(t, root, "README.md", "# hello")

	idx := newTestIndex(t, root, Options{})
	require.NoError(t, idx.Build(context.Background()))

	status, err := idx.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, status.TotalFiles) // README.md has no registered language
	assert.GreaterOrEqual(t, status.TotalSymbols, 1)
}

func TestIndexBuildRespectsGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "vendor/\n")
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, "vendor/dep.go", "package vendor\n")

	idx := newTestIndex(t, root, Options{})
	require.NoError(t, idx.Build(context.Background()))

	status, err := idx.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, status.TotalFiles)
}

func TestIndexBuildSkipsOversizedFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "big.go", "package main\n// "+string(make([]byte, 100))+"\n")

	opts := DefaultOptions()
	opts.Watch = false
	opts.MaxFileSizeBytes = 10
	idx := newTestIndex(t, root, opts)
	require.NoError(t, idx.Build(context.Background()))

	status, err := idx.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, status.TotalFiles)
}

func TestIndexIncrementalRebuildSkipsUnchangedFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\nfunc A() {}\n")

	idx := newTestIndex(t, root, Options{})
	ctx := context.Background()
	require.NoError(t, idx.Build(ctx))

	meta, err := idx.store.GetFileMeta(ctx, "main.go")
	require.NoError(t, err)
	require.NotNil(t, meta)
	firstMtime := meta.MtimeUnix

	require.NoError(t, idx.Build(ctx))
	meta2, err := idx.store.GetFileMeta(ctx, "main.go")
	require.NoError(t, err)
	assert.Equal(t, firstMtime, meta2.MtimeUnix)
}

func TestIndexBuildPrunesDeletedFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package main\nfunc A() {}\n")
	writeFile(t, root, "b.go", "package main\nfunc B() {}\n")

	idx := newTestIndex(t, root, Options{})
	ctx := context.Background()
	require.NoError(t, idx.Build(ctx))

	status, err := idx.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, status.TotalFiles)

	require.NoError(t, os.Remove(filepath.Join(root, "b.go")))
	require.NoError(t, idx.Build(ctx))

	status, err = idx.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.TotalFiles)
}

func TestIndexStatusReportsStaleBeforeFirstBuild(t *testing.T) {
	root := t.TempDir()
	idx := newTestIndex(t, root, Options{})
	status, err := idx.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, status.IsStale)
}

func TestIndexReindexFileUpdatesChunksOnChange(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package main\nfunc Old() {}\n")

	idx := newTestIndex(t, root, Options{})
	ctx := context.Background()
	require.NoError(t, idx.Build(ctx))

	time.Sleep(10 * time.Millisecond)
	writeFile(t, root, "a.go", "package main\nfunc New() {}\n")
	// force a distinct mtime on filesystems with coarse resolution
	newTime := time.Now().Add(time.Second)
	require.NoError(t, os.Chtimes(filepath.Join(root, "a.go"), newTime, newTime))

	require.NoError(t, idx.Build(ctx))

	results, err := idx.store.SearchText(ctx, "New", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}
