package codeindex

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/context-fabric/contextfabric/internal/embed"
	"github.com/context-fabric/contextfabric/internal/model"
)

func TestSearchTextFindsSubstring(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package main\n\nfunc ParseConfig() error { return nil }\n")

	idx := newTestIndex(t, root, Options{})
	ctx := context.Background()
	require.NoError(t, idx.Build(ctx))

	results, err := idx.Search(ctx, SearchOptions{Mode: SearchText, Query: "ParseConfig", IncludeContent: true})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Contains(t, results[0].Content, "ParseConfig")
}

func TestSearchTextFiltersByFilePattern(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package main\nfunc Shared() {}\n")
	writeFile(t, root, "b.go", "package main\nfunc Shared() {}\n")

	idx := newTestIndex(t, root, Options{})
	ctx := context.Background()
	require.NoError(t, idx.Build(ctx))

	results, err := idx.Search(ctx, SearchOptions{Mode: SearchText, Query: "Shared", FilePattern: "a.go"})
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, "a.go", r.FilePath)
	}
}

func TestSearchSymbolFindsByName(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package main\n\nfunc Hello() {}\n")

	idx := newTestIndex(t, root, Options{})
	ctx := context.Background()
	require.NoError(t, idx.Build(ctx))

	results, err := idx.Search(ctx, SearchOptions{Mode: SearchSymbol, Query: "Hello", Kind: model.SymbolFunction})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.NotNil(t, results[0].Symbol)
	assert.Equal(t, "Hello", results[0].Symbol.Name)
}

func TestSearchSemanticRanksBySimilarity(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package main\nfunc A() {}\n")

	embedder := embed.NewService("", 3, 10, 0)
	store, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	opts := DefaultOptions()
	opts.Watch = false
	idx := New(root, opts, embedder, store)
	ctx := context.Background()
	require.NoError(t, idx.Build(ctx))

	results, err := idx.Search(ctx, SearchOptions{Mode: SearchSemantic, Query: "func A"})
	require.NoError(t, err)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Score, opts.SemanticThreshold)
	}
}

func TestMatchesGlobMatchesBaseName(t *testing.T) {
	assert.True(t, matchesGlob("*.go", "internal/foo/bar.go"))
	assert.False(t, matchesGlob("*.py", "internal/foo/bar.go"))
	assert.True(t, matchesGlob("bar.go", filepath.Join("internal", "foo", "bar.go")))
}

func TestSearchSymbolFiltersByFilePattern(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "pkg/a.go", "package pkg\nfunc Shared() {}\n")
	writeFile(t, root, "pkg/b.go", "package pkg\nfunc Shared() {}\n")

	idx := newTestIndex(t, root, Options{})
	ctx := context.Background()
	require.NoError(t, idx.Build(ctx))

	results, err := idx.Search(ctx, SearchOptions{Mode: SearchSymbol, Query: "Shared", FilePattern: "a.go"})
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, filepath.Join("pkg", "a.go"), r.FilePath)
	}
}
