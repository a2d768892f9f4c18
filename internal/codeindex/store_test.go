package codeindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/context-fabric/contextfabric/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreReplaceFileAndGetFileMeta(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	meta := FileMeta{Path: "a.go", Language: "go", MtimeUnix: 100, SizeBytes: 50}
	chunks := []model.CodeChunk{{ID: "c1", FilePath: "a.go", Language: "go", StartLine: 1, EndLine: 10, Content: "func Foo() {}"}}
	symbols := []model.CodeSymbol{{FilePath: "a.go", Name: "Foo", Kind: model.SymbolFunction, StartLine: 1, EndLine: 1}}

	require.NoError(t, s.ReplaceFile(ctx, meta, chunks, symbols))

	got, err := s.GetFileMeta(ctx, "a.go")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(100), got.MtimeUnix)

	totalFiles, totalSymbols, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, totalFiles)
	assert.Equal(t, 1, totalSymbols)
}

func TestStoreReplaceFileOverwritesPriorChunks(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	meta := FileMeta{Path: "a.go", Language: "go", MtimeUnix: 1, SizeBytes: 10}
	require.NoError(t, s.ReplaceFile(ctx, meta, []model.CodeChunk{{ID: "c1", FilePath: "a.go", Content: "old"}}, nil))

	meta.MtimeUnix = 2
	require.NoError(t, s.ReplaceFile(ctx, meta, []model.CodeChunk{{ID: "c2", FilePath: "a.go", Content: "new"}}, nil))

	chunks, err := s.SearchText(ctx, "old", 10)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	chunks, err = s.SearchText(ctx, "new", 10)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
}

func TestStoreRemoveFile(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	meta := FileMeta{Path: "a.go", Language: "go", MtimeUnix: 1, SizeBytes: 10}
	require.NoError(t, s.ReplaceFile(ctx, meta, []model.CodeChunk{{ID: "c1", FilePath: "a.go", Content: "hi"}}, nil))
	require.NoError(t, s.RemoveFile(ctx, "a.go"))

	got, err := s.GetFileMeta(ctx, "a.go")
	require.NoError(t, err)
	assert.Nil(t, got)

	totalFiles, _, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, totalFiles)
}

func TestStoreSearchBM25(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceFile(ctx,
		FileMeta{Path: "a.go", Language: "go", MtimeUnix: 1, SizeBytes: 10},
		[]model.CodeChunk{{ID: "c1", FilePath: "a.go", Content: "func ParseConfig() error { return nil }"}},
		nil))

	results, err := s.SearchBM25(ctx, "ParseConfig", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a.go", results[0].FilePath)
}

func TestStoreSearchBM25MalformedQueryReturnsEmpty(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	results, err := s.SearchBM25(ctx, `"unterminated`, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestStoreAllEmbeddedChunks(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceFile(ctx,
		FileMeta{Path: "a.go", Language: "go", MtimeUnix: 1, SizeBytes: 10},
		[]model.CodeChunk{
			{ID: "c1", FilePath: "a.go", Content: "embedded", Embedding: []float32{1, 0, 0}},
			{ID: "c2", FilePath: "a.go", Content: "not embedded"},
		},
		nil))

	chunks, err := s.AllEmbeddedChunks(ctx)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "c1", chunks[0].ID)
	assert.Equal(t, []float32{1, 0, 0}, chunks[0].Embedding)
}

func TestStoreSearchSymbolsFiltersByKindAndLanguage(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceFile(ctx,
		FileMeta{Path: "a.go", Language: "go", MtimeUnix: 1, SizeBytes: 10},
		nil,
		[]model.CodeSymbol{
			{FilePath: "a.go", Name: "Parse", Kind: model.SymbolFunction},
			{FilePath: "a.go", Name: "Parser", Kind: model.SymbolClass},
		}))

	results, err := s.SearchSymbols(ctx, "Pars", model.SymbolFunction, "go", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Parse", results[0].Name)
}

func TestStoreSearchSymbolsExactMatchRanksFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceFile(ctx,
		FileMeta{Path: "a.go", Language: "go", MtimeUnix: 1, SizeBytes: 10},
		nil,
		[]model.CodeSymbol{
			{FilePath: "a.go", Name: "ParseLong", Kind: model.SymbolFunction},
			{FilePath: "a.go", Name: "Parse", Kind: model.SymbolFunction},
		}))

	results, err := s.SearchSymbols(ctx, "Parse", "", "", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Parse", results[0].Name)
}
