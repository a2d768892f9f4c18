package codeindex

import (
	"context"
	"path/filepath"

	"github.com/context-fabric/contextfabric/internal/embed"
	"github.com/context-fabric/contextfabric/internal/model"
)

// SearchMode selects which recall strategy searchCode uses (spec §4.8/§6).
type SearchMode string

const (
	SearchText     SearchMode = "text"
	SearchSymbol   SearchMode = "symbol"
	SearchSemantic SearchMode = "semantic"
)

// SearchOptions mirrors the searchCode tool contract (spec §6).
type SearchOptions struct {
	Mode           SearchMode
	Query          string
	FilePattern    string // glob, matched against the chunk/symbol's relative path
	Language       string
	Kind           model.SymbolKind // symbol mode only
	Limit          int
	IncludeContent bool
}

// SearchResult is one hit, shaped to satisfy any of the three modes.
type SearchResult struct {
	FilePath  string
	Language  string
	StartLine int
	EndLine   int
	Content   string // omitted unless IncludeContent, or always present for symbol hits' signature
	Symbol    *model.CodeSymbol
	Score     float64
}

// Search dispatches to the mode-specific searcher and applies the shared
// file-pattern/language filters.
func (idx *Index) Search(ctx context.Context, opts SearchOptions) ([]SearchResult, error) {
	if opts.Limit <= 0 {
		opts.Limit = 10
	}

	switch opts.Mode {
	case SearchSymbol:
		return idx.searchSymbols(ctx, opts)
	case SearchSemantic:
		return idx.searchSemantic(ctx, opts)
	default:
		return idx.searchText(ctx, opts)
	}
}

func (idx *Index) searchText(ctx context.Context, opts SearchOptions) ([]SearchResult, error) {
	// Overfetch before filtering by file pattern/language, since the store
	// has no notion of either.
	chunks, err := idx.store.SearchBM25(ctx, opts.Query, opts.Limit*4)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		chunks, err = idx.store.SearchText(ctx, opts.Query, opts.Limit*4)
		if err != nil {
			return nil, err
		}
	}

	results := make([]SearchResult, 0, len(chunks))
	for _, c := range chunks {
		if !matchesFilter(c.FilePath, c.Language, opts) {
			continue
		}
		results = append(results, chunkResult(c, opts.IncludeContent))
		if len(results) >= opts.Limit {
			break
		}
	}
	return results, nil
}

func (idx *Index) searchSymbols(ctx context.Context, opts SearchOptions) ([]SearchResult, error) {
	language := opts.Language
	symbols, err := idx.store.SearchSymbols(ctx, opts.Query, opts.Kind, language, opts.Limit*4)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(symbols))
	for i := range symbols {
		sym := symbols[i]
		if opts.FilePattern != "" && !matchesGlob(opts.FilePattern, sym.FilePath) {
			continue
		}
		results = append(results, SearchResult{
			FilePath:  sym.FilePath,
			StartLine: sym.StartLine,
			EndLine:   sym.EndLine,
			Content:   sym.Signature,
			Symbol:    &sym,
		})
		if len(results) >= opts.Limit {
			break
		}
	}
	return results, nil
}

func (idx *Index) searchSemantic(ctx context.Context, opts SearchOptions) ([]SearchResult, error) {
	if idx.embedder == nil {
		return nil, nil
	}
	queryVec, err := idx.embedder.Embed(ctx, opts.Query)
	if err != nil {
		return nil, err
	}

	all, err := idx.store.AllEmbeddedChunks(ctx)
	if err != nil {
		return nil, err
	}

	filtered := make([]model.CodeChunk, 0, len(all))
	for _, c := range all {
		if matchesFilter(c.FilePath, c.Language, opts) {
			filtered = append(filtered, c)
		}
	}

	threshold := idx.opts.SemanticThreshold
	if threshold <= 0 {
		threshold = DefaultOptions().SemanticThreshold
	}
	ranked := rankBySimilarity(queryVec, filtered, opts.Limit, threshold)

	results := make([]SearchResult, 0, len(ranked))
	for _, c := range ranked {
		r := chunkResult(c, opts.IncludeContent)
		r.Score = embed.CosineSimilarity(queryVec, c.Embedding)
		results = append(results, r)
	}
	return results, nil
}

func chunkResult(c model.CodeChunk, includeContent bool) SearchResult {
	r := SearchResult{
		FilePath:  c.FilePath,
		Language:  c.Language,
		StartLine: c.StartLine,
		EndLine:   c.EndLine,
	}
	if includeContent {
		r.Content = c.Content
	}
	return r
}

func matchesFilter(path, language string, opts SearchOptions) bool {
	if opts.Language != "" && language != opts.Language {
		return false
	}
	if opts.FilePattern != "" && !matchesGlob(opts.FilePattern, path) {
		return false
	}
	return true
}

// matchesGlob reports whether path matches pattern, trying both the full
// relative path and its base name (so "*.go" matches "internal/foo/bar.go").
func matchesGlob(pattern, path string) bool {
	if ok, err := filepath.Match(pattern, path); err == nil && ok {
		return true
	}
	if ok, err := filepath.Match(pattern, filepath.Base(path)); err == nil && ok {
		return true
	}
	return false
}
