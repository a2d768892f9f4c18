package engine

import (
	"context"

	"github.com/context-fabric/contextfabric/internal/codeindex"
	"github.com/context-fabric/contextfabric/internal/model"
)

// symbolKindOf converts the tool-facing string kind to model.SymbolKind; an
// empty string means "any kind" to the underlying store.
func symbolKindOf(kind string) model.SymbolKind {
	return model.SymbolKind(kind)
}

// SearchCodeResult is the engine's view of one code-index hit (spec §4.8,
// §6 searchCode tool).
type SearchCodeResult = codeindex.SearchResult

// SearchCodeRequest carries a caller's searchCode() call (spec §6).
type SearchCodeRequest struct {
	Query          string
	Mode           codeindex.SearchMode
	Language       string
	FilePattern    string
	SymbolKind     string
	Limit          int
	IncludeContent bool
}

// SearchCodeStatus reports the project code index's build state, used in
// searchCode's indexStatus field (spec §6).
type SearchCodeStatus struct {
	TotalFiles   int
	TotalSymbols int
	LastIndexed  int64 // epoch ms, 0 if never indexed
	IsStale      bool
}

// SearchCode builds the project's code index on first use, then runs the
// requested search mode against it (spec §4.8).
func (e *Engine) SearchCode(ctx context.Context, req SearchCodeRequest) ([]SearchCodeResult, SearchCodeStatus, error) {
	if err := e.ensureCodeIndexBuilt(ctx); err != nil {
		return nil, SearchCodeStatus{}, err
	}

	mode := req.Mode
	if mode == "" {
		mode = codeindex.SearchSemantic
	}
	results, err := e.code.Search(ctx, codeindex.SearchOptions{
		Mode:           mode,
		Query:          req.Query,
		FilePattern:    req.FilePattern,
		Language:       req.Language,
		Kind:           symbolKindOf(req.SymbolKind),
		Limit:          req.Limit,
		IncludeContent: req.IncludeContent,
	})
	if err != nil {
		return nil, SearchCodeStatus{}, err
	}

	status, err := e.code.Status(ctx)
	if err != nil {
		return nil, SearchCodeStatus{}, err
	}
	var lastIndexed int64
	if !status.LastIndexedAt.IsZero() {
		lastIndexed = status.LastIndexedAt.UnixMilli()
	}

	return results, SearchCodeStatus{
		TotalFiles:   status.TotalFiles,
		TotalSymbols: status.TotalSymbols,
		LastIndexed:  lastIndexed,
		IsStale:      status.IsStale,
	}, nil
}
