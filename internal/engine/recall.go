package engine

import (
	"context"

	"github.com/context-fabric/contextfabric/internal/hybrid"
	"github.com/context-fabric/contextfabric/internal/store"
)

// RecallRequest carries a caller's recall() call (spec §4.9, §6 recall tool).
type RecallRequest struct {
	Query     string
	Limit     int
	Threshold float64
	Mode      hybrid.Mode
	Filter    hybrid.Filter
}

// Recall runs the hybrid recall pipeline: it gathers keyword and semantic
// candidates from whichever tiers the request's mode needs, then hands them
// to hybrid.Recall for fusion, filtering, scoring, and truncation. The
// engine's job is purely to fetch candidates; hybrid.Recall owns the fusion
// math (spec §4.6).
func (e *Engine) Recall(ctx context.Context, req RecallRequest) ([]*hybrid.FusedResult, error) {
	cfg := e.shared.cfg.Context
	opts := hybrid.Options{
		Mode:        hybrid.ModeHybrid,
		Limit:       cfg.DefaultLimit,
		Threshold:   cfg.DefaultThreshold,
		RRFConstant: cfg.RRFConstant,
	}
	if req.Mode != "" {
		opts.Mode = req.Mode
	}
	if req.Limit > 0 {
		opts.Limit = req.Limit
	}
	if req.Threshold > 0 {
		opts.Threshold = req.Threshold
	}
	opts.Filter = req.Filter
	opts.Filter.ProjectPath = e.projectPath

	overFetch := opts.Limit * 4
	if overFetch < 50 {
		overFetch = 50
	}

	var cand hybrid.Candidates
	cand.SubstringL1 = e.working.SearchSubstring(ctx, req.Query)

	if opts.Mode != hybrid.ModeSemantic {
		if scored, err := e.project.SearchBM25(ctx, req.Query, overFetch); err == nil {
			cand.KeywordL2 = scoredToRanked(scored)
		}
		if scored, err := e.shared.semantic.SearchBM25(ctx, req.Query, overFetch); err == nil {
			cand.KeywordL3 = scoredToRanked(scored)
		}
	}
	if opts.Mode != hybrid.ModeKeyword {
		if queryVec, err := e.shared.embedder.Embed(ctx, req.Query); err == nil {
			if scored, err := e.shared.semantic.RecallSemantic(ctx, queryVec, overFetch); err == nil {
				cand.Semantic = scoredToRanked(scored)
			}
		} else if opts.Mode == hybrid.ModeSemantic {
			return nil, err
		}
	}
	if opts.Mode != hybrid.ModeHybrid {
		if mems, err := e.project.SearchLike(ctx, req.Query); err == nil {
			cand.SubstringL2 = mems
		}
	}

	return hybrid.Recall(cand, opts), nil
}

func scoredToRanked(scored []store.ScoredMemory) []hybrid.RankedCandidate {
	out := make([]hybrid.RankedCandidate, 0, len(scored))
	for _, s := range scored {
		out = append(out, hybrid.RankedCandidate{Memory: s.Memory, Score: s.Score})
	}
	return out
}
