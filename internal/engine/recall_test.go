package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/context-fabric/contextfabric/internal/hybrid"
	"github.com/context-fabric/contextfabric/internal/model"
)

func TestRecallFindsKeywordMatchAcrossTiers(t *testing.T) {
	e := newTestEngine(t, "/repo/recall")
	ctx := context.Background()

	_, err := e.Store(ctx, StoreRequest{Type: model.TypeDecision, Content: "we chose postgres for the ledger service", Layer: model.TierProject})
	require.NoError(t, err)
	_, err = e.Store(ctx, StoreRequest{Type: model.TypeCodePattern, Content: "retry wrapper pattern for postgres connections", Layer: model.TierSemantic})
	require.NoError(t, err)
	_, err = e.Store(ctx, StoreRequest{Type: model.TypeScratchpad, Content: "unrelated note about coffee", Layer: model.TierWorking})
	require.NoError(t, err)

	results, err := e.Recall(ctx, RecallRequest{Query: "postgres", Threshold: 0.01})
	require.NoError(t, err)
	require.NotEmpty(t, results)

	var sawProject, sawSemantic bool
	for _, r := range results {
		switch r.Layer {
		case model.TierProject:
			sawProject = true
		case model.TierSemantic:
			sawSemantic = true
		}
	}
	require.True(t, sawProject, "expected a tier-2 postgres hit")
	require.True(t, sawSemantic, "expected a tier-3 postgres hit")
}

func TestRecallModeKeywordSkipsSemanticCandidates(t *testing.T) {
	e := newTestEngine(t, "/repo/recall-keyword")
	ctx := context.Background()
	_, err := e.Store(ctx, StoreRequest{Type: model.TypeDecision, Content: "use redis for caching", Layer: model.TierProject})
	require.NoError(t, err)

	results, err := e.Recall(ctx, RecallRequest{Query: "redis", Mode: hybrid.ModeKeyword, Threshold: 0.01})
	require.NoError(t, err)
	require.NotEmpty(t, results)
}

func TestRecallResultsAreOrderedByScoreDescending(t *testing.T) {
	e := newTestEngine(t, "/repo/recall-order")
	ctx := context.Background()
	_, err := e.Store(ctx, StoreRequest{Type: model.TypeDecision, Content: "kubernetes kubernetes kubernetes deployment rollout", Layer: model.TierProject})
	require.NoError(t, err)
	_, err = e.Store(ctx, StoreRequest{Type: model.TypeDecision, Content: "a single mention of kubernetes", Layer: model.TierProject})
	require.NoError(t, err)

	results, err := e.Recall(ctx, RecallRequest{Query: "kubernetes", Threshold: 0.0})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(results), 1)
	for i := 1; i < len(results); i++ {
		require.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestRecallRespectsProjectFilterIsolation(t *testing.T) {
	m := newTestManager(t)
	a, err := m.Engine("/repo/project-a")
	require.NoError(t, err)
	b, err := m.Engine("/repo/project-b")
	require.NoError(t, err)

	ctx := context.Background()
	_, err = a.Store(ctx, StoreRequest{Type: model.TypeCodePattern, Content: "shared global pattern about sorting", Layer: model.TierSemantic, Metadata: model.Metadata{ProjectPath: "/repo/project-a"}})
	require.NoError(t, err)

	resultsA, err := a.Recall(ctx, RecallRequest{Query: "sorting", Threshold: 0.01})
	require.NoError(t, err)
	resultsB, err := b.Recall(ctx, RecallRequest{Query: "sorting", Threshold: 0.01})
	require.NoError(t, err)

	require.NotEmpty(t, resultsA)
	require.Empty(t, resultsB)
}
