package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/context-fabric/contextfabric/internal/ferrors"
	"github.com/context-fabric/contextfabric/internal/model"
)

func TestStoreGetRoundTripAcrossTiers(t *testing.T) {
	e := newTestEngine(t, "/repo/round-trip")
	ctx := context.Background()

	cases := []struct {
		name string
		typ  model.Type
	}{
		{"tier1 scratchpad", model.TypeScratchpad},
		{"tier2 decision", model.TypeDecision},
		{"tier3 code pattern", model.TypeCodePattern},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stored, err := e.Store(ctx, StoreRequest{Type: tc.typ, Content: "hello " + string(tc.typ)})
			require.NoError(t, err)
			require.NotEmpty(t, stored.ID)

			loc, err := e.Get(ctx, stored.ID)
			require.NoError(t, err)
			require.Equal(t, stored.ID, loc.Memory.ID)
			require.Equal(t, "hello "+string(tc.typ), loc.Memory.Content)
		})
	}
}

func TestStoreFillsMetadataDefaults(t *testing.T) {
	e := newTestEngine(t, "/repo/defaults")
	mem, err := e.Store(context.Background(), StoreRequest{Type: model.TypeDecision, Content: "use postgres"})
	require.NoError(t, err)
	require.Equal(t, 0.8, mem.Metadata.Confidence)
	require.Equal(t, model.SourceAIInferred, mem.Metadata.Source)
	require.Equal(t, "generic", mem.Metadata.CLIType)
	require.Equal(t, "/repo/defaults", mem.Metadata.ProjectPath)
}

func TestStoreRejectsInvalidExplicitTier(t *testing.T) {
	e := newTestEngine(t, "/repo/invalid-tier")
	_, err := e.Store(context.Background(), StoreRequest{Type: model.TypeDecision, Content: "x", Layer: model.Tier(99)})
	require.Error(t, err)
	kind, ok := ferrors.KindOf(err)
	require.True(t, ok)
	require.Equal(t, ferrors.KindInvalidTier, kind)
}

func TestGetUnknownIDReturnsNotFound(t *testing.T) {
	e := newTestEngine(t, "/repo/not-found")
	_, err := e.Get(context.Background(), "does-not-exist")
	require.Error(t, err)
	kind, ok := ferrors.KindOf(err)
	require.True(t, ok)
	require.Equal(t, ferrors.KindNotFound, kind)
}

func TestUpdateRejectsTierOne(t *testing.T) {
	e := newTestEngine(t, "/repo/immutable")
	ctx := context.Background()
	mem, err := e.Store(ctx, StoreRequest{Type: model.TypeScratchpad, Content: "temp"})
	require.NoError(t, err)

	newContent := "changed"
	_, err = e.Update(ctx, mem.ID, UpdateRequest{Content: &newContent})
	require.Error(t, err)
	kind, ok := ferrors.KindOf(err)
	require.True(t, ok)
	require.Equal(t, ferrors.KindImmutableTier, kind)
}

func TestUpdateTierTwoContentIsMonotonic(t *testing.T) {
	e := newTestEngine(t, "/repo/update-monotonic")
	ctx := context.Background()
	mem, err := e.Store(ctx, StoreRequest{Type: model.TypeDecision, Content: "v1"})
	require.NoError(t, err)

	newContent := "v2"
	updated, err := e.Update(ctx, mem.ID, UpdateRequest{Content: &newContent})
	require.NoError(t, err)
	require.Equal(t, "v2", updated.Content)
	require.GreaterOrEqual(t, updated.UpdatedAt, mem.UpdatedAt)
	require.GreaterOrEqual(t, updated.UpdatedAt, updated.CreatedAt)
}

func TestUpdateWithTargetTierPromotesThenApplies(t *testing.T) {
	e := newTestEngine(t, "/repo/update-promote")
	ctx := context.Background()
	mem, err := e.Store(ctx, StoreRequest{Type: model.TypeDecision, Content: "v1", Layer: model.TierProject})
	require.NoError(t, err)

	newContent := "promoted and edited"
	updated, err := e.Update(ctx, mem.ID, UpdateRequest{Content: &newContent, TargetTier: model.TierSemantic})
	require.NoError(t, err)
	require.Equal(t, "promoted and edited", updated.Content)

	loc, err := e.Get(ctx, updated.ID)
	require.NoError(t, err)
	require.Equal(t, model.TierSemantic, loc.Tier)

	stale, err := e.project.Get(ctx, mem.ID)
	require.NoError(t, err)
	require.Nil(t, stale)
	_, getErr := e.Get(ctx, mem.ID)
	require.Error(t, getErr)
}

func TestUpdateRejectsMultiTierJump(t *testing.T) {
	e := newTestEngine(t, "/repo/update-jump")
	ctx := context.Background()
	mem, err := e.Store(ctx, StoreRequest{Type: model.TypeScratchpad, Content: "v1", Layer: model.TierWorking})
	require.NoError(t, err)

	_, err = e.Update(ctx, mem.ID, UpdateRequest{TargetTier: model.TierSemantic})
	require.Error(t, err)
}

func TestPromoteWalksTiersAndRejectsTerminal(t *testing.T) {
	e := newTestEngine(t, "/repo/promote-chain")
	ctx := context.Background()
	mem, err := e.Store(ctx, StoreRequest{Type: model.TypeScratchpad, Content: "walk me up", Layer: model.TierWorking})
	require.NoError(t, err)

	p1, err := e.Promote(ctx, mem.ID, model.TierWorking)
	require.NoError(t, err)
	require.Equal(t, "walk me up", p1.Content)
	loc, err := e.Get(ctx, p1.ID)
	require.NoError(t, err)
	require.Equal(t, model.TierProject, loc.Tier)

	p2, err := e.Promote(ctx, p1.ID, model.TierProject)
	require.NoError(t, err)
	loc, err = e.Get(ctx, p2.ID)
	require.NoError(t, err)
	require.Equal(t, model.TierSemantic, loc.Tier)

	_, err = e.Promote(ctx, p2.ID, model.TierSemantic)
	require.Error(t, err)
	kind, ok := ferrors.KindOf(err)
	require.True(t, ok)
	require.Equal(t, ferrors.KindInvalidPromotion, kind)
}

func TestPromotePreservesPinned(t *testing.T) {
	e := newTestEngine(t, "/repo/promote-pinned")
	ctx := context.Background()
	mem, err := e.Store(ctx, StoreRequest{Type: model.TypeDecision, Content: "keep me", Layer: model.TierProject, Pinned: true})
	require.NoError(t, err)
	require.True(t, mem.Pinned)

	promoted, err := e.Promote(ctx, mem.ID, model.TierProject)
	require.NoError(t, err)
	require.True(t, promoted.Pinned)
}

func TestDeleteRemovesFromWhicheverTierHoldsIt(t *testing.T) {
	e := newTestEngine(t, "/repo/delete")
	ctx := context.Background()
	mem, err := e.Store(ctx, StoreRequest{Type: model.TypeDecision, Content: "temporary decision"})
	require.NoError(t, err)

	require.NoError(t, e.Delete(ctx, mem.ID))
	_, err = e.Get(ctx, mem.ID)
	require.Error(t, err)

	err = e.Delete(ctx, mem.ID)
	require.Error(t, err)
	kind, ok := ferrors.KindOf(err)
	require.True(t, ok)
	require.Equal(t, ferrors.KindNotFound, kind)
}

func TestListFiltersByTierTypeAndTags(t *testing.T) {
	e := newTestEngine(t, "/repo/list")
	ctx := context.Background()

	_, err := e.Store(ctx, StoreRequest{Type: model.TypeDecision, Content: "decision one", Layer: model.TierProject, Metadata: model.Metadata{Tags: []string{"infra"}}})
	require.NoError(t, err)
	_, err = e.Store(ctx, StoreRequest{Type: model.TypeBugFix, Content: "bug one", Layer: model.TierProject})
	require.NoError(t, err)
	_, err = e.Store(ctx, StoreRequest{Type: model.TypeCodePattern, Content: "pattern one", Layer: model.TierSemantic})
	require.NoError(t, err)

	res, err := e.List(ctx, ListRequest{Tier: model.TierProject})
	require.NoError(t, err)
	require.Len(t, res.Memories, 2)

	res, err = e.List(ctx, ListRequest{Type: model.TypeDecision})
	require.NoError(t, err)
	require.Len(t, res.Memories, 1)
	require.Equal(t, "decision one", res.Memories[0].Content)

	res, err = e.List(ctx, ListRequest{Tags: []string{"infra"}})
	require.NoError(t, err)
	require.Len(t, res.Memories, 1)
}

func TestListStatsCountsPerTier(t *testing.T) {
	e := newTestEngine(t, "/repo/list-stats")
	ctx := context.Background()

	_, err := e.Store(ctx, StoreRequest{Type: model.TypeDecision, Content: "d1", Layer: model.TierProject, Pinned: true})
	require.NoError(t, err)
	_, err = e.Store(ctx, StoreRequest{Type: model.TypeScratchpad, Content: "s1", Layer: model.TierWorking})
	require.NoError(t, err)

	res, err := e.List(ctx, ListRequest{Stats: true})
	require.NoError(t, err)
	require.NotNil(t, res.Stats)
	require.Equal(t, 1, res.Stats[model.TierProject].Total)
	require.Equal(t, 1, res.Stats[model.TierProject].Pinned)
	require.Equal(t, 1, res.Stats[model.TierWorking].Total)
}

func TestSummarizeRejectsTierOne(t *testing.T) {
	e := newTestEngine(t, "/repo/summarize-l1")
	_, err := e.Summarize(context.Background(), model.TierWorking, 30)
	require.Error(t, err)
	kind, ok := ferrors.KindOf(err)
	require.True(t, ok)
	require.Equal(t, ferrors.KindImmutableTier, kind)
}

func TestSummarizeTierThreeRunsDecay(t *testing.T) {
	e := newTestEngine(t, "/repo/summarize-l3")
	ctx := context.Background()
	_, err := e.Store(ctx, StoreRequest{Type: model.TypeCodePattern, Content: "stale pattern", Layer: model.TierSemantic})
	require.NoError(t, err)

	res, err := e.Summarize(ctx, model.TierSemantic, 0)
	require.NoError(t, err)
	require.NotEmpty(t, res.Text)
}
