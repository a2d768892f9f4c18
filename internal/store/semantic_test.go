package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/context-fabric/contextfabric/internal/embed"
	"github.com/context-fabric/contextfabric/internal/model"
)

func newTestEmbedder(t *testing.T) *embed.Service {
	t.Helper()
	return embed.NewService("", 384, 1000, time.Second)
}

func TestSemanticStoreRoundTrip(t *testing.T) {
	svc := newTestEmbedder(t)
	s, err := OpenSemanticStore("", 384, DefaultDecayConfig())
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	vec, err := svc.Embed(ctx, "generic retry wrapper with backoff")
	require.NoError(t, err)

	mem, err := s.Store(ctx, "generic retry wrapper with backoff", model.TypeCodePattern, model.Metadata{}, vec)
	require.NoError(t, err)
	require.Len(t, mem.Embedding, 384)

	got, err := s.Get(ctx, mem.ID)
	require.NoError(t, err)
	require.Equal(t, mem.Content, got.Content)
}

func TestSemanticStoreRejectsDimensionMismatch(t *testing.T) {
	s, err := OpenSemanticStore("", 384, DefaultDecayConfig())
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Store(context.Background(), "bad vector", model.TypeCodePattern, model.Metadata{}, make([]float32, 10))
	require.Error(t, err)
}

func TestSemanticStoreRecallSemanticRanksBySimilarity(t *testing.T) {
	svc := newTestEmbedder(t)
	s, err := OpenSemanticStore("", 384, DefaultDecayConfig())
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	texts := []string{
		"generic retry wrapper with exponential backoff",
		"completely unrelated note about lunch plans",
		"another retry helper using exponential backoff",
	}
	for _, text := range texts {
		vec, err := svc.Embed(ctx, text)
		require.NoError(t, err)
		_, err = s.Store(ctx, text, model.TypeCodePattern, model.Metadata{}, vec)
		require.NoError(t, err)
	}

	queryVec, err := svc.Embed(ctx, "exponential backoff retry wrapper")
	require.NoError(t, err)
	results, err := s.RecallSemantic(ctx, queryVec, 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Contains(t, []string{texts[0], texts[2]}, results[0].Memory.Content)
}

func TestSemanticStoreApplyDecayDeletesStaleNonPinned(t *testing.T) {
	svc := newTestEmbedder(t)
	s, err := OpenSemanticStore("", 384, DecayConfig{DecayDays: 14, Threshold: 0.2})
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	vec, err := svc.Embed(ctx, "stale pattern")
	require.NoError(t, err)
	mem, err := s.Store(ctx, "stale pattern", model.TypeCodePattern, model.Metadata{}, vec)
	require.NoError(t, err)

	yearAgo := model.NowMillis() - 365*86_400_000
	_, err = s.db.ExecContext(ctx, `UPDATE memories SET created_at = ?, last_accessed_at = ? WHERE id = ?`, yearAgo, yearAgo, mem.ID)
	require.NoError(t, err)

	deleted, err := s.ApplyDecay(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, deleted)

	got, err := s.Get(ctx, mem.ID)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestSemanticStorePinnedSurvivesDecay(t *testing.T) {
	svc := newTestEmbedder(t)
	s, err := OpenSemanticStore("", 384, DecayConfig{DecayDays: 14, Threshold: 0.2})
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	vec, err := svc.Embed(ctx, "pat")
	require.NoError(t, err)
	mem, err := s.Store(ctx, "pat", model.TypeCodePattern, model.Metadata{}, vec)
	require.NoError(t, err)
	pinned := true
	_, err = s.Update(ctx, mem.ID, nil, nil, nil, &pinned)
	require.NoError(t, err)

	yearAgo := model.NowMillis() - 365*86_400_000
	_, err = s.db.ExecContext(ctx, `UPDATE memories SET created_at = ?, last_accessed_at = ? WHERE id = ?`, yearAgo, yearAgo, mem.ID)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := s.ApplyDecay(ctx)
		require.NoError(t, err)
	}

	got, err := s.Get(ctx, mem.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestSemanticStoreApplyDecayIdempotentOnQuiescentStore(t *testing.T) {
	svc := newTestEmbedder(t)
	s, err := OpenSemanticStore("", 384, DefaultDecayConfig())
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	vec, err := svc.Embed(ctx, "fresh entry")
	require.NoError(t, err)
	_, err = s.Store(ctx, "fresh entry", model.TypeCodePattern, model.Metadata{}, vec)
	require.NoError(t, err)

	first, err := s.ApplyDecay(ctx)
	require.NoError(t, err)
	second, err := s.ApplyDecay(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, first)
	require.Equal(t, 0, second)
}
