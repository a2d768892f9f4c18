package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/context-fabric/contextfabric/internal/model"
)

func TestGetContextWindowAssemblesAllParts(t *testing.T) {
	e := newTestEngine(t, "/repo/context-window")
	ctx := context.Background()

	_, err := e.Store(ctx, StoreRequest{Type: model.TypeScratchpad, Content: "working on the auth refactor", Layer: model.TierWorking})
	require.NoError(t, err)
	_, err = e.Store(ctx, StoreRequest{Type: model.TypeDecision, Content: "decided to use JWT for auth tokens", Layer: model.TierProject})
	require.NoError(t, err)
	_, err = e.Store(ctx, StoreRequest{
		Type: model.TypeCodePattern, Content: "auth middleware retry pattern", Layer: model.TierSemantic,
		Metadata: model.Metadata{FileContext: &model.FileContext{Path: "auth.go", Language: "go"}},
	})
	require.NoError(t, err)
	_, err = e.Store(ctx, StoreRequest{Type: model.TypeBugFix, Content: "fixed token expiry off-by-one", Layer: model.TierProject})
	require.NoError(t, err)

	window, err := e.GetContextWindow(ctx, ContextWindowPrefs{CurrentFileLanguage: "go"})
	require.NoError(t, err)

	require.Len(t, window.Working, 1)
	require.NotEmpty(t, window.Relevant)
	require.NotEmpty(t, window.Patterns)
	require.NotEmpty(t, window.GhostMessages)
}

func TestGetContextWindowPatternsFilterByLanguage(t *testing.T) {
	e := newTestEngine(t, "/repo/context-window-lang")
	ctx := context.Background()

	_, err := e.Store(ctx, StoreRequest{
		Type: model.TypeCodePattern, Content: "go pattern", Layer: model.TierSemantic,
		Metadata: model.Metadata{FileContext: &model.FileContext{Path: "a.go", Language: "go"}},
	})
	require.NoError(t, err)
	_, err = e.Store(ctx, StoreRequest{
		Type: model.TypeCodePattern, Content: "python pattern", Layer: model.TierSemantic,
		Metadata: model.Metadata{FileContext: &model.FileContext{Path: "a.py", Language: "python"}},
	})
	require.NoError(t, err)

	window, err := e.GetContextWindow(ctx, ContextWindowPrefs{CurrentFileLanguage: "python"})
	require.NoError(t, err)
	require.Len(t, window.Patterns, 1)
	require.Equal(t, "python pattern", window.Patterns[0].Content)
}

func TestGetContextWindowRespectsMaxCaps(t *testing.T) {
	e := newTestEngine(t, "/repo/context-window-caps")
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		_, err := e.Store(ctx, StoreRequest{Type: model.TypeScratchpad, Content: "note", Layer: model.TierWorking})
		require.NoError(t, err)
	}

	window, err := e.GetContextWindow(ctx, ContextWindowPrefs{})
	require.NoError(t, err)
	require.LessOrEqual(t, len(window.Working), e.shared.cfg.Context.MaxWorkingMemories)
}
