package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/context-fabric/contextfabric/internal/model"
)

func TestOrientFirstCallHasNoOfflineGap(t *testing.T) {
	e := newTestEngine(t, "/repo/orient-first")
	result, err := e.Orient(context.Background(), "")
	require.NoError(t, err)
	require.Nil(t, result.OfflineGap)
	require.Contains(t, result.Summary, "First session")
	require.NotNil(t, result.Time)
	require.Equal(t, "/repo/orient-first", result.ProjectPath)
}

func TestOrientSecondCallReportsOfflineGap(t *testing.T) {
	e := newTestEngine(t, "/repo/orient-second")
	ctx := context.Background()

	first, err := e.Orient(ctx, "")
	require.NoError(t, err)
	require.Nil(t, first.OfflineGap)

	_, err = e.Store(ctx, StoreRequest{Type: model.TypeDecision, Content: "decided during the gap", Layer: model.TierProject})
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	second, err := e.Orient(ctx, "")
	require.NoError(t, err)
	require.NotNil(t, second.OfflineGap)
	require.Equal(t, 1, second.OfflineGap.MemoriesAdded)
	require.GreaterOrEqual(t, second.OfflineGap.DurationMs, int64(0))
	require.Contains(t, second.Summary, "1 memories")
}

func TestOrientTimeAnchorRejectsUnknownTimezone(t *testing.T) {
	e := newTestEngine(t, "/repo/orient-tz")
	_, err := e.Orient(context.Background(), "Not/A_Real_Zone")
	require.Error(t, err)
}

func TestOrientTimeAnchorHonorsNamedTimezone(t *testing.T) {
	e := newTestEngine(t, "/repo/orient-tz-valid")
	result, err := e.Orient(context.Background(), "America/New_York")
	require.NoError(t, err)
	require.Equal(t, "America/New_York", result.Time.Timezone)
}
