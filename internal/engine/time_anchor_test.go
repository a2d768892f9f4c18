package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewTimeAnchorDefaultsToUTC(t *testing.T) {
	now := time.Date(2026, time.July, 31, 15, 4, 5, 0, time.UTC)
	anchor, err := newTimeAnchor(now, "")
	require.NoError(t, err)
	require.Equal(t, "UTC", anchor.Timezone)
	require.Equal(t, 0, anchor.OffsetSeconds)
	require.Equal(t, now.UnixMilli(), anchor.EpochMillis)
}

func TestNewTimeAnchorDayAndWeekBoundaries(t *testing.T) {
	now := time.Date(2026, time.July, 31, 15, 4, 5, 0, time.UTC)
	anchor, err := newTimeAnchor(now, "UTC")
	require.NoError(t, err)

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	require.Equal(t, dayStart.UnixMilli(), anchor.DayStartMs)
	require.Equal(t, dayStart.AddDate(0, 0, 1).UnixMilli(), anchor.DayEndMs)

	weekday := int(now.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	weekStart := dayStart.AddDate(0, 0, -(weekday - 1))
	require.Equal(t, weekStart.UnixMilli(), anchor.WeekStartMs)
	require.Equal(t, weekStart.AddDate(0, 0, 7).UnixMilli(), anchor.WeekEndMs)
	require.True(t, anchor.WeekStartMs <= anchor.DayStartMs)
	require.True(t, anchor.DayStartMs < anchor.WeekEndMs)

	wantYear, wantWeek := now.ISOWeek()
	require.Equal(t, wantYear, anchor.ISOYear)
	require.Equal(t, wantWeek, anchor.ISOWeek)
}

func TestNewTimeAnchorRejectsUnknownZone(t *testing.T) {
	_, err := newTimeAnchor(time.Now(), "Definitely/Not_A_Zone")
	require.Error(t, err)
}
