package engine

import (
	"time"

	"github.com/context-fabric/contextfabric/internal/ferrors"
)

// TimeAnchor is a structured snapshot of a moment: epoch ms, ISO string,
// IANA timezone, UTC offset, day/week boundaries, and ISO week number (spec
// GLOSSARY "TimeAnchor"), returned by orient (spec §6 orient tool).
type TimeAnchor struct {
	EpochMillis   int64  `json:"epochMillis"`
	ISO8601       string `json:"iso8601"`
	Timezone      string `json:"timezone"`
	OffsetSeconds int    `json:"offsetSeconds"`
	DayStartMs    int64  `json:"dayStartMs"`
	DayEndMs      int64  `json:"dayEndMs"`
	WeekStartMs   int64  `json:"weekStartMs"`
	WeekEndMs     int64  `json:"weekEndMs"`
	ISOYear       int    `json:"isoYear"`
	ISOWeek       int    `json:"isoWeek"`
}

// newTimeAnchor builds a TimeAnchor for now in the named IANA timezone. An
// empty timezone resolves to UTC (spec leaves the default unstated; UTC
// keeps orient deterministic across machines, recorded as an Open Question
// decision in DESIGN.md).
func newTimeAnchor(now time.Time, timezone string) (*TimeAnchor, error) {
	if timezone == "" {
		timezone = "UTC"
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, ferrors.InvalidInput("unknown timezone: " + timezone)
	}
	local := now.In(loc)

	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	weekday := int(local.Weekday())
	if weekday == 0 {
		weekday = 7 // ISO: Monday=1 .. Sunday=7
	}
	weekStart := dayStart.AddDate(0, 0, -(weekday - 1))
	weekEnd := weekStart.AddDate(0, 0, 7)

	isoYear, isoWeek := local.ISOWeek()
	_, offset := local.Zone()

	return &TimeAnchor{
		EpochMillis:   now.UnixMilli(),
		ISO8601:       local.Format(time.RFC3339),
		Timezone:      timezone,
		OffsetSeconds: offset,
		DayStartMs:    dayStart.UnixMilli(),
		DayEndMs:      dayEnd.UnixMilli(),
		WeekStartMs:   weekStart.UnixMilli(),
		WeekEndMs:     weekEnd.UnixMilli(),
		ISOYear:       isoYear,
		ISOWeek:       isoWeek,
	}, nil
}
