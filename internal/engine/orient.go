package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/context-fabric/contextfabric/internal/model"
)

// OfflineGap describes the span since the project's last orient call, and
// how many memories were stored during that span (spec §6 orient tool).
type OfflineGap struct {
	DurationMs    int64  `json:"durationMs"`
	DurationHuman string `json:"durationHuman"`
	From          int64  `json:"from"`
	To            int64  `json:"to"`
	MemoriesAdded int    `json:"memoriesAdded"`
}

// OrientResult is orient's return value (spec §6 orient tool): a human
// summary, the resolved time anchor, the offline gap (nil on the very first
// orient for a project), and a handful of recently stored memories.
type OrientResult struct {
	Summary        string
	Time           *TimeAnchor
	ProjectPath    string
	OfflineGap     *OfflineGap
	RecentMemories []*model.Memory
}

// Orient reports the current time context and what happened since the
// project's last orient call, then updates last_seen and kicks off a decay
// sweep plus an incremental code-index refresh in the background (spec
// §4.9; §7: both are fire-and-forget, failures logged and never surfaced
// here).
func (e *Engine) Orient(ctx context.Context, timezone string) (*OrientResult, error) {
	anchor, err := newTimeAnchor(time.Now(), timezone)
	if err != nil {
		return nil, err
	}

	lastSeen, err := e.project.GetLastSeen(ctx)
	if err != nil {
		return nil, err
	}

	now := model.NowMillis()
	result := &OrientResult{Time: anchor, ProjectPath: e.projectPath}

	if lastSeen == nil {
		result.Summary = "First session for this project — no prior activity recorded."
	} else {
		since, err := e.project.GetMemoriesSince(ctx, *lastSeen)
		if err != nil {
			return nil, err
		}
		gap := &OfflineGap{
			DurationMs:    now - *lastSeen,
			DurationHuman: humanDuration(now - *lastSeen),
			From:          *lastSeen,
			To:            now,
			MemoriesAdded: len(since),
		}
		result.OfflineGap = gap
		result.Summary = fmt.Sprintf("Welcome back after %s — %d memories were added since your last session.", gap.DurationHuman, gap.MemoriesAdded)
	}

	if err := e.project.UpdateLastSeen(ctx, now); err != nil {
		return nil, err
	}

	recent, err := e.project.GetRecent(ctx, 5)
	if err != nil {
		return nil, err
	}
	result.RecentMemories = recent

	e.spawnBackground(func(bgCtx context.Context) {
		e.shared.decay.TriggerNow()
		if err := e.refreshCodeIndex(bgCtx); err != nil {
			slog.Warn("incremental code index refresh failed", slog.String("project", e.projectPath), slog.String("error", err.Error()))
		}
	})

	return result, nil
}

func humanDuration(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
