package mcp

import (
	"github.com/context-fabric/contextfabric/internal/codeindex"
	"github.com/context-fabric/contextfabric/internal/model"
)

// StoreInput is the store tool's request (spec §6).
type StoreInput struct {
	Type     string         `json:"type" jsonschema:"memory type, e.g. code_pattern, bug_fix, decision, convention, scratchpad"`
	Content  string         `json:"content" jsonschema:"the memory content to store"`
	Metadata model.Metadata `json:"metadata,omitempty" jsonschema:"tags, title, confidence, source, file context, weight, etc."`
	Layer    int            `json:"layer,omitempty" jsonschema:"explicit tier 1-3; omit to let the router decide"`
	TTL      int            `json:"ttl,omitempty" jsonschema:"tier-1 time-to-live in seconds"`
	Pinned   bool           `json:"pinned,omitempty" jsonschema:"pin this memory against decay/summarization"`
}

// StoreOutput is the store tool's response (spec §6).
type StoreOutput struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Layer   int    `json:"layer"`
	Pinned  bool   `json:"pinned"`
}

// RecallInput is the recall tool's request (spec §6).
type RecallInput struct {
	Query     string   `json:"query" jsonschema:"the recall query"`
	SessionID string   `json:"sessionId,omitempty" jsonschema:"opaque session identifier"`
	Limit     int      `json:"limit,omitempty" jsonschema:"max results, default 10"`
	Threshold float64  `json:"threshold,omitempty" jsonschema:"minimum fused score, default 0.7"`
	Mode      string   `json:"mode,omitempty" jsonschema:"hybrid, semantic, or keyword; default hybrid"`
	Types     []string `json:"types,omitempty" jsonschema:"restrict to these memory types"`
	Tags      []string `json:"tags,omitempty" jsonschema:"restrict to memories carrying any of these tags"`
}

// RecallResultOutput is one ranked hit in the recall tool's response.
type RecallResultOutput struct {
	Memory     *model.Memory `json:"memory"`
	Similarity float64       `json:"similarity"`
	Layer      int           `json:"layer"`
}

// RecallOutput is the recall tool's response (spec §6).
type RecallOutput struct {
	Results []RecallResultOutput `json:"results"`
	Total   int                  `json:"total"`
}

// GetInput is the get tool's request (spec §6).
type GetInput struct {
	ID string `json:"id" jsonschema:"memory id"`
}

// GetOutput is the get tool's response (spec §6).
type GetOutput struct {
	Memory *model.Memory `json:"memory"`
	Layer  int           `json:"layer"`
}

// UpdateInput is the update tool's request (spec §6).
type UpdateInput struct {
	ID         string          `json:"id" jsonschema:"memory id"`
	Content    *string         `json:"content,omitempty" jsonschema:"replacement content"`
	Metadata   *model.Metadata `json:"metadata,omitempty" jsonschema:"replacement metadata"`
	Pinned     *bool           `json:"pinned,omitempty" jsonschema:"new pinned flag"`
	TargetTier int             `json:"targetTier,omitempty" jsonschema:"promote one tier before applying the update"`
}

// UpdateOutput is the update tool's response (spec §6).
type UpdateOutput struct {
	Memory *model.Memory `json:"memory"`
}

// DeleteInput is the delete tool's request (spec §6).
type DeleteInput struct {
	ID string `json:"id" jsonschema:"memory id"`
}

// DeleteOutput is the delete tool's response (spec §6).
type DeleteOutput struct {
	Success bool `json:"success"`
}

// ListInput is the list tool's request (spec §6).
type ListInput struct {
	Tier   int      `json:"tier,omitempty" jsonschema:"restrict to one tier; omit for all tiers"`
	Type   string   `json:"type,omitempty" jsonschema:"restrict to one memory type"`
	Tags   []string `json:"tags,omitempty" jsonschema:"restrict to memories carrying any of these tags"`
	Limit  int      `json:"limit,omitempty" jsonschema:"page size, default 50"`
	Offset int      `json:"offset,omitempty" jsonschema:"page offset"`
	Stats  bool     `json:"stats,omitempty" jsonschema:"include per-tier counts"`
}

// TierStatsOutput reports one tier's counts in the list tool's response.
type TierStatsOutput struct {
	Total  int `json:"total"`
	Pinned int `json:"pinned"`
}

// ListOutput is the list tool's response (spec §6).
type ListOutput struct {
	Memories []*model.Memory         `json:"memories"`
	Stats    map[int]TierStatsOutput `json:"stats,omitempty"`
}

// PromoteInput is the promote tool's request (spec §6).
type PromoteInput struct {
	ID        string `json:"id" jsonschema:"memory id"`
	FromLayer int    `json:"fromLayer" jsonschema:"the memory's current tier"`
}

// PromoteOutput is the promote tool's response (spec §6).
type PromoteOutput struct {
	Memory *model.Memory `json:"memory"`
}

// SummarizeInput is the summarize tool's request (spec §6).
type SummarizeInput struct {
	Tier          int `json:"tier" jsonschema:"tier 2 or 3; tier 1 is rejected"`
	OlderThanDays int `json:"olderThanDays,omitempty" jsonschema:"age threshold for tier-2 archival"`
}

// SummarizeOutput is the summarize tool's response (spec §6).
type SummarizeOutput struct {
	SummaryID string `json:"summaryId,omitempty"`
	Count     int    `json:"count"`
	Text      string `json:"text"`
}

// OrientInput is the orient tool's request (spec §6).
type OrientInput struct {
	Timezone    string `json:"timezone,omitempty" jsonschema:"IANA timezone name, default UTC"`
	ProjectPath string `json:"projectPath,omitempty" jsonschema:"unused; the project is fixed at server construction"`
}

// TimeAnchorOutput mirrors engine.TimeAnchor for the wire response.
type TimeAnchorOutput struct {
	EpochMs     int64  `json:"epochMs"`
	ISO         string `json:"iso"`
	Timezone    string `json:"timezone"`
	OffsetSec   int    `json:"offsetSeconds"`
	DayStartMs  int64  `json:"dayStartMs"`
	DayEndMs    int64  `json:"dayEndMs"`
	WeekStartMs int64  `json:"weekStartMs"`
	WeekEndMs   int64  `json:"weekEndMs"`
	ISOYear     int    `json:"isoYear"`
	ISOWeek     int    `json:"isoWeek"`
}

// OfflineGapOutput mirrors engine.OfflineGap for the wire response.
type OfflineGapOutput struct {
	DurationMs    int64  `json:"durationMs"`
	DurationHuman string `json:"durationHuman"`
	From          int64  `json:"from"`
	To            int64  `json:"to"`
	MemoriesAdded int    `json:"memoriesAdded"`
}

// OrientOutput is the orient tool's response (spec §6).
type OrientOutput struct {
	Summary        string            `json:"summary"`
	Time           *TimeAnchorOutput `json:"time"`
	ProjectPath    string            `json:"projectPath"`
	OfflineGap     *OfflineGapOutput `json:"offlineGap,omitempty"`
	RecentMemories []*model.Memory   `json:"recentMemories"`
}

// SearchCodeInput is the searchCode tool's request (spec §6).
type SearchCodeInput struct {
	Query          string  `json:"query" jsonschema:"the code search query"`
	Mode           string  `json:"mode,omitempty" jsonschema:"text, symbol, or semantic; default semantic"`
	Language       string  `json:"language,omitempty" jsonschema:"restrict to one source language"`
	FilePattern    string  `json:"filePattern,omitempty" jsonschema:"glob restricting matched file paths"`
	SymbolKind     string  `json:"symbolKind,omitempty" jsonschema:"restrict symbol search to one kind"`
	Limit          int     `json:"limit,omitempty" jsonschema:"max results, default 10"`
	Threshold      float64 `json:"threshold,omitempty" jsonschema:"accepted but not applied; semantic search uses the index's configured threshold (default 0.5)"`
	IncludeContent bool    `json:"includeContent,omitempty" jsonschema:"include matched source text; omitted unless set to true"`
}

// SearchCodeResultOutput is one hit in the searchCode tool's response.
type SearchCodeResultOutput struct {
	FilePath  string            `json:"filePath"`
	Language  string            `json:"language"`
	StartLine int               `json:"startLine"`
	EndLine   int               `json:"endLine"`
	Content   string            `json:"content,omitempty"`
	Symbol    *model.CodeSymbol `json:"symbol,omitempty"`
	Score     float64           `json:"score"`
}

// IndexStatusOutput reports the project code index's build state, embedded
// in the searchCode tool's response (spec §6).
type IndexStatusOutput struct {
	TotalFiles   int   `json:"totalFiles"`
	TotalSymbols int   `json:"totalSymbols"`
	LastIndexed  int64 `json:"lastIndexed,omitempty"`
	IsStale      bool  `json:"isStale"`
}

// SearchCodeOutput is the searchCode tool's response (spec §6).
type SearchCodeOutput struct {
	Results     []SearchCodeResultOutput `json:"results"`
	IndexStatus IndexStatusOutput        `json:"indexStatus"`
	Total       int                      `json:"total"`
}

func toSearchCodeResultOutput(r codeindex.SearchResult) SearchCodeResultOutput {
	return SearchCodeResultOutput{
		FilePath:  r.FilePath,
		Language:  r.Language,
		StartLine: r.StartLine,
		EndLine:   r.EndLine,
		Content:   r.Content,
		Symbol:    r.Symbol,
		Score:     r.Score,
	}
}
