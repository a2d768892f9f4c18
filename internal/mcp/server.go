package mcp

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/context-fabric/contextfabric/internal/codeindex"
	"github.com/context-fabric/contextfabric/internal/engine"
	"github.com/context-fabric/contextfabric/internal/hybrid"
	"github.com/context-fabric/contextfabric/internal/model"
	"github.com/context-fabric/contextfabric/pkg/version"
)

// Server is the MCP server for Context Fabric. It bridges AI coding
// assistants with one project's context engine over JSON-RPC/stdio (spec §6).
type Server struct {
	mcp    *mcp.Server
	engine *engine.Engine
	logger *slog.Logger
}

// NewServer creates a new MCP server bound to the project engine eng. One
// Server serves exactly one project, mirroring the teacher's one-rootPath
// Server (internal/mcp/server.go).
func NewServer(eng *engine.Engine) (*Server, error) {
	if eng == nil {
		return nil, fmt.Errorf("engine is required")
	}

	s := &Server{
		engine: eng,
		logger: slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "context-fabric",
			Version: version.Version,
		},
		nil,
	)

	s.registerTools()
	return s, nil
}

// registerTools registers the ten memory-engine tools (spec §6).
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "store",
		Description: "Store a memory in the tiered context engine. The smart router picks a tier automatically unless layer is given explicitly.",
	}, s.handleStore)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "recall",
		Description: "Recall memories relevant to a query using hybrid BM25+vector search fused across all three tiers.",
	}, s.handleRecall)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get",
		Description: "Fetch one memory by id, searching tier 1 then tier 2 then tier 3.",
	}, s.handleGet)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "update",
		Description: "Apply a partial update to an existing memory; tier 1 is immutable. Set targetTier to promote one tier before applying the update.",
	}, s.handleUpdate)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "delete",
		Description: "Remove a memory from whichever tier currently holds it.",
	}, s.handleDelete)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list",
		Description: "List memories across one or all tiers, optionally filtered by type or tags, with optional per-tier stats.",
	}, s.handleList)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "promote",
		Description: "Copy a memory one tier up and remove it from the source tier; tier 3 is terminal.",
	}, s.handlePromote)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "summarize",
		Description: "Archive aged tier-2 memories into one summary entry, or run an out-of-cycle tier-3 decay sweep.",
	}, s.handleSummarize)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "orient",
		Description: "Report the current time anchor and what changed since the project's last orient call.",
	}, s.handleOrient)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "searchCode",
		Description: "Search the project's incremental code index by text, symbol name, or semantic similarity.",
	}, s.handleSearchCode)

	s.logger.Debug("registered MCP tools", slog.Int("count", 10))
}

func (s *Server) handleStore(ctx context.Context, _ *mcp.CallToolRequest, in StoreInput) (*mcp.CallToolResult, StoreOutput, error) {
	if in.Content == "" {
		return nil, StoreOutput{}, NewInvalidParamsError("content is required")
	}
	if in.Type == "" {
		return nil, StoreOutput{}, NewInvalidParamsError("type is required")
	}

	mem, err := s.engine.Store(ctx, engine.StoreRequest{
		Type:       model.Type(in.Type),
		Content:    in.Content,
		Metadata:   in.Metadata,
		Layer:      model.Tier(in.Layer),
		TTLSeconds: in.TTL,
		Pinned:     in.Pinned,
	})
	if err != nil {
		return nil, StoreOutput{}, MapError(err)
	}

	return nil, StoreOutput{
		ID:      mem.ID,
		Success: true,
		Layer:   int(mem.Tier),
		Pinned:  mem.Pinned,
	}, nil
}

func (s *Server) handleRecall(ctx context.Context, _ *mcp.CallToolRequest, in RecallInput) (*mcp.CallToolResult, RecallOutput, error) {
	if in.Query == "" {
		return nil, RecallOutput{}, NewInvalidParamsError("query is required")
	}

	var types []model.Type
	for _, t := range in.Types {
		types = append(types, model.Type(t))
	}

	fused, err := s.engine.Recall(ctx, engine.RecallRequest{
		Query:     in.Query,
		Limit:     in.Limit,
		Threshold: in.Threshold,
		Mode:      hybrid.Mode(in.Mode),
		Filter:    hybrid.Filter{Types: types, Tags: in.Tags},
	})
	if err != nil {
		return nil, RecallOutput{}, MapError(err)
	}

	out := RecallOutput{Results: make([]RecallResultOutput, 0, len(fused)), Total: len(fused)}
	for _, f := range fused {
		out.Results = append(out.Results, RecallResultOutput{
			Memory:     f.Memory,
			Similarity: f.Score,
			Layer:      int(f.Layer),
		})
	}
	return nil, out, nil
}

func (s *Server) handleGet(ctx context.Context, _ *mcp.CallToolRequest, in GetInput) (*mcp.CallToolResult, GetOutput, error) {
	if in.ID == "" {
		return nil, GetOutput{}, NewInvalidParamsError("id is required")
	}
	loc, err := s.engine.Get(ctx, in.ID)
	if err != nil {
		return nil, GetOutput{}, MapError(err)
	}
	return nil, GetOutput{Memory: loc.Memory, Layer: int(loc.Tier)}, nil
}

func (s *Server) handleUpdate(ctx context.Context, _ *mcp.CallToolRequest, in UpdateInput) (*mcp.CallToolResult, UpdateOutput, error) {
	if in.ID == "" {
		return nil, UpdateOutput{}, NewInvalidParamsError("id is required")
	}
	mem, err := s.engine.Update(ctx, in.ID, engine.UpdateRequest{
		Content:    in.Content,
		Metadata:   in.Metadata,
		Pinned:     in.Pinned,
		TargetTier: model.Tier(in.TargetTier),
	})
	if err != nil {
		return nil, UpdateOutput{}, MapError(err)
	}
	return nil, UpdateOutput{Memory: mem}, nil
}

func (s *Server) handleDelete(ctx context.Context, _ *mcp.CallToolRequest, in DeleteInput) (*mcp.CallToolResult, DeleteOutput, error) {
	if in.ID == "" {
		return nil, DeleteOutput{}, NewInvalidParamsError("id is required")
	}
	if err := s.engine.Delete(ctx, in.ID); err != nil {
		return nil, DeleteOutput{}, MapError(err)
	}
	return nil, DeleteOutput{Success: true}, nil
}

func (s *Server) handleList(ctx context.Context, _ *mcp.CallToolRequest, in ListInput) (*mcp.CallToolResult, ListOutput, error) {
	res, err := s.engine.List(ctx, engine.ListRequest{
		Tier:   model.Tier(in.Tier),
		Type:   model.Type(in.Type),
		Tags:   in.Tags,
		Limit:  in.Limit,
		Offset: in.Offset,
		Stats:  in.Stats,
	})
	if err != nil {
		return nil, ListOutput{}, MapError(err)
	}

	out := ListOutput{Memories: res.Memories}
	if in.Stats {
		out.Stats = make(map[int]TierStatsOutput, len(res.Stats))
		for tier, st := range res.Stats {
			out.Stats[int(tier)] = TierStatsOutput{Total: st.Total, Pinned: st.Pinned}
		}
	}
	return nil, out, nil
}

func (s *Server) handlePromote(ctx context.Context, _ *mcp.CallToolRequest, in PromoteInput) (*mcp.CallToolResult, PromoteOutput, error) {
	if in.ID == "" {
		return nil, PromoteOutput{}, NewInvalidParamsError("id is required")
	}
	mem, err := s.engine.Promote(ctx, in.ID, model.Tier(in.FromLayer))
	if err != nil {
		return nil, PromoteOutput{}, MapError(err)
	}
	return nil, PromoteOutput{Memory: mem}, nil
}

func (s *Server) handleSummarize(ctx context.Context, _ *mcp.CallToolRequest, in SummarizeInput) (*mcp.CallToolResult, SummarizeOutput, error) {
	res, err := s.engine.Summarize(ctx, model.Tier(in.Tier), in.OlderThanDays)
	if err != nil {
		return nil, SummarizeOutput{}, MapError(err)
	}
	return nil, SummarizeOutput{SummaryID: res.SummaryID, Count: res.Count, Text: res.Text}, nil
}

func (s *Server) handleOrient(ctx context.Context, _ *mcp.CallToolRequest, in OrientInput) (*mcp.CallToolResult, OrientOutput, error) {
	res, err := s.engine.Orient(ctx, in.Timezone)
	if err != nil {
		return nil, OrientOutput{}, MapError(err)
	}

	out := OrientOutput{
		Summary:        res.Summary,
		ProjectPath:    res.ProjectPath,
		RecentMemories: res.RecentMemories,
	}
	if res.Time != nil {
		out.Time = &TimeAnchorOutput{
			EpochMs:     res.Time.EpochMillis,
			ISO:         res.Time.ISO8601,
			Timezone:    res.Time.Timezone,
			OffsetSec:   res.Time.OffsetSeconds,
			DayStartMs:  res.Time.DayStartMs,
			DayEndMs:    res.Time.DayEndMs,
			WeekStartMs: res.Time.WeekStartMs,
			WeekEndMs:   res.Time.WeekEndMs,
			ISOYear:     res.Time.ISOYear,
			ISOWeek:     res.Time.ISOWeek,
		}
	}
	if res.OfflineGap != nil {
		out.OfflineGap = &OfflineGapOutput{
			DurationMs:    res.OfflineGap.DurationMs,
			DurationHuman: res.OfflineGap.DurationHuman,
			From:          res.OfflineGap.From,
			To:            res.OfflineGap.To,
			MemoriesAdded: res.OfflineGap.MemoriesAdded,
		}
	}
	return nil, out, nil
}

func (s *Server) handleSearchCode(ctx context.Context, _ *mcp.CallToolRequest, in SearchCodeInput) (*mcp.CallToolResult, SearchCodeOutput, error) {
	if in.Query == "" {
		return nil, SearchCodeOutput{}, NewInvalidParamsError("query is required")
	}

	results, status, err := s.engine.SearchCode(ctx, engine.SearchCodeRequest{
		Query:          in.Query,
		Mode:           codeindex.SearchMode(in.Mode),
		Language:       in.Language,
		FilePattern:    in.FilePattern,
		SymbolKind:     in.SymbolKind,
		Limit:          in.Limit,
		IncludeContent: in.IncludeContent,
	})
	if err != nil {
		return nil, SearchCodeOutput{}, MapError(err)
	}

	out := SearchCodeOutput{
		Results: make([]SearchCodeResultOutput, 0, len(results)),
		IndexStatus: IndexStatusOutput{
			TotalFiles:   status.TotalFiles,
			TotalSymbols: status.TotalSymbols,
			LastIndexed:  status.LastIndexed,
			IsStale:      status.IsStale,
		},
		Total: len(results),
	}
	for _, r := range results {
		out.Results = append(out.Results, toSearchCodeResultOutput(r))
	}
	return nil, out, nil
}

// Serve runs the server over stdio until ctx is cancelled (spec §6: "exposed
// over JSON-RPC/stdio").
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting MCP server", slog.String("transport", "stdio"))
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && err != context.Canceled {
		s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("MCP server stopped gracefully")
	return nil
}
