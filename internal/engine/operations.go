package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/context-fabric/contextfabric/internal/ferrors"
	"github.com/context-fabric/contextfabric/internal/model"
	"github.com/context-fabric/contextfabric/internal/router"
)

// StoreRequest carries a caller's store() call (spec §4.9, §6 store tool).
type StoreRequest struct {
	Type       model.Type
	Content    string
	Metadata   model.Metadata
	Layer      model.Tier // 0 = let the router decide
	TTLSeconds int
	Pinned     bool
}

// Store places a new memory per the smart router's decision (or the
// caller's explicit layer), filling the default metadata the facade always
// applies (spec §4.9: "fills confidence 0.8, source ai_inferred, cliType
// generic, project path from engine").
func (e *Engine) Store(ctx context.Context, req StoreRequest) (*model.Memory, error) {
	meta := req.Metadata
	if meta.Confidence == 0 {
		meta.Confidence = 0.8
	}
	if meta.Source == "" {
		meta.Source = model.SourceAIInferred
	}
	if meta.CLIType == "" {
		meta.CLIType = "generic"
	}
	meta.ProjectPath = e.projectPath

	if req.Layer != 0 && !req.Layer.Valid() {
		return nil, ferrors.InvalidTier(int(req.Layer))
	}
	decision := router.Route(router.Request{
		Type:         req.Type,
		Tags:         meta.Tags,
		TTLSeconds:   req.TTLSeconds,
		ExplicitTier: req.Layer,
		Content:      req.Content,
	})

	switch decision.Tier {
	case model.TierWorking:
		mem, err := e.working.Store(req.Content, req.Type, meta, req.TTLSeconds)
		if err != nil {
			return nil, err
		}
		return e.finishStore(ctx, mem, req.Pinned, decision.Tier)
	case model.TierProject:
		mem, err := e.project.Store(ctx, req.Content, req.Type, meta)
		if err != nil {
			return nil, err
		}
		return e.finishStore(ctx, mem, req.Pinned, decision.Tier)
	case model.TierSemantic:
		embedding, err := e.shared.embedder.Embed(ctx, req.Content)
		if err != nil {
			return nil, err
		}
		mem, err := e.shared.semantic.Store(ctx, req.Content, req.Type, meta, embedding)
		if err != nil {
			return nil, err
		}
		return e.finishStore(ctx, mem, req.Pinned, decision.Tier)
	default:
		return nil, ferrors.InvalidTier(int(decision.Tier))
	}
}

// finishStore applies the caller's pinned flag, if set, after the initial
// insert (none of the Store constructors take a pinned argument).
func (e *Engine) finishStore(ctx context.Context, mem *model.Memory, pinned bool, tier model.Tier) (*model.Memory, error) {
	if !pinned {
		return mem, nil
	}
	p := true
	switch tier {
	case model.TierProject:
		return e.project.Update(ctx, mem.ID, nil, nil, &p)
	case model.TierSemantic:
		return e.shared.semantic.Update(ctx, mem.ID, nil, nil, nil, &p)
	default:
		// Tier-1 has no pinning concept; the in-memory entry already carries
		// Pinned=false and is never mutated.
		return mem, nil
	}
}

// Located pairs a memory with the tier it was found in.
type Located struct {
	Memory *model.Memory
	Tier   model.Tier
}

// locate searches L1, then L2, then L3 in order and returns the first hit
// (spec §4.9 get: "search L1→L2→L3, return first hit + tier").
func (e *Engine) locate(ctx context.Context, id string) (*Located, error) {
	if mem := e.working.Get(id); mem != nil {
		return &Located{Memory: mem, Tier: model.TierWorking}, nil
	}
	mem, err := e.project.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if mem != nil {
		return &Located{Memory: mem, Tier: model.TierProject}, nil
	}
	mem, err = e.shared.semantic.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if mem != nil {
		return &Located{Memory: mem, Tier: model.TierSemantic}, nil
	}
	return nil, nil
}

// Get retrieves a memory by id across all three tiers.
func (e *Engine) Get(ctx context.Context, id string) (*Located, error) {
	loc, err := e.locate(ctx, id)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		return nil, ferrors.NotFound(id)
	}
	return loc, nil
}

// UpdateRequest carries a caller's update() call (spec §4.9).
type UpdateRequest struct {
	Content    *string
	Metadata   *model.Metadata
	Pinned     *bool
	TargetTier model.Tier // 0 = no promotion requested
}

// Update applies a partial update to an existing memory in place. A
// TargetTier greater than the memory's current tier triggers a promotion
// first (spec §4.9: "targetTier>current triggers promote"); tier 1 never
// accepts updates (spec §4.9: "L1 immutable").
func (e *Engine) Update(ctx context.Context, id string, req UpdateRequest) (*model.Memory, error) {
	loc, err := e.locate(ctx, id)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		return nil, ferrors.NotFound(id)
	}
	if loc.Tier == model.TierWorking {
		return nil, ferrors.ImmutableTier("update", int(model.TierWorking))
	}

	tier := loc.Tier
	if req.TargetTier != 0 && req.TargetTier != tier {
		if req.TargetTier != tier+1 {
			return nil, ferrors.InvalidPromotion("update may only promote one tier at a time")
		}
		promoted, err := e.Promote(ctx, id, tier)
		if err != nil {
			return nil, err
		}
		tier = req.TargetTier
		loc = &Located{Memory: promoted, Tier: tier}
		id = promoted.ID
	}

	switch tier {
	case model.TierProject:
		return e.project.Update(ctx, id, req.Content, req.Metadata, req.Pinned)
	case model.TierSemantic:
		var newEmbedding []float32
		if req.Content != nil {
			newEmbedding, err = e.shared.embedder.Embed(ctx, *req.Content)
			if err != nil {
				return nil, err
			}
		}
		return e.shared.semantic.Update(ctx, id, req.Content, newEmbedding, req.Metadata, req.Pinned)
	default:
		return nil, ferrors.InvalidTier(int(tier))
	}
}

// Delete locates id across tiers and removes it.
func (e *Engine) Delete(ctx context.Context, id string) error {
	if mem := e.working.Get(id); mem != nil {
		e.working.Delete(id)
		return nil
	}
	mem, err := e.project.Get(ctx, id)
	if err != nil {
		return err
	}
	if mem != nil {
		return e.project.Delete(ctx, id)
	}
	mem, err = e.shared.semantic.Get(ctx, id)
	if err != nil {
		return err
	}
	if mem != nil {
		return e.shared.semantic.Delete(ctx, id)
	}
	return ferrors.NotFound(id)
}

// Promote copies a memory from fromTier up to fromTier+1 and deletes it
// from the source tier (spec §4.9: "copy up one tier, delete from source;
// L3 terminal").
func (e *Engine) Promote(ctx context.Context, id string, fromTier model.Tier) (*model.Memory, error) {
	if !fromTier.Valid() {
		return nil, ferrors.InvalidTier(int(fromTier))
	}
	if fromTier == model.TierSemantic {
		return nil, ferrors.InvalidPromotion("tier 3 is terminal and cannot be promoted further")
	}

	var source *model.Memory
	switch fromTier {
	case model.TierWorking:
		source = e.working.Get(id)
	case model.TierProject:
		mem, err := e.project.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		source = mem
	}
	if source == nil {
		return nil, ferrors.NotFound(id)
	}

	var promoted *model.Memory
	var err error
	switch fromTier + 1 {
	case model.TierProject:
		promoted, err = e.project.Store(ctx, source.Content, source.Type, source.Metadata)
	case model.TierSemantic:
		var embedding []float32
		embedding, err = e.shared.embedder.Embed(ctx, source.Content)
		if err != nil {
			return nil, err
		}
		promoted, err = e.shared.semantic.Store(ctx, source.Content, source.Type, source.Metadata, embedding)
	}
	if err != nil {
		return nil, err
	}

	if source.Pinned {
		promoted, err = e.finishStore(ctx, promoted, true, fromTier+1)
		if err != nil {
			return nil, err
		}
	}

	switch fromTier {
	case model.TierWorking:
		e.working.Delete(id)
	case model.TierProject:
		if err := e.project.Delete(ctx, id); err != nil {
			return nil, err
		}
	}
	return promoted, nil
}

// ListRequest carries a caller's list() call (spec §4.9).
type ListRequest struct {
	Tier   model.Tier // 0 = all tiers
	Type   model.Type // "" = any type
	Tags   []string
	Limit  int
	Offset int
	Stats  bool
}

// TierStats reports per-tier counts, including pinned, for list's optional
// stats flag (spec §4.9).
type TierStats struct {
	Total  int
	Pinned int
}

// ListResult is the paginated output of List, plus optional per-tier stats.
type ListResult struct {
	Memories []*model.Memory
	Stats    map[model.Tier]TierStats
}

// List returns a paginated, optionally filtered view across one or all
// tiers, newest first.
func (e *Engine) List(ctx context.Context, req ListRequest) (*ListResult, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}

	var all []*model.Memory
	if req.Tier == 0 || req.Tier == model.TierWorking {
		all = append(all, e.working.GetAll()...)
	}
	if req.Tier == 0 || req.Tier == model.TierProject {
		mems, err := e.project.List(ctx, req.Offset+limit, 0)
		if err != nil {
			return nil, err
		}
		all = append(all, mems...)
	}
	if req.Tier == 0 || req.Tier == model.TierSemantic {
		mems, err := e.shared.semantic.List(ctx, req.Offset+limit, 0)
		if err != nil {
			return nil, err
		}
		all = append(all, mems...)
	}

	filtered := make([]*model.Memory, 0, len(all))
	for _, m := range all {
		if req.Type != "" && m.Type != req.Type {
			continue
		}
		if len(req.Tags) > 0 && !m.Metadata.HasAny(req.Tags...) {
			continue
		}
		filtered = append(filtered, m)
	}
	sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].CreatedAt > filtered[j].CreatedAt })

	start := req.Offset
	if start > len(filtered) {
		start = len(filtered)
	}
	end := start + limit
	if end > len(filtered) {
		end = len(filtered)
	}

	result := &ListResult{Memories: filtered[start:end]}
	if req.Stats {
		stats, err := e.tierStats(ctx)
		if err != nil {
			return nil, err
		}
		result.Stats = stats
	}
	return result, nil
}

func (e *Engine) tierStats(ctx context.Context) (map[model.Tier]TierStats, error) {
	out := make(map[model.Tier]TierStats, 3)

	l1All := e.working.GetAll()
	l1Pinned := 0
	for _, m := range l1All {
		if m.Pinned {
			l1Pinned++
		}
	}
	out[model.TierWorking] = TierStats{Total: len(l1All), Pinned: l1Pinned}

	l2Total, l2Pinned, err := e.project.Stats(ctx)
	if err != nil {
		return nil, err
	}
	out[model.TierProject] = TierStats{Total: l2Total, Pinned: l2Pinned}

	l3Total, l3Pinned, err := e.shared.semantic.Stats(ctx)
	if err != nil {
		return nil, err
	}
	out[model.TierSemantic] = TierStats{Total: l3Total, Pinned: l3Pinned}

	return out, nil
}

// SummarizeResult reports the outcome of a summarize() call.
type SummarizeResult struct {
	SummaryID string
	Count     int
	Text      string
}

// Summarize archives old tier-2 memories into one summary entry, or runs an
// out-of-cycle tier-3 decay sweep and reports deletions. Tier 1 never
// accepts summarize (spec §4.9: "L1 rejected").
func (e *Engine) Summarize(ctx context.Context, tier model.Tier, olderThanDays int) (*SummarizeResult, error) {
	switch tier {
	case model.TierWorking:
		return nil, ferrors.ImmutableTier("summarize", int(model.TierWorking))
	case model.TierProject:
		id, count, text, err := e.project.Summarize(ctx, olderThanDays)
		if err != nil {
			return nil, err
		}
		return &SummarizeResult{SummaryID: id, Count: count, Text: text}, nil
	case model.TierSemantic:
		deleted, err := e.shared.semantic.ApplyDecay(ctx)
		if err != nil {
			return nil, err
		}
		return &SummarizeResult{Count: deleted, Text: decaySummaryText(deleted)}, nil
	default:
		return nil, ferrors.InvalidTier(int(tier))
	}
}

func decaySummaryText(deleted int) string {
	if deleted == 1 {
		return "decay pass removed 1 stale memory"
	}
	return fmt.Sprintf("decay pass removed %d stale memories", deleted)
}
