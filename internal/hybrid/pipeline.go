package hybrid

import (
	"sort"

	"github.com/context-fabric/contextfabric/internal/model"
)

// Mode selects which rankers the pipeline fans out to (spec §4.6).
type Mode string

const (
	ModeHybrid   Mode = "hybrid"
	ModeSemantic Mode = "semantic"
	ModeKeyword  Mode = "keyword"
)

// Filter restricts candidates before or after fusion (spec §4.6).
type Filter struct {
	Types       []model.Type
	Tiers       []model.Tier
	Tags        []string
	ProjectPath string
}

// Options configures a single Recall call.
type Options struct {
	Mode        Mode
	Limit       int
	Threshold   float64
	Filter      Filter
	RRFConstant int
}

// DefaultOptions matches the spec's recall tool defaults.
func DefaultOptions() Options {
	return Options{Mode: ModeHybrid, Limit: 10, Threshold: 0.7, RRFConstant: DefaultRRFConstant}
}

// Candidates bundles the raw, tier-specific candidate lists the caller
// (the context engine) has already fetched. The pipeline only fuses,
// filters, and scores — it never talks to a store directly.
type Candidates struct {
	KeywordL2   []RankedCandidate // L2 BM25
	KeywordL3   []RankedCandidate // L3 BM25
	Semantic    []RankedCandidate // L3 cosine
	SubstringL1 []*model.Memory   // L1 substring fallback, always included
	SubstringL2 []*model.Memory   // L2 substring fallback (semantic/keyword modes)
}

// Recall fuses the supplied candidates per opts.Mode, applies filters,
// computes the weight-boosted normalized score, threshold-filters, and
// truncates to opts.Limit.
func Recall(c Candidates, opts Options) []*FusedResult {
	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	k := opts.RRFConstant
	if k <= 0 {
		k = DefaultRRFConstant
	}

	keyword := applyTierProjectFilter(c.KeywordL2, opts.Filter)
	keyword = append(keyword, applyTierProjectFilter(c.KeywordL3, opts.Filter)...)
	semantic := applyTierProjectFilter(c.Semantic, opts.Filter)

	var fused []*FusedResult
	switch opts.Mode {
	case ModeSemantic:
		fused = rankOnly(semantic)
	case ModeKeyword:
		fused = rankOnly(keyword)
	default:
		fused = RRF(keyword, semantic, k)
	}

	// Tier-1 substring matches are always folded in (all modes), ranked
	// after ranked candidates since they carry no comparable score.
	for _, mem := range filterMemories(c.SubstringL1, opts.Filter) {
		fused = append(fused, &FusedResult{Memory: mem, Layer: mem.Tier, Score: 0})
	}
	if opts.Mode != ModeHybrid {
		for _, mem := range filterMemories(c.SubstringL2, opts.Filter) {
			fused = append(fused, &FusedResult{Memory: mem, Layer: mem.Tier, Score: 0})
		}
	}

	fused = dedup(fused)
	fused = applyWeightBoost(fused)
	fused = applyLateFilters(fused, opts.Filter)

	sort.SliceStable(fused, func(i, j int) bool { return fused[i].Score > fused[j].Score })

	out := make([]*FusedResult, 0, opts.Limit)
	for _, r := range fused {
		if r.Score < opts.Threshold {
			continue
		}
		out = append(out, r)
		if len(out) >= opts.Limit {
			break
		}
	}
	return out
}

func rankOnly(candidates []RankedCandidate) []*FusedResult {
	out := make([]*FusedResult, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, &FusedResult{Memory: c.Memory, Score: c.Score, Layer: c.Memory.Tier})
	}
	return out
}

func applyTierProjectFilter(candidates []RankedCandidate, f Filter) []RankedCandidate {
	if len(f.Tiers) == 0 && f.ProjectPath == "" {
		return candidates
	}
	out := make([]RankedCandidate, 0, len(candidates))
	for _, c := range candidates {
		if !tierAllowed(c.Memory.Tier, f.Tiers) {
			continue
		}
		if f.ProjectPath != "" && c.Memory.Metadata.ProjectPath != f.ProjectPath {
			continue
		}
		out = append(out, c)
	}
	return out
}

func filterMemories(memories []*model.Memory, f Filter) []*model.Memory {
	out := make([]*model.Memory, 0, len(memories))
	for _, m := range memories {
		if !tierAllowed(m.Tier, f.Tiers) {
			continue
		}
		if f.ProjectPath != "" && m.Metadata.ProjectPath != f.ProjectPath {
			continue
		}
		out = append(out, m)
	}
	return out
}

func tierAllowed(tier model.Tier, tiers []model.Tier) bool {
	if len(tiers) == 0 {
		return true
	}
	for _, t := range tiers {
		if t == tier {
			return true
		}
	}
	return false
}

// applyLateFilters applies the filters that are cheap only after fusion
// (types, tags), per spec §4.6.
func applyLateFilters(results []*FusedResult, f Filter) []*FusedResult {
	if len(f.Types) == 0 && len(f.Tags) == 0 {
		return results
	}
	out := make([]*FusedResult, 0, len(results))
	for _, r := range results {
		if len(f.Types) > 0 && !typeAllowed(r.Memory.Type, f.Types) {
			continue
		}
		if len(f.Tags) > 0 && !r.Memory.Metadata.HasAny(f.Tags...) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func typeAllowed(t model.Type, types []model.Type) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

// dedup keeps one FusedResult per memory id, preferring the entry with the
// higher score (mirrors "keep the representation whose underlying
// similarity is higher").
func dedup(results []*FusedResult) []*FusedResult {
	best := make(map[string]*FusedResult, len(results))
	order := make([]string, 0, len(results))
	for _, r := range results {
		existing, ok := best[r.Memory.ID]
		if !ok {
			best[r.Memory.ID] = r
			order = append(order, r.Memory.ID)
			continue
		}
		if r.Score > existing.Score {
			best[r.Memory.ID] = r
		}
	}
	out := make([]*FusedResult, 0, len(order))
	for _, id := range order {
		out = append(out, best[id])
	}
	return out
}

// applyWeightBoost multiplies each result's score by weight/3, per spec
// §4.6.
func applyWeightBoost(results []*FusedResult) []*FusedResult {
	for _, r := range results {
		weight := r.Memory.Metadata.NormalizedWeight()
		r.Score *= float64(weight) / 3.0
	}
	return results
}
