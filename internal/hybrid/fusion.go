// Package hybrid implements the hybrid recall pipeline: it fans out to the
// three tiers, fuses keyword and semantic rankings via Reciprocal Rank
// Fusion, normalizes scores, applies the caller's weight/threshold, and
// truncates to the requested limit (spec §4.6).
package hybrid

import (
	"sort"

	"github.com/context-fabric/contextfabric/internal/model"
)

// DefaultRRFConstant is the RRF smoothing constant (spec §4.6, GLOSSARY).
const DefaultRRFConstant = 60

// RankedCandidate is one entry in a single ranker's ordered candidate list.
type RankedCandidate struct {
	Memory *model.Memory
	Score  float64 // the ranker's own similarity/BM25 score, for tie-breaking
}

// FusedResult is one row of the final merged, scored, ranked list.
type FusedResult struct {
	Memory      *model.Memory
	Score       float64 // final score after the weight/3 boost; exceeds 1 when weight > 3
	Layer       model.Tier
	InBothLists bool
}

// RRF fuses two ranked lists (keyword and semantic) by memory id, following
// the spec's accumulation and tie-break rules exactly.
func RRF(keyword, semantic []RankedCandidate, k int) []*FusedResult {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	if len(keyword) == 0 && len(semantic) == 0 {
		return nil
	}

	type acc struct {
		result      *FusedResult
		kwRank      int
		semRank     int
		kwScore     float64
		semScore    float64
	}
	byID := make(map[string]*acc)

	order := func(id string) *acc {
		if a, ok := byID[id]; ok {
			return a
		}
		a := &acc{}
		byID[id] = a
		return a
	}

	for i, item := range keyword {
		a := order(item.Memory.ID)
		a.result = &FusedResult{Memory: item.Memory, Layer: item.Memory.Tier}
		a.kwRank = i + 1
		a.kwScore = item.Score
		a.result.Score += 1.0 / float64(k+i+1)
	}
	for i, item := range semantic {
		a := order(item.Memory.ID)
		if a.result == nil {
			a.result = &FusedResult{Memory: item.Memory, Layer: item.Memory.Tier}
		}
		a.semRank = i + 1
		a.semScore = item.Score
		a.result.Score += 1.0 / float64(k+i+1)
		if a.kwRank > 0 {
			a.result.InBothLists = true
		}
	}

	out := make([]*FusedResult, 0, len(byID))
	underlying := make(map[string]float64, len(byID))
	for id, a := range byID {
		out = append(out, a.result)
		// Keep the higher of the two underlying similarities for tie-breaks
		// and for "keep the representation whose underlying similarity is
		// higher" when both lists carry the id (spec §4.6).
		best := a.kwScore
		if a.semScore > best {
			best = a.semScore
		}
		underlying[id] = best
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].InBothLists != out[j].InBothLists {
			return out[i].InBothLists
		}
		ui, uj := underlying[out[i].Memory.ID], underlying[out[j].Memory.ID]
		if ui != uj {
			return ui > uj
		}
		return out[i].Memory.ID < out[j].Memory.ID
	})

	if len(out) > 0 && out[0].Score > 0 {
		max := out[0].Score
		for _, r := range out {
			r.Score /= max
		}
	}
	return out
}
