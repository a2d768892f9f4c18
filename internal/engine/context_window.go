package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/context-fabric/contextfabric/internal/model"
)

// ContextWindowPrefs narrows getContextWindow's code-pattern step to the
// language of the file the caller is currently working in (spec §4.9 step
// 6: "filtered by the language of the current file if known").
type ContextWindowPrefs struct {
	CurrentFileLanguage string
}

// RelevantMemory pairs a memory with the score computed for it during
// getContextWindow's step 4 scoring (spec §4.9).
type RelevantMemory struct {
	Memory *model.Memory
	Score  float64
}

// ContextWindow is getContextWindow's return value: the eight-step
// assembly described in spec §4.9.
type ContextWindow struct {
	Working       []*model.Memory
	Relevant      []RelevantMemory
	Patterns      []*model.Memory
	GhostMessages []string
	Suggestions   []string
}

// GetContextWindow assembles, in eight steps, the context window handed to an AI
// coding assistant at the start of a turn (spec §4.9).
func (e *Engine) GetContextWindow(ctx context.Context, prefs ContextWindowPrefs) (*ContextWindow, error) {
	cfg := e.shared.cfg.Context

	// Step 1: working set, up to maxWorkingMemories, newest first.
	working := e.working.GetAll()
	if len(working) > cfg.MaxWorkingMemories {
		working = working[:cfg.MaxWorkingMemories]
	}

	// Step 2: seed query from the top-3 working entries' content.
	seedCount := 3
	if len(working) < seedCount {
		seedCount = len(working)
	}
	var seedParts []string
	for _, m := range working[:seedCount] {
		seedParts = append(seedParts, m.Content)
	}
	seed := strings.Join(seedParts, "\n")

	// Step 3: L2 most-recent 5, L3 top-5 semantic recall on the seed.
	l2Recent, err := e.project.GetRecent(ctx, 5)
	if err != nil {
		return nil, err
	}

	var l3Top []relevanceHit
	if seed != "" {
		queryVec, embedErr := e.shared.embedder.Embed(ctx, seed)
		if embedErr == nil {
			scored, recallErr := e.shared.semantic.RecallSemantic(ctx, queryVec, 5)
			if recallErr == nil {
				for _, s := range scored {
					l3Top = append(l3Top, relevanceHit{memory: s.Memory, cosine: s.Score})
				}
			}
		}
	}

	// Step 4: score L2 picks at 0.8*weight/3, L3 picks at cosine*weight/3.
	relevant := make([]RelevantMemory, 0, len(l2Recent)+len(l3Top))
	for _, m := range l2Recent {
		relevant = append(relevant, RelevantMemory{Memory: m, Score: 0.8 * float64(m.Metadata.NormalizedWeight()) / 3.0})
	}
	for _, hit := range l3Top {
		relevant = append(relevant, RelevantMemory{Memory: hit.memory, Score: hit.cosine * float64(hit.memory.Metadata.NormalizedWeight()) / 3.0})
	}

	// Step 5: merge, sort desc, truncate to maxRelevantMemories.
	sort.SliceStable(relevant, func(i, j int) bool { return relevant[i].Score > relevant[j].Score })
	if len(relevant) > cfg.MaxRelevantMemories {
		relevant = relevant[:cfg.MaxRelevantMemories]
	}

	// Step 6: code patterns for the project, filtered by current-file
	// language if known, ranked by relevance score.
	patterns, err := e.rankedCodePatterns(ctx, prefs.CurrentFileLanguage, cfg.MaxPatterns)
	if err != nil {
		return nil, err
	}

	// Step 7: ghost messages summarizing recent files/decisions/bug fixes.
	ghosts, err := e.ghostMessages(ctx, cfg.MaxGhostMessages)
	if err != nil {
		return nil, err
	}

	// Step 8: suggested actions from decisions, patterns, errors, relevance.
	suggestions := e.suggestions(relevant, patterns, cfg.MaxSuggestions)

	return &ContextWindow{
		Working:       working,
		Relevant:      relevant,
		Patterns:      patterns,
		GhostMessages: ghosts,
		Suggestions:   suggestions,
	}, nil
}

type relevanceHit struct {
	memory *model.Memory
	cosine float64
}

// rankedCodePatterns fetches this project's tier-3 code_pattern memories,
// optionally filtered to a language, ranked by relevance score.
func (e *Engine) rankedCodePatterns(ctx context.Context, language string, limit int) ([]*model.Memory, error) {
	all, err := e.shared.semantic.FindByType(ctx, model.TypeCodePattern)
	if err != nil {
		return nil, err
	}
	filtered := make([]*model.Memory, 0, len(all))
	for _, m := range all {
		if m.Metadata.ProjectPath != "" && m.Metadata.ProjectPath != e.projectPath {
			continue
		}
		if language != "" && m.Metadata.FileContext != nil && m.Metadata.FileContext.Language != language {
			continue
		}
		filtered = append(filtered, m)
	}
	sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].RelevanceScore > filtered[j].RelevanceScore })
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered, nil
}

// ghostMessages emits short system-message-style summaries of recent files
// touched, decisions, and bug fixes (spec §4.9 step 7).
func (e *Engine) ghostMessages(ctx context.Context, limit int) ([]string, error) {
	var messages []string

	decisions, err := e.project.FindByType(ctx, model.TypeDecision)
	if err != nil {
		return nil, err
	}
	for _, d := range decisions {
		if len(messages) >= limit {
			return messages, nil
		}
		messages = append(messages, fmt.Sprintf("Decision recorded: %s", truncateText(d.Content, 140)))
	}

	bugFixes, err := e.project.FindByType(ctx, model.TypeBugFix)
	if err != nil {
		return nil, err
	}
	for _, b := range bugFixes {
		if len(messages) >= limit {
			return messages, nil
		}
		messages = append(messages, fmt.Sprintf("Bug fix on record: %s", truncateText(b.Content, 140)))
	}

	if len(messages) < limit {
		recent, err := e.project.GetRecent(ctx, limit)
		if err != nil {
			return nil, err
		}
		seenFiles := make(map[string]struct{})
		for _, m := range recent {
			if len(messages) >= limit {
				break
			}
			if m.Metadata.FileContext == nil || m.Metadata.FileContext.Path == "" {
				continue
			}
			if _, ok := seenFiles[m.Metadata.FileContext.Path]; ok {
				continue
			}
			seenFiles[m.Metadata.FileContext.Path] = struct{}{}
			messages = append(messages, fmt.Sprintf("Recently touched %s", m.Metadata.FileContext.Path))
		}
	}

	return messages, nil
}

// suggestions derives simple next-action hints from the relevance set,
// patterns, and any surfaced errors (spec §4.9 step 8).
func (e *Engine) suggestions(relevant []RelevantMemory, patterns []*model.Memory, limit int) []string {
	var out []string
	for _, r := range relevant {
		if len(out) >= limit {
			return out
		}
		switch r.Memory.Type {
		case model.TypeDecision:
			out = append(out, fmt.Sprintf("Consider revisiting decision: %s", truncateText(r.Memory.Content, 100)))
		case model.TypeError:
			out = append(out, fmt.Sprintf("Watch for recurrence of: %s", truncateText(r.Memory.Content, 100)))
		}
	}
	for _, p := range patterns {
		if len(out) >= limit {
			return out
		}
		out = append(out, fmt.Sprintf("Reuse pattern: %s", truncateText(p.Content, 100)))
	}
	return out
}

func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
