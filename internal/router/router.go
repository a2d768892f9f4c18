// Package router implements the smart router: a stateless classifier that
// places new memories into tier 1, 2, or 3 by a fixed priority order
// (spec §4.5).
package router

import (
	"regexp"
	"strings"

	"github.com/context-fabric/contextfabric/internal/model"
)

// Decision is the router's output: a target tier plus a diagnostic
// confidence and reason, not used for control flow.
type Decision struct {
	Tier       model.Tier
	Confidence float64
	Reason     string
}

// Request carries everything the router needs to place a new memory.
type Request struct {
	Type         model.Type
	Tags         []string
	TTLSeconds   int
	ExplicitTier model.Tier // 0 means "not specified"
	Content      string
}

var (
	tier1Types = map[model.Type]struct{}{
		model.TypeScratchpad:   {},
		model.TypeMessage:      {},
		model.TypeThought:      {},
		model.TypeObservation:  {},
	}
	tier3Types = map[model.Type]struct{}{
		model.TypeCodePattern:  {},
		model.TypeConvention:   {},
		model.TypeRelationship: {},
	}
	tier2Types = map[model.Type]struct{}{
		model.TypeDecision:      {},
		model.TypeBugFix:        {},
		model.TypeDocumentation: {},
		model.TypeError:         {},
		model.TypeSummary:       {},
	}
)

// Route implements the priority order from spec §4.5: explicit tier, then
// tag-based override, then ttl, then type, then a legacy-"code" heuristic,
// then a tier-2 default.
func Route(req Request) Decision {
	if req.ExplicitTier.Valid() {
		return Decision{Tier: req.ExplicitTier, Confidence: 1.0, Reason: "explicit tier"}
	}

	if hasAny(req.Tags, "temp", "temporary") {
		return Decision{Tier: model.TierWorking, Confidence: 0.9, Reason: "tag indicates temporary"}
	}
	if hasAny(req.Tags, "global", "universal") {
		return Decision{Tier: model.TierSemantic, Confidence: 0.9, Reason: "tag indicates global"}
	}
	if hasAny(req.Tags, "project", "local") {
		return Decision{Tier: model.TierProject, Confidence: 0.9, Reason: "tag indicates project-local"}
	}

	if req.TTLSeconds > 0 {
		return Decision{Tier: model.TierWorking, Confidence: 0.8, Reason: "explicit ttl provided"}
	}

	if _, ok := tier1Types[req.Type]; ok {
		return Decision{Tier: model.TierWorking, Confidence: 0.85, Reason: "type routes to tier 1"}
	}
	if _, ok := tier3Types[req.Type]; ok {
		return Decision{Tier: model.TierSemantic, Confidence: 0.85, Reason: "type routes to tier 3"}
	}
	if _, ok := tier2Types[req.Type]; ok {
		return Decision{Tier: model.TierProject, Confidence: 0.85, Reason: "type routes to tier 2"}
	}

	if req.Type == model.TypeCode {
		if looksReusable(req.Content) && looksGeneric(req.Content) {
			return Decision{Tier: model.TierSemantic, Confidence: 0.6, Reason: "legacy code looks reusable and generic"}
		}
		return Decision{Tier: model.TierProject, Confidence: 0.6, Reason: "legacy code looks project-specific"}
	}

	return Decision{Tier: model.TierProject, Confidence: 0.5, Reason: "default placement"}
}

func hasAny(tags []string, candidates ...string) bool {
	set := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		set[c] = struct{}{}
	}
	for _, t := range tags {
		if _, ok := set[strings.ToLower(t)]; ok {
			return true
		}
	}
	return false
}

var declarationRegex = regexp.MustCompile(`(?i)\b(function|class|interface|type|def|func)\b|/\*\*|///`)

// looksReusable reports whether content contains a function/class/interface/
// type declaration or a doc comment marker.
func looksReusable(content string) bool {
	return declarationRegex.MatchString(content)
}

// businessDomainWords are tokens that suggest content is tied to a specific
// product/domain rather than being a generic, reusable pattern.
var businessDomainWords = []string{
	"customer", "invoice", "order", "user_id", "account", "payment",
	"subscription", "checkout", "inventory", "tenant",
}

// looksGeneric reports whether content has few business-domain tokens.
func looksGeneric(content string) bool {
	lower := strings.ToLower(content)
	hits := 0
	for _, w := range businessDomainWords {
		if strings.Contains(lower, w) {
			hits++
		}
	}
	return hits <= 1
}
