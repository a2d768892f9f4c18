package codeindex

import (
	"strings"

	"github.com/context-fabric/contextfabric/internal/model"
)

// SymbolExtractor walks a parsed Tree and extracts model.CodeSymbol entries,
// respecting each language's tier (spec §4.8): tier-1 languages get the full
// symbol set, tier-2 get functions and classes only, others get none.
// Grounded on the teacher's internal/chunk/extractor.go SymbolExtractor.
type SymbolExtractor struct {
	registry *LanguageRegistry
}

// NewSymbolExtractor creates an extractor bound to the default registry.
func NewSymbolExtractor() *SymbolExtractor {
	return &SymbolExtractor{registry: DefaultRegistry()}
}

// Extract returns every symbol in tree, filtered to what tree.Language's
// tier permits.
func (e *SymbolExtractor) Extract(tree *Tree) []model.CodeSymbol {
	if tree == nil || tree.Root == nil {
		return nil
	}
	cfg, ok := e.registry.GetByName(tree.Language)
	if !ok || cfg.Tier == TierChunksOnly {
		return nil
	}

	typeOf := e.symbolTypeIndex(cfg)

	var symbols []model.CodeSymbol
	tree.Root.Walk(func(n *Node) bool {
		category, found := typeOf[n.Type]
		if !found {
			return true
		}
		if cfg.Tier == TierFunctionsAndClasses && category != "function" && category != "method" && category != "class" {
			return true
		}
		name := e.extractName(n, tree.Source)
		if name == "" {
			return true
		}
		symbols = append(symbols, model.CodeSymbol{
			FilePath:   "", // filled in by the caller, which knows the file path
			Name:       name,
			Kind:       symbolKindFor(category),
			Signature:  e.extractSignature(n, tree.Source),
			StartLine:  n.StartLine,
			EndLine:    n.EndLine,
			DocComment: e.extractDocComment(n, tree.Source, tree.Language),
		})
		return true
	})
	return symbols
}

func (e *SymbolExtractor) symbolTypeIndex(cfg *LanguageConfig) map[string]string {
	idx := make(map[string]string)
	add := func(types []string, category string) {
		for _, t := range types {
			idx[t] = category
		}
	}
	add(cfg.FunctionTypes, "function")
	add(cfg.MethodTypes, "method")
	add(cfg.ClassTypes, "class")
	add(cfg.InterfaceTypes, "interface")
	add(cfg.TypeDefTypes, "type")
	add(cfg.ConstantTypes, "const")
	add(cfg.EnumTypes, "enum")
	add(cfg.ExportTypes, "export")
	return idx
}

// extractName finds the first identifier-shaped child of a declaration node.
// Unlike the teacher's per-language switch, this uses a single generic rule
// set: most tree-sitter grammars name their identifier child "identifier",
// "field_identifier", or "type_identifier", and the first match in document
// order is the declared name for every language this registry supports.
func (e *SymbolExtractor) extractName(n *Node, source []byte) string {
	for _, c := range n.Children {
		switch c.Type {
		case "identifier", "field_identifier", "type_identifier", "property_identifier":
			return c.GetContent(source)
		}
	}
	// One level deeper: common for const/var/type spec wrappers (Go
	// const_spec/var_spec/type_spec, JS variable_declarator).
	for _, c := range n.Children {
		if name := e.extractName(c, source); name != "" {
			return name
		}
	}
	return ""
}

// extractSignature returns the first line of a declaration up to its opening
// brace (the whole first line when it has none), matching the teacher's extractFunctionSignature/
// extractTypeSignature behavior collapsed into one rule.
func (e *SymbolExtractor) extractSignature(n *Node, source []byte) string {
	content := n.GetContent(source)
	if content == "" {
		return ""
	}
	firstLine := strings.TrimSpace(strings.SplitN(content, "\n", 2)[0])
	if idx := strings.Index(firstLine, "{"); idx != -1 {
		return strings.TrimSpace(firstLine[:idx])
	}
	return firstLine
}

// extractDocComment looks at the immediately preceding line(s) for a
// single-line comment marker, per language.
func (e *SymbolExtractor) extractDocComment(n *Node, source []byte, language string) string {
	lineStart := int(n.StartByte)
	for lineStart > 0 && source[lineStart-1] != '\n' {
		lineStart--
	}
	if lineStart <= 1 {
		return ""
	}

	var lines []string
	pos := lineStart - 1
	for pos > 0 {
		end := pos
		pos--
		for pos > 0 && source[pos] != '\n' {
			pos--
		}
		start := pos
		if pos > 0 {
			start++
		}
		line := strings.TrimSpace(string(source[start:end]))

		var marker string
		switch language {
		case "python", "ruby":
			marker = "#"
		default:
			marker = "//"
		}
		if strings.HasPrefix(line, marker) {
			lines = append([]string{strings.TrimPrefix(line, marker)}, lines...)
			continue
		}
		break
	}
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
