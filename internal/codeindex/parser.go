package codeindex

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// Node is a generic AST node, decoupled from the tree-sitter representation
// so the extractor can walk it without importing sitter directly (grounded
// on the teacher's internal/chunk/types.go Node/Point/Tree).
type Node struct {
	Type       string
	StartByte  uint32
	EndByte    uint32
	StartLine  int // 1-indexed
	EndLine    int // 1-indexed
	Children   []*Node
}

// Tree is a parsed source file.
type Tree struct {
	Root     *Node
	Source   []byte
	Language string
}

// GetContent returns the source slice a node spans.
func (n *Node) GetContent(source []byte) string {
	if n.StartByte >= n.EndByte || int(n.EndByte) > len(source) {
		return ""
	}
	return string(source[n.StartByte:n.EndByte])
}

// FindChildByType returns the first direct child of the given node type.
func (n *Node) FindChildByType(nodeType string) *Node {
	for _, c := range n.Children {
		if c.Type == nodeType {
			return c
		}
	}
	return nil
}

// Walk traverses the tree depth-first, calling fn for every node until fn
// returns false.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Parser wraps tree-sitter, producing the package's own Tree/Node shape.
type Parser struct {
	parser   *sitter.Parser
	registry *LanguageRegistry
}

// NewParser creates a parser bound to the default language registry.
func NewParser() *Parser {
	return &Parser{parser: sitter.NewParser(), registry: DefaultRegistry()}
}

// Close releases the underlying tree-sitter parser.
func (p *Parser) Close() {
	if p.parser != nil {
		p.parser.Close()
	}
}

// Parse parses source as the named language.
func (p *Parser) Parse(ctx context.Context, source []byte, language string) (*Tree, error) {
	tsLang, ok := p.registry.GetTreeSitterLanguage(language)
	if !ok {
		return nil, fmt.Errorf("codeindex: unsupported language %q", language)
	}
	p.parser.SetLanguage(tsLang)

	tsTree, err := p.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("codeindex: parse failed: %w", err)
	}
	if tsTree == nil {
		return nil, fmt.Errorf("codeindex: parse produced a nil tree")
	}

	return &Tree{Root: convertNode(tsTree.RootNode()), Source: source, Language: language}, nil
}

func convertNode(n *sitter.Node) *Node {
	if n == nil {
		return nil
	}
	out := &Node{
		Type:      n.Type(),
		StartByte: n.StartByte(),
		EndByte:   n.EndByte(),
		StartLine: int(n.StartPoint().Row) + 1,
		EndLine:   int(n.EndPoint().Row) + 1,
		Children:  make([]*Node, 0, int(n.ChildCount())),
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if child := n.Child(i); child != nil {
			out.Children = append(out.Children, convertNode(child))
		}
	}
	return out
}
