package chunk

import (
	"context"
	"fmt"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

// Tree is a parsed AST decoupled from the tree-sitter bindings.
type Tree struct {
	Root     *Node
	Source   []byte
	Language string
}

// Node is a node in the AST.
type Node struct {
	Type       string
	StartByte  uint32
	EndByte    uint32
	StartPoint Point
	EndPoint   Point
	Children   []*Node
	HasError   bool
}

// Point is a position in the source, 0-indexed.
type Point struct {
	Row    uint32
	Column uint32
}

// Parser wraps tree-sitter for AST parsing. A tree-sitter parser
// instance must not be shared across goroutines, so each Parse call
// checks out its own instance from a free list. Parser itself is safe
// for concurrent use.
type Parser struct {
	registry *LanguageRegistry

	mu     sync.Mutex
	idle   []*sitter.Parser
	closed bool
}

// NewParser creates a parser backed by the given language registry.
func NewParser(registry *LanguageRegistry) *Parser {
	return &Parser{registry: registry}
}

// checkout returns an idle tree-sitter parser, creating one when none
// is free.
func (p *Parser) checkout() *sitter.Parser {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := len(p.idle); n > 0 {
		tsParser := p.idle[n-1]
		p.idle = p.idle[:n-1]
		return tsParser
	}
	return sitter.NewParser()
}

func (p *Parser) checkin(tsParser *sitter.Parser) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		tsParser.Close()
		return
	}
	p.idle = append(p.idle, tsParser)
}

// Parse parses source code and returns the AST.
func (p *Parser) Parse(ctx context.Context, source []byte, language string) (*Tree, error) {
	tsLang, ok := p.registry.GetTreeSitterLanguage(language)
	if !ok {
		return nil, fmt.Errorf("unsupported language: %s", language)
	}

	tsParser := p.checkout()
	defer p.checkin(tsParser)

	tsParser.SetLanguage(tsLang)

	tsTree, err := tsParser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse source: %w", err)
	}
	if tsTree == nil {
		return nil, fmt.Errorf("failed to parse source: nil tree")
	}

	return &Tree{
		Root:     convertNode(tsTree.RootNode(), source),
		Source:   source,
		Language: language,
	}, nil
}

// Close releases the idle parsers. Instances held by in-flight Parse
// calls are closed when they check back in.
func (p *Parser) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	for _, tsParser := range p.idle {
		tsParser.Close()
	}
	p.idle = nil
}

func convertNode(tsNode *sitter.Node, source []byte) *Node {
	if tsNode == nil {
		return nil
	}

	node := &Node{
		Type:      tsNode.Type(),
		StartByte: tsNode.StartByte(),
		EndByte:   tsNode.EndByte(),
		StartPoint: Point{
			Row:    tsNode.StartPoint().Row,
			Column: tsNode.StartPoint().Column,
		},
		EndPoint: Point{
			Row:    tsNode.EndPoint().Row,
			Column: tsNode.EndPoint().Column,
		},
		HasError: tsNode.HasError(),
		Children: make([]*Node, 0, int(tsNode.ChildCount())),
	}

	for i := uint32(0); i < tsNode.ChildCount(); i++ {
		child := tsNode.Child(int(i))
		if child != nil {
			node.Children = append(node.Children, convertNode(child, source))
		}
	}

	return node
}

// Content returns the source text covered by the node.
func (n *Node) Content(source []byte) string {
	if n.StartByte >= n.EndByte || int(n.EndByte) > len(source) {
		return ""
	}
	return string(source[n.StartByte:n.EndByte])
}

// FindChildByType returns the first direct child of the given type.
func (n *Node) FindChildByType(nodeType string) *Node {
	for _, child := range n.Children {
		if child.Type == nodeType {
			return child
		}
	}
	return nil
}

// Walk traverses the tree depth-first, descending only while fn returns true.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, child := range n.Children {
		child.Walk(fn)
	}
}
