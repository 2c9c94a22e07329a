package chunk

import (
	"context"
	"strings"
)

// CodeChunker extracts top-level definitions from source files using
// tree-sitter. Each function, class, method, or type declaration becomes one
// chunk, with attached decorators and leading documentation comments
// included. Files below the small-file threshold become a single whole-file
// chunk instead of being fragmented.
type CodeChunker struct {
	parser   *Parser
	registry *LanguageRegistry
	options  Options
}

// NewCodeChunker creates a code chunker backed by the given registry.
func NewCodeChunker(registry *LanguageRegistry, opts Options) *CodeChunker {
	return &CodeChunker{
		parser:   NewParser(registry),
		registry: registry,
		options:  opts.withDefaults(),
	}
}

// Close releases parser resources.
func (c *CodeChunker) Close() {
	if c.parser != nil {
		c.parser.Close()
	}
}

// Chunk splits a source file into definition chunks. A parse failure is
// returned to the caller, which falls back to the paragraph strategy.
func (c *CodeChunker) Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	if len(file.Content) == 0 {
		return nil, nil
	}

	if len(file.Content) < c.options.SmallFileBytes {
		return []*Chunk{wholeFileChunk(file)}, nil
	}

	config, ok := c.registry.GetByName(file.Language)
	if !ok {
		return nil, errUnsupportedLanguage(file.Language)
	}

	tree, err := c.parser.Parse(ctx, file.Content, file.Language)
	if err != nil {
		return nil, err
	}

	defs := c.topLevelDefinitions(tree, config)
	if len(defs) == 0 {
		return []*Chunk{wholeFileChunk(file)}, nil
	}

	lines := strings.Split(string(file.Content), "\n")

	chunks := make([]*Chunk, 0, len(defs))
	for _, d := range defs {
		chunks = append(chunks, c.chunkFromDefinition(d, lines, file, config))
	}

	return chunks, nil
}

// definition pairs a spanning node (possibly a decorator wrapper) with the
// inner node that carries the name.
type definition struct {
	span      *Node
	inner     *Node
	chunkType Type
}

// topLevelDefinitions collects definition nodes directly under the root.
// Nested definitions stay inside their parent's chunk.
func (c *CodeChunker) topLevelDefinitions(tree *Tree, config *LanguageConfig) []definition {
	var defs []definition

	for _, node := range tree.Root.Children {
		if d, ok := c.classify(node, config, tree.Source); ok {
			defs = append(defs, d)
		}
	}

	return defs
}

func (c *CodeChunker) classify(node *Node, config *LanguageConfig, source []byte) (definition, bool) {
	// Decorated definitions keep the wrapper's span so decorators stay
	// attached.
	for _, wt := range config.WrapperTypes {
		if node.Type == wt {
			for _, child := range node.Children {
				if t, ok := config.DefinitionTypes[child.Type]; ok {
					return definition{span: node, inner: child, chunkType: t}, true
				}
			}
			return definition{}, false
		}
	}

	if t, ok := config.DefinitionTypes[node.Type]; ok {
		return definition{span: node, inner: node, chunkType: t}, true
	}

	switch node.Type {
	case "export_statement":
		// export function f() {} / export const f = () => {}
		for _, child := range node.Children {
			if d, ok := c.classify(child, config, source); ok {
				d.span = node
				return d, true
			}
		}
	case "lexical_declaration", "variable_declaration":
		// const f = () => {} and const f = function() {}
		if hasFunctionValue(node) {
			return definition{span: node, inner: node, chunkType: TypeFunction}, true
		}
	}

	return definition{}, false
}

func hasFunctionValue(node *Node) bool {
	for _, child := range node.Children {
		if child.Type != "variable_declarator" {
			continue
		}
		for _, gc := range child.Children {
			switch gc.Type {
			case "arrow_function", "function", "function_expression":
				return true
			}
		}
	}
	return false
}

// chunkFromDefinition builds a chunk for one definition, pulling in leading
// line comments and adjusting the start line accordingly.
func (c *CodeChunker) chunkFromDefinition(d definition, lines []string, file *FileInput, config *LanguageConfig) *Chunk {
	startIdx := int(d.span.StartPoint.Row)
	endIdx := int(d.span.EndPoint.Row)
	if endIdx >= len(lines) {
		endIdx = len(lines) - 1
	}

	docStart := startIdx
	if config.LineComment != "" {
		for docStart > 0 {
			prev := strings.TrimSpace(lines[docStart-1])
			if !strings.HasPrefix(prev, config.LineComment) {
				break
			}
			docStart--
		}
	}

	chunkType := d.chunkType
	if chunkType == TypeTypeDef && isInterfaceDecl(d.inner) {
		chunkType = TypeInterface
	}

	metadata := map[string]string{}
	if docStart < startIdx {
		metadata["has_doc"] = "true"
	}

	return &Chunk{
		Content:   strings.Join(lines[docStart:endIdx+1], "\n"),
		StartLine: docStart + 1,
		EndLine:   endIdx + 1,
		Type:      chunkType,
		Name:      extractName(d.inner, file.Content, file.Language),
		Language:  file.Language,
		Metadata:  metadata,
	}
}

// isInterfaceDecl reports whether a Go type_declaration declares an interface.
func isInterfaceDecl(n *Node) bool {
	if n.Type != "type_declaration" {
		return false
	}
	spec := n.FindChildByType("type_spec")
	if spec == nil {
		return false
	}
	return spec.FindChildByType("interface_type") != nil
}

// extractName extracts the declared name for a definition node.
func extractName(n *Node, source []byte, language string) string {
	switch language {
	case "go":
		return extractGoName(n, source)
	case "typescript", "tsx", "javascript", "jsx":
		return extractJSName(n, source)
	default:
		if id := n.FindChildByType("identifier"); id != nil {
			return id.Content(source)
		}
	}
	return ""
}

func extractGoName(n *Node, source []byte) string {
	switch n.Type {
	case "function_declaration":
		if id := n.FindChildByType("identifier"); id != nil {
			return id.Content(source)
		}
	case "method_declaration":
		if id := n.FindChildByType("field_identifier"); id != nil {
			return id.Content(source)
		}
	case "type_declaration":
		if spec := n.FindChildByType("type_spec"); spec != nil {
			if id := spec.FindChildByType("type_identifier"); id != nil {
				return id.Content(source)
			}
		}
	}
	return ""
}

func extractJSName(n *Node, source []byte) string {
	switch n.Type {
	case "lexical_declaration", "variable_declaration":
		for _, child := range n.Children {
			if child.Type == "variable_declarator" {
				if id := child.FindChildByType("identifier"); id != nil {
					return id.Content(source)
				}
			}
		}
	case "interface_declaration", "type_alias_declaration", "class_declaration":
		for _, child := range n.Children {
			if child.Type == "identifier" || child.Type == "type_identifier" {
				return child.Content(source)
			}
		}
	case "method_definition":
		if id := n.FindChildByType("property_identifier"); id != nil {
			return id.Content(source)
		}
	}
	if id := n.FindChildByType("identifier"); id != nil {
		return id.Content(source)
	}
	return ""
}

// wholeFileChunk returns the file as one chunk.
func wholeFileChunk(file *FileInput) *Chunk {
	content := string(file.Content)
	lineCount := countLines(content)
	if lineCount == 0 {
		lineCount = 1
	}
	return &Chunk{
		Content:   content,
		StartLine: 1,
		EndLine:   lineCount,
		Type:      TypeBlock,
		Language:  file.Language,
		Metadata:  map[string]string{},
	}
}

type errUnsupportedLanguage string

func (e errUnsupportedLanguage) Error() string {
	return "unsupported language: " + string(e)
}
