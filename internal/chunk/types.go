// Package chunk turns file content into ordered semantic chunk drafts.
//
// Three strategies cover the input space: AST-aware chunking via tree-sitter
// for supported languages, header-based chunking for markdown, and a
// paragraph fallback for everything else. A parse failure in the AST path
// falls back to the paragraph strategy; extraction never hard-fails for
// well-formed text.
package chunk

import "context"

// Sizing defaults, measured in words for prose and bytes for the small-file
// threshold.
const (
	DefaultMaxChunkWords  = 500
	DefaultOverlapWords   = 50
	DefaultSmallFileBytes = 2048
)

// Type classifies a chunk draft.
type Type string

const (
	TypeFunction  Type = "function"
	TypeClass     Type = "class"
	TypeMethod    Type = "method"
	TypeInterface Type = "interface"
	TypeTypeDef   Type = "type"
	TypeSection   Type = "section"
	TypeParagraph Type = "paragraph"
	TypeBlock     Type = "block"
)

// Chunk is one extracted draft. Identity, file hash, branch, and embedding
// are attached later when the owning file's generation is committed.
type Chunk struct {
	Content   string
	StartLine int // 1-indexed
	EndLine   int // inclusive
	Type      Type
	Name      string
	Language  string
	Metadata  map[string]string
}

// FileInput is the input handed to a chunking strategy.
type FileInput struct {
	Path     string // relative to project root
	Content  []byte
	Language string // go, python, markdown, ...
}

// Chunker is a single extraction strategy.
type Chunker interface {
	Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error)
}

// Options configures chunk sizing across strategies.
type Options struct {
	// MaxChunkWords bounds paragraph chunks.
	MaxChunkWords int

	// OverlapWords is the word overlap inserted between consecutive pieces
	// of an oversized paragraph.
	OverlapWords int

	// SmallFileBytes is the size below which a source file becomes a single
	// whole-file chunk.
	SmallFileBytes int
}

func (o Options) withDefaults() Options {
	if o.MaxChunkWords == 0 {
		o.MaxChunkWords = DefaultMaxChunkWords
	}
	if o.OverlapWords == 0 {
		o.OverlapWords = DefaultOverlapWords
	}
	if o.SmallFileBytes == 0 {
		o.SmallFileBytes = DefaultSmallFileBytes
	}
	return o
}

// countLines returns the number of lines in content, counting a trailing
// newline as terminating the last line rather than starting a new one.
func countLines(content string) int {
	if content == "" {
		return 0
	}
	n := 1
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			n++
		}
	}
	if content[len(content)-1] == '\n' {
		n--
	}
	return n
}
