package chunk

import (
	"context"
	"log/slog"
	"path/filepath"
)

// Extractor dispatches a file to the right chunking strategy by language.
// Selection is an explicit language-to-strategy table: AST-aware for
// registered languages, header-based for markdown, paragraph fallback for
// everything else. An AST parse failure downgrades the file to the
// paragraph strategy instead of failing it.
type Extractor struct {
	registry *LanguageRegistry
	code     *CodeChunker
	markdown *MarkdownChunker
	text     *TextChunker
}

// NewExtractor creates an extractor with the default language registry.
func NewExtractor(opts Options) *Extractor {
	registry := DefaultRegistry()
	return &Extractor{
		registry: registry,
		code:     NewCodeChunker(registry, opts),
		markdown: NewMarkdownChunker(opts),
		text:     NewTextChunker(opts),
	}
}

// Close releases extractor resources.
func (e *Extractor) Close() {
	if e.code != nil {
		e.code.Close()
	}
}

// Extract turns one file into an ordered sequence of chunk drafts. Line
// ranges are clamped to file bounds before returning.
func (e *Extractor) Extract(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	chunks, err := e.extract(ctx, file)
	if err != nil {
		return nil, err
	}

	lineCount := countLines(string(file.Content))
	for _, c := range chunks {
		if c.StartLine < 1 {
			c.StartLine = 1
		}
		if lineCount > 0 && c.EndLine > lineCount {
			c.EndLine = lineCount
		}
		if c.EndLine < c.StartLine {
			c.EndLine = c.StartLine
		}
		if c.Language == "" {
			c.Language = file.Language
		}
	}

	return chunks, nil
}

func (e *Extractor) extract(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	switch {
	case file.Language == "markdown":
		return e.markdown.Chunk(ctx, file)

	case e.registry.Supports(file.Language):
		chunks, err := e.code.Chunk(ctx, file)
		if err != nil {
			slog.Debug("ast chunking failed, falling back to paragraphs",
				"path", file.Path,
				"language", file.Language,
				"error", err)
			return e.text.Chunk(ctx, file)
		}
		return chunks, nil

	default:
		return e.text.Chunk(ctx, file)
	}
}

// DetectLanguage maps a file path to a language tag. Unknown extensions
// return "text".
func DetectLanguage(path string) string {
	switch ext := filepath.Ext(path); ext {
	case ".go":
		return "go"
	case ".py":
		return "python"
	case ".js", ".mjs":
		return "javascript"
	case ".jsx":
		return "jsx"
	case ".ts":
		return "typescript"
	case ".tsx":
		return "tsx"
	case ".rs":
		return "rust"
	case ".java":
		return "java"
	case ".c", ".h":
		return "c"
	case ".cpp", ".cc", ".hpp":
		return "cpp"
	case ".md", ".markdown", ".mdx":
		return "markdown"
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	case ".toml":
		return "toml"
	default:
		return "text"
	}
}
