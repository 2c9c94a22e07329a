package chunk

import (
	"context"
	"strings"
)

// TextChunker is the paragraph fallback strategy for plain text and for
// source files the AST path could not parse. It splits on blank-line
// boundaries, merges adjacent short paragraphs up to the configured maximum
// size, and splits oversized paragraphs into word windows with overlap.
type TextChunker struct {
	options Options
}

// NewTextChunker creates a paragraph fallback chunker.
func NewTextChunker(opts Options) *TextChunker {
	return &TextChunker{options: opts.withDefaults()}
}

// Chunk splits content into paragraph chunks.
func (c *TextChunker) Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	content := string(file.Content)
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	paras := parseParagraphs(strings.Split(content, "\n"))

	var chunks []*Chunk
	var pending []paragraph
	pendingWords := 0

	flush := func() {
		if len(pending) == 0 {
			return
		}
		texts := make([]string, len(pending))
		for i, p := range pending {
			texts[i] = p.text
		}
		chunks = append(chunks, &Chunk{
			Content:   strings.Join(texts, "\n\n"),
			StartLine: pending[0].startLine,
			EndLine:   pending[len(pending)-1].endLine,
			Type:      TypeParagraph,
			Language:  file.Language,
			Metadata:  map[string]string{},
		})
		pending = pending[:0]
		pendingWords = 0
	}

	for _, p := range paras {
		words := strings.Fields(p.text)

		if len(words) > c.options.MaxChunkWords {
			flush()
			chunks = append(chunks, c.splitOversized(p, words, file.Language)...)
			continue
		}

		if pendingWords+len(words) > c.options.MaxChunkWords {
			flush()
		}
		pending = append(pending, p)
		pendingWords += len(words)
	}
	flush()

	return chunks, nil
}

// splitOversized splits one paragraph into word windows of MaxChunkWords,
// stepping by MaxChunkWords - OverlapWords so consecutive chunks share
// overlapping context. Window chunks carry the whole paragraph's line range.
func (c *TextChunker) splitOversized(p paragraph, words []string, language string) []*Chunk {
	step := c.options.MaxChunkWords - c.options.OverlapWords
	if step <= 0 {
		step = c.options.MaxChunkWords
	}

	var chunks []*Chunk
	for i := 0; i < len(words); i += step {
		end := i + c.options.MaxChunkWords
		if end > len(words) {
			end = len(words)
		}

		chunks = append(chunks, &Chunk{
			Content:   strings.Join(words[i:end], " "),
			StartLine: p.startLine,
			EndLine:   p.endLine,
			Type:      TypeBlock,
			Language:  language,
			Metadata:  map[string]string{},
		})

		if end >= len(words) {
			break
		}
	}

	return chunks
}

// paragraph is a run of non-blank lines, 1-indexed inclusive.
type paragraph struct {
	text      string
	startLine int
	endLine   int
}

func parseParagraphs(lines []string) []paragraph {
	var paras []paragraph
	var current []string
	start := 0

	flush := func(endIdx int) {
		if len(current) == 0 {
			return
		}
		paras = append(paras, paragraph{
			text:      strings.Join(current, "\n"),
			startLine: start + 1,
			endLine:   endIdx,
		})
		current = nil
	}

	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			flush(i)
			continue
		}
		if len(current) == 0 {
			start = i
		}
		current = append(current, line)
	}
	flush(len(lines))

	return paras
}
