package chunk

import (
	"context"
	"regexp"
	"strconv"
	"strings"
)

// headerPattern matches ATX headers: # Title through ###### Title.
var headerPattern = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)

// MarkdownChunker splits markdown at heading boundaries, one chunk per
// section, preserving the heading hierarchy in metadata. Files without
// headers become a single whole-file chunk.
type MarkdownChunker struct {
	options Options
}

// NewMarkdownChunker creates a markdown chunker.
func NewMarkdownChunker(opts Options) *MarkdownChunker {
	return &MarkdownChunker{options: opts.withDefaults()}
}

// Chunk splits a markdown file into section chunks.
func (c *MarkdownChunker) Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	content := string(file.Content)
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	lines := strings.Split(content, "\n")
	sections := parseSections(lines)

	if len(sections) == 0 {
		chunk := wholeFileChunk(file)
		chunk.Language = "markdown"
		return []*Chunk{chunk}, nil
	}

	var chunks []*Chunk

	// Content before the first header becomes a preamble block.
	first := sections[0]
	if first.startIdx > 0 {
		preamble := strings.Join(lines[:first.startIdx], "\n")
		if strings.TrimSpace(preamble) != "" {
			chunks = append(chunks, &Chunk{
				Content:   strings.TrimRight(preamble, "\n"),
				StartLine: 1,
				EndLine:   first.startIdx,
				Type:      TypeBlock,
				Language:  "markdown",
				Metadata:  map[string]string{},
			})
		}
	}

	for _, sec := range sections {
		body := strings.Join(lines[sec.startIdx:sec.endIdx+1], "\n")
		chunks = append(chunks, &Chunk{
			Content:   strings.TrimRight(body, "\n"),
			StartLine: sec.startIdx + 1,
			EndLine:   sec.endIdx + 1,
			Type:      TypeSection,
			Name:      sec.title,
			Language:  "markdown",
			Metadata: map[string]string{
				"header_path":  sec.path,
				"header_level": strconv.Itoa(sec.level),
			},
		})
	}

	return chunks, nil
}

// section is one header-delimited region, line indices 0-based inclusive.
type section struct {
	level    int
	title    string
	path     string
	startIdx int
	endIdx   int
}

func parseSections(lines []string) []*section {
	var sections []*section
	headerStack := make([]string, 6)

	for i, line := range lines {
		match := headerPattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}

		level := len(match[1])
		title := strings.TrimSpace(match[2])

		// Clear deeper levels so the path reflects the current hierarchy.
		headerStack[level-1] = title
		for j := level; j < 6; j++ {
			headerStack[j] = ""
		}

		var parts []string
		for j := 0; j < level; j++ {
			if headerStack[j] != "" {
				parts = append(parts, headerStack[j])
			}
		}

		if len(sections) > 0 {
			sections[len(sections)-1].endIdx = i - 1
		}
		sections = append(sections, &section{
			level:    level,
			title:    title,
			path:     strings.Join(parts, " > "),
			startIdx: i,
		})
	}

	if len(sections) > 0 {
		last := sections[len(sections)-1]
		last.endIdx = lastNonEmptyIdx(lines)
		if last.endIdx < last.startIdx {
			last.endIdx = last.startIdx
		}
	}

	// Trim trailing blank lines off every section.
	for _, sec := range sections {
		for sec.endIdx > sec.startIdx && strings.TrimSpace(lines[sec.endIdx]) == "" {
			sec.endIdx--
		}
	}

	return sections
}

func lastNonEmptyIdx(lines []string) int {
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			return i
		}
	}
	return 0
}
