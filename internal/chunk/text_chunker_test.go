package chunk

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextChunker_MergesShortParagraphs(t *testing.T) {
	source := "one two three\n\nfour five\n\nsix seven eight\n"

	chunker := NewTextChunker(Options{MaxChunkWords: 100, OverlapWords: 10})
	chunks, err := chunker.Chunk(context.Background(), &FileInput{
		Path:     "notes.txt",
		Content:  []byte(source),
		Language: "text",
	})
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	assert.Equal(t, TypeParagraph, chunks[0].Type)
	assert.Equal(t, "one two three\n\nfour five\n\nsix seven eight", chunks[0].Content)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 5, chunks[0].EndLine)
}

func TestTextChunker_StartsNewChunkAtMaxWords(t *testing.T) {
	// Two paragraphs of 4 words each with a 6-word budget: the second
	// paragraph does not fit and starts a new chunk.
	source := "a b c d\n\ne f g h\n"

	chunker := NewTextChunker(Options{MaxChunkWords: 6, OverlapWords: 1})
	chunks, err := chunker.Chunk(context.Background(), &FileInput{
		Path:     "notes.txt",
		Content:  []byte(source),
		Language: "text",
	})
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, "a b c d", chunks[0].Content)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 1, chunks[0].EndLine)

	assert.Equal(t, "e f g h", chunks[1].Content)
	assert.Equal(t, 3, chunks[1].StartLine)
	assert.Equal(t, 3, chunks[1].EndLine)
}

func TestTextChunker_SplitsOversizedParagraphWithOverlap(t *testing.T) {
	words := make([]string, 25)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	source := strings.Join(words, " ")

	chunker := NewTextChunker(Options{MaxChunkWords: 10, OverlapWords: 2})
	chunks, err := chunker.Chunk(context.Background(), &FileInput{
		Path:     "big.txt",
		Content:  []byte(source),
		Language: "text",
	})
	require.NoError(t, err)

	// Step is 8 words (10 - 2 overlap): windows at 0, 8, 16, 24.
	require.Len(t, chunks, 4)
	for _, c := range chunks {
		assert.Equal(t, TypeBlock, c.Type)
		assert.LessOrEqual(t, len(strings.Fields(c.Content)), 10)
	}

	// Consecutive windows share the overlap words.
	first := strings.Fields(chunks[0].Content)
	second := strings.Fields(chunks[1].Content)
	assert.Equal(t, first[8:10], second[0:2])
}

func TestTextChunker_EmptyAndWhitespaceOnly(t *testing.T) {
	chunker := NewTextChunker(Options{})

	for _, content := range []string{"", "   ", "\n\n\n"} {
		chunks, err := chunker.Chunk(context.Background(), &FileInput{
			Path:     "empty.txt",
			Content:  []byte(content),
			Language: "text",
		})
		require.NoError(t, err)
		assert.Empty(t, chunks)
	}
}

func TestParseParagraphs_LineNumbers(t *testing.T) {
	lines := []string{"first", "", "", "second a", "second b", "", "third"}

	paras := parseParagraphs(lines)
	require.Len(t, paras, 3)

	assert.Equal(t, "first", paras[0].text)
	assert.Equal(t, 1, paras[0].startLine)
	assert.Equal(t, 1, paras[0].endLine)

	assert.Equal(t, "second a\nsecond b", paras[1].text)
	assert.Equal(t, 4, paras[1].startLine)
	assert.Equal(t, 5, paras[1].endLine)

	assert.Equal(t, "third", paras[2].text)
	assert.Equal(t, 7, paras[2].startLine)
	assert.Equal(t, 7, paras[2].endLine)
}
