package embed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashEmbedder_Deterministic(t *testing.T) {
	e := NewHashEmbedder()
	ctx := context.Background()

	v1, err := e.Embed(ctx, "func ParseConfig(path string) error")
	require.NoError(t, err)
	v2, err := e.Embed(ctx, "func ParseConfig(path string) error")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
}

func TestHashEmbedder_UnitLength(t *testing.T) {
	e := NewHashEmbedder()

	vec, err := e.Embed(context.Background(), "database connection pool retry logic")
	require.NoError(t, err)
	require.Len(t, vec, HashDimensions)

	var sumSquares float64
	for _, v := range vec {
		sumSquares += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sumSquares), 0.001)
}

func TestHashEmbedder_EmptyText(t *testing.T) {
	e := NewHashEmbedder()

	vec, err := e.Embed(context.Background(), "   \n\t  ")
	require.NoError(t, err)
	require.Len(t, vec, HashDimensions)

	for _, v := range vec {
		assert.Zero(t, v)
	}
}

func TestHashEmbedder_DifferentTextsDiffer(t *testing.T) {
	e := NewHashEmbedder()
	ctx := context.Background()

	v1, err := e.Embed(ctx, "http server request handler")
	require.NoError(t, err)
	v2, err := e.Embed(ctx, "binary tree traversal algorithm")
	require.NoError(t, err)

	assert.NotEqual(t, v1, v2)
}

func TestHashEmbedder_EmbedBatchOrder(t *testing.T) {
	e := NewHashEmbedder()
	ctx := context.Background()

	texts := []string{"alpha beta", "gamma delta", "epsilon zeta"}
	batch, err := e.EmbedBatch(ctx, texts)
	require.NoError(t, err)
	require.Len(t, batch, 3)

	for i, text := range texts {
		single, err := e.Embed(ctx, text)
		require.NoError(t, err)
		assert.Equal(t, single, batch[i], "batch vector %d should match single embed", i)
	}
}

func TestHashEmbedder_Closed(t *testing.T) {
	e := NewHashEmbedder()
	require.NoError(t, e.Close())

	_, err := e.Embed(context.Background(), "anything")
	assert.Error(t, err)
	assert.False(t, e.Available(context.Background()))
}

func TestTokenize_SplitsIdentifiers(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"parseConfigFile", []string{"parse", "config", "file"}},
		{"snake_case_name", []string{"snake", "case", "name"}},
		{"HTTPServer", []string{"http", "server"}},
		{"plain words here", []string{"plain", "words", "here"}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, tokenize(tt.input))
		})
	}
}

func TestFilterStopWords(t *testing.T) {
	got := filterStopWords([]string{"func", "parse", "return", "config"})
	assert.Equal(t, []string{"parse", "config"}, got)
}

func TestExtractNgrams(t *testing.T) {
	assert.Equal(t, []string{"abc", "bcd", "cde"}, extractNgrams("abcde", 3))
	assert.Empty(t, extractNgrams("ab", 3))
}
