package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newOllamaServer fakes the two Ollama endpoints the embedder talks to.
func newOllamaServer(t *testing.T, model string, dims int) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ollamaTagsResponse{
			Models: []ollamaModelInfo{{Name: model + ":latest"}},
		})
	})
	mux.HandleFunc("/api/embed", func(w http.ResponseWriter, r *http.Request) {
		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		count := 1
		if arr, ok := req.Input.([]any); ok {
			count = len(arr)
		}

		resp := ollamaEmbedResponse{Embeddings: make([][]float64, count)}
		for i := range resp.Embeddings {
			vec := make([]float64, dims)
			vec[0] = float64(i + 1)
			resp.Embeddings[i] = vec
		}
		_ = json.NewEncoder(w).Encode(resp)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestOllamaEmbedder_DetectsDimensions(t *testing.T) {
	srv := newOllamaServer(t, "nomic-embed-text", 768)

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:  srv.URL,
		Model: "nomic-embed-text",
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	assert.Equal(t, 768, e.Dimensions())
	assert.Equal(t, "nomic-embed-text", e.ModelName())
	assert.True(t, e.Available(context.Background()))
}

func TestOllamaEmbedder_ModelNotPulled(t *testing.T) {
	srv := newOllamaServer(t, "other-model", 768)

	_, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:  srv.URL,
		Model: "nomic-embed-text",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not usable")
}

func TestOllamaEmbedder_EmbedBatch(t *testing.T) {
	srv := newOllamaServer(t, "nomic-embed-text", 8)

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:  srv.URL,
		Model: "nomic-embed-text",
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	vecs, err := e.EmbedBatch(context.Background(), []string{"first", "second", "third"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	for _, vec := range vecs {
		assert.Len(t, vec, 8)
		// Responses are normalized to unit length.
		assert.InDelta(t, 1.0, float64(vec[0]), 0.001)
	}
}

func TestOllamaEmbedder_BatchTooLarge(t *testing.T) {
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:            "http://localhost:0",
		Dimensions:      8,
		SkipHealthCheck: true,
	})
	require.NoError(t, err)

	texts := make([]string, MaxBatchSize+1)
	for i := range texts {
		texts[i] = "x"
	}

	_, err = e.EmbedBatch(context.Background(), texts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds maximum")
}

func TestOllamaEmbedder_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model runner crashed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:            srv.URL,
		Dimensions:      8,
		SkipHealthCheck: true,
	})
	require.NoError(t, err)

	_, err = e.EmbedBatch(context.Background(), []string{"text"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestOllamaEmbedder_ClosedRejectsCalls(t *testing.T) {
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:            "http://localhost:0",
		Dimensions:      8,
		SkipHealthCheck: true,
	})
	require.NoError(t, err)
	require.NoError(t, e.Close())

	_, err = e.EmbedBatch(context.Background(), []string{"text"})
	assert.Error(t, err)
	assert.False(t, e.Available(context.Background()))
}

func TestNew_SelectsProvider(t *testing.T) {
	e, err := New(context.Background(), Options{Provider: "hash"})
	require.NoError(t, err)
	assert.Equal(t, "hash-256", e.ModelName())

	_, err = New(context.Background(), Options{Provider: "bogus"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown embedding provider")
}
