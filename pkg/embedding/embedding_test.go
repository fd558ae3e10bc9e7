package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short", "hello", 10, "hello"},
		{"exact", "hello", 5, "hello"},
		{"cut", "hello world", 5, "hello"},
		{"multibyte", "héllo wörld", 7, "héllo w"},
		{"disabled", "hello", 0, "hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Truncate(tt.in, tt.max)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2, 3}, []float32{2, 4, 6}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, Cosine([]float32{1, 0}, []float32{1, 0, 0}))
	assert.Equal(t, 0.0, Cosine([]float32{0, 0}, []float32{1, 0}))
	assert.Equal(t, 0.0, Cosine(nil, nil))
}

func TestHash_DeterministicAndNormalized(t *testing.T) {
	h := NewHash(64)
	ctx := context.Background()

	a, err := h.Embed(ctx, "The quick brown fox")
	require.NoError(t, err)
	b, err := h.Embed(ctx, "the QUICK brown fox!")
	require.NoError(t, err)
	require.Len(t, a, 64)
	assert.Equal(t, a, b)

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)
}

func TestHash_SimilarTextsScoreHigher(t *testing.T) {
	h := NewHash(0)
	ctx := context.Background()
	q, _ := h.Embed(ctx, "golang concurrency channels")
	near, _ := h.Embed(ctx, "concurrency in golang with channels and goroutines")
	far, _ := h.Embed(ctx, "baking sourdough bread at home")
	assert.Greater(t, Cosine(q, near), Cosine(q, far))
}

func TestHash_EmptyText(t *testing.T) {
	_, err := NewHash(8).Embed(context.Background(), "  ...  ")
	assert.ErrorIs(t, err, ErrEmptyEmbedding)
}

func TestOllama_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		var req ollamaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)
		assert.Equal(t, "hi", req.Prompt)
		_ = json.NewEncoder(w).Encode(ollamaResponse{Embedding: []float32{0.1, 0.2}})
	}))
	defer srv.Close()

	o := NewOllama(OllamaConfig{BaseURL: srv.URL + "/"})
	vec, err := o.Embed(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, vec)
}

func TestOllama_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			_, _ = w.Write([]byte(`{"embedding":[]}`))
		}
	}))
	defer srv.Close()

	o := NewOllama(OllamaConfig{BaseURL: srv.URL})
	_, err := o.Embed(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrEmptyEmbedding)
	assert.Error(t, o.Health(context.Background()))
}

func TestNew_Providers(t *testing.T) {
	ctx := context.Background()

	e, err := New(ctx, Config{Provider: "hash", Dimension: 16})
	require.NoError(t, err)
	assert.Equal(t, "hash-16", e.Model())

	e, err = New(ctx, Config{})
	require.NoError(t, err)
	assert.Equal(t, defaultOllamaModel, e.Model())

	_, err = New(ctx, Config{Provider: "openai"})
	assert.Error(t, err, "missing key")

	_, err = New(ctx, Config{Provider: "genai"})
	assert.Error(t, err, "missing key")

	_, err = New(ctx, Config{Provider: "word2vec"})
	assert.Error(t, err)
}
