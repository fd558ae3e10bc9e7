// Package embedding turns text into vectors for semantic recall.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

// ErrEmptyEmbedding is returned when a backend answers without a vector.
var ErrEmptyEmbedding = errors.New("embedding: empty vector")

// DefaultMaxChars bounds the text sent to an embedding backend.
const DefaultMaxChars = 8000

// Embedder produces a fixed-dimension vector for a piece of text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// Config selects and configures an embedding backend.
type Config struct {
	Provider  string // ollama, genai, openai or hash
	Model     string
	BaseURL   string
	APIKey    string
	Dimension int
	Timeout   time.Duration
}

// New builds the embedder named by cfg.Provider.
func New(ctx context.Context, cfg Config) (Embedder, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "ollama":
		return NewOllama(OllamaConfig{BaseURL: cfg.BaseURL, Model: cfg.Model, Timeout: cfg.Timeout}), nil
	case "genai", "google", "gemini":
		return NewGenAI(ctx, cfg.APIKey, cfg.Model)
	case "openai":
		return NewOpenAI(cfg.APIKey, cfg.Model)
	case "hash":
		return NewHash(cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("embedding: unknown provider %q", cfg.Provider)
	}
}

// Truncate cuts text to at most maxChars runes without splitting a rune.
// A non-positive maxChars leaves text unchanged.
func Truncate(text string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	n := 0
	for i := range text {
		if n == maxChars {
			return text[:i]
		}
		n++
	}
	return text
}

// Cosine returns the cosine similarity of two vectors.
// Vectors of different length or zero norm have similarity 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
