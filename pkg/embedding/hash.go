package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultHashDimension is the vector size of the hashing embedder.
const DefaultHashDimension = 256

// Hash is a deterministic bag-of-words embedder using the hashing trick.
// It needs no network and is used for offline runs and tests.
type Hash struct {
	dim int
}

// NewHash creates a hashing embedder with dim buckets.
func NewHash(dim int) *Hash {
	if dim <= 0 {
		dim = DefaultHashDimension
	}
	return &Hash{dim: dim}
}

// Model returns a name describing the embedder.
func (h *Hash) Model() string {
	return fmt.Sprintf("hash-%d", h.dim)
}

// Embed hashes words and adjacent word pairs into signed buckets and
// L2-normalizes the result.
func (h *Hash) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		return nil, ErrEmptyEmbedding
	}

	vec := make([]float64, h.dim)
	for i, w := range words {
		h.add(vec, w, 1)
		if i > 0 {
			h.add(vec, words[i-1]+" "+w, 0.5)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	out := make([]float32, h.dim)
	if norm == 0 {
		return out, nil
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

func (h *Hash) add(vec []float64, token string, weight float64) {
	f := fnv.New64a()
	_, _ = f.Write([]byte(token))
	sum := f.Sum64()
	idx := int(sum % uint64(h.dim))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vec[idx] += weight
}
