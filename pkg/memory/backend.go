package memory

import (
	"context"

	"github.com/zen-systems/mindgate/pkg/embedding"
)

// Backend is the persistence service behind a Store.
// Insert must be atomic per record. Search returns at most limit matches of f
// ranked by cosine similarity to vector.
type Backend interface {
	Insert(ctx context.Context, rec Record) error
	Search(ctx context.Context, vector []float32, f Filter, limit int) ([]Scored, error)
	Close() error
}

// rank scores candidates client-side and keeps the best limit.
// Candidates whose embedding dimension differs from the query are skipped.
func rank(vector []float32, candidates []Record, limit int) []Scored {
	out := make([]Scored, 0, len(candidates))
	for _, c := range candidates {
		if len(c.Embedding) != len(vector) {
			continue
		}
		out = append(out, Scored{Record: c, Similarity: embedding.Cosine(vector, c.Embedding)})
	}
	sortScored(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
