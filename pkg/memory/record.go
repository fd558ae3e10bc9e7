// Package memory persists and recalls embedding-indexed records scoped to a
// user context.
package memory

import (
	"errors"
	"sort"
	"time"
)

var (
	// ErrEmbeddingUnavailable means the embedding provider could not vectorize the text.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	// ErrPersistenceUnavailable means the backing store could not be reached.
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
	// ErrInvalidRecord means the caller supplied a record that cannot be stored.
	ErrInvalidRecord = errors.New("invalid memory record")
	// ErrDimensionMismatch means stored vectors and the embedder disagree on size.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Type classifies a memory record.
type Type string

const (
	TypeConversation Type = "conversation"
	TypePreference   Type = "preference"
	TypeKnowledge    Type = "knowledge"
	TypeExperience   Type = "experience"
	TypeSystemError  Type = "system_error"
)

// Types lists every memory type.
var Types = []Type{TypeConversation, TypePreference, TypeKnowledge, TypeExperience, TypeSystemError}

// Valid reports whether t is a known memory type.
func (t Type) Valid() bool {
	for _, k := range Types {
		if k == t {
			return true
		}
	}
	return false
}

// Record is one append-only memory.
type Record struct {
	ID          string            `json:"id"`
	Content     string            `json:"content"`
	Embedding   []float32         `json:"-"`
	Type        Type              `json:"memory_type"`
	Importance  float64           `json:"importance_score"`
	Tags        []string          `json:"tags,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	AgentSource string            `json:"agent_source,omitempty"`
	UserContext string            `json:"user_context"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Scored is a recalled record with its similarity to the query.
type Scored struct {
	Record
	Similarity float64 `json:"similarity"`
}

// Filter narrows the candidate set of a search.
type Filter struct {
	UserContext   string
	Types         []Type
	MinImportance float64
}

// Match reports whether r passes the filter.
func (f Filter) Match(r Record) bool {
	if r.UserContext != f.UserContext {
		return false
	}
	if r.Importance < f.MinImportance {
		return false
	}
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if r.Type == t {
			return true
		}
	}
	return false
}

// sortScored orders by similarity descending, newest first on ties, then by ID
// so the order is total.
func sortScored(s []Scored) {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].Similarity != s[j].Similarity {
			return s[i].Similarity > s[j].Similarity
		}
		if !s[i].CreatedAt.Equal(s[j].CreatedAt) {
			return s[i].CreatedAt.After(s[j].CreatedAt)
		}
		return s[i].ID < s[j].ID
	})
}
