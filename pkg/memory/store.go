package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zen-systems/mindgate/pkg/embedding"
)

// DefaultRecallLimit is used when a query does not set Limit.
const DefaultRecallLimit = 5

// Entry is the caller-supplied part of a new record.
type Entry struct {
	Content     string
	Type        Type
	Importance  float64
	Tags        []string
	Metadata    map[string]string
	UserContext string
	AgentSource string
}

// Query describes a recall request.
type Query struct {
	Text          string
	Types         []Type
	MinImportance float64
	Limit         int
	UserContext   string
}

// Store embeds text and delegates persistence to a Backend.
// It is safe for concurrent use when the backend is.
type Store struct {
	backend  Backend
	embedder embedding.Embedder
	maxChars int
	agent    string
	logger   zerolog.Logger
	now      func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the store logger.
func WithLogger(l zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = l
	}
}

// WithMaxChars bounds the text sent to the embedder.
func WithMaxChars(n int) StoreOption {
	return func(s *Store) {
		s.maxChars = n
	}
}

// WithAgentSource sets the agent_source stamped on records that lack one.
func WithAgentSource(name string) StoreOption {
	return func(s *Store) {
		s.agent = name
	}
}

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a store over backend and embedder.
func NewStore(backend Backend, embedder embedding.Embedder, opts ...StoreOption) *Store {
	s := &Store{
		backend:  backend,
		embedder: embedder,
		maxChars: embedding.DefaultMaxChars,
		logger:   zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Memorize embeds e.Content and appends a new record, returning its ID.
// Errors wrap ErrInvalidRecord, ErrEmbeddingUnavailable or
// ErrPersistenceUnavailable. A canceled ctx writes nothing.
func (s *Store) Memorize(ctx context.Context, e Entry) (string, error) {
	if err := validate(e); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.embedder == nil {
		return "", fmt.Errorf("%w: no embedder configured", ErrEmbeddingUnavailable)
	}
	if s.backend == nil {
		return "", fmt.Errorf("%w: no backend configured", ErrPersistenceUnavailable)
	}

	vec, err := s.embedder.Embed(ctx, embedding.Truncate(e.Content, s.maxChars))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}
	if len(vec) == 0 {
		return "", fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, embedding.ErrEmptyEmbedding)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	agent := e.AgentSource
	if agent == "" {
		agent = s.agent
	}
	rec := Record{
		ID:          uuid.NewString(),
		Content:     e.Content,
		Embedding:   vec,
		Type:        e.Type,
		Importance:  e.Importance,
		Tags:        dedupeTags(e.Tags),
		Metadata:    e.Metadata,
		AgentSource: agent,
		UserContext: e.UserContext,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.backend.Insert(ctx, rec); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("%w: %w", ErrPersistenceUnavailable, err)
	}

	s.logger.Debug().
		Str("id", rec.ID).
		Str("user_context", rec.UserContext).
		Str("memory_type", string(rec.Type)).
		Msg("memorized")
	return rec.ID, nil
}

// Search returns the best matches for q or the reason none could be computed.
func (s *Store) Search(ctx context.Context, q Query) ([]Scored, error) {
	if strings.TrimSpace(q.Text) == "" || q.UserContext == "" {
		return nil, nil
	}
	if s.embedder == nil {
		return nil, fmt.Errorf("%w: no embedder configured", ErrEmbeddingUnavailable)
	}
	if s.backend == nil {
		return nil, fmt.Errorf("%w: no backend configured", ErrPersistenceUnavailable)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultRecallLimit
	}

	vec, err := s.embedder.Embed(ctx, embedding.Truncate(q.Text, s.maxChars))
	if err != nil || len(vec) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}

	results, err := s.backend.Search(ctx, vec, Filter{
		UserContext:   q.UserContext,
		Types:         q.Types,
		MinImportance: q.MinImportance,
	}, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	// Backends filter too; this keeps contexts disjoint even if one does not.
	out := results[:0]
	for _, r := range results {
		if r.UserContext == q.UserContext {
			out = append(out, r)
		}
	}
	return out, nil
}

// Recall is Search with failures degraded to an empty result.
func (s *Store) Recall(ctx context.Context, q Query) []Scored {
	results, err := s.Search(ctx, q)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn().Err(err).Str("user_context", q.UserContext).Msg("recall degraded to empty")
		}
		return nil
	}
	return results
}

// Close releases the backend.
func (s *Store) Close() error {
	if s.backend == nil {
		return nil
	}
	return s.backend.Close()
}

func validate(e Entry) error {
	switch {
	case strings.TrimSpace(e.Content) == "":
		return fmt.Errorf("%w: content is empty", ErrInvalidRecord)
	case e.UserContext == "":
		return fmt.Errorf("%w: user_context is required", ErrInvalidRecord)
	case !e.Type.Valid():
		return fmt.Errorf("%w: unknown memory type %q", ErrInvalidRecord, e.Type)
	case math.IsNaN(e.Importance) || e.Importance < 0 || e.Importance > 1:
		return fmt.Errorf("%w: importance %v outside [0,1]", ErrInvalidRecord, e.Importance)
	}
	return nil
}

func dedupeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
