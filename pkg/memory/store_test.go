package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zen-systems/mindgate/pkg/embedding"
)

type constEmbedder struct {
	vec []float32
	err error
}

func (c constEmbedder) Embed(context.Context, string) ([]float32, error) {
	return c.vec, c.err
}

func (c constEmbedder) Model() string { return "const" }

type failingBackend struct{}

func (failingBackend) Insert(context.Context, Record) error { return errors.New("connection refused") }

func (failingBackend) Search(context.Context, []float32, Filter, int) ([]Scored, error) {
	return nil, errors.New("connection refused")
}

func (failingBackend) Close() error { return nil }

func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func newTestStore(backend Backend) *Store {
	return NewStore(backend, embedding.NewHash(128), WithClock(stepClock(time.Unix(1700000000, 0))))
}

// storeContract runs the behaviour every backend must share.
func storeContract(t *testing.T, newBackend func(t *testing.T) Backend) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		s := newTestStore(newBackend(t))
		id, err := s.Memorize(ctx, Entry{
			Content: "golang concurrency uses goroutines and channels", Type: TypeKnowledge,
			Importance: 0.8, Tags: []string{"go", "go", " "}, Metadata: map[string]string{"k": "v"}, UserContext: "A",
		})
		require.NoError(t, err)
		_, err = s.Memorize(ctx, Entry{Content: "sourdough bread needs a long fermentation", Type: TypeKnowledge, Importance: 0.8, UserContext: "A"})
		require.NoError(t, err)

		got := s.Recall(ctx, Query{Text: "channels and goroutines in golang", UserContext: "A", Limit: 2})
		require.NotEmpty(t, got)
		assert.Equal(t, id, got[0].ID)
		assert.Equal(t, []string{"go"}, got[0].Tags)
		assert.Equal(t, "v", got[0].Metadata["k"])
		assert.Equal(t, TypeKnowledge, got[0].Type)
		if len(got) > 1 {
			assert.GreaterOrEqual(t, got[0].Similarity, got[1].Similarity)
		}
	})

	t.Run("context isolation", func(t *testing.T) {
		s := newTestStore(newBackend(t))
		_, err := s.Memorize(ctx, Entry{Content: "secret plan for tenant B", Type: TypePreference, Importance: 1, UserContext: "B"})
		require.NoError(t, err)

		assert.Empty(t, s.Recall(ctx, Query{Text: "secret plan for tenant B", UserContext: "A"}))
		assert.Len(t, s.Recall(ctx, Query{Text: "secret plan for tenant B", UserContext: "B"}), 1)
	})

	t.Run("filters", func(t *testing.T) {
		s := newTestStore(newBackend(t))
		_, err := s.Memorize(ctx, Entry{Content: "deploy failed on friday", Type: TypeSystemError, Importance: 0.2, UserContext: "A"})
		require.NoError(t, err)
		_, err = s.Memorize(ctx, Entry{Content: "deploy succeeded on monday", Type: TypeExperience, Importance: 0.9, UserContext: "A"})
		require.NoError(t, err)

		got := s.Recall(ctx, Query{Text: "deploy", UserContext: "A", Types: []Type{TypeExperience}})
		require.Len(t, got, 1)
		assert.Equal(t, TypeExperience, got[0].Type)

		got = s.Recall(ctx, Query{Text: "deploy", UserContext: "A", MinImportance: 0.5})
		require.Len(t, got, 1)
		assert.Equal(t, "deploy succeeded on monday", got[0].Content)
	})
}

func TestStore_InProcess(t *testing.T) {
	storeContract(t, func(t *testing.T) Backend { return NewInProcess() })
}

func TestStore_SQLite(t *testing.T) {
	storeContract(t, func(t *testing.T) Backend {
		b, err := OpenSQLite(context.Background(), t.TempDir()+"/memory.db")
		require.NoError(t, err)
		t.Cleanup(func() { b.Close() })
		return b
	})
}

func TestRecall_TiesPreferNewest(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewInProcess(), constEmbedder{vec: []float32{1, 0, 0}}, WithClock(stepClock(time.Unix(0, 0))))

	var ids []string
	for _, c := range []string{"first", "second", "third"} {
		id, err := s.Memorize(ctx, Entry{Content: c, Type: TypeConversation, Importance: 0.5, UserContext: "A"})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	got := s.Recall(ctx, Query{Text: "anything", UserContext: "A", Limit: 2})
	require.Len(t, got, 2)
	assert.Equal(t, ids[2], got[0].ID)
	assert.Equal(t, ids[1], got[1].ID)
}

func TestMemorize_Errors(t *testing.T) {
	ctx := context.Background()
	valid := Entry{Content: "x", Type: TypeKnowledge, Importance: 0.5, UserContext: "A"}

	tests := []struct {
		name  string
		store *Store
		entry Entry
		want  error
	}{
		{"empty content", newTestStore(NewInProcess()), Entry{Type: TypeKnowledge, UserContext: "A"}, ErrInvalidRecord},
		{"no context", newTestStore(NewInProcess()), Entry{Content: "x", Type: TypeKnowledge}, ErrInvalidRecord},
		{"bad type", newTestStore(NewInProcess()), Entry{Content: "x", Type: "gossip", UserContext: "A"}, ErrInvalidRecord},
		{"bad importance", newTestStore(NewInProcess()), Entry{Content: "x", Type: TypeKnowledge, Importance: 2, UserContext: "A"}, ErrInvalidRecord},
		{"embedder down", NewStore(NewInProcess(), constEmbedder{err: errors.New("503")}), valid, ErrEmbeddingUnavailable},
		{"empty vector", NewStore(NewInProcess(), constEmbedder{}), valid, ErrEmbeddingUnavailable},
		{"backend down", newTestStore(failingBackend{}), valid, ErrPersistenceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.store.Memorize(ctx, tt.entry)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestRecall_DegradesToEmpty(t *testing.T) {
	ctx := context.Background()
	q := Query{Text: "anything", UserContext: "A"}

	assert.Empty(t, newTestStore(failingBackend{}).Recall(ctx, q))
	assert.Empty(t, NewStore(NewInProcess(), constEmbedder{err: errors.New("down")}).Recall(ctx, q))
	assert.Empty(t, newTestStore(NewInProcess()).Recall(ctx, q))

	_, err := newTestStore(failingBackend{}).Search(ctx, q)
	assert.ErrorIs(t, err, ErrPersistenceUnavailable)
}

func TestMemorize_CanceledWritesNothing(t *testing.T) {
	backend := NewInProcess()
	s := newTestStore(backend)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Memorize(ctx, Entry{Content: "x", Type: TypeKnowledge, UserContext: "A"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, backend.Count())
}

func TestMemorize_ConcurrentInserts(t *testing.T) {
	backend := NewInProcess()
	s := newTestStore(backend)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Memorize(ctx, Entry{Content: "parallel note", Type: TypeConversation, UserContext: "A"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, backend.Count())
}

func TestRank_SkipsDimensionMismatch(t *testing.T) {
	got := rank([]float32{1, 0}, []Record{
		{ID: "a", Embedding: []float32{1, 0}},
		{ID: "b", Embedding: []float32{1, 0, 0}},
	}, 10)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
}

func TestVectorCodec(t *testing.T) {
	in := []float32{0, 1.5, -2.25, 3.1415927}
	assert.Equal(t, in, decodeVector(encodeVector(in)))
}

func TestInProcess_MaxItems(t *testing.T) {
	b := NewInProcess(WithMaxItems(2))
	for i := 0; i < 5; i++ {
		require.NoError(t, b.Insert(context.Background(), Record{ID: string(rune('a' + i))}))
	}
	assert.Equal(t, 2, b.Count())
}

func TestInProcess_MaxItemsIsPerContext(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(NewInProcess(WithMaxItems(3)))

	_, err := s.Memorize(ctx, Entry{Content: "alice prefers dark mode", Type: TypePreference, Importance: 0.6, UserContext: "A"})
	require.NoError(t, err)
	for _, c := range []string{"bob uses vim", "bob writes rust", "bob likes tea", "bob runs linux"} {
		_, err := s.Memorize(ctx, Entry{Content: c, Type: TypeKnowledge, Importance: 0.5, UserContext: "B"})
		require.NoError(t, err)
	}

	got := s.Recall(ctx, Query{Text: "alice prefers dark mode", UserContext: "A"})
	require.Len(t, got, 1)
	assert.Equal(t, "alice prefers dark mode", got[0].Content)

	b := s.Recall(ctx, Query{Text: "bob", UserContext: "B", Limit: 10})
	require.Len(t, b, 3)
	for _, r := range b {
		assert.NotEqual(t, "bob uses vim", r.Content)
	}
}

func TestInProcess_UnboundedByDefault(t *testing.T) {
	b := NewInProcess()
	for i := 0; i < 50; i++ {
		require.NoError(t, b.Insert(context.Background(), Record{ID: string(rune('a' + i)), UserContext: "A"}))
	}
	assert.Equal(t, 50, b.Count())
}
