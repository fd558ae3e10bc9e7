package memory

import (
	"context"
	"testing"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectionInfo(size uint64) *qdrant.CollectionInfo {
	return &qdrant.CollectionInfo{
		Config: &qdrant.CollectionConfig{
			Params: &qdrant.CollectionParams{
				VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{Size: size, Distance: qdrant.Distance_Cosine}),
			},
		},
	}
}

func TestVectorSize(t *testing.T) {
	assert.Equal(t, uint64(768), vectorSize(collectionInfo(768)))
	assert.Equal(t, uint64(0), vectorSize(&qdrant.CollectionInfo{}))
	assert.Equal(t, uint64(0), vectorSize(nil))
}

func TestCheckDimension(t *testing.T) {
	assert.NoError(t, checkDimension("memories", 768, 768))
	assert.NoError(t, checkDimension("memories", 0, 1536))

	err := checkDimension("memories", 768, 1536)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Contains(t, err.Error(), "768-dimensional")
	assert.Contains(t, err.Error(), "1536")
}

// sizedBackend accepts only vectors of one size, the way an existing
// Qdrant collection does.
type sizedBackend struct {
	*InProcess
	size uint64
}

func (b sizedBackend) Insert(ctx context.Context, rec Record) error {
	if err := checkDimension("memories", b.size, len(rec.Embedding)); err != nil {
		return err
	}
	return b.InProcess.Insert(ctx, rec)
}

func TestMemorize_DimensionMismatchIsReported(t *testing.T) {
	s := NewStore(sizedBackend{InProcess: NewInProcess(), size: 768}, constEmbedder{vec: []float32{1, 0, 0}},
		WithClock(stepClock(time.Unix(0, 0))))

	_, err := s.Memorize(context.Background(), Entry{Content: "x", Type: TypeKnowledge, Importance: 0.5, UserContext: "A"})
	assert.ErrorIs(t, err, ErrPersistenceUnavailable)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}
