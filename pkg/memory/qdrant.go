package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"
)

// DefaultCollection is the Qdrant collection used for memory records.
const DefaultCollection = "memories"

// QdrantConfig configures the Qdrant backend.
type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
}

// QdrantBackend stores records as Qdrant points and ranks them server-side.
// Recalled records do not carry their embedding.
type QdrantBackend struct {
	client     *qdrant.Client
	collection string

	mu   sync.Mutex
	size uint64 // vector size of the collection once known
}

// NewQdrant connects to Qdrant. Collections are created lazily on first
// insert, sized to the embedding dimension.
func NewQdrant(cfg QdrantConfig) (*QdrantBackend, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant: %w", err)
	}
	return &QdrantBackend{
		client:     client,
		collection: cfg.Collection,
	}, nil
}

// Close closes the Qdrant connection.
func (b *QdrantBackend) Close() error {
	return b.client.Close()
}

// ensureCollection creates the collection on first use, or checks that an
// existing one was sized for the same embedding dimension.
func (b *QdrantBackend) ensureCollection(ctx context.Context, dimension int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.size != 0 {
		return checkDimension(b.collection, b.size, dimension)
	}

	exists, err := b.client.CollectionExists(ctx, b.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", b.collection, err)
	}
	if exists {
		info, err := b.client.GetCollectionInfo(ctx, b.collection)
		if err != nil {
			return fmt.Errorf("failed to inspect collection %s: %w", b.collection, err)
		}
		size := vectorSize(info)
		if err := checkDimension(b.collection, size, dimension); err != nil {
			return err
		}
		if size == 0 {
			// named or multi-vector layouts are left to the server
			size = uint64(dimension)
		}
		b.size = size
		return nil
	}

	err = b.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: b.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", b.collection, err)
	}
	b.size = uint64(dimension)
	return nil
}

func vectorSize(info *qdrant.CollectionInfo) uint64 {
	return info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
}

func checkDimension(collection string, size uint64, dimension int) error {
	if size != 0 && size != uint64(dimension) {
		return fmt.Errorf("%w: collection %s holds %d-dimensional vectors, embedder produced %d",
			ErrDimensionMismatch, collection, size, dimension)
	}
	return nil
}

// Insert upserts rec as a single point and waits for it to be applied.
func (b *QdrantBackend) Insert(ctx context.Context, rec Record) error {
	if err := b.ensureCollection(ctx, len(rec.Embedding)); err != nil {
		return err
	}
	payload, err := toPayload(rec)
	if err != nil {
		return err
	}
	_, err = b.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: b.collection,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(rec.ID),
			Vectors: qdrant.NewVectors(rec.Embedding...),
			Payload: payload,
		}},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert memory: %w", err)
	}
	return nil
}

// Search runs a filtered cosine query. Twice the limit is fetched so ties at
// the cut are resolved by recency rather than by server order.
func (b *QdrantBackend) Search(ctx context.Context, vector []float32, f Filter, limit int) ([]Scored, error) {
	must := []*qdrant.Condition{qdrant.NewMatch("user_context", f.UserContext)}
	if len(f.Types) > 0 {
		names := make([]string, len(f.Types))
		for i, t := range f.Types {
			names[i] = string(t)
		}
		must = append(must, qdrant.NewMatchKeywords("memory_type", names...))
	}
	if f.MinImportance > 0 {
		must = append(must, qdrant.NewRange("importance", &qdrant.Range{Gte: qdrant.PtrOf(f.MinImportance)}))
	}

	fetch := uint64(limit * 2)
	if fetch == 0 {
		fetch = 10
	}
	points, err := b.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: b.collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         &qdrant.Filter{Must: must},
		Limit:          qdrant.PtrOf(fetch),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	out := make([]Scored, 0, len(points))
	for _, p := range points {
		rec := fromPayload(p.Payload)
		rec.ID = p.Id.GetUuid()
		out = append(out, Scored{Record: rec, Similarity: float64(p.Score)})
	}
	sortScored(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func toPayload(rec Record) (map[string]*qdrant.Value, error) {
	tags, err := json.Marshal(nonNilTags(rec.Tags))
	if err != nil {
		return nil, fmt.Errorf("failed to encode tags: %w", err)
	}
	metadata, err := json.Marshal(nonNilMetadata(rec.Metadata))
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return map[string]*qdrant.Value{
		"user_context": qdrant.NewValueString(rec.UserContext),
		"memory_type":  qdrant.NewValueString(string(rec.Type)),
		"content":      qdrant.NewValueString(rec.Content),
		"importance":   qdrant.NewValueDouble(rec.Importance),
		"agent_source": qdrant.NewValueString(rec.AgentSource),
		"created_at":   qdrant.NewValueInt(rec.CreatedAt.UnixNano()),
		"tags":         qdrant.NewValueString(string(tags)),
		"metadata":     qdrant.NewValueString(string(metadata)),
	}, nil
}

func fromPayload(payload map[string]*qdrant.Value) Record {
	var rec Record
	rec.UserContext = payload["user_context"].GetStringValue()
	rec.Type = Type(payload["memory_type"].GetStringValue())
	rec.Content = payload["content"].GetStringValue()
	rec.Importance = payload["importance"].GetDoubleValue()
	rec.AgentSource = payload["agent_source"].GetStringValue()
	rec.CreatedAt = time.Unix(0, payload["created_at"].GetIntegerValue()).UTC()
	_ = json.Unmarshal([]byte(payload["tags"].GetStringValue()), &rec.Tags)
	_ = json.Unmarshal([]byte(payload["metadata"].GetStringValue()), &rec.Metadata)
	return rec
}
