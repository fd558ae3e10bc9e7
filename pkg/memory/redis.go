package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces the per-context record lists.
const DefaultRedisPrefix = "mindgate:memory:"

// RedisConfig holds configuration for the Redis backend.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	// MaxPerContext trims each user context to its newest records; 0 keeps all.
	MaxPerContext int64
}

// RedisBackend keeps one list of JSON records per user context and ranks
// them client-side, so it needs no search module on the server.
type RedisBackend struct {
	rdb    *redis.Client
	prefix string
	max    int64
}

type redisEntry struct {
	Record
	Embedding []float32 `json:"embedding"`
}

// NewRedis connects to Redis and checks the connection.
func NewRedis(ctx context.Context, cfg RedisConfig) (*RedisBackend, error) {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultRedisPrefix
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisBackend{rdb: rdb, prefix: cfg.Prefix, max: cfg.MaxPerContext}, nil
}

func (b *RedisBackend) key(userContext string) string {
	return b.prefix + userContext
}

// Insert appends rec to its context's list.
func (b *RedisBackend) Insert(ctx context.Context, rec Record) error {
	data, err := json.Marshal(redisEntry{Record: rec, Embedding: rec.Embedding})
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	key := b.key(rec.UserContext)
	if b.max <= 0 {
		return b.rdb.RPush(ctx, key, data).Err()
	}
	_, err = b.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		pipe.LTrim(ctx, key, -b.max, -1)
		return nil
	})
	return err
}

// Search loads the context's records and ranks them.
func (b *RedisBackend) Search(ctx context.Context, vector []float32, f Filter, limit int) ([]Scored, error) {
	raw, err := b.rdb.LRange(ctx, b.key(f.UserContext), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	candidates := make([]Record, 0, len(raw))
	for _, item := range raw {
		var e redisEntry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		rec := e.Record
		rec.Embedding = e.Embedding
		if f.Match(rec) {
			candidates = append(candidates, rec)
		}
	}
	return rank(vector, candidates, limit), nil
}

// Close closes the client.
func (b *RedisBackend) Close() error {
	return b.rdb.Close()
}
