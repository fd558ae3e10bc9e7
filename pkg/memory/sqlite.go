package memory

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteBackend stores records in a SQLite table and ranks them client-side.
type SQLiteBackend struct {
	conn *sql.DB
	path string
}

// OpenSQLite opens or creates the database at path and applies migrations.
// The path ":memory:" opens a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteBackend, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; appends are single statements.
	conn.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := conn.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to enable WAL: %w", err)
		}
	}
	if _, err := conn.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	b := &SQLiteBackend{conn: conn, path: path}
	if err := b.migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return b, nil
}

// Close closes the database connection.
func (b *SQLiteBackend) Close() error {
	return b.conn.Close()
}

// Insert appends rec in a single statement.
func (b *SQLiteBackend) Insert(ctx context.Context, rec Record) error {
	tags, err := json.Marshal(nonNilTags(rec.Tags))
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}
	metadata, err := json.Marshal(nonNilMetadata(rec.Metadata))
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	_, err = b.conn.ExecContext(ctx, `
		INSERT INTO memory_records
			(id, user_context, memory_type, content, embedding, dimension, importance, tags, metadata, agent_source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserContext, string(rec.Type), rec.Content,
		encodeVector(rec.Embedding), len(rec.Embedding), rec.Importance,
		string(tags), string(metadata), rec.AgentSource, rec.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert memory: %w", err)
	}
	return nil
}

// Search loads the records matching f with the query's dimension and ranks
// them by cosine similarity.
func (b *SQLiteBackend) Search(ctx context.Context, vector []float32, f Filter, limit int) ([]Scored, error) {
	query := `
		SELECT id, user_context, memory_type, content, embedding, importance, tags, metadata, agent_source, created_at
		FROM memory_records
		WHERE user_context = ? AND importance >= ? AND dimension = ?`
	args := []any{f.UserContext, f.MinImportance, len(vector)}
	if len(f.Types) > 0 {
		placeholders := make([]string, len(f.Types))
		for i, t := range f.Types {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		query += " AND memory_type IN (" + strings.Join(placeholders, ", ") + ")"
	}

	rows, err := b.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	defer rows.Close()

	var candidates []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read memories: %w", err)
	}
	return rank(vector, candidates, limit), nil
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var (
		rec        Record
		memType    string
		blob       []byte
		tags, meta string
		createdAt  int64
	)
	if err := rows.Scan(&rec.ID, &rec.UserContext, &memType, &rec.Content, &blob,
		&rec.Importance, &tags, &meta, &rec.AgentSource, &createdAt); err != nil {
		return Record{}, fmt.Errorf("failed to scan memory: %w", err)
	}
	rec.Type = Type(memType)
	rec.Embedding = decodeVector(blob)
	rec.CreatedAt = time.Unix(0, createdAt).UTC()
	if err := json.Unmarshal([]byte(tags), &rec.Tags); err != nil {
		return Record{}, fmt.Errorf("memory %s: bad tags: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(meta), &rec.Metadata); err != nil {
		return Record{}, fmt.Errorf("memory %s: bad metadata: %w", rec.ID, err)
	}
	return rec, nil
}

// encodeVector packs float32 values little-endian.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func nonNilMetadata(md map[string]string) map[string]string {
	if md == nil {
		return map[string]string{}
	}
	return md
}

func (b *SQLiteBackend) migrate(ctx context.Context) error {
	_, err := b.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS _migrations (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied := make(map[string]bool)
	rows, err := b.conn.QueryContext(ctx, "SELECT name FROM _migrations")
	if err != nil {
		return err
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return err
		}
		applied[name] = true
	}
	rows.Close()

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") || applied[name] {
			continue
		}
		content, err := fs.ReadFile(migrationsFS, "migrations/"+name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		if err := b.apply(ctx, name, string(content)); err != nil {
			return fmt.Errorf("migration %s failed: %w", name, err)
		}
	}
	return nil
}

func (b *SQLiteBackend) apply(ctx context.Context, name, content string) error {
	tx, err := b.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, content); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO _migrations (name) VALUES (?)", name); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
