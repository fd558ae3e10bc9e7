package memory

import (
	"context"
	"sync"
)

// InProcess keeps records in a slice guarded by a RWMutex.
// It is used for tests and for runs without a persistence service.
type InProcess struct {
	mu       sync.RWMutex
	records  []Record
	maxItems int
}

// InProcessOption configures an InProcess backend.
type InProcessOption func(*InProcess)

// WithMaxItems bounds the records retained per user context; the oldest
// records of that context are dropped. 0 keeps all.
func WithMaxItems(max int) InProcessOption {
	return func(m *InProcess) {
		m.maxItems = max
	}
}

// NewInProcess creates an empty in-process backend.
func NewInProcess(opts ...InProcessOption) *InProcess {
	m := &InProcess{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Insert appends a copy of rec.
func (m *InProcess) Insert(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec = cloneRecord(rec)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	if m.maxItems > 0 {
		m.trim(rec.UserContext)
	}
	return nil
}

// trim drops the oldest records of one user context beyond maxItems.
// Records of other contexts are untouched.
func (m *InProcess) trim(userContext string) {
	n := 0
	for _, r := range m.records {
		if r.UserContext == userContext {
			n++
		}
	}
	drop := n - m.maxItems
	if drop <= 0 {
		return
	}
	kept := m.records[:0]
	for _, r := range m.records {
		if drop > 0 && r.UserContext == userContext {
			drop--
			continue
		}
		kept = append(kept, r)
	}
	m.records = kept
}

// Search ranks matching records by cosine similarity.
func (m *InProcess) Search(ctx context.Context, vector []float32, f Filter, limit int) ([]Scored, error) {
	m.mu.RLock()
	candidates := make([]Record, 0, len(m.records))
	for _, r := range m.records {
		if f.Match(r) {
			candidates = append(candidates, r)
		}
	}
	m.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := rank(vector, candidates, limit)
	for i := range out {
		out[i].Record = cloneRecord(out[i].Record)
	}
	return out, nil
}

// Count returns the number of stored records.
func (m *InProcess) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Close is a no-op.
func (m *InProcess) Close() error {
	return nil
}

func cloneRecord(r Record) Record {
	r.Embedding = append([]float32(nil), r.Embedding...)
	r.Tags = append([]string(nil), r.Tags...)
	if r.Metadata != nil {
		md := make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			md[k] = v
		}
		r.Metadata = md
	}
	return r
}
