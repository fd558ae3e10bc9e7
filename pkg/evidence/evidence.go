// Package evidence writes an on-disk trace of loop runs for later audit.
package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zen-systems/mindgate/pkg/adapter"
	"github.com/zen-systems/mindgate/pkg/loop"
	"github.com/zen-systems/mindgate/pkg/registry"
)

// RunRecord captures run-level metadata.
type RunRecord struct {
	ID                    string        `json:"id"`
	Timestamp             time.Time     `json:"timestamp"`
	UserContext           string        `json:"user_context"`
	Hint                  string        `json:"hint,omitempty"`
	Prompts               int           `json:"prompts"`
	StepsRun              int           `json:"steps_run"`
	Phase                 loop.Phase    `json:"phase"`
	Confidence            float64       `json:"confidence"`
	WaitingForHumanReview bool          `json:"waiting_for_human_review"`
	ActionURL             string        `json:"action_url,omitempty"`
	Usage                 adapter.Usage `json:"usage"`
	DurationMillis        int64         `json:"duration_ms"`
}

// StepRecord captures evidence for a single loop step. Prompt and output
// bodies live in blobs and are referenced by path and hash.
type StepRecord struct {
	Step           int                 `json:"step"`
	TaskType       string              `json:"task_type"`
	Model          string              `json:"model,omitempty"`
	Provider       registry.Provider   `json:"provider,omitempty"`
	Score          float64             `json:"score"`
	PromptRef      string              `json:"prompt_ref,omitempty"`
	PromptHash     string              `json:"prompt_hash,omitempty"`
	OutputRef      string              `json:"output_ref,omitempty"`
	OutputHash     string              `json:"output_hash,omitempty"`
	FinishReason   string              `json:"finish_reason,omitempty"`
	ProvidersTried []registry.Provider `json:"providers_tried,omitempty"`
	Attempts       []AttemptRecord     `json:"attempts,omitempty"`
	Error          string              `json:"error,omitempty"`
	Confidence     float64             `json:"confidence"`
	Decision       loop.Decision       `json:"decision"`
	MemoryID       string              `json:"memory_id,omitempty"`
	MemoryError    string              `json:"memory_error,omitempty"`
}

// AttemptRecord captures one provider call in the fallback chain.
type AttemptRecord struct {
	Provider      registry.Provider `json:"provider"`
	Model         string            `json:"model,omitempty"`
	Skipped       bool              `json:"skipped,omitempty"`
	Kind          string            `json:"kind,omitempty"`
	Error         string            `json:"error,omitempty"`
	LatencyMillis int64             `json:"latency_ms"`
}

// Writer writes evidence bundles to disk.
type Writer struct {
	baseDir string
	runDir  string
}

// NewWriter creates a new evidence writer rooted at baseDir/runID.
func NewWriter(baseDir, runID string) (*Writer, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if runID == "" {
		return nil, fmt.Errorf("run ID is required")
	}
	if strings.ContainsAny(runID, `/\`) || runID == "." || runID == ".." {
		return nil, fmt.Errorf("invalid run ID %q", runID)
	}

	runDir := filepath.Join(baseDir, runID)
	for _, dir := range []string{runDir, filepath.Join(runDir, "steps"), filepath.Join(runDir, "blobs")} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, err
		}
		// MkdirAll leaves existing directories alone and honours umask.
		if err := os.Chmod(dir, 0700); err != nil {
			return nil, err
		}
	}

	return &Writer{baseDir: baseDir, runDir: runDir}, nil
}

// RunDir returns the run directory path.
func (w *Writer) RunDir() string {
	return w.runDir
}

// WriteRun writes run metadata to run.json.
func (w *Writer) WriteRun(record RunRecord) error {
	return writeJSON(filepath.Join(w.runDir, "run.json"), record)
}

// WriteStep writes a step record to steps/<step>.json.
func (w *Writer) WriteStep(record StepRecord) error {
	path := filepath.Join(w.runDir, "steps", fmt.Sprintf("%03d.json", record.Step))
	return writeJSON(path, record)
}

// WriteBlob stores content under blobs/<kind>-<sha256>.txt and returns the
// run-relative reference and the hex digest. Identical content maps to the
// same blob.
func (w *Writer) WriteBlob(kind string, content []byte) (string, string, error) {
	sum := sha256.Sum256(content)
	sha := hex.EncodeToString(sum[:])
	ref := "blobs/" + sanitizeKind(kind) + "-" + sha + ".txt"
	path := filepath.Join(w.runDir, filepath.FromSlash(ref))
	if _, err := os.Stat(path); err == nil {
		return ref, sha, nil
	}
	if err := os.WriteFile(path, content, 0600); err != nil {
		return "", "", err
	}
	return ref, sha, nil
}

// WriteState records a finished loop run: one blob per prompt and answer,
// one record per step and the run summary.
func (w *Writer) WriteState(t loop.Task, st *loop.State, started time.Time) error {
	if st == nil {
		return fmt.Errorf("state is required")
	}
	run := RunRecord{
		ID:                    filepath.Base(w.runDir),
		Timestamp:             started.UTC(),
		UserContext:           t.UserContext,
		Hint:                  t.Hint,
		Prompts:               len(t.Prompts),
		StepsRun:              st.Step,
		Phase:                 st.Phase,
		Confidence:            st.Confidence,
		WaitingForHumanReview: st.WaitingForHumanReview,
		ActionURL:             st.ActionURL,
		DurationMillis:        time.Since(started).Milliseconds(),
	}

	for _, s := range st.Steps {
		rec, err := w.stepRecord(s)
		if err != nil {
			return fmt.Errorf("step %d: %w", s.Step, err)
		}
		if err := w.WriteStep(rec); err != nil {
			return fmt.Errorf("step %d: %w", s.Step, err)
		}
		if s.Outcome != nil && s.Outcome.Usage != nil {
			run.Usage = addUsage(run.Usage, *s.Outcome.Usage)
		}
	}
	return w.WriteRun(run)
}

func (w *Writer) stepRecord(s loop.StepResult) (StepRecord, error) {
	rec := StepRecord{
		Step:        s.Step,
		TaskType:    string(s.Analysis.Type),
		Confidence:  s.Confidence,
		Decision:    s.Decision,
		MemoryID:    s.MemoryID,
		MemoryError: s.MemoryErr,
	}

	var err error
	rec.PromptRef, rec.PromptHash, err = w.WriteBlob("prompt", []byte(s.Prompt))
	if err != nil {
		return rec, err
	}

	o := s.Outcome
	if o == nil {
		return rec, nil
	}
	rec.Model = o.ModelName
	rec.Provider = o.Provider
	rec.Score = o.Score
	rec.FinishReason = o.FinishReason
	rec.ProvidersTried = o.ProviderChainTried
	if o.Err != nil {
		rec.Error = o.Err.Error()
	}
	if o.ResponseText != "" {
		rec.OutputRef, rec.OutputHash, err = w.WriteBlob("output", []byte(o.ResponseText))
		if err != nil {
			return rec, err
		}
	}
	for _, a := range o.Attempts {
		rec.Attempts = append(rec.Attempts, AttemptRecord{
			Provider:      a.Provider,
			Model:         a.Model,
			Skipped:       a.Skipped,
			Kind:          string(a.Kind),
			Error:         a.Error,
			LatencyMillis: a.Latency.Milliseconds(),
		})
	}
	return rec, nil
}

func sanitizeKind(kind string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(kind) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "blob"
	}
	return b.String()
}

func addUsage(a, b adapter.Usage) adapter.Usage {
	total := b.TotalTokens
	if total == 0 {
		total = b.PromptTokens + b.CompletionTokens
	}
	return adapter.Usage{
		PromptTokens:     a.PromptTokens + b.PromptTokens,
		CompletionTokens: a.CompletionTokens + b.CompletionTokens,
		TotalTokens:      a.TotalTokens + total,
	}
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
