package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zen-systems/mindgate/pkg/adapter"
	"github.com/zen-systems/mindgate/pkg/loop"
	"github.com/zen-systems/mindgate/pkg/registry"
	"github.com/zen-systems/mindgate/pkg/router"
	"github.com/zen-systems/mindgate/pkg/task"
)

func TestEvidenceWriter(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewWriter(dir, "run-123")
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	run := RunRecord{
		ID:          "run-123",
		Timestamp:   time.Now().UTC(),
		UserContext: "alice",
		Prompts:     1,
	}
	if err := writer.WriteRun(run); err != nil {
		t.Fatalf("write run: %v", err)
	}

	step := StepRecord{
		Step:     1,
		TaskType: "coding",
		Model:    "mock-1",
		Provider: registry.ProviderMock,
	}
	if err := writer.WriteStep(step); err != nil {
		t.Fatalf("write step: %v", err)
	}

	if _, err := os.Stat(filepath.Join(writer.RunDir(), "run.json")); err != nil {
		t.Fatalf("missing run.json: %v", err)
	}
	if _, err := os.Stat(filepath.Join(writer.RunDir(), "steps", "001.json")); err != nil {
		t.Fatalf("missing step file: %v", err)
	}

	if runtime.GOOS != "windows" {
		assertPerm(t, writer.RunDir(), 0700)
		assertPerm(t, filepath.Join(writer.RunDir(), "steps"), 0700)
		assertPerm(t, filepath.Join(writer.RunDir(), "blobs"), 0700)
		assertPerm(t, filepath.Join(writer.RunDir(), "run.json"), 0600)
		assertPerm(t, filepath.Join(writer.RunDir(), "steps", "001.json"), 0600)
	}
}

func TestNewWriterValidation(t *testing.T) {
	_, err := NewWriter("", "run")
	assert.Error(t, err)
	_, err = NewWriter(t.TempDir(), "")
	assert.Error(t, err)
	_, err = NewWriter(t.TempDir(), "../escape")
	assert.Error(t, err)
}

func TestWriteBlob(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewWriter(dir, "run1")
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	content := []byte("hello")
	sum := sha256.Sum256(content)
	expectedSha := hex.EncodeToString(sum[:])

	ref, sha, err := writer.WriteBlob("prompt", content)
	if err != nil {
		t.Fatalf("write blob: %v", err)
	}
	if sha != expectedSha {
		t.Fatalf("sha mismatch: %s", sha)
	}

	blobPath := filepath.Join(writer.RunDir(), ref)
	data, err := os.ReadFile(blobPath)
	if err != nil {
		t.Fatalf("read blob: %v", err)
	}
	if string(data) != string(content) {
		t.Fatalf("content mismatch: %q", string(data))
	}
	if runtime.GOOS != "windows" {
		assertPerm(t, blobPath, 0600)
	}

	ref2, sha2, err := writer.WriteBlob("prompt", content)
	if err != nil {
		t.Fatalf("write blob again: %v", err)
	}
	if ref2 != ref || sha2 != sha {
		t.Fatalf("expected same ref and sha")
	}
}

func TestWriteBlobKindSanitization(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewWriter(dir, "run2")
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	ref, _, err := writer.WriteBlob("Prompt 123/../", []byte("x"))
	if err != nil {
		t.Fatalf("write blob: %v", err)
	}

	if !strings.HasPrefix(ref, "blobs/") {
		t.Fatalf("expected blobs prefix: %s", ref)
	}
	if strings.Count(ref, "/") != 1 {
		t.Fatalf("unexpected path separators in ref: %s", ref)
	}

	kindSegment := strings.TrimPrefix(ref, "blobs/")
	kind := strings.SplitN(kindSegment, "-", 2)[0]
	for _, r := range kind {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' {
			t.Fatalf("invalid kind character: %q", r)
		}
	}
}

func TestWriteBlobKindFallback(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewWriter(dir, "run3")
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	ref, _, err := writer.WriteBlob("!!!", []byte("y"))
	if err != nil {
		t.Fatalf("write blob: %v", err)
	}

	if !strings.HasPrefix(ref, "blobs/blob-") {
		t.Fatalf("expected blob kind fallback in ref: %s", ref)
	}
}

func TestWriteState(t *testing.T) {
	writer, err := NewWriter(t.TempDir(), "run4")
	require.NoError(t, err)

	tk := loop.Task{Prompts: []string{"write a go function", "now test it"}, UserContext: "alice"}
	st := &loop.State{
		Step:                  2,
		Phase:                 loop.PhaseDone,
		Confidence:            0.2,
		WaitingForHumanReview: true,
		Reflected:             true,
		Steps: []loop.StepResult{
			{
				Step:     1,
				Prompt:   tk.Prompts[0],
				Analysis: task.Analysis{Type: task.TypeCoding},
				Outcome: &router.Outcome{
					ModelName:          "claude-sonnet",
					Provider:           registry.ProviderAnthropic,
					Score:              0.9,
					ResponseText:       "func f() {}",
					Usage:              &adapter.Usage{PromptTokens: 10, CompletionTokens: 5},
					ProviderChainTried: []registry.Provider{registry.ProviderAnthropic},
					Attempts: []router.Attempt{
						{Provider: registry.ProviderAnthropic, Model: "claude-sonnet", Latency: 1500 * time.Millisecond},
					},
				},
				Confidence: 0.9,
				Decision:   loop.DecisionContinue,
				MemoryID:   "m-1",
			},
			{
				Step:     2,
				Prompt:   tk.Prompts[1],
				Analysis: task.Analysis{Type: task.TypeCoding},
				Outcome: &router.Outcome{
					ModelName:          "claude-sonnet",
					ProviderChainTried: []registry.Provider{registry.ProviderAnthropic, registry.ProviderOpenAI},
					Attempts: []router.Attempt{
						{Provider: registry.ProviderAnthropic, Kind: adapter.KindRateLimited, Error: "429"},
						{Provider: registry.ProviderOpenAI, Kind: adapter.KindTimeout, Error: "deadline"},
					},
					Err: fmt.Errorf("%w: tried anthropic, openai", router.ErrAllProvidersExhausted),
				},
				Decision: loop.DecisionEscalate,
			},
		},
	}

	require.NoError(t, writer.WriteState(tk, st, time.Now().Add(-time.Second)))

	var run RunRecord
	readJSON(t, filepath.Join(writer.RunDir(), "run.json"), &run)
	assert.Equal(t, "run4", run.ID)
	assert.Equal(t, "alice", run.UserContext)
	assert.Equal(t, 2, run.Prompts)
	assert.Equal(t, 2, run.StepsRun)
	assert.True(t, run.WaitingForHumanReview)
	assert.Equal(t, adapter.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}, run.Usage)
	assert.GreaterOrEqual(t, run.DurationMillis, int64(1000))

	var first StepRecord
	readJSON(t, filepath.Join(writer.RunDir(), "steps", "001.json"), &first)
	assert.Equal(t, "coding", first.TaskType)
	assert.Equal(t, registry.ProviderAnthropic, first.Provider)
	require.Len(t, first.Attempts, 1)
	assert.Equal(t, int64(1500), first.Attempts[0].LatencyMillis)
	out, err := os.ReadFile(filepath.Join(writer.RunDir(), first.OutputRef))
	require.NoError(t, err)
	assert.Equal(t, "func f() {}", string(out))

	var second StepRecord
	readJSON(t, filepath.Join(writer.RunDir(), "steps", "002.json"), &second)
	assert.Contains(t, second.Error, "all providers exhausted")
	assert.Empty(t, second.OutputRef)
	assert.Equal(t, loop.DecisionEscalate, second.Decision)
	require.Len(t, second.Attempts, 2)
	assert.Equal(t, "rate_limited", second.Attempts[0].Kind)
}

func TestWriteStateRequiresState(t *testing.T) {
	writer, err := NewWriter(t.TempDir(), "run5")
	require.NoError(t, err)
	assert.Error(t, writer.WriteState(loop.Task{}, nil, time.Now()))
}

func readJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}

func assertPerm(t *testing.T, path string, expected os.FileMode) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat %s: %v", path, err)
	}
	if info.Mode().Perm() != expected {
		t.Fatalf("expected %s mode %o, got %o", path, expected, info.Mode().Perm())
	}
}
