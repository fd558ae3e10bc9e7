package loop

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zen-systems/mindgate/pkg/adapter"
	"github.com/zen-systems/mindgate/pkg/registry"
	"github.com/zen-systems/mindgate/pkg/router"
	"github.com/zen-systems/mindgate/pkg/task"
)

func outcome(text string, score float64, chain ...registry.Provider) *router.Outcome {
	if len(chain) == 0 {
		chain = []registry.Provider{registry.ProviderAnthropic}
	}
	return &router.Outcome{ResponseText: text, Score: score, FinishReason: adapter.FinishStop, ProviderChainTried: chain}
}

func TestHeuristic(t *testing.T) {
	ctx := context.Background()
	h := Heuristic{}
	good := "Here is a complete answer with enough detail to be useful."

	clean := h.Evaluate(ctx, Evaluation{Outcome: outcome(good, 0.9)})
	assert.InDelta(t, 0.95, clean, 1e-9)

	fallback := h.Evaluate(ctx, Evaluation{Outcome: outcome(good, 0.9, registry.ProviderAnthropic, registry.ProviderOpenAI)})
	assert.Less(t, fallback, clean)

	truncated := outcome(good, 0.9)
	truncated.FinishReason = adapter.FinishLength
	assert.Less(t, h.Evaluate(ctx, Evaluation{Outcome: truncated}), clean)

	refusal := h.Evaluate(ctx, Evaluation{Outcome: outcome("I'm unable to help with that request, sorry.", 0.9)})
	assert.Less(t, refusal, 0.7)

	short := h.Evaluate(ctx, Evaluation{Outcome: outcome("42", 0.9), Analysis: task.Analysis{Complexity: 0.8}})
	assert.Less(t, short, clean)

	assert.Equal(t, 0.0, h.Evaluate(ctx, Evaluation{Outcome: outcome("   ", 1)}))
	assert.Equal(t, 0.0, h.Evaluate(ctx, Evaluation{Outcome: &router.Outcome{Err: router.ErrAllProvidersExhausted}}))
	assert.Equal(t, 0.0, h.Evaluate(ctx, Evaluation{}))
}

func TestParseVerdict(t *testing.T) {
	v, err := parseVerdict("```json\n{\"confidence\": 0.82, \"reason\": \"ok\"}\n```")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *v.Confidence != 0.82 {
		t.Fatalf("confidence mismatch: %v", *v.Confidence)
	}

	for _, bad := range []string{"not json", `{"reason":"x"}`, `{"confidence": 1.5}`} {
		if _, err := parseVerdict(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestJudge(t *testing.T) {
	ctx := context.Background()
	eval := Evaluation{Prompt: "2+2?", Outcome: outcome("4, because two plus two is four.", 0.8)}

	ok := adapter.NewMockAdapter(adapter.WithMockResponses(map[string]string{
		buildJudgePrompt(eval): `{"confidence": 0.33, "reason": "unsure"}`,
	}))
	assert.InDelta(t, 0.33, Judge{Adapter: ok, Model: "mock-1"}.Evaluate(ctx, eval), 1e-9)

	failing := adapter.NewMockAdapter(adapter.WithMockError(errors.New("down")))
	got := Judge{Adapter: failing, Fallback: Fixed(0.6)}.Evaluate(ctx, eval)
	assert.Equal(t, 0.6, got)

	garbage := adapter.NewMockAdapter(adapter.WithMockDefault("no json here"))
	got = Judge{Adapter: garbage, Fallback: Fixed(0.2)}.Evaluate(ctx, eval)
	assert.Equal(t, 0.2, got)

	assert.Equal(t, 0.0, Judge{Adapter: ok}.Evaluate(ctx, Evaluation{Outcome: &router.Outcome{Err: router.ErrAllProvidersExhausted}}))
}
