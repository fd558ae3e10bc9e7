package router

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zen-systems/mindgate/pkg/task"
)

func TestClassify_Heuristics(t *testing.T) {
	tests := []struct {
		name   string
		prompt string
		want   task.Type
	}{
		{"coding keywords", "Write a Python function to reverse a linked list", task.TypeCoding},
		{"code fence", "What does this do?\n```\nx := 1\n```", task.TypeCoding},
		{"math", "Solve the equation 3x + 5 = 20 for the unknown value", task.TypeMathematical},
		{"arithmetic pattern", "what is 17 * 23 exactly, show working please", task.TypeMathematical},
		{"multimodal", "Describe this image: cat.png", task.TypeMultimodal},
		{"creative beats fast on tie", "Write a haiku about autumn", task.TypeCreative},
		{"reasoning", "Why is the sky blue? Explain it to me step by step please", task.TypeReasoning},
		{"fast", "tl;dr this article quickly", task.TypeFast},
		{"short prompt", "capital of France?", task.TypeFast},
		{"coding wins priority tie", "code a poem", task.TypeCoding},
		{"general", "hello there my friend how are you doing on this fine day", task.TypeGeneral},
		{"empty", "", task.TypeGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.prompt, "")
			assert.Equal(t, tt.want, got.Type, "candidates: %+v", got.Candidates)
			assert.Equal(t, tt.prompt, got.RawPrompt)
			assert.False(t, got.Hinted)
			assert.GreaterOrEqual(t, got.Complexity, 0.0)
			assert.LessOrEqual(t, got.Complexity, 1.0)
			assert.GreaterOrEqual(t, got.Confidence, 0.0)
			assert.LessOrEqual(t, got.Confidence, 1.0)
		})
	}
}

func TestClassify_HintWins(t *testing.T) {
	got := Classify("Write a Python function", "creative")
	assert.Equal(t, task.TypeCreative, got.Type)
	assert.True(t, got.Hinted)
	assert.Equal(t, 1.0, got.Confidence)
}

func TestClassify_AutoAndUnknownHintsIgnored(t *testing.T) {
	for _, hint := range []string{"", "auto", "bogus"} {
		got := Classify("Write a Python function", hint)
		if got.Type != task.TypeCoding {
			t.Fatalf("hint %q: expected coding, got %s", hint, got.Type)
		}
		if got.Hinted {
			t.Fatalf("hint %q should not be treated as a hint", hint)
		}
	}
}

func TestClassify_Deterministic(t *testing.T) {
	prompt := "Explain why this Go function panics and calculate its complexity"
	first := Classify(prompt, "")
	for i := 0; i < 20; i++ {
		got := Classify(prompt, "")
		if got.Type != first.Type || got.Confidence != first.Confidence || got.Complexity != first.Complexity {
			t.Fatalf("run %d differs: %+v vs %+v", i, got, first)
		}
	}
}

func TestClassify_ComplexityGrowsWithLength(t *testing.T) {
	short := Classify("explain recursion", "reasoning")
	long := Classify("explain recursion "+repeatWords("and its trade-offs", 60), "reasoning")
	assert.Greater(t, long.Complexity, short.Complexity)
}

func TestClassify_CustomRules(t *testing.T) {
	c := NewClassifier(Rule{Type: task.TypeCreative, Triggers: []string{"tardigrade"}})
	got := c.Classify("tell me about the tardigrade", "")
	assert.Equal(t, task.TypeCreative, got.Type)
	assert.Equal(t, 1, got.Candidates[0].Score)
}

func TestContainsTrigger(t *testing.T) {
	tests := []struct {
		prompt  string
		trigger string
		want    bool
	}{
		{"fix the bug", "bug", true},
		{"debugging the api", "debug", false},
		{"debugger then debug", "debug", true},
		{"step by step", "step by step", true},
		{"tl;dr please", "tl;dr", true},
		{"anything", "", false},
	}
	for _, tt := range tests {
		if got := containsTrigger(tt.prompt, tt.trigger); got != tt.want {
			t.Errorf("containsTrigger(%q, %q) = %v, want %v", tt.prompt, tt.trigger, got, tt.want)
		}
	}
}

func repeatWords(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += " " + s
	}
	return out
}
