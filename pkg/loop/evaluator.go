package loop

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"

	"github.com/zen-systems/mindgate/pkg/adapter"
	"github.com/zen-systems/mindgate/pkg/router"
	"github.com/zen-systems/mindgate/pkg/task"
)

// Evaluation is the input to a confidence evaluator.
type Evaluation struct {
	Prompt   string
	Analysis task.Analysis
	Outcome  *router.Outcome
}

// Evaluator scores a successful outcome in [0,1].
type Evaluator interface {
	Evaluate(ctx context.Context, e Evaluation) float64
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(ctx context.Context, e Evaluation) float64

// Evaluate calls f.
func (f EvaluatorFunc) Evaluate(ctx context.Context, e Evaluation) float64 {
	return f(ctx, e)
}

// Fixed always reports the same confidence.
type Fixed float64

// Evaluate returns the fixed value.
func (f Fixed) Evaluate(context.Context, Evaluation) float64 {
	return float64(f)
}

var refusalMarkers = []string{
	"i can't help", "i cannot help", "i can't assist", "i cannot assist",
	"i'm unable to", "i am unable to", "i'm not able to", "as an ai",
	"i won't be able to",
}

// Heuristic derives confidence from signals the providers report: the
// selection score, how far down the fallback chain the answer came from,
// truncation or filtering, and refusal phrasing.
type Heuristic struct{}

// Evaluate scores the outcome.
func (Heuristic) Evaluate(_ context.Context, e Evaluation) float64 {
	o := e.Outcome
	if o == nil || o.Err != nil {
		return 0
	}
	text := strings.TrimSpace(o.ResponseText)
	if text == "" {
		return 0
	}

	c := 0.5 + 0.5*o.Score
	c -= 0.1 * float64(o.FallbackDepth())

	switch o.FinishReason {
	case adapter.FinishLength:
		c -= 0.2
	case adapter.FinishFiltered:
		c -= 0.5
	}

	lower := strings.ToLower(text)
	for _, m := range refusalMarkers {
		if strings.Contains(lower, m) {
			c -= 0.4
			break
		}
	}
	if len([]rune(text)) < 20 && e.Analysis.Complexity > 0.5 {
		c -= 0.2
	}
	if !e.Analysis.Hinted && len(e.Analysis.Candidates) > 0 && e.Analysis.Confidence < 0.3 {
		c -= 0.05
	}
	return clamp01(c)
}

// Judge asks a model to grade the answer and falls back to another
// evaluator when the verdict cannot be obtained.
type Judge struct {
	Adapter  adapter.Adapter
	Model    string
	Fallback Evaluator
	Logger   zerolog.Logger
}

const judgePrompt = `You are grading an AI assistant's answer.

Task:
%s

Answer:
%s

Return ONLY JSON: {"confidence": <number between 0 and 1>, "reason": "<short reason>"}
confidence is the probability that the answer fully and correctly solves the task.`

type verdict struct {
	Confidence *float64 `json:"confidence"`
	Reason     string   `json:"reason"`
}

// Evaluate calls the judge model.
func (j Judge) Evaluate(ctx context.Context, e Evaluation) float64 {
	if e.Outcome == nil || e.Outcome.Err != nil {
		return 0
	}
	fallback := j.Fallback
	if fallback == nil {
		fallback = Heuristic{}
	}
	if j.Adapter == nil {
		return fallback.Evaluate(ctx, e)
	}

	resp, err := j.Adapter.Generate(ctx, j.Model, buildJudgePrompt(e))
	if err != nil {
		j.Logger.Warn().Err(err).Msg("judge call failed; using fallback evaluator")
		return fallback.Evaluate(ctx, e)
	}
	v, err := parseVerdict(resp.Text)
	if err != nil {
		j.Logger.Warn().Err(err).Msg("judge verdict invalid; using fallback evaluator")
		return fallback.Evaluate(ctx, e)
	}
	return *v.Confidence
}

func buildJudgePrompt(e Evaluation) string {
	return fmt.Sprintf(judgePrompt, e.Prompt, e.Outcome.ResponseText)
}

func parseVerdict(content string) (*verdict, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var v verdict
	if err := json.Unmarshal([]byte(content), &v); err != nil {
		return nil, err
	}
	if v.Confidence == nil {
		return nil, fmt.Errorf("missing confidence")
	}
	if *v.Confidence < 0 || *v.Confidence > 1 || math.IsNaN(*v.Confidence) {
		return nil, fmt.Errorf("confidence %v out of range", *v.Confidence)
	}
	return &v, nil
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
