package router

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/zen-systems/mindgate/pkg/task"
)

// shortPromptWords is the length at or below which a prompt votes for "fast".
const shortPromptWords = 6

// Classifier maps prompts to task types with lexical heuristics.
// It never fails and holds no mutable state, so one instance may be shared.
type Classifier struct {
	rules []Rule
}

// NewClassifier creates a classifier; with no rules it uses DefaultRules.
func NewClassifier(rules ...Rule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &Classifier{rules: rules}
}

var defaultClassifier = NewClassifier()

// Classify analyses a prompt with the default rules.
func Classify(prompt, hint string) task.Analysis {
	return defaultClassifier.Classify(prompt, hint)
}

// Classify determines the task type for a prompt.
// A valid explicit hint short-circuits the heuristics; "" and "auto" do not.
func (c *Classifier) Classify(prompt, hint string) task.Analysis {
	analysis := task.Analysis{RawPrompt: prompt}

	if t, ok := task.Parse(hint); ok {
		analysis.Type = t
		analysis.Hinted = true
		analysis.Confidence = 1
		analysis.Complexity = estimateComplexity(prompt, t, 0)
		analysis.Reasons = []string{fmt.Sprintf("caller hint %q", hint)}
		return analysis
	}

	candidates := c.score(prompt)
	if len(candidates) == 0 {
		analysis.Type = task.TypeGeneral
		analysis.Complexity = estimateComplexity(prompt, task.TypeGeneral, 0)
		analysis.Reasons = []string{"no markers matched; using general"}
		return analysis
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score == candidates[j].Score {
			return task.Rank(candidates[i].Type) < task.Rank(candidates[j].Type)
		}
		return candidates[i].Score > candidates[j].Score
	})

	totalMatches := 0
	for _, cand := range candidates {
		totalMatches += cand.Score
	}
	if len(candidates) > 3 {
		candidates = candidates[:3]
	}

	topScore := candidates[0].Score
	secondScore := 0
	if len(candidates) > 1 {
		secondScore = candidates[1].Score
	}

	analysis.Type = candidates[0].Type
	analysis.Candidates = candidates
	analysis.Confidence = heuristicConfidence(topScore, secondScore)
	analysis.Complexity = estimateComplexity(prompt, analysis.Type, totalMatches)
	analysis.Reasons = []string{fmt.Sprintf("top_score=%d second_score=%d", topScore, secondScore)}
	return analysis
}

func (c *Classifier) score(prompt string) []task.Candidate {
	promptLower := strings.ToLower(prompt)
	wordCount := len(strings.Fields(prompt))

	var candidates []task.Candidate
	for _, rule := range c.rules {
		var matched []string
		score := 0
		for _, trig := range rule.Triggers {
			if containsTrigger(promptLower, strings.ToLower(trig)) {
				matched = append(matched, trig)
				score++
			}
		}
		for _, pattern := range rule.Patterns {
			if pattern.MatchString(prompt) {
				matched = append(matched, pattern.String())
				score += patternWeight
			}
		}
		if rule.Type == task.TypeFast && wordCount > 0 && wordCount <= shortPromptWords {
			matched = append(matched, "short prompt")
			score++
		}
		if score == 0 {
			continue
		}
		candidates = append(candidates, task.Candidate{
			Type:     rule.Type,
			Score:    score,
			Triggers: matched,
		})
	}
	return candidates
}

// heuristicConfidence blends the winning margin with the absolute match strength.
func heuristicConfidence(topScore, secondScore int) float64 {
	margin := float64(topScore-secondScore) / float64(maxInt(topScore, 1))
	strength := float64(minInt(topScore, 5)) / 5.0
	confidence := 0.75*margin + 0.25*strength
	if topScore >= 2 && secondScore == 0 {
		confidence = math.Max(confidence, 0.9)
	}
	if topScore >= 3 {
		confidence = math.Min(confidence+0.15, 1.0)
	}
	return confidence
}

// estimateComplexity produces a coarse [0,1] difficulty estimate from prompt
// length, line structure, marker density and the task type.
func estimateComplexity(prompt string, t task.Type, matches int) float64 {
	words := len(strings.Fields(prompt))
	lines := strings.Count(strings.TrimSpace(prompt), "\n") + 1
	questions := strings.Count(prompt, "?")

	c := 0.4 * math.Min(float64(words)/200.0, 1)
	c += 0.1 * math.Min(float64(lines-1)/20.0, 1)
	c += 0.2 * math.Min(float64(matches)/6.0, 1)
	c += 0.05 * math.Min(float64(questions)/3.0, 1)

	switch t {
	case task.TypeReasoning, task.TypeMathematical, task.TypeCoding:
		c += 0.25
	case task.TypeMultimodal, task.TypeCreative:
		c += 0.15
	case task.TypeGeneral:
		c += 0.1
	}
	return math.Max(0, math.Min(c, 1))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
