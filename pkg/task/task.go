package task

import "strings"

// Type labels the dominant skill a prompt requires.
type Type string

const (
	TypeCoding       Type = "coding"
	TypeMathematical Type = "mathematical"
	TypeMultimodal   Type = "multimodal"
	TypeCreative     Type = "creative"
	TypeReasoning    Type = "reasoning"
	TypeFast         Type = "fast"
	TypeGeneral      Type = "general"
)

// HintAuto asks the classifier to decide the type from the prompt text.
const HintAuto = "auto"

// Priority is the fixed tie-break order used when two types score the same.
// Earlier entries win.
var Priority = []Type{
	TypeCoding,
	TypeMathematical,
	TypeMultimodal,
	TypeCreative,
	TypeReasoning,
	TypeFast,
	TypeGeneral,
}

// Rank returns the position of t in Priority, or len(Priority) if unknown.
func Rank(t Type) int {
	for i, p := range Priority {
		if p == t {
			return i
		}
	}
	return len(Priority)
}

// Valid reports whether t is one of the closed set of task types.
func (t Type) Valid() bool {
	return Rank(t) < len(Priority)
}

func (t Type) String() string {
	return string(t)
}

// Parse converts a caller supplied hint into a task type.
// ok is false for empty, "auto" and unknown hints.
func Parse(hint string) (Type, bool) {
	h := Type(strings.ToLower(strings.TrimSpace(hint)))
	if h == "" || string(h) == HintAuto {
		return "", false
	}
	if !h.Valid() {
		return "", false
	}
	return h, true
}

// Candidate captures a scored task type considered during classification.
type Candidate struct {
	Type     Type     `json:"task_type"`
	Score    int      `json:"score"`
	Triggers []string `json:"triggers,omitempty"`
}

// Analysis is the classifier's view of a single prompt. It is never persisted.
type Analysis struct {
	Type       Type        `json:"task_type"`
	RawPrompt  string      `json:"raw_prompt"`
	Complexity float64     `json:"estimated_complexity"`
	Confidence float64     `json:"confidence"`
	Hinted     bool        `json:"hinted,omitempty"`
	Candidates []Candidate `json:"candidates,omitempty"`
	Reasons    []string    `json:"reasons,omitempty"`
}
