package loop

import (
	"github.com/zen-systems/mindgate/pkg/router"
	"github.com/zen-systems/mindgate/pkg/task"
)

// Phase is a position in the Observe→Plan→Act→Reflect cycle.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseObserving  Phase = "observing"
	PhasePlanning   Phase = "planning"
	PhaseActing     Phase = "acting"
	PhaseReflecting Phase = "reflecting"
	PhaseDone       Phase = "done"
)

// Decision is what Reflect concluded for a step.
type Decision string

const (
	DecisionContinue  Decision = "continue"
	DecisionEscalate  Decision = "escalate"
	DecisionTerminate Decision = "terminate"
)

// Task is the work handed to one loop invocation. Each step consumes the
// next queued prompt.
type Task struct {
	Prompts     []string `json:"prompts" yaml:"prompts"`
	UserContext string   `json:"user_context" yaml:"user_context"`
	Hint        string   `json:"hint,omitempty" yaml:"hint,omitempty"`
}

// StepResult records one full cycle.
type StepResult struct {
	Step       int             `json:"step"`
	Prompt     string          `json:"prompt"`
	Context    string          `json:"context,omitempty"`
	Analysis   task.Analysis   `json:"analysis"`
	Outcome    *router.Outcome `json:"outcome,omitempty"`
	Confidence float64         `json:"confidence"`
	Decision   Decision        `json:"decision"`
	MemoryID   string          `json:"memory_id,omitempty"`
	MemoryErr  string          `json:"memory_error,omitempty"`
}

// State is the mutable state of one loop invocation.
type State struct {
	Step                  int          `json:"step"`
	Phase                 Phase        `json:"phase"`
	Confidence            float64      `json:"confidence"`
	WaitingForHumanReview bool         `json:"waiting_for_human_review"`
	ActionURL             string       `json:"action_url,omitempty"`
	Reflected             bool         `json:"reflected"`
	Steps                 []StepResult `json:"steps,omitempty"`
}

// Last returns the most recent step, if any.
func (s *State) Last() (StepResult, bool) {
	if s == nil || len(s.Steps) == 0 {
		return StepResult{}, false
	}
	return s.Steps[len(s.Steps)-1], true
}
