// Package loop runs the bounded Observe→Plan→Act→Reflect cycle.
package loop

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/zen-systems/mindgate/pkg/escalate"
	"github.com/zen-systems/mindgate/pkg/memory"
	"github.com/zen-systems/mindgate/pkg/registry"
	"github.com/zen-systems/mindgate/pkg/router"
	"github.com/zen-systems/mindgate/pkg/task"
)

const (
	DefaultThreshold    = 0.7
	DefaultContextQuery = "relevant prior experience and user preferences"
	DefaultContextLimit = 5
	DefaultAgentName    = "mindgate"

	maxContextLine = 280
)

// Classifier labels a prompt.
type Classifier interface {
	Classify(prompt, hint string) task.Analysis
}

// Selector picks a model for an analysis.
type Selector interface {
	Select(analysis task.Analysis) (registry.ModelDescriptor, float64, error)
}

// Router executes a prompt against a model with fallback.
type Router interface {
	Route(ctx context.Context, model registry.ModelDescriptor, prompt string, timeout time.Duration) *router.Outcome
}

// Memory is the part of the memory store the loop uses.
type Memory interface {
	Memorize(ctx context.Context, e memory.Entry) (string, error)
	Recall(ctx context.Context, q memory.Query) []memory.Scored
}

// Loop is the confidence-gated controller. A Loop holds no per-task state
// and may run many tasks concurrently.
type Loop struct {
	classifier   Classifier
	selector     Selector
	router       Router
	memory       Memory
	escalator    escalate.Escalator
	evaluator    Evaluator
	threshold    float64
	timeout      time.Duration
	contextQuery string
	contextLimit int
	agentName    string
	logger       zerolog.Logger
	observer     Observer
}

// Observer is told about every completed step.
type Observer interface {
	ObserveStep(res StepResult)
}

// Option configures a Loop.
type Option func(*Loop)

// WithClassifier replaces the default heuristic classifier.
func WithClassifier(c Classifier) Option {
	return func(l *Loop) {
		l.classifier = c
	}
}

// WithMemory sets the memory store used for Observe and Reflect.
func WithMemory(m Memory) Option {
	return func(l *Loop) {
		l.memory = m
	}
}

// WithEscalator sets the human-review collaborator.
func WithEscalator(e escalate.Escalator) Option {
	return func(l *Loop) {
		l.escalator = e
	}
}

// WithEvaluator sets the confidence evaluator.
func WithEvaluator(e Evaluator) Option {
	return func(l *Loop) {
		l.evaluator = e
	}
}

// WithThreshold sets the confidence below which a step escalates.
func WithThreshold(t float64) Option {
	return func(l *Loop) {
		l.threshold = t
	}
}

// WithProviderTimeout bounds each provider attempt and each judge, memory
// and escalation call the loop makes.
func WithProviderTimeout(d time.Duration) Option {
	return func(l *Loop) {
		l.timeout = d
	}
}

// WithContextQuery sets the fixed recall query used while observing.
func WithContextQuery(q string) Option {
	return func(l *Loop) {
		if q != "" {
			l.contextQuery = q
		}
	}
}

// WithContextLimit sets how many memories feed the context.
func WithContextLimit(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.contextLimit = n
		}
	}
}

// WithAgentName sets the agent_source of memories the loop writes.
func WithAgentName(name string) Option {
	return func(l *Loop) {
		if name != "" {
			l.agentName = name
		}
	}
}

// WithLogger sets the loop logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

// WithObserver registers a step observer, e.g. a metrics recorder.
func WithObserver(o Observer) Option {
	return func(l *Loop) {
		l.observer = o
	}
}

// New creates a loop. Memory and escalation default to none; the evaluator
// defaults to Heuristic.
func New(selector Selector, rt Router, opts ...Option) *Loop {
	l := &Loop{
		classifier:   router.NewClassifier(),
		selector:     selector,
		router:       rt,
		escalator:    escalate.Log{Logger: zerolog.Nop()},
		evaluator:    Heuristic{},
		threshold:    DefaultThreshold,
		contextQuery: DefaultContextQuery,
		contextLimit: DefaultContextLimit,
		agentName:    DefaultAgentName,
		logger:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run executes at most steps cycles, one per queued prompt.
// Provider, memory and escalation failures degrade into the returned state;
// only a selection failure or cancellation is returned as an error.
func (l *Loop) Run(ctx context.Context, t Task, steps int) (*State, error) {
	state := &State{Phase: PhaseIdle}
	log := l.logger.With().Str("user_context", t.UserContext).Logger()
	escalated := false

	for i := 0; i < steps && i < len(t.Prompts); i++ {
		if err := ctx.Err(); err != nil {
			return state, err
		}
		state.Step++
		prompt := t.Prompts[i]
		res := StepResult{Step: state.Step, Prompt: prompt}

		state.Phase = PhaseObserving
		res.Context = l.observe(ctx, t.UserContext)

		if err := ctx.Err(); err != nil {
			return state, err
		}
		state.Phase = PhasePlanning
		res.Analysis = l.classifier.Classify(prompt, t.Hint)
		model, score, err := l.selector.Select(res.Analysis)
		if err != nil {
			state.Phase = PhaseDone
			return state, fmt.Errorf("step %d: select model: %w", state.Step, err)
		}
		log.Debug().
			Int("step", state.Step).
			Str("task_type", string(res.Analysis.Type)).
			Str("model", model.Name).
			Float64("score", score).
			Msg("planned")

		if err := ctx.Err(); err != nil {
			return state, err
		}
		state.Phase = PhaseActing
		outcome := l.router.Route(ctx, model, withContext(res.Context, prompt), l.timeout)
		if outcome == nil {
			outcome = &router.Outcome{ModelName: model.Name, Err: router.ErrAllProvidersExhausted}
		}
		outcome.Score = score
		res.Outcome = outcome
		if outcome.Err != nil && !errors.Is(outcome.Err, router.ErrAllProvidersExhausted) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				l.finish(state, res)
				return state, ctxErr
			}
		}

		state.Phase = PhaseReflecting
		confidence := 0.0
		if outcome.Err == nil {
			evalCtx, cancel := l.bounded(ctx)
			confidence = clamp01(l.evaluator.Evaluate(evalCtx, Evaluation{Prompt: prompt, Analysis: res.Analysis, Outcome: outcome}))
			cancel()
		}
		res.Confidence = confidence
		state.Confidence = confidence
		state.Reflected = true

		if confidence >= l.threshold {
			res.MemoryID, res.MemoryErr = l.remember(ctx, t.UserContext, memory.Entry{
				Content:    fmt.Sprintf("Task: %s\nResponse: %s", prompt, outcome.ResponseText),
				Type:       memory.TypeExperience,
				Importance: confidence,
				Tags:       []string{string(res.Analysis.Type), string(outcome.Provider)},
				Metadata: map[string]string{
					"model":           outcome.ModelName,
					"score":           strconv.FormatFloat(score, 'f', 3, 64),
					"providers_tried": providerList(outcome),
					"step":            strconv.Itoa(state.Step),
				},
			})
			if i+1 < steps && i+1 < len(t.Prompts) {
				res.Decision = DecisionContinue
			} else {
				res.Decision = DecisionTerminate
			}
			l.finish(state, res)
			log.Info().Int("step", state.Step).Float64("confidence", confidence).Str("decision", string(res.Decision)).Msg("reflected")
			continue
		}

		if outcome.Err != nil {
			res.MemoryID, res.MemoryErr = l.remember(ctx, t.UserContext, memory.Entry{
				Content:    fmt.Sprintf("Task: %s\nError: %v", prompt, outcome.Err),
				Type:       memory.TypeSystemError,
				Importance: 0.5,
				Tags:       []string{string(res.Analysis.Type), "provider_failure"},
				Metadata: map[string]string{
					"model":           model.Name,
					"providers_tried": providerList(outcome),
					"step":            strconv.Itoa(state.Step),
				},
			})
		}

		res.Decision = DecisionEscalate
		state.WaitingForHumanReview = true
		if !escalated {
			escalated = true
			state.ActionURL = l.escalate(ctx, t, state.Step, res, model)
		}
		l.finish(state, res)
		log.Warn().Int("step", state.Step).Float64("confidence", confidence).Float64("threshold", l.threshold).Msg("escalated; terminating")
		break
	}

	state.Phase = PhaseDone
	return state, nil
}

func (l *Loop) finish(state *State, res StepResult) {
	state.Steps = append(state.Steps, res)
	if l.observer != nil {
		l.observer.ObserveStep(res)
	}
}

// bounded derives a context limited by the loop timeout, if one is set.
func (l *Loop) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, l.timeout)
}

func (l *Loop) observe(ctx context.Context, userContext string) string {
	if l.memory == nil {
		return ""
	}
	ctx, cancel := l.bounded(ctx)
	defer cancel()
	results := l.memory.Recall(ctx, memory.Query{
		Text:        l.contextQuery,
		Limit:       l.contextLimit,
		UserContext: userContext,
	})
	if len(results) == 0 {
		return ""
	}
	var b strings.Builder
	for _, r := range results {
		line := strings.Join(strings.Fields(r.Content), " ")
		if runes := []rune(line); len(runes) > maxContextLine {
			line = string(runes[:maxContextLine]) + "..."
		}
		fmt.Fprintf(&b, "- [%s] %s\n", r.Type, line)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (l *Loop) remember(ctx context.Context, userContext string, e memory.Entry) (string, string) {
	if l.memory == nil {
		return "", ""
	}
	e.UserContext = userContext
	e.AgentSource = l.agentName
	ctx, cancel := l.bounded(ctx)
	defer cancel()
	id, err := l.memory.Memorize(ctx, e)
	if err != nil {
		l.logger.Warn().Err(err).Str("user_context", userContext).Str("memory_type", string(e.Type)).Msg("memorize failed; continuing")
		return "", err.Error()
	}
	return id, ""
}

func (l *Loop) escalate(ctx context.Context, t Task, step int, res StepResult, model registry.ModelDescriptor) string {
	if l.escalator == nil {
		return ""
	}
	ticket := escalate.Ticket{
		Prompt:      res.Prompt,
		UserContext: t.UserContext,
		TaskType:    string(res.Analysis.Type),
		Model:       model.Name,
		Confidence:  res.Confidence,
		Threshold:   l.threshold,
		Step:        step,
	}
	if o := res.Outcome; o != nil {
		ticket.Model = o.ModelName
		ticket.Provider = string(o.Provider)
		ticket.ResponseText = o.ResponseText
		for _, p := range o.ProviderChainTried {
			ticket.ProvidersTried = append(ticket.ProvidersTried, string(p))
		}
		if o.Err != nil {
			ticket.Error = o.Err.Error()
		}
	}
	ctx, cancel := l.bounded(ctx)
	defer cancel()
	url, err := l.escalator.Escalate(ctx, ticket)
	if err != nil {
		l.logger.Error().Err(err).Str("fingerprint", ticket.Fingerprint()).Msg("escalation failed")
		return ""
	}
	return url
}

func withContext(recalled, prompt string) string {
	if recalled == "" {
		return prompt
	}
	return "Relevant context from memory:\n" + recalled + "\n\nTask:\n" + prompt
}

func providerList(o *router.Outcome) string {
	names := make([]string, len(o.ProviderChainTried))
	for i, p := range o.ProviderChainTried {
		names[i] = string(p)
	}
	return strings.Join(names, ",")
}
