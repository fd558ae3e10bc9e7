package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/zen-systems/mindgate/pkg/adapter"
	"github.com/zen-systems/mindgate/pkg/registry"
)

// DefaultHierarchy is the fixed provider fallback order.
var DefaultHierarchy = []registry.Provider{
	registry.ProviderAnthropic,
	registry.ProviderOpenAI,
	registry.ProviderGoogle,
	registry.ProviderDeepSeek,
}

// DefaultTimeout bounds a single provider call when the caller passes zero.
const DefaultTimeout = 60 * time.Second

// Router sends prompts to providers, falling back along a fixed hierarchy.
// Each provider is tried at most once per Route call.
type Router struct {
	adapters  adapter.Set
	registry  *registry.Registry
	hierarchy []registry.Provider
	timeout   time.Duration
	logger    zerolog.Logger
	observer  Observer
}

// Observer is told about every attempt, including skipped providers.
type Observer interface {
	ObserveAttempt(a Attempt)
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithHierarchy replaces the fallback order.
func WithHierarchy(providers ...registry.Provider) RouterOption {
	return func(r *Router) {
		if len(providers) > 0 {
			r.hierarchy = append([]registry.Provider(nil), providers...)
		}
	}
}

// WithDefaultTimeout sets the per-attempt timeout used when Route gets zero.
func WithDefaultTimeout(d time.Duration) RouterOption {
	return func(r *Router) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithLogger sets the router logger.
func WithLogger(l zerolog.Logger) RouterOption {
	return func(r *Router) {
		r.logger = l
	}
}

// WithObserver registers an attempt observer, e.g. a metrics recorder.
func WithObserver(o Observer) RouterOption {
	return func(r *Router) {
		r.observer = o
	}
}

// NewRouter creates a router over the configured adapters.
// The registry is used to find an equivalent model on fallback providers.
func NewRouter(adapters adapter.Set, reg *registry.Registry, opts ...RouterOption) *Router {
	r := &Router{
		adapters:  adapters,
		registry:  reg,
		hierarchy: append([]registry.Provider(nil), DefaultHierarchy...),
		timeout:   DefaultTimeout,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Hierarchy returns the fallback order.
func (r *Router) Hierarchy() []registry.Provider {
	return append([]registry.Provider(nil), r.hierarchy...)
}

// Chain returns the providers tried for model: its own provider first, then
// the rest of the hierarchy in order.
func (r *Router) Chain(model registry.ModelDescriptor) []registry.Provider {
	chain := []registry.Provider{model.Provider}
	for _, p := range r.hierarchy {
		if p != model.Provider {
			chain = append(chain, p)
		}
	}
	return chain
}

// Route sends prompt to model's provider and falls back on failure.
// The outcome always carries the chain of providers that were called; Err is
// ErrAllProvidersExhausted when none answered, or the context error if ctx
// ended first.
func (r *Router) Route(ctx context.Context, model registry.ModelDescriptor, prompt string, timeout time.Duration) *Outcome {
	if timeout <= 0 {
		timeout = r.timeout
	}
	out := &Outcome{ModelName: model.Name}
	var lastErr error

	for i, p := range r.Chain(model) {
		if err := ctx.Err(); err != nil {
			out.Err = err
			return out
		}

		a, ok := r.adapters.Get(p)
		if !ok {
			r.record(out, Attempt{Provider: p, Skipped: true, Error: "no adapter configured"})
			continue
		}

		target := model
		if i > 0 {
			eq, ok := r.registry.Equivalent(model, p)
			if !ok {
				r.record(out, Attempt{Provider: p, Skipped: true, Error: "no equivalent model"})
				continue
			}
			target = eq
		}

		attempt := Attempt{Provider: p, Model: target.Name}
		start := time.Now()
		resp, err := r.call(ctx, a, target, prompt, timeout)
		attempt.Latency = time.Since(start)
		out.ProviderChainTried = append(out.ProviderChainTried, p)

		if err == nil {
			r.record(out, attempt)
			out.ModelName = target.Name
			out.Provider = p
			out.ResponseText = resp.Text
			out.FinishReason = resp.FinishReason
			out.Usage = resp.Usage
			if i > 0 {
				r.logger.Info().
					Str("model", model.Name).
					Str("fallback_model", target.Name).
					Str("provider", string(p)).
					Msg("fallback provider answered")
			}
			return out
		}

		attempt.Kind = adapter.Classify(err)
		attempt.Error = err.Error()
		attempt.Transient = adapter.IsTransient(err)
		r.record(out, attempt)
		lastErr = err

		r.logger.Warn().
			Err(err).
			Str("provider", string(p)).
			Str("model", target.Name).
			Str("kind", string(attempt.Kind)).
			Bool("transient", attempt.Transient).
			Msg("provider attempt failed")

		if ctxErr := ctx.Err(); ctxErr != nil {
			out.Err = ctxErr
			return out
		}
	}

	if lastErr != nil {
		out.Err = fmt.Errorf("%w: tried %s: %v", ErrAllProvidersExhausted, joinProviders(out.ProviderChainTried), lastErr)
	} else {
		out.Err = fmt.Errorf("%w: no provider configured", ErrAllProvidersExhausted)
	}
	r.logger.Error().
		Str("model", model.Name).
		Int("attempts", len(out.Attempts)).
		Msg("all providers exhausted")
	return out
}

func (r *Router) record(out *Outcome, a Attempt) {
	out.Attempts = append(out.Attempts, a)
	if r.observer != nil {
		r.observer.ObserveAttempt(a)
	}
}

func (r *Router) call(ctx context.Context, a adapter.Adapter, model registry.ModelDescriptor, prompt string, timeout time.Duration) (*adapter.Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := a.Generate(callCtx, model.Name, prompt)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() == context.DeadlineExceeded {
			return nil, &adapter.ProviderError{Provider: a.Provider(), Model: model.Name, Kind: adapter.KindTimeout, Err: err}
		}
		return nil, err
	}
	if resp == nil || strings.TrimSpace(resp.Text) == "" {
		return nil, &adapter.ProviderError{
			Provider: a.Provider(),
			Model:    model.Name,
			Kind:     adapter.KindMalformedResponse,
			Err:      adapter.ErrMalformedResponse,
		}
	}
	return resp, nil
}

func joinProviders(ps []registry.Provider) string {
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = string(p)
	}
	return strings.Join(names, ",")
}
