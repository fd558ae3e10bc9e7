package adapter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zen-systems/mindgate/pkg/registry"
)

// MockAdapter returns deterministic responses for local runs and tests.
type MockAdapter struct {
	provider        registry.Provider
	responses       map[string]string
	defaultResponse string
	finishReason    string
	delay           time.Duration
	Usage           *Usage

	mu    sync.Mutex
	err   error
	calls []MockCall
}

// MockCall records one Generate invocation.
type MockCall struct {
	Model  string
	Prompt string
}

// MockOption configures a MockAdapter.
type MockOption func(*MockAdapter)

// WithMockProvider makes the mock impersonate a provider.
func WithMockProvider(p registry.Provider) MockOption {
	return func(a *MockAdapter) {
		a.provider = p
	}
}

// WithMockResponses sets canned responses keyed by exact prompt.
func WithMockResponses(responses map[string]string) MockOption {
	return func(a *MockAdapter) {
		a.responses = responses
	}
}

// WithMockDefault sets the prefix used for prompts without a canned response.
func WithMockDefault(response string) MockOption {
	return func(a *MockAdapter) {
		a.defaultResponse = response
	}
}

// WithMockError makes every call fail with err.
func WithMockError(err error) MockOption {
	return func(a *MockAdapter) {
		a.err = err
	}
}

// WithMockDelay makes each call wait d or until ctx is done.
func WithMockDelay(d time.Duration) MockOption {
	return func(a *MockAdapter) {
		a.delay = d
	}
}

// WithMockFinishReason sets the finish reason reported by every reply.
func WithMockFinishReason(reason string) MockOption {
	return func(a *MockAdapter) {
		a.finishReason = reason
	}
}

// NewMockAdapter creates a mock adapter with a default response.
func NewMockAdapter(opts ...MockOption) *MockAdapter {
	a := &MockAdapter{
		provider:        registry.ProviderMock,
		responses:       make(map[string]string),
		defaultResponse: "mock response:",
		finishReason:    FinishStop,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Provider returns the impersonated vendor.
func (a *MockAdapter) Provider() registry.Provider {
	return a.provider
}

// Models returns the list of supported mock models.
func (a *MockAdapter) Models() []string {
	return []string{"mock-1"}
}

// SetError changes the failure returned by subsequent calls; nil restores success.
func (a *MockAdapter) SetError(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err
}

// Calls returns a copy of the recorded invocations.
func (a *MockAdapter) Calls() []MockCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]MockCall, len(a.calls))
	copy(out, a.calls)
	return out
}

// Generate returns a deterministic completion for the prompt.
func (a *MockAdapter) Generate(ctx context.Context, model string, prompt string) (*Response, error) {
	if model == "" {
		model = "mock-1"
	}
	a.mu.Lock()
	a.calls = append(a.calls, MockCall{Model: model, Prompt: prompt})
	err := a.err
	a.mu.Unlock()

	if a.delay > 0 {
		timer := time.NewTimer(a.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, Wrap(a.provider, model, ctx.Err())
		case <-timer.C:
		}
	}
	if err != nil {
		return nil, Wrap(a.provider, model, err)
	}

	content, ok := a.responses[prompt]
	if !ok {
		content = fmt.Sprintf("%s\n%s", a.defaultResponse, prompt)
	}
	return &Response{
		Text:         content,
		Provider:     a.provider,
		Model:        model,
		FinishReason: a.finishReason,
		Usage:        a.Usage,
	}, nil
}
