package router

import (
	"errors"
	"time"

	"github.com/zen-systems/mindgate/pkg/adapter"
	"github.com/zen-systems/mindgate/pkg/registry"
)

// ErrAllProvidersExhausted is reported when every provider in the chain failed.
var ErrAllProvidersExhausted = errors.New("all providers exhausted")

// Attempt records one step of the fallback chain.
type Attempt struct {
	Provider registry.Provider `json:"provider"`
	Model    string            `json:"model,omitempty"`
	Skipped  bool              `json:"skipped,omitempty"`
	Kind     adapter.ErrorKind `json:"kind,omitempty"`
	Error    string            `json:"error,omitempty"`
	// Transient marks failures a later call would likely survive. The
	// router still moves on to the next provider.
	Transient bool          `json:"transient,omitempty"`
	Latency   time.Duration `json:"latency"`
}

// Outcome is the result of routing one prompt.
type Outcome struct {
	ModelName          string              `json:"model_name"`
	Provider           registry.Provider   `json:"provider,omitempty"`
	Score              float64             `json:"score"`
	ResponseText       string              `json:"response_text"`
	FinishReason       string              `json:"finish_reason,omitempty"`
	Usage              *adapter.Usage      `json:"usage,omitempty"`
	ProviderChainTried []registry.Provider `json:"provider_chain_tried"`
	Attempts           []Attempt           `json:"attempts,omitempty"`
	Err                error               `json:"-"`
}

// Succeeded reports whether some provider answered.
func (o *Outcome) Succeeded() bool {
	return o != nil && o.Err == nil
}

// Exhausted reports whether the chain ran out without an answer.
func (o *Outcome) Exhausted() bool {
	return o != nil && errors.Is(o.Err, ErrAllProvidersExhausted)
}

// FallbackDepth is the number of providers that were called before the one
// that answered.
func (o *Outcome) FallbackDepth() int {
	if o == nil || len(o.ProviderChainTried) == 0 {
		return 0
	}
	return len(o.ProviderChainTried) - 1
}

// Truncated reports whether the answer stopped on a token limit.
func (o *Outcome) Truncated() bool {
	return o != nil && o.FinishReason == adapter.FinishLength
}
