package adapter

import (
	"context"

	"github.com/zen-systems/mindgate/pkg/registry"
)

// Adapter is the uniform client every LLM provider implements.
// The router treats the fallback hierarchy as an ordered list of Adapters.
type Adapter interface {
	// Generate sends a prompt to the model and returns its completion.
	// Implementations must honour ctx cancellation and deadlines.
	Generate(ctx context.Context, model string, prompt string) (*Response, error)

	// Provider returns the vendor this adapter talks to.
	Provider() registry.Provider

	// Models returns the list of supported models.
	Models() []string
}

// Set indexes adapters by provider.
type Set map[registry.Provider]Adapter

// NewSet builds a Set, skipping nil adapters.
func NewSet(adapters ...Adapter) Set {
	s := make(Set, len(adapters))
	for _, a := range adapters {
		if a == nil {
			continue
		}
		s[a.Provider()] = a
	}
	return s
}

// Get returns the adapter for a provider.
func (s Set) Get(p registry.Provider) (Adapter, bool) {
	a, ok := s[p]
	return a, ok && a != nil
}
