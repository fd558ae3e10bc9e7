package registry

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ErrNoModelAvailable is returned when selection runs against an empty registry.
var ErrNoModelAvailable = errors.New("no model available")

// Provider identifies an LLM vendor.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderGoogle    Provider = "google"
	ProviderDeepSeek  Provider = "deepseek"
	ProviderMock      Provider = "mock"
)

// Capability is one dimension of a model's capability profile.
type Capability string

const (
	CapReasoning  Capability = "reasoning"
	CapCreativity Capability = "creativity"
	CapCode       Capability = "code"
	CapMultimodal Capability = "multimodal"
	CapLatency    Capability = "latency"
)

// Capabilities lists every dimension in a fixed order.
var Capabilities = []Capability{CapReasoning, CapCreativity, CapCode, CapMultimodal, CapLatency}

// Known reports whether c is one of Capabilities.
func (c Capability) Known() bool {
	for _, k := range Capabilities {
		if c == k {
			return true
		}
	}
	return false
}

// ModelDescriptor is the static profile of a known model.
type ModelDescriptor struct {
	Name         string                 `json:"name"`
	Provider     Provider               `json:"provider"`
	Capabilities map[Capability]float64 `json:"capability_scores"`
}

// Score returns the model's rating along one dimension, clamped to [0,1].
func (m ModelDescriptor) Score(c Capability) float64 {
	return clamp01(m.Capabilities[c])
}

// Vector returns the capability profile in Capabilities order.
func (m ModelDescriptor) Vector() []float64 {
	v := make([]float64, len(Capabilities))
	for i, c := range Capabilities {
		v[i] = m.Score(c)
	}
	return v
}

// Registry is the ordered, read-only set of known models.
// Declaration order is significant: it breaks selection ties.
type Registry struct {
	models  []ModelDescriptor
	aliases map[string]string
}

// New builds a registry from descriptors in declaration order.
func New(models []ModelDescriptor, aliases map[string]string) (*Registry, error) {
	r := &Registry{
		models:  make([]ModelDescriptor, 0, len(models)),
		aliases: make(map[string]string, len(aliases)),
	}
	seen := make(map[string]bool, len(models))
	for i, m := range models {
		m.Name = strings.TrimSpace(m.Name)
		if m.Name == "" {
			return nil, fmt.Errorf("model %d: name is required", i)
		}
		if m.Provider == "" {
			return nil, fmt.Errorf("model %q: provider is required", m.Name)
		}
		if seen[m.Name] {
			return nil, fmt.Errorf("model %q declared twice", m.Name)
		}
		seen[m.Name] = true

		caps := make(map[Capability]float64, len(m.Capabilities))
		for c, v := range m.Capabilities {
			if !c.Known() {
				return nil, fmt.Errorf("model %q: unknown capability %q", m.Name, c)
			}
			if v < 0 || v > 1 || math.IsNaN(v) {
				return nil, fmt.Errorf("model %q: capability %s=%v outside [0,1]", m.Name, c, v)
			}
			caps[c] = v
		}
		m.Capabilities = caps
		r.models = append(r.models, m)
	}
	for alias, canonical := range aliases {
		if !seen[canonical] {
			return nil, fmt.Errorf("alias %q points at unknown model %q", alias, canonical)
		}
		r.aliases[alias] = canonical
	}
	return r, nil
}

// Models returns a copy of the descriptors in declaration order.
func (r *Registry) Models() []ModelDescriptor {
	if r == nil {
		return nil
	}
	out := make([]ModelDescriptor, len(r.models))
	copy(out, r.models)
	return out
}

// Len returns the number of registered models.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.models)
}

// Lookup finds a model by canonical name or alias.
func (r *Registry) Lookup(name string) (ModelDescriptor, bool) {
	if r == nil {
		return ModelDescriptor{}, false
	}
	name = r.Resolve(name)
	for _, m := range r.models {
		if m.Name == name {
			return m, true
		}
	}
	return ModelDescriptor{}, false
}

// Resolve returns the canonical model name for an alias.
// If the input is not an alias, it returns the input unchanged.
func (r *Registry) Resolve(modelOrAlias string) string {
	if r == nil || r.aliases == nil {
		return modelOrAlias
	}
	if canonical, ok := r.aliases[modelOrAlias]; ok {
		return canonical
	}
	return modelOrAlias
}

// Aliases returns a copy of the aliases map.
func (r *Registry) Aliases() map[string]string {
	out := make(map[string]string)
	if r == nil {
		return out
	}
	for k, v := range r.aliases {
		out[k] = v
	}
	return out
}

// Providers returns the distinct providers in first-declaration order.
func (r *Registry) Providers() []Provider {
	if r == nil {
		return nil
	}
	var out []Provider
	seen := make(map[Provider]bool)
	for _, m := range r.models {
		if !seen[m.Provider] {
			seen[m.Provider] = true
			out = append(out, m.Provider)
		}
	}
	return out
}

// ByProvider returns the provider's models in declaration order.
func (r *Registry) ByProvider(p Provider) []ModelDescriptor {
	if r == nil {
		return nil
	}
	var out []ModelDescriptor
	for _, m := range r.models {
		if m.Provider == p {
			out = append(out, m)
		}
	}
	return out
}

type registryFile struct {
	Models  []modelEntry      `yaml:"models" toml:"models"`
	Aliases map[string]string `yaml:"aliases" toml:"aliases"`
}

type modelEntry struct {
	Name         string             `yaml:"name" toml:"name"`
	Provider     string             `yaml:"provider" toml:"provider"`
	Capabilities map[string]float64 `yaml:"capabilities" toml:"capabilities"`
}

// LoadFile reads a registry from a YAML, JSON or TOML file.
// JSON is parsed by the YAML decoder since YAML is a superset of it.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file registryFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	models := make([]ModelDescriptor, 0, len(file.Models))
	for _, entry := range file.Models {
		caps := make(map[Capability]float64, len(entry.Capabilities))
		for k, v := range entry.Capabilities {
			caps[Capability(strings.ToLower(strings.TrimSpace(k)))] = v
		}
		models = append(models, ModelDescriptor{
			Name:         entry.Name,
			Provider:     Provider(strings.ToLower(strings.TrimSpace(entry.Provider))),
			Capabilities: caps,
		})
	}
	return New(models, file.Aliases)
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
