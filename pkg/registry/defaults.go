package registry

// DefaultModels returns the built-in capability table used when no registry
// file is configured.
func DefaultModels() []ModelDescriptor {
	return []ModelDescriptor{
		{
			Name:     "claude-sonnet-4-20250514",
			Provider: ProviderAnthropic,
			Capabilities: map[Capability]float64{
				CapReasoning: 0.88, CapCreativity: 0.85, CapCode: 0.92, CapMultimodal: 0.75, CapLatency: 0.65,
			},
		},
		{
			Name:     "claude-opus-4-20250514",
			Provider: ProviderAnthropic,
			Capabilities: map[Capability]float64{
				CapReasoning: 0.95, CapCreativity: 0.9, CapCode: 0.93, CapMultimodal: 0.78, CapLatency: 0.4,
			},
		},
		{
			Name:     "gpt-5.2-instant",
			Provider: ProviderOpenAI,
			Capabilities: map[Capability]float64{
				CapReasoning: 0.7, CapCreativity: 0.75, CapCode: 0.7, CapMultimodal: 0.7, CapLatency: 0.95,
			},
		},
		{
			Name:     "gpt-5.2-thinking",
			Provider: ProviderOpenAI,
			Capabilities: map[Capability]float64{
				CapReasoning: 0.93, CapCreativity: 0.8, CapCode: 0.85, CapMultimodal: 0.8, CapLatency: 0.35,
			},
		},
		{
			Name:     "gpt-5.2-codex",
			Provider: ProviderOpenAI,
			Capabilities: map[Capability]float64{
				CapReasoning: 0.82, CapCreativity: 0.55, CapCode: 0.94, CapMultimodal: 0.4, CapLatency: 0.7,
			},
		},
		{
			Name:     "gpt-5.2-pro",
			Provider: ProviderOpenAI,
			Capabilities: map[Capability]float64{
				CapReasoning: 0.97, CapCreativity: 0.8, CapCode: 0.88, CapMultimodal: 0.8, CapLatency: 0.2,
			},
		},
		{
			Name:     "gemini-2.0-pro",
			Provider: ProviderGoogle,
			Capabilities: map[Capability]float64{
				CapReasoning: 0.86, CapCreativity: 0.8, CapCode: 0.82, CapMultimodal: 0.95, CapLatency: 0.6,
			},
		},
		{
			Name:     "gemini-2.0-flash",
			Provider: ProviderGoogle,
			Capabilities: map[Capability]float64{
				CapReasoning: 0.72, CapCreativity: 0.7, CapCode: 0.7, CapMultimodal: 0.85, CapLatency: 0.93,
			},
		},
		{
			Name:     "deepseek-chat",
			Provider: ProviderDeepSeek,
			Capabilities: map[Capability]float64{
				CapReasoning: 0.75, CapCreativity: 0.7, CapCode: 0.78, CapMultimodal: 0.1, CapLatency: 0.75,
			},
		},
		{
			Name:     "deepseek-coder",
			Provider: ProviderDeepSeek,
			Capabilities: map[Capability]float64{
				CapReasoning: 0.7, CapCreativity: 0.4, CapCode: 0.88, CapMultimodal: 0.05, CapLatency: 0.78,
			},
		},
		{
			Name:     "deepseek-reasoner",
			Provider: ProviderDeepSeek,
			Capabilities: map[Capability]float64{
				CapReasoning: 0.92, CapCreativity: 0.6, CapCode: 0.8, CapMultimodal: 0.05, CapLatency: 0.3,
			},
		},
	}
}

// DefaultAliases returns the default model aliases.
func DefaultAliases() map[string]string {
	return map[string]string{
		"fast":       "gpt-5.2-instant",
		"fast-code":  "gpt-5.2-codex",
		"thinking":   "gpt-5.2-thinking",
		"math":       "gpt-5.2-pro",
		"quality":    "claude-sonnet-4-20250514",
		"deep":       "claude-opus-4-20250514",
		"research":   "gemini-2.0-pro",
		"cheap":      "deepseek-chat",
		"cheap-code": "deepseek-coder",
		"reason":     "deepseek-reasoner",
	}
}

// Default returns the built-in registry.
func Default() *Registry {
	r, err := New(DefaultModels(), DefaultAliases())
	if err != nil {
		panic("registry: invalid built-in table: " + err.Error())
	}
	return r
}
