package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/zen-systems/mindgate/pkg/adapter"
	"github.com/zen-systems/mindgate/pkg/config"
	"github.com/zen-systems/mindgate/pkg/embedding"
	"github.com/zen-systems/mindgate/pkg/escalate"
	"github.com/zen-systems/mindgate/pkg/logging"
	"github.com/zen-systems/mindgate/pkg/loop"
	"github.com/zen-systems/mindgate/pkg/memory"
	"github.com/zen-systems/mindgate/pkg/metrics"
	"github.com/zen-systems/mindgate/pkg/registry"
	"github.com/zen-systems/mindgate/pkg/router"
)

// app holds everything a command needs, built once per invocation.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	registry *registry.Registry
	adapters adapter.Set
	router   *router.Router
	store    *memory.Store
	metrics  *metrics.Metrics
}

func loadApp() (*app, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	logger, err := logging.New(logging.Config{Level: level, Format: cfg.Log.Format})
	if err != nil {
		return nil, err
	}

	reg, err := loadRegistry(cfg)
	if err != nil {
		return nil, err
	}

	adapters, err := createAdapters(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create adapters: %w", err)
	}

	m := metrics.New()
	rt := router.NewRouter(adapters, reg,
		router.WithHierarchy(cfg.Hierarchy()...),
		router.WithDefaultTimeout(cfg.Loop.ProviderTimeout),
		router.WithLogger(logging.Component(logger, "router")),
		router.WithObserver(m),
	)

	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		adapters: adapters,
		router:   rt,
		metrics:  m,
	}, nil
}

func loadRegistry(cfg *config.Config) (*registry.Registry, error) {
	if cfg.RegistryPath == "" {
		return registry.Default(), nil
	}
	reg, err := registry.LoadFile(cfg.RegistryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load model registry: %w", err)
	}
	return reg, nil
}

// createAdapters builds an adapter for every provider with a credential.
func createAdapters(cfg *config.Config) (adapter.Set, error) {
	ctx := context.Background()
	adapters := adapter.Set{}

	if key := cfg.APIKey(registry.ProviderAnthropic); key != "" {
		a, err := adapter.NewAnthropicAdapter(key)
		if err != nil {
			return nil, fmt.Errorf("failed to create anthropic adapter: %w", err)
		}
		adapters[registry.ProviderAnthropic] = a
	}

	if key := cfg.APIKey(registry.ProviderOpenAI); key != "" {
		a, err := adapter.NewOpenAIAdapter(key)
		if err != nil {
			return nil, fmt.Errorf("failed to create openai adapter: %w", err)
		}
		adapters[registry.ProviderOpenAI] = a
	}

	if key := cfg.APIKey(registry.ProviderGoogle); key != "" {
		a, err := adapter.NewGoogleAdapter(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to create google adapter: %w", err)
		}
		adapters[registry.ProviderGoogle] = a
	}

	if key := cfg.APIKey(registry.ProviderDeepSeek); key != "" {
		a, err := adapter.NewDeepSeekAdapter(key)
		if err != nil {
			return nil, fmt.Errorf("failed to create deepseek adapter: %w", err)
		}
		adapters[registry.ProviderDeepSeek] = a
	}

	return adapters, nil
}

// openMemory connects the configured backend and embedder.
func (a *app) openMemory(ctx context.Context) (*memory.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	cfg := a.cfg

	apiKey := ""
	switch cfg.Embedding.Provider {
	case "genai":
		apiKey = cfg.APIKey(registry.ProviderGoogle)
	case "openai":
		apiKey = cfg.APIKey(registry.ProviderOpenAI)
	}
	emb, err := embedding.New(ctx, embedding.Config{
		Provider:  cfg.Embedding.Provider,
		Model:     cfg.Embedding.Model,
		BaseURL:   cfg.Embedding.OllamaURL,
		APIKey:    apiKey,
		Dimension: cfg.Embedding.Dimension,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	var backend memory.Backend
	switch cfg.Memory.Backend {
	case "sqlite":
		backend, err = memory.OpenSQLite(ctx, cfg.Memory.SQLitePath)
	case "qdrant":
		backend, err = memory.NewQdrant(memory.QdrantConfig{
			Host:       cfg.Memory.QdrantHost,
			Port:       cfg.Memory.QdrantPort,
			APIKey:     cfg.Memory.QdrantAPIKey,
			UseTLS:     cfg.Memory.QdrantTLS,
			Collection: cfg.Memory.QdrantCollection,
		})
	case "redis":
		backend, err = memory.NewRedis(ctx, memory.RedisConfig{
			Addr:          cfg.Memory.RedisAddr,
			Password:      cfg.Memory.RedisPassword,
			DB:            cfg.Memory.RedisDB,
			MaxPerContext: cfg.Memory.RedisMaxRecords,
		})
	default:
		backend = memory.NewInProcess()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s memory: %w", cfg.Memory.Backend, err)
	}

	a.store = memory.NewStore(backend, emb,
		memory.WithLogger(logging.Component(a.logger, "memory")),
		memory.WithMaxChars(cfg.Embedding.MaxChars),
		memory.WithAgentSource(cfg.Loop.AgentName),
	)
	return a.store, nil
}

func (a *app) escalator() escalate.Escalator {
	logger := logging.Component(a.logger, "escalate")
	repo := a.cfg.Escalation.GitHubRepo
	token := a.cfg.Credentials.GitHubToken
	if repo == "" || token == "" {
		return escalate.Log{Logger: logger}
	}
	gh, err := escalate.NewGitHub(token, repo, escalate.WithLabels(a.cfg.Escalation.Labels...))
	if err != nil {
		logger.Warn().Err(err).Msg("github escalation disabled")
		return escalate.Log{Logger: logger}
	}
	return gh
}

func (a *app) evaluator() (loop.Evaluator, error) {
	if a.cfg.Loop.Evaluator != "judge" {
		return loop.Heuristic{}, nil
	}
	name := a.cfg.Loop.JudgeModel
	if name == "" {
		return nil, fmt.Errorf("loop.judge_model is required for the judge evaluator")
	}
	m, ok := a.registry.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("judge model %q is not in the registry", name)
	}
	ad, ok := a.adapters.Get(m.Provider)
	if !ok {
		return nil, fmt.Errorf("judge model %q: no credentials for %s", m.Name, m.Provider)
	}
	return loop.Judge{
		Adapter:  ad,
		Model:    m.Name,
		Fallback: loop.Heuristic{},
		Logger:   logging.Component(a.logger, "judge"),
	}, nil
}

// newLoop assembles the reflection loop over the app's components.
func (a *app) newLoop(ctx context.Context) (*loop.Loop, error) {
	store, err := a.openMemory(ctx)
	if err != nil {
		return nil, err
	}
	eval, err := a.evaluator()
	if err != nil {
		return nil, err
	}
	lc := a.cfg.Loop
	return loop.New(a.registry, a.router,
		loop.WithClassifier(router.NewClassifier()),
		loop.WithMemory(store),
		loop.WithEscalator(a.escalator()),
		loop.WithEvaluator(eval),
		loop.WithThreshold(lc.ConfidenceThreshold),
		loop.WithProviderTimeout(lc.ProviderTimeout),
		loop.WithContextQuery(lc.ContextQuery),
		loop.WithContextLimit(lc.ContextLimit),
		loop.WithAgentName(lc.AgentName),
		loop.WithLogger(logging.Component(a.logger, "loop")),
		loop.WithObserver(a.metrics),
	), nil
}

// serveMetrics exposes /metrics in the background when addr is set.
func (a *app) serveMetrics(ctx context.Context, addr string) {
	if addr == "" {
		return
	}
	go func() {
		if err := a.metrics.Serve(ctx, addr); err != nil {
			a.logger.Warn().Err(err).Str("addr", addr).Msg("metrics server stopped")
		}
	}()
	a.logger.Info().Str("addr", addr).Msg("serving metrics")
}

func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("failed to close memory")
		}
	}
}
