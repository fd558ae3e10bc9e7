package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/zen-systems/mindgate/pkg/registry"
)

// EnvPrefix prefixes environment overrides, e.g. MINDGATE_LOOP_MAX_STEPS.
const EnvPrefix = "MINDGATE"

// Config holds the application configuration.
type Config struct {
	RegistryPath string           `mapstructure:"registry_path"`
	TraceDir     string           `mapstructure:"trace_dir"`
	MetricsAddr  string           `mapstructure:"metrics_addr"`
	Fallback     []string         `mapstructure:"fallback"`
	Loop         LoopConfig       `mapstructure:"loop"`
	Memory       MemoryConfig     `mapstructure:"memory"`
	Embedding    EmbeddingConfig  `mapstructure:"embedding"`
	Escalation   EscalationConfig `mapstructure:"escalation"`
	Log          LogConfig        `mapstructure:"log"`

	// Credentials come from the process environment only.
	Credentials Credentials `mapstructure:"-"`
	ConfigDir   string      `mapstructure:"-"`
}

// LoopConfig tunes the reflection loop.
type LoopConfig struct {
	ConfidenceThreshold float64       `mapstructure:"confidence_threshold"`
	MaxSteps            int           `mapstructure:"max_steps"`
	ProviderTimeout     time.Duration `mapstructure:"provider_timeout"`
	ContextQuery        string        `mapstructure:"context_query"`
	ContextLimit        int           `mapstructure:"context_limit"`
	AgentName           string        `mapstructure:"agent_name"`
	Evaluator           string        `mapstructure:"evaluator"`
	JudgeModel          string        `mapstructure:"judge_model"`
	Parallelism         int           `mapstructure:"parallelism"`
}

// MemoryConfig selects the memory backend.
type MemoryConfig struct {
	Backend          string `mapstructure:"backend"`
	SQLitePath       string `mapstructure:"sqlite_path"`
	QdrantHost       string `mapstructure:"qdrant_host"`
	QdrantPort       int    `mapstructure:"qdrant_port"`
	QdrantCollection string `mapstructure:"qdrant_collection"`
	QdrantAPIKey     string `mapstructure:"qdrant_api_key"`
	QdrantTLS        bool   `mapstructure:"qdrant_tls"`
	RedisAddr        string `mapstructure:"redis_addr"`
	RedisPassword    string `mapstructure:"redis_password"`
	RedisDB          int    `mapstructure:"redis_db"`
	RedisMaxRecords  int64  `mapstructure:"redis_max_records"`
}

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	Provider  string `mapstructure:"provider"`
	Model     string `mapstructure:"model"`
	MaxChars  int    `mapstructure:"max_chars"`
	OllamaURL string `mapstructure:"ollama_url"`
	Dimension int    `mapstructure:"dimension"`
}

// EscalationConfig selects where low-confidence outcomes go.
type EscalationConfig struct {
	GitHubRepo string   `mapstructure:"github_repo"`
	Labels     []string `mapstructure:"labels"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Credentials are the provider secrets.
type Credentials struct {
	AnthropicAPIKey string
	OpenAIAPIKey    string
	GoogleAPIKey    string
	DeepSeekAPIKey  string
	GitHubToken     string
}

// Load reads ~/.mindgate/config.yaml (or path, when given) and MINDGATE_*
// environment overrides on top of the defaults. API keys in the file are
// ignored; they are read from the conventional environment variables.
func Load(path string) (*Config, error) {
	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	v := viper.New()
	setDefaults(v, configDir)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(configDir)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.ConfigDir = configDir
	cfg.Memory.SQLitePath = expandHome(cfg.Memory.SQLitePath)
	cfg.RegistryPath = expandHome(cfg.RegistryPath)
	cfg.TraceDir = expandHome(cfg.TraceDir)
	cfg.Credentials = Credentials{
		AnthropicAPIKey: firstEnv("ANTHROPIC_API_KEY"),
		OpenAIAPIKey:    firstEnv("OPENAI_API_KEY"),
		GoogleAPIKey:    firstEnv("GOOGLE_API_KEY", "GEMINI_API_KEY"),
		DeepSeekAPIKey:  firstEnv("DEEPSEEK_API_KEY"),
		GitHubToken:     firstEnv("GITHUB_TOKEN", "GH_TOKEN"),
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("registry_path", "")
	v.SetDefault("trace_dir", "")
	v.SetDefault("metrics_addr", "")
	v.SetDefault("fallback", []string{"anthropic", "openai", "google", "deepseek"})

	v.SetDefault("loop.confidence_threshold", 0.7)
	v.SetDefault("loop.max_steps", 5)
	v.SetDefault("loop.provider_timeout", 60*time.Second)
	v.SetDefault("loop.context_query", "relevant prior experience and user preferences")
	v.SetDefault("loop.context_limit", 5)
	v.SetDefault("loop.agent_name", "mindgate")
	v.SetDefault("loop.evaluator", "heuristic")
	v.SetDefault("loop.judge_model", "")
	v.SetDefault("loop.parallelism", 4)

	v.SetDefault("memory.backend", "sqlite")
	v.SetDefault("memory.sqlite_path", filepath.Join(configDir, "memory.db"))
	v.SetDefault("memory.qdrant_host", "localhost")
	v.SetDefault("memory.qdrant_port", 6334)
	v.SetDefault("memory.qdrant_collection", "memories")
	v.SetDefault("memory.qdrant_api_key", "")
	v.SetDefault("memory.qdrant_tls", false)
	v.SetDefault("memory.redis_addr", "localhost:6379")
	v.SetDefault("memory.redis_password", "")
	v.SetDefault("memory.redis_db", 0)
	v.SetDefault("memory.redis_max_records", 0)

	v.SetDefault("embedding.provider", "ollama")
	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.max_chars", 8000)
	v.SetDefault("embedding.ollama_url", "http://localhost:11434")
	v.SetDefault("embedding.dimension", 256)

	v.SetDefault("escalation.github_repo", "")
	v.SetDefault("escalation.labels", []string{"needs-review"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	var errs []error
	if c.Loop.ConfidenceThreshold < 0 || c.Loop.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("loop.confidence_threshold %v outside [0,1]", c.Loop.ConfidenceThreshold))
	}
	if c.Loop.MaxSteps <= 0 {
		errs = append(errs, fmt.Errorf("loop.max_steps must be positive"))
	}
	if c.Loop.ProviderTimeout <= 0 {
		errs = append(errs, fmt.Errorf("loop.provider_timeout must be positive"))
	}
	switch c.Loop.Evaluator {
	case "heuristic", "judge":
	default:
		errs = append(errs, fmt.Errorf("unknown loop.evaluator %q", c.Loop.Evaluator))
	}
	switch c.Memory.Backend {
	case "sqlite", "qdrant", "redis", "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown memory.backend %q", c.Memory.Backend))
	}
	switch c.Embedding.Provider {
	case "ollama", "genai", "openai", "hash":
	default:
		errs = append(errs, fmt.Errorf("unknown embedding.provider %q", c.Embedding.Provider))
	}
	if len(c.Fallback) == 0 {
		errs = append(errs, fmt.Errorf("fallback must list at least one provider"))
	}
	for _, p := range c.Fallback {
		switch normalizeProvider(p) {
		case registry.ProviderAnthropic, registry.ProviderOpenAI, registry.ProviderGoogle, registry.ProviderDeepSeek:
		default:
			errs = append(errs, fmt.Errorf("unknown fallback provider %q", p))
		}
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Hierarchy returns the fallback order as providers.
func (c *Config) Hierarchy() []registry.Provider {
	out := make([]registry.Provider, 0, len(c.Fallback))
	for _, p := range c.Fallback {
		out = append(out, normalizeProvider(p))
	}
	return out
}

func normalizeProvider(p string) registry.Provider {
	return registry.Provider(strings.ToLower(strings.TrimSpace(p)))
}

// HasProvider returns true if the API key for the given provider is configured.
func (c *Config) HasProvider(p registry.Provider) bool {
	return c.APIKey(p) != ""
}

// APIKey returns the credential for p.
func (c *Config) APIKey(p registry.Provider) string {
	switch p {
	case registry.ProviderAnthropic:
		return c.Credentials.AnthropicAPIKey
	case registry.ProviderOpenAI:
		return c.Credentials.OpenAIAPIKey
	case registry.ProviderGoogle:
		return c.Credentials.GoogleAPIKey
	case registry.ProviderDeepSeek:
		return c.Credentials.DeepSeekAPIKey
	default:
		return ""
	}
}

// firstEnv returns the first non-empty environment variable among names.
func firstEnv(names ...string) string {
	for _, n := range names {
		if val := os.Getenv(n); val != "" {
			return val
		}
	}
	return ""
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

func getConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	configDir := filepath.Join(home, ".mindgate")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return "", err
	}
	return configDir, nil
}
