package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/aschepis/backscratcher/compgen/llm"
	"gopkg.in/yaml.v3"
)

// OllamaConfig represents configuration for the Ollama provider.
type OllamaConfig struct {
	Endpoint      string `yaml:"endpoint,omitempty"`       // Generate endpoint (default: http://localhost:11434/api/generate)
	Model         string `yaml:"model,omitempty"`          // Default model name
	VisionModel   string `yaml:"vision_model,omitempty"`   // Model for requests with an image
	Timeout       int    `yaml:"timeout,omitempty"`        // Request timeout in seconds
	WarmupTimeout int    `yaml:"warmup_timeout,omitempty"` // Warm-up ping timeout in seconds
}

// OpenAIConfig represents configuration for OpenAI-compatible providers,
// including LocalAI.
type OpenAIConfig struct {
	APIKey       string `yaml:"api_key,omitempty"`      // OpenAI API key
	BaseURL      string `yaml:"base_url,omitempty"`     // Custom base URL (default: official API)
	Model        string `yaml:"model,omitempty"`        // Default model name
	Organization string `yaml:"organization,omitempty"` // Organization ID
}

// AnthropicConfig represents configuration for the Anthropic provider.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key,omitempty"`
	Model  string `yaml:"model,omitempty"`
}

// GenerationConfig controls prompts and response handling.
type GenerationConfig struct {
	MaxTokens      int      `yaml:"max_tokens,omitempty"`
	Temperature    *float64 `yaml:"temperature,omitempty"`
	SystemPrompt   string   `yaml:"system_prompt,omitempty"`
	StripMarkdown  *bool    `yaml:"strip_markdown,omitempty"`   // default: true
	FallbackModels []string `yaml:"fallback_models,omitempty"`
}

// RetryConfig controls primary attempts and backoff.
type RetryConfig struct {
	Attempts  int `yaml:"attempts,omitempty"`
	BaseDelay int `yaml:"base_delay,omitempty"` // Seconds before the second attempt
	MaxDelay  int `yaml:"max_delay,omitempty"`  // Cap in seconds on any single delay
}

// HistoryConfig controls the invocation ledger.
type HistoryConfig struct {
	Path     string `yaml:"path,omitempty"`
	Disabled bool   `yaml:"disabled,omitempty"` // default: false (history is recorded)
}

// KeepWarmConfig controls the keep-warm scheduler.
type KeepWarmConfig struct {
	Schedule string   `yaml:"schedule,omitempty"` // Cron expression or "@every 10m"
	Models   []string `yaml:"models,omitempty"`   // Empty warms the default model
}

// MetricsConfig controls the metrics endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty"` // e.g. ":2112"; empty disables
}

// Config is the complete configuration.
type Config struct {
	Provider   string           `yaml:"provider,omitempty"` // ollama, localai, openai or anthropic
	Disabled   bool             `yaml:"disabled,omitempty"` // default: false (service is enabled)
	Ollama     OllamaConfig     `yaml:"ollama,omitempty"`
	OpenAI     OpenAIConfig     `yaml:"openai,omitempty"`
	Anthropic  AnthropicConfig  `yaml:"anthropic,omitempty"`
	Generation GenerationConfig `yaml:"generation,omitempty"`
	Retry      RetryConfig      `yaml:"retry,omitempty"`
	History    HistoryConfig    `yaml:"history,omitempty"`
	KeepWarm   KeepWarmConfig   `yaml:"keep_warm,omitempty"`
	Metrics    MetricsConfig    `yaml:"metrics,omitempty"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	temperature := 0.7
	stripMarkdown := true
	return Config{
		Provider: llm.ProviderOllama,
		Ollama: OllamaConfig{
			Endpoint:      llm.DefaultOllamaEndpoint,
			Model:         "llama3.2",
			VisionModel:   "llava:7b",
			Timeout:       180,
			WarmupTimeout: 10,
		},
		Anthropic: AnthropicConfig{
			Model: llm.DefaultAnthropicModel,
		},
		Generation: GenerationConfig{
			MaxTokens:      4000,
			Temperature:    &temperature,
			StripMarkdown:  &stripMarkdown,
			FallbackModels: []string{"llama3", "llama2", "codellama", "llama3.2:latest"},
		},
		Retry: RetryConfig{
			Attempts:  3,
			BaseDelay: 2,
			MaxDelay:  30,
		},
		History: HistoryConfig{
			Path: "~/.compgen/history.db",
		},
		KeepWarm: KeepWarmConfig{
			Schedule: "@every 10m",
		},
	}
}

// DefaultPath returns the default config file path.
// Can be overridden via COMPGEN_CONFIG_PATH environment variable.
func DefaultPath() string {
	if envPath := os.Getenv("COMPGEN_CONFIG_PATH"); envPath != "" {
		return expandPath(envPath)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./.compgen/config.yaml"
	}
	return filepath.Join(homeDir, ".compgen", "config.yaml")
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// Load loads configuration: defaults, then the file at path if it exists,
// then environment overrides. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	expandedPath := expandPath(path)
	if _, err := os.Stat(expandedPath); err == nil {
		data, err := os.ReadFile(expandedPath) //#nosec 304 -- intentional file read for config
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", expandedPath, err)
		}

		var fileConfig Config
		if err := yaml.Unmarshal(data, &fileConfig); err != nil {
			return nil, fmt.Errorf("failed to parse config file %q: %w", expandedPath, err)
		}

		if err := mergo.Merge(&cfg, fileConfig, mergo.WithOverride, mergo.WithoutDereference); err != nil {
			return nil, fmt.Errorf("failed to merge config file: %w", err)
		}
	}

	applyEnv(&cfg)
	cfg.History.Path = expandPath(cfg.History.Path)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save saves the configuration to the specified path.
func Save(cfg *Config, path string) error {
	expandedPath := expandPath(path)

	dir := filepath.Dir(expandedPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// API keys may be present
	if err := os.WriteFile(expandedPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	switch c.Provider {
	case llm.ProviderOllama, llm.ProviderLocalAI, llm.ProviderOpenAI, llm.ProviderAnthropic:
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	if c.Retry.Attempts < 1 {
		return fmt.Errorf("retry.attempts must be at least 1, got %d", c.Retry.Attempts)
	}
	if c.Retry.BaseDelay < 0 || c.Retry.MaxDelay < 0 {
		return fmt.Errorf("retry delays must not be negative")
	}
	if c.Ollama.Timeout < 1 {
		return fmt.Errorf("ollama.timeout must be at least 1 second, got %d", c.Ollama.Timeout)
	}
	if t := c.Generation.Temperature; t != nil && (*t < 0 || *t > 2) {
		return fmt.Errorf("generation.temperature must be within [0, 2], got %v", *t)
	}
	return nil
}

// ProviderConfig returns the settings the provider registry needs.
func (c *Config) ProviderConfig() *llm.ProviderConfig {
	return &llm.ProviderConfig{
		AnthropicAPIKey: c.Anthropic.APIKey,
		AnthropicModel:  c.Anthropic.Model,
		OllamaEndpoint:  c.Ollama.Endpoint,
		OllamaModel:     c.Ollama.Model,
		OpenAIAPIKey:    c.OpenAI.APIKey,
		OpenAIBaseURL:   c.OpenAI.BaseURL,
		OpenAIModel:     c.OpenAI.Model,
		OpenAIOrg:       c.OpenAI.Organization,
	}
}

// StripMarkdown reports whether markdown fences are stripped from replies.
func (c *Config) StripMarkdown() bool {
	return c.Generation.StripMarkdown == nil || *c.Generation.StripMarkdown
}

// OllamaTimeout returns the per-call budget.
func (c *Config) OllamaTimeout() time.Duration {
	return time.Duration(c.Ollama.Timeout) * time.Second
}

// WarmupTimeout returns the warm-up ping budget.
func (c *Config) WarmupTimeout() time.Duration {
	return time.Duration(c.Ollama.WarmupTimeout) * time.Second
}

// BaseDelay returns the first backoff delay.
func (c *Config) BaseDelay() time.Duration {
	return time.Duration(c.Retry.BaseDelay) * time.Second
}

// MaxDelay returns the backoff cap.
func (c *Config) MaxDelay() time.Duration {
	return time.Duration(c.Retry.MaxDelay) * time.Second
}
