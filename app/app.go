// Package app assembles a generator Service from configuration.
package app

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/aschepis/backscratcher/compgen/catalog"
	"github.com/aschepis/backscratcher/compgen/config"
	"github.com/aschepis/backscratcher/compgen/generator"
	"github.com/aschepis/backscratcher/compgen/history"
	"github.com/aschepis/backscratcher/compgen/llm"
	llmanthropic "github.com/aschepis/backscratcher/compgen/llm/anthropic"
	llmollama "github.com/aschepis/backscratcher/compgen/llm/ollama"
	llmopenai "github.com/aschepis/backscratcher/compgen/llm/openai"
	"github.com/aschepis/backscratcher/compgen/metrics"
	"github.com/aschepis/backscratcher/compgen/recovery"
	"github.com/rs/zerolog"
)

const anthropicEndpoint = "https://api.anthropic.com"

// App holds the wired components behind the CLI.
type App struct {
	Config  *config.Config
	Key     *llm.ClientKey // Nil when the service is disabled
	Service *generator.Service
	Client  llm.Client      // Provider client wrapped with middleware
	Lister  llm.ModelLister // Nil if the provider cannot list models
	Warmer  llm.WarmUpper   // Nil unless the provider supports warm-up
	History *history.Store  // Nil when history is disabled

	logger zerolog.Logger
}

// Options overrides pieces of the wiring, mainly for tests.
type Options struct {
	HTTPClient *http.Client
	Sleep      generator.Sleeper
}

// New builds an App from cfg.
func New(cfg *config.Config, logger zerolog.Logger, opts Options) (*App, error) {
	a := &App{Config: cfg, logger: logger.With().Str("component", "app").Logger()}

	if cfg.Disabled {
		a.logger.Info().Msg("LLM service is disabled by configuration")
		a.Service = generator.NewService(generator.ServiceConfig{Disabled: true}, nil, nil, logger)
		return a, nil
	}

	// ---------------------------
	// 1. Resolve provider + client
	// ---------------------------

	registry := llm.NewProviderRegistry(cfg.ProviderConfig(), []string{cfg.Provider})
	key, err := registry.Resolve(cfg.Provider)
	if err != nil {
		return nil, llm.NewConfigurationError(err.Error())
	}
	a.Key = key
	a.logger.Info().Str("provider", key.Provider).Str("model", key.Model).Msg("Resolved LLM provider")

	base, endpoint, err := newClient(key, cfg, opts.HTTPClient, logger)
	if err != nil {
		return nil, err
	}
	a.Client = llm.WrapWithMiddleware(base, NewLoggingMiddleware(logger), metrics.Middleware())
	if lister, ok := base.(llm.ModelLister); ok {
		a.Lister = lister
	}

	// ---------------------------
	// 2. Orchestrator
	// ---------------------------

	orchOpts := generator.Options{
		Client: a.Client,
		Policy: generator.RetryPolicy{
			MaxAttempts: cfg.Retry.Attempts,
			BaseDelay:   cfg.BaseDelay(),
			MaxDelay:    cfg.MaxDelay(),
		},
		Sleep:    opts.Sleep,
		Recovery: recovery.Options{StripMarkdown: cfg.StripMarkdown()},
		Endpoint: endpoint,
		Timeout:  cfg.OllamaTimeout(),
		Logger:   logger,
	}
	svcCfg := generator.ServiceConfig{
		Provider:     key.Provider,
		Model:        key.Model,
		Endpoint:     endpoint,
		MaxTokens:    cfg.Generation.MaxTokens,
		Temperature:  cfg.Generation.Temperature,
		SystemPrompt: cfg.Generation.SystemPrompt,
	}
	var svcOpts []generator.ServiceOption

	// Catalog resolution, warm-up and fallbacks only make sense against
	// a local model server that hosts the fallback names.
	if ollama, ok := base.(*llmollama.Client); ok {
		a.Warmer = ollama
		orchOpts.Resolver = catalog.NewResolver(ollama, logger)
		orchOpts.Warmer = ollama
		orchOpts.Fallbacks = cfg.Generation.FallbackModels
		svcCfg.VisionModel = cfg.Ollama.VisionModel
		svcOpts = append(svcOpts, generator.WithPinger(ollama))
	}

	orch, err := generator.NewOrchestrator(orchOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	// ---------------------------
	// 3. History
	// ---------------------------

	if !cfg.History.Disabled {
		store, err := history.Open(cfg.History.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open history: %w", err)
		}
		a.History = store
		svcOpts = append(svcOpts, generator.WithRecorder(store))
	}

	a.Service = generator.NewService(svcCfg, orch, a.Client, logger, svcOpts...)
	return a, nil
}

// newClient creates the provider client for key and reports the endpoint
// shown in failure messages.
func newClient(key *llm.ClientKey, cfg *config.Config, httpClient *http.Client, logger zerolog.Logger) (llm.Client, string, error) {
	switch key.Provider {
	case llm.ProviderOllama:
		client, err := llmollama.NewClient(llmollama.Config{
			Endpoint:      key.Endpoint,
			Model:         key.Model,
			Timeout:       cfg.OllamaTimeout(),
			WarmupTimeout: cfg.WarmupTimeout(),
			HTTPClient:    httpClient,
		}, logger)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create ollama client: %w", err)
		}
		return client, client.Endpoint(), nil

	case llm.ProviderOpenAI, llm.ProviderLocalAI:
		client, err := llmopenai.NewClient(llmopenai.Config{
			APIKey:       key.APIKey,
			BaseURL:      key.BaseURL,
			Model:        key.Model,
			Organization: key.Organization,
			HTTPClient:   timeoutClient(httpClient, cfg),
		}, logger)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create openai client: %w", err)
		}
		return client, client.BaseURL(), nil

	case llm.ProviderAnthropic:
		client, err := llmanthropic.NewClient(llmanthropic.Config{
			APIKey:     key.APIKey,
			Model:      key.Model,
			HTTPClient: timeoutClient(httpClient, cfg),
		}, logger)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create anthropic client: %w", err)
		}
		return client, anthropicEndpoint, nil

	default:
		return nil, "", llm.NewConfigurationError("unknown provider: " + key.Provider)
	}
}

// timeoutClient bounds hosted-provider calls by the configured budget.
// The Ollama client applies its own per-call deadline instead.
func timeoutClient(base *http.Client, cfg *config.Config) *http.Client {
	if base != nil {
		return base
	}
	return &http.Client{Timeout: cfg.OllamaTimeout()}
}

// Close releases the history store.
func (a *App) Close() error {
	var errs []error
	if a.History != nil {
		errs = append(errs, a.History.Close())
	}
	return errors.Join(errs...)
}
