package llm

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderLocalAI   = "localai"
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
)

const (
	DefaultOllamaEndpoint  = "http://localhost:11434/api/generate"
	DefaultLocalAIBaseURL  = "http://localhost:8080/v1"
	DefaultAnthropicModel  = "claude-haiku-4-5"
	DefaultOpenAIModel     = "gpt-4o-mini"
	defaultOllamaHostPort  = "localhost:11434"
	ollamaGeneratePathName = "/api/generate"
)

// ClientKey uniquely identifies an LLM client configuration.
type ClientKey struct {
	Provider     string
	Model        string
	APIKey       string // For credential-based providers
	Endpoint     string // For Ollama: full generate endpoint URL
	BaseURL      string // For OpenAI-compatible providers
	Organization string // For OpenAI
}

// ProviderConfig holds the configuration needed for provider registry.
// This avoids import cycles by not importing the config package.
type ProviderConfig struct {
	AnthropicAPIKey string
	AnthropicModel  string
	OllamaEndpoint  string
	OllamaModel     string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OpenAIModel     string
	OpenAIOrg       string
}

// ProviderRegistry resolves which provider serves generation requests and
// with which connection settings. Client creation is handled by the caller.
type ProviderRegistry struct {
	enabledProviders map[string]bool
	mu               sync.RWMutex
	config           *ProviderConfig
}

// NewProviderRegistry creates a new ProviderRegistry with the given config and enabled providers.
func NewProviderRegistry(providerConfig *ProviderConfig, enabledProviders []string) *ProviderRegistry {
	enabledMap := make(map[string]bool)
	for _, p := range enabledProviders {
		enabledMap[strings.ToLower(p)] = true
	}
	if providerConfig == nil {
		providerConfig = &ProviderConfig{}
	}

	return &ProviderRegistry{
		enabledProviders: enabledMap,
		config:           providerConfig,
	}
}

// IsProviderEnabled checks if a provider is in the enabled providers list.
func (r *ProviderRegistry) IsProviderEnabled(provider string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabledProviders[provider]
}

// IsProviderConfigured checks if a provider has the required configuration (API keys, hosts, etc.).
func (r *ProviderRegistry) IsProviderConfigured(provider string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isProviderConfiguredUnlocked(provider)
}

// Resolve returns a ClientKey for the first provider in preferences that is
// both enabled and configured.
func (r *ProviderRegistry) Resolve(preferences ...string) (*ClientKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(preferences) == 0 {
		return nil, fmt.Errorf("no provider preferences given")
	}

	var lastErr error
	for _, pref := range preferences {
		provider := strings.ToLower(strings.TrimSpace(pref))
		if !r.enabledProviders[provider] {
			continue
		}
		if !r.isProviderConfiguredUnlocked(provider) {
			lastErr = fmt.Errorf("provider %s is not configured", provider)
			continue
		}
		key, err := r.resolveProviderConfig(provider)
		if err != nil {
			lastErr = err
			continue
		}
		return key, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("no available provider from preferences %v: %w", preferences, lastErr)
	}
	return nil, fmt.Errorf("no available provider from preferences %v (enabled: %v)", preferences, r.getEnabledProvidersList())
}

// isProviderConfiguredUnlocked is the unlocked version of IsProviderConfigured.
// Must be called with r.mu already locked.
func (r *ProviderRegistry) isProviderConfiguredUnlocked(provider string) bool {
	switch provider {
	case ProviderAnthropic:
		apiKey := r.config.AnthropicAPIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		return apiKey != ""
	case ProviderOllama, ProviderLocalAI:
		// Local servers need no credentials and have default addresses
		return true
	case ProviderOpenAI:
		apiKey := r.config.OpenAIAPIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		return apiKey != ""
	default:
		return false
	}
}

// resolveProviderConfig resolves provider-specific configuration and returns a ClientKey.
func (r *ProviderRegistry) resolveProviderConfig(provider string) (*ClientKey, error) {
	key := &ClientKey{Provider: provider}

	switch provider {
	case ProviderAnthropic:
		key.APIKey = r.config.AnthropicAPIKey
		if key.APIKey == "" {
			key.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if key.APIKey == "" {
			return nil, fmt.Errorf("anthropic API key not configured")
		}
		key.Model = r.config.AnthropicModel
		if key.Model == "" {
			key.Model = DefaultAnthropicModel
		}

	case ProviderOllama:
		endpoint := r.config.OllamaEndpoint
		if endpoint == "" {
			endpoint = OllamaEndpointFromHost(os.Getenv("OLLAMA_HOST"))
		}
		key.Endpoint = endpoint

		key.Model = r.config.OllamaModel
		if key.Model == "" {
			key.Model = os.Getenv("OLLAMA_MODEL")
		}
		if key.Model == "" {
			return nil, fmt.Errorf("ollama model not specified and no default configured")
		}

	case ProviderLocalAI:
		key.BaseURL = r.config.OpenAIBaseURL
		if key.BaseURL == "" {
			key.BaseURL = DefaultLocalAIBaseURL
		}
		key.APIKey = r.config.OpenAIAPIKey
		key.Model = r.config.OpenAIModel
		if key.Model == "" {
			key.Model = r.config.OllamaModel
		}
		if key.Model == "" {
			return nil, fmt.Errorf("localai model not specified")
		}

	case ProviderOpenAI:
		apiKey := r.config.OpenAIAPIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("openai API key not configured")
		}
		key.APIKey = apiKey

		baseURL := r.config.OpenAIBaseURL
		if baseURL == "" {
			baseURL = os.Getenv("OPENAI_BASE_URL")
		}
		key.BaseURL = baseURL

		org := r.config.OpenAIOrg
		if org == "" {
			org = os.Getenv("OPENAI_ORG_ID")
		}
		key.Organization = org

		key.Model = r.config.OpenAIModel
		if key.Model == "" {
			key.Model = os.Getenv("OPENAI_MODEL")
		}
		if key.Model == "" {
			key.Model = DefaultOpenAIModel
		}

	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}

	return key, nil
}

// getEnabledProvidersList returns a list of enabled providers (for error messages).
func (r *ProviderRegistry) getEnabledProvidersList() []string {
	var providers []string
	for p := range r.enabledProviders {
		providers = append(providers, p)
	}
	return providers
}

// OllamaEndpointFromHost turns an OLLAMA_HOST style value ("host:port",
// "http://host:port") into a full generate endpoint URL.
func OllamaEndpointFromHost(host string) string {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if host == "" {
		host = defaultOllamaHostPort
	}
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}
	if strings.HasSuffix(host, ollamaGeneratePathName) {
		return host
	}
	return host + ollamaGeneratePathName
}
