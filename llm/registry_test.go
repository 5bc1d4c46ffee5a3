package llm

import (
	"testing"
)

func TestProviderRegistry_IsProviderEnabled(t *testing.T) {
	registry := NewProviderRegistry(&ProviderConfig{}, []string{"anthropic", "ollama"})

	if !registry.IsProviderEnabled("anthropic") {
		t.Error("anthropic should be enabled")
	}
	if !registry.IsProviderEnabled("ollama") {
		t.Error("ollama should be enabled")
	}
	if registry.IsProviderEnabled("openai") {
		t.Error("openai should not be enabled")
	}
}

func TestProviderRegistry_IsProviderConfigured(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	// Test Anthropic - should require API key
	registry := NewProviderRegistry(&ProviderConfig{}, []string{"anthropic"})
	if registry.IsProviderConfigured("anthropic") {
		t.Error("anthropic should not be configured without API key")
	}

	registry2 := NewProviderRegistry(&ProviderConfig{AnthropicAPIKey: "test-key"}, []string{"anthropic"})
	if !registry2.IsProviderConfigured("anthropic") {
		t.Error("anthropic should be configured with API key")
	}

	// Local servers are always configured
	registry3 := NewProviderRegistry(&ProviderConfig{}, []string{"ollama", "localai"})
	if !registry3.IsProviderConfigured("ollama") {
		t.Error("ollama should always be configured")
	}
	if !registry3.IsProviderConfigured("localai") {
		t.Error("localai should always be configured")
	}

	// Test OpenAI - should require API key
	registry4 := NewProviderRegistry(&ProviderConfig{}, []string{"openai"})
	if registry4.IsProviderConfigured("openai") {
		t.Error("openai should not be configured without API key")
	}

	registry5 := NewProviderRegistry(&ProviderConfig{OpenAIAPIKey: "test-key"}, []string{"openai"})
	if !registry5.IsProviderConfigured("openai") {
		t.Error("openai should be configured with API key")
	}
}

func TestProviderRegistry_ResolveOllama(t *testing.T) {
	registry := NewProviderRegistry(&ProviderConfig{
		OllamaEndpoint: "http://gpu-box:11434/api/generate",
		OllamaModel:    "llama3.2",
	}, []string{ProviderOllama})

	key, err := registry.Resolve(ProviderOllama)
	if err != nil {
		t.Fatalf("Failed to resolve config: %v", err)
	}
	if key.Provider != ProviderOllama {
		t.Errorf("Expected provider 'ollama', got '%s'", key.Provider)
	}
	if key.Endpoint != "http://gpu-box:11434/api/generate" {
		t.Errorf("unexpected endpoint %q", key.Endpoint)
	}
	if key.Model != "llama3.2" {
		t.Errorf("Expected model 'llama3.2', got '%s'", key.Model)
	}
}

func TestProviderRegistry_ResolvePreferenceFallback(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	// openai preferred but unconfigured - should fall through to ollama
	registry := NewProviderRegistry(&ProviderConfig{OllamaModel: "mistral"}, []string{ProviderOpenAI, ProviderOllama})

	key, err := registry.Resolve(ProviderOpenAI, ProviderOllama)
	if err != nil {
		t.Fatalf("Failed to resolve config: %v", err)
	}
	if key.Provider != ProviderOllama {
		t.Errorf("Expected provider 'ollama' (fallback), got '%s'", key.Provider)
	}
}

func TestProviderRegistry_ResolveNoAvailableProvider(t *testing.T) {
	registry := NewProviderRegistry(&ProviderConfig{}, []string{})

	if _, err := registry.Resolve(ProviderOllama); err == nil {
		t.Error("Expected error when no providers are enabled")
	}
	if _, err := registry.Resolve(); err == nil {
		t.Error("Expected error for empty preferences")
	}
}

func TestOllamaEndpointFromHost(t *testing.T) {
	tests := map[string]string{
		"":                         "http://localhost:11434/api/generate",
		"127.0.0.1:11434":          "http://127.0.0.1:11434/api/generate",
		"https://ollama.internal/": "https://ollama.internal/api/generate",
		"http://h:1/api/generate":  "http://h:1/api/generate",
	}
	for in, want := range tests {
		if got := OllamaEndpointFromHost(in); got != want {
			t.Errorf("OllamaEndpointFromHost(%q) = %q, want %q", in, got, want)
		}
	}
}
