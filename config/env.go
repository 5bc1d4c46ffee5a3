package config

import (
	"os"

	"github.com/aschepis/backscratcher/compgen/llm"
)

// applyEnv applies environment variable overrides.
func applyEnv(cfg *Config) {
	if provider := os.Getenv("COMPGEN_PROVIDER"); provider != "" {
		cfg.Provider = provider
	}

	if host := getOllamaHostFromEnv(); host != "" {
		cfg.Ollama.Endpoint = llm.OllamaEndpointFromHost(host)
	}
	if model := getOllamaModelFromEnv(); model != "" {
		cfg.Ollama.Model = model
	}

	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		cfg.OpenAI.APIKey = apiKey
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		cfg.OpenAI.BaseURL = baseURL
	}
	if model := os.Getenv("OPENAI_MODEL"); model != "" {
		cfg.OpenAI.Model = model
	}
	if org := os.Getenv("OPENAI_ORG_ID"); org != "" {
		cfg.OpenAI.Organization = org
	}

	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		cfg.Anthropic.APIKey = apiKey
	}
}

// getOllamaHostFromEnv gets the Ollama host from environment variable.
func getOllamaHostFromEnv() string {
	return os.Getenv("OLLAMA_HOST")
}

// getOllamaModelFromEnv gets the Ollama model from environment variable.
func getOllamaModelFromEnv() string {
	return os.Getenv("OLLAMA_MODEL")
}
