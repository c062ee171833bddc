// Package llm provides a minimal text-in, text-out interface to LLM
// providers for the extraction and refactor-planning collaborators.
//
// The engine never talks to a model directly; it consumes a CallFunc so
// tests can inject deterministic stand-ins and production wiring can pick
// a provider from configuration.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

const (
	providerOpenAI    = "openai"
	providerAnthropic = "anthropic"
	providerOllama    = "ollama"
)

// CallFunc is the signature for a single LLM inference call.
type CallFunc func(ctx context.Context, prompt string) (string, error)

// Config holds configuration for creating an LLM caller.
type Config struct {
	Provider string // "openai", "anthropic", or "ollama"
	Model    string // e.g. "gpt-4o-mini", "claude-haiku-4-5-20251001"
	APIKey   string // explicit API key (highest priority)
	BaseURL  string // override base URL
}

// NewCaller creates a CallFunc based on the provided configuration.
// Resolution order for the API key: explicit key, then environment
// variables (OPENAI_API_KEY / ANTHROPIC_API_KEY). If no key is found and
// the provider is not explicitly ollama, the caller falls back to Ollama
// at localhost:11434.
func NewCaller(cfg Config) (CallFunc, error) {
	provider := strings.ToLower(cfg.Provider)
	model := cfg.Model

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = resolveAPIKeyFromEnv(provider)
	}

	if apiKey == "" && provider != providerOllama {
		slog.Warn("no API key found, falling back to ollama", "provider", provider)
		provider = providerOllama
	}

	switch provider {
	case providerOpenAI, "":
		if model == "" {
			model = "gpt-4o-mini"
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://api.openai.com"
		}
		return newOpenAICaller(apiKey, model, baseURL), nil

	case providerAnthropic:
		if model == "" {
			model = "claude-haiku-4-5-20251001"
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://api.anthropic.com"
		}
		return newAnthropicCaller(apiKey, model, baseURL), nil

	case providerOllama:
		if model == "" {
			model = "llama3.2"
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return newOllamaCaller(model, baseURL), nil

	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

func resolveAPIKeyFromEnv(provider string) string {
	switch provider {
	case providerAnthropic:
		return os.Getenv("ANTHROPIC_API_KEY")
	case providerOpenAI, "":
		return os.Getenv("OPENAI_API_KEY")
	default:
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			return key
		}
		return os.Getenv("ANTHROPIC_API_KEY")
	}
}
