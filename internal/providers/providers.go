// Package providers builds model providers from configuration.
package providers

import (
	"context"
	"fmt"

	"github.com/ashutoshrp06/toolloop/internal/config"
	"github.com/ashutoshrp06/toolloop/internal/llm"
	"github.com/ashutoshrp06/toolloop/internal/providers/claude"
	"github.com/ashutoshrp06/toolloop/internal/providers/gemini"
	"github.com/ashutoshrp06/toolloop/internal/providers/ollama"
	"github.com/ashutoshrp06/toolloop/internal/providers/openai"
)

// Build constructs the provider named by cfg.Name.
func Build(ctx context.Context, cfg config.ProviderConfig) (llm.Provider, error) {
	switch cfg.Name {
	case "gemini":
		return gemini.New(ctx, gemini.Config{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		})
	case "claude":
		return claude.New(claude.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		})
	case "openai":
		return openai.New(openai.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		})
	case "ollama":
		return ollama.NewClient(ollama.Config{
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Timeout:     cfg.Timeout,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Name)
	}
}
