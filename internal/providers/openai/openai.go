// Package openai provides an llm.Provider for OpenAI-compatible chat APIs
// through langchaingo.
package openai

import (
	"context"
	"fmt"
	"os"

	"github.com/ashutoshrp06/toolloop/internal/llm"
	"github.com/ashutoshrp06/toolloop/pkg/models"
	"github.com/tmc/langchaingo/llms"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
)

const providerName = "openai"

// APIKeyEnv is consulted when no key is configured.
const APIKeyEnv = "OPENAI_API_KEY"

// Config holds provider settings. BaseURL points at any OpenAI-compatible
// endpoint such as vLLM or LM Studio.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
}

// Provider calls chat completion models through langchaingo.
type Provider struct {
	model       llms.Model
	temperature float64
	maxTokens   int
}

// New creates an OpenAI-compatible provider.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv(APIKeyEnv)
	}
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("openai: no API key (set provider.api_key or %s)", APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	opts := []lcopenai.Option{lcopenai.WithModel(cfg.Model)}
	if cfg.APIKey != "" {
		opts = append(opts, lcopenai.WithToken(cfg.APIKey))
	} else {
		// Local OpenAI-compatible servers usually ignore the token.
		opts = append(opts, lcopenai.WithToken("unused"))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, lcopenai.WithBaseURL(cfg.BaseURL))
	}

	client, err := lcopenai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	return NewWithModel(client, cfg), nil
}

// NewWithModel wraps an existing langchaingo model.
func NewWithModel(model llms.Model, cfg Config) *Provider {
	return &Provider{
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

// Name implements llm.Provider.
func (p *Provider) Name() string {
	return providerName
}

// Generate implements llm.Provider.
func (p *Provider) Generate(ctx context.Context, req llm.Request) (string, error) {
	content, err := buildContent(req)
	if err != nil {
		return "", &llm.ProviderError{Provider: providerName, Err: err}
	}

	temperature := req.Temperature
	if temperature == 0 {
		temperature = p.temperature
	}
	opts := []llms.CallOption{llms.WithTemperature(temperature)}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.maxTokens
	}
	if maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(maxTokens))
	}

	resp, err := p.model.GenerateContent(ctx, content, opts...)
	if err != nil {
		return "", llm.NewProviderError(providerName, llm.StatusFromError(err), err)
	}
	if len(resp.Choices) == 0 {
		return "", &llm.ProviderError{Provider: providerName, Retryable: true, Err: llm.ErrEmptyResponse}
	}
	return resp.Choices[0].Content, nil
}

func buildContent(req llm.Request) ([]llms.MessageContent, error) {
	var content []llms.MessageContent
	if req.System != "" {
		content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}

	for _, turn := range llm.Turns(req.Messages) {
		if turn.Role == models.RoleAssistant {
			content = append(content, llms.TextParts(llms.ChatMessageTypeAI, turn.Text))
			continue
		}

		parts := []llms.ContentPart{llms.TextPart(turn.Text)}
		for _, path := range turn.Images {
			img, err := llm.LoadImage(path)
			if err != nil {
				return nil, err
			}
			parts = append(parts, llms.BinaryPart(img.MIMEType, img.Data))
		}
		content = append(content, llms.MessageContent{Role: llms.ChatMessageTypeHuman, Parts: parts})
	}
	return content, nil
}
