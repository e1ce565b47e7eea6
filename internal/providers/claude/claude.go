// Package claude provides an llm.Provider backed by the Anthropic Messages API.
package claude

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ashutoshrp06/toolloop/internal/llm"
	"github.com/ashutoshrp06/toolloop/pkg/models"
)

const providerName = "claude"

// APIKeyEnv is consulted when no key is configured.
const APIKeyEnv = "ANTHROPIC_API_KEY"

// Config holds provider settings.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
}

// Provider calls Claude models. Tool calling is driven by the prompt, so no
// tool definitions are sent.
type Provider struct {
	client      anthropic.Client
	model       string
	temperature float64
	maxTokens   int
}

// New creates a Claude provider.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv(APIKeyEnv)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("claude: no API key (set provider.api_key or %s)", APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = string(anthropic.ModelClaude4Sonnet20250514)
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// Retries are handled by llm.Client.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Provider{
		client:      anthropic.NewClient(opts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

// Name implements llm.Provider.
func (p *Provider) Name() string {
	return providerName
}

// Generate implements llm.Provider.
func (p *Provider) Generate(ctx context.Context, req llm.Request) (string, error) {
	messages, err := buildMessages(req.Messages)
	if err != nil {
		return "", &llm.ProviderError{Provider: providerName, Err: err}
	}

	temperature := req.Temperature
	if temperature == 0 {
		temperature = p.temperature
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.maxTokens
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   int64(maxTokens),
		Messages:    messages,
		Temperature: anthropic.Float(temperature),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", llm.NewProviderError(providerName, apiErr.StatusCode, err)
		}
		return "", llm.NewProviderError(providerName, 0, err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			sb.WriteString(b.Text)
		}
	}
	return sb.String(), nil
}

func buildMessages(msgs []models.Message) ([]anthropic.MessageParam, error) {
	var out []anthropic.MessageParam
	for _, turn := range llm.Turns(msgs) {
		if turn.Role == models.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(turn.Text)))
			continue
		}

		var blocks []anthropic.ContentBlockParamUnion
		for _, path := range turn.Images {
			img, err := llm.LoadImage(path)
			if err != nil {
				return nil, err
			}
			blocks = append(blocks, anthropic.NewImageBlockBase64(img.MIMEType, base64.StdEncoding.EncodeToString(img.Data)))
		}
		blocks = append(blocks, anthropic.NewTextBlock(turn.Text))
		out = append(out, anthropic.NewUserMessage(blocks...))
	}
	return out, nil
}
