// Package gemini provides an llm.Provider backed by the Google Gen AI SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ashutoshrp06/toolloop/internal/llm"
	"github.com/ashutoshrp06/toolloop/pkg/models"
	"google.golang.org/genai"
)

const providerName = "gemini"

// APIKeyEnv is consulted when no key is configured.
const APIKeyEnv = "GEMINI_API_KEY"

// Config holds provider settings.
type Config struct {
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// Provider calls Gemini models through the Gen AI SDK.
type Provider struct {
	client      *genai.Client
	model       string
	temperature float64
	maxTokens   int
}

// New creates a Gemini provider.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv(APIKeyEnv)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: no API key (set provider.api_key or %s)", APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &Provider{
		client:      client,
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
	contents, err := buildContents(req.Messages)
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

	genCfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(temperature)),
	}
	if maxTokens > 0 {
		genCfg.MaxOutputTokens = int32(maxTokens)
	}
	if req.System != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, genCfg)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", llm.NewProviderError(providerName, apiErr.Code, err)
		}
		return "", llm.NewProviderError(providerName, 0, err)
	}

	return resp.Text(), nil
}

func buildContents(msgs []models.Message) ([]*genai.Content, error) {
	var contents []*genai.Content
	for _, turn := range llm.Turns(msgs) {
		role := genai.Role(genai.RoleUser)
		if turn.Role == models.RoleAssistant {
			role = genai.RoleModel
		}

		parts := []*genai.Part{genai.NewPartFromText(turn.Text)}
		for _, path := range turn.Images {
			img, err := llm.LoadImage(path)
			if err != nil {
				return nil, err
			}
			parts = append(parts, genai.NewPartFromBytes(img.Data, img.MIMEType))
		}
		contents = append(contents, genai.NewContentFromParts(parts, role))
	}
	return contents, nil
}
