// Package ollama provides an llm.Provider backed by the Ollama chat API.
package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ashutoshrp06/toolloop/internal/llm"
)

const providerName = "ollama"

// Client handles communication with the Ollama API.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	model       string
	temperature float64
	maxTokens   int
}

// Config holds client configuration.
type Config struct {
	BaseURL     string        // e.g., "http://localhost:11434" or remote endpoint
	Model       string        // e.g., "qwen2.5vl:7b"
	Timeout     time.Duration // Transport timeout; the llm.Client applies per-call deadlines too
	Temperature float64
	MaxTokens   int
}

// DefaultConfig returns sensible defaults for local development.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:11434",
		Model:   "qwen2.5vl:7b",
		Timeout: 120 * time.Second,
	}
}

// NewClient creates a new Ollama client.
func NewClient(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	return &Client{
		baseURL:     cfg.BaseURL,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Options controls generation parameters.
type Options struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// ChatMessage represents a message in the chat format. Images are base64
// encoded file contents.
type ChatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// ChatRequest is the request body for the /api/chat endpoint.
type ChatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  *Options      `json:"options,omitempty"`
}

// ChatResponse is the response from /api/chat.
type ChatResponse struct {
	Model     string      `json:"model"`
	Message   ChatMessage `json:"message"`
	Done      bool        `json:"done"`
	CreatedAt string      `json:"created_at"`

	TotalDuration   int64 `json:"total_duration,omitempty"`
	PromptEvalCount int   `json:"prompt_eval_count,omitempty"`
	EvalCount       int   `json:"eval_count,omitempty"`
}

// Name implements llm.Provider.
func (c *Client) Name() string {
	return providerName
}

// Generate implements llm.Provider.
func (c *Client) Generate(ctx context.Context, req llm.Request) (string, error) {
	messages, err := buildMessages(req)
	if err != nil {
		return "", &llm.ProviderError{Provider: providerName, Err: err}
	}

	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	resp, err := c.Chat(ctx, ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   false,
		Options:  &Options{Temperature: temperature, NumPredict: maxTokens},
	})
	if err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}

// Chat sends a conversation to the LLM using the chat format.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, llm.NewProviderError(providerName, 0, fmt.Errorf("execute request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, llm.NewProviderError(providerName, resp.StatusCode,
			fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(bodyBytes)))
	}

	var chatResp ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, &llm.ProviderError{Provider: providerName, Retryable: true, Err: fmt.Errorf("decode response: %w", err)}
	}

	return &chatResp, nil
}

// Ping checks if the Ollama server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("ollama not reachable: %w", err)
	}
	return nil
}

// ListModels returns the available models.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	names := make([]string, len(result.Models))
	for i, m := range result.Models {
		names[i] = m.Name
	}

	return names, nil
}

// ModelInfo returns information about the configured model.
func (c *Client) ModelInfo() string {
	return fmt.Sprintf("%s @ %s", c.model, c.baseURL)
}

func buildMessages(req llm.Request) ([]ChatMessage, error) {
	var messages []ChatMessage
	if req.System != "" {
		messages = append(messages, ChatMessage{Role: "system", Content: req.System})
	}
	for _, turn := range llm.Turns(req.Messages) {
		msg := ChatMessage{Role: string(turn.Role), Content: turn.Text}
		for _, path := range turn.Images {
			img, err := llm.LoadImage(path)
			if err != nil {
				return nil, err
			}
			msg.Images = append(msg.Images, base64.StdEncoding.EncodeToString(img.Data))
		}
		messages = append(messages, msg)
	}
	return messages, nil
}
