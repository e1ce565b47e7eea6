package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ashutoshrp06/toolloop/internal/llm"
	"github.com/ashutoshrp06/toolloop/pkg/models"
	"github.com/stretchr/testify/require"
)

func TestClient_Generate(t *testing.T) {
	var got ChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(ChatResponse{
			Model:   got.Model,
			Message: ChatMessage{Role: "assistant", Content: `{"type":"text","text":"hi"}`},
			Done:    true,
		})
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, Model: "llava", Temperature: 0.3})
	out, err := client.Generate(context.Background(), llm.Request{
		System: "be brief",
		Messages: []models.Message{
			{Role: models.RoleUser, Content: "hello"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, `{"type":"text","text":"hi"}`, out)

	require.Equal(t, "llava", got.Model)
	require.False(t, got.Stream)
	require.Len(t, got.Messages, 2)
	require.Equal(t, "system", got.Messages[0].Role)
	require.Equal(t, "user", got.Messages[1].Role)
	require.Equal(t, 0.3, got.Options.Temperature)
}

func TestClient_StatusErrors(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusServiceUnavailable, true},
		{http.StatusTooManyRequests, true},
		{http.StatusNotFound, false},
	}

	for _, tt := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tt.status)
		}))

		_, err := NewClient(Config{BaseURL: server.URL}).Generate(context.Background(), llm.Request{
			Messages: []models.Message{{Role: models.RoleUser, Content: "hi"}},
		})
		server.Close()

		var perr *llm.ProviderError
		require.ErrorAs(t, err, &perr)
		require.Equal(t, tt.status, perr.StatusCode)
		require.Equal(t, tt.retryable, perr.Retryable)
	}
}

func TestClient_ListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"models":[{"name":"llava:7b"},{"name":"qwen2.5vl:7b"}]}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	names, err := client.ListModels(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"llava:7b", "qwen2.5vl:7b"}, names)
	require.NoError(t, client.Ping(context.Background()))
}
