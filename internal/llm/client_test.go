package llm_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ashutoshrp06/toolloop/internal/llm"
	"github.com/ashutoshrp06/toolloop/internal/llm/mock"
	"github.com/ashutoshrp06/toolloop/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fastConfig(retries int) llm.ClientConfig {
	return llm.ClientConfig{
		Timeout:         time.Second,
		MaxRetries:      retries,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Logger:          zap.NewNop(),
	}
}

func TestClient_RetriesTransientFailures(t *testing.T) {
	attempts := 0
	provider := &mock.Provider{GenerateFn: func(ctx context.Context, req llm.Request) (string, error) {
		attempts++
		if attempts < 3 {
			return "", &llm.ProviderError{Provider: "mock", StatusCode: 429, Retryable: true, Err: errors.New("rate limited")}
		}
		return "hello", nil
	}}
	metrics := observability.NewMetrics()
	cfg := fastConfig(3)
	cfg.Metrics = metrics

	out, err := llm.NewClient(provider, cfg).Generate(context.Background(), llm.Request{})
	require.NoError(t, err)
	require.Equal(t, "hello", out)
	require.Equal(t, 3, attempts)
	require.Equal(t, 2.0, testutil.ToFloat64(metrics.ProviderRetries.WithLabelValues("mock")))
}

func TestClient_StopsOnPermanentFailure(t *testing.T) {
	provider := &mock.Provider{GenerateFn: func(ctx context.Context, req llm.Request) (string, error) {
		return "", &llm.ProviderError{Provider: "mock", StatusCode: 401, Err: errors.New("bad key")}
	}}

	_, err := llm.NewClient(provider, fastConfig(5)).Generate(context.Background(), llm.Request{})
	require.Error(t, err)
	require.False(t, llm.IsRetryable(err))
	require.Equal(t, 1, provider.Calls())
}

func TestClient_ExhaustsRetryBudget(t *testing.T) {
	provider := &mock.Provider{GenerateFn: func(ctx context.Context, req llm.Request) (string, error) {
		return "", errors.New("503 UNAVAILABLE")
	}}

	_, err := llm.NewClient(provider, fastConfig(2)).Generate(context.Background(), llm.Request{})
	var perr *llm.ProviderError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, 3, provider.Calls())
}

func TestClient_EmptyResponseIsRetried(t *testing.T) {
	provider := mock.NewScripted("   ", "done")

	out, err := llm.NewClient(provider, fastConfig(1)).Generate(context.Background(), llm.Request{})
	require.NoError(t, err)
	require.Equal(t, "done", out)
}

func TestClient_PerCallTimeout(t *testing.T) {
	calls := 0
	provider := &mock.Provider{GenerateFn: func(ctx context.Context, req llm.Request) (string, error) {
		calls++
		if calls == 1 {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "second try", nil
	}}
	cfg := fastConfig(1)
	cfg.Timeout = 20 * time.Millisecond

	out, err := llm.NewClient(provider, cfg).Generate(context.Background(), llm.Request{})
	require.NoError(t, err)
	require.Equal(t, "second try", out)
}

func TestClient_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	provider := &mock.Provider{GenerateFn: func(ctx context.Context, req llm.Request) (string, error) {
		cancel()
		return "", ctx.Err()
	}}

	_, err := llm.NewClient(provider, fastConfig(3)).Generate(ctx, llm.Request{})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, provider.Calls())
}

func TestNewProviderError_Classification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		err    error
		want   bool
	}{
		{"rate limit", 429, errors.New("slow down"), true},
		{"server error", 502, errors.New("bad gateway"), true},
		{"bad request", 400, errors.New("invalid"), false},
		{"deadline", 0, context.DeadlineExceeded, true},
		{"canceled", 0, context.Canceled, false},
		{"grpc style", 0, errors.New("Error 429, Status: RESOURCE_EXHAUSTED"), true},
		{"unknown", 0, errors.New("model refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, llm.NewProviderError("p", tt.status, tt.err).Retryable)
		})
	}
}
