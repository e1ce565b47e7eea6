package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ashutoshrp06/toolloop/internal/observability"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// ClientConfig controls timeouts and retries around a Provider.
type ClientConfig struct {
	// Timeout bounds each individual attempt.
	Timeout time.Duration
	// MaxRetries is the number of attempts after the first one.
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Logger          *zap.Logger
	Metrics         *observability.Metrics
}

// DefaultClientConfig returns the retry policy used when nothing is configured.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:         60 * time.Second,
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     8 * time.Second,
	}
}

// Client wraps a Provider with a per-attempt timeout and bounded exponential
// backoff for retryable failures. It holds no per-request state.
type Client struct {
	provider Provider
	cfg      ClientConfig
	logger   *zap.Logger
	metrics  *observability.Metrics
}

func NewClient(provider Provider, cfg ClientConfig) *Client {
	def := DefaultClientConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = def.InitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = def.MaxInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		provider: provider,
		cfg:      cfg,
		logger:   logger,
		metrics:  cfg.Metrics,
	}
}

// Name returns the wrapped provider's name.
func (c *Client) Name() string {
	return c.provider.Name()
}

// Generate calls the provider until it succeeds, fails permanently or the
// retry budget is spent. The returned error is a *ProviderError unless ctx
// itself ended.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	name := c.provider.Name()
	var completion string
	attempt := 0

	op := func() error {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()

		out, err := c.provider.Generate(callCtx, req)
		if err == nil && strings.TrimSpace(out) == "" {
			err = ErrEmptyResponse
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return backoff.Permanent(ctxErr)
			}
			perr := NewProviderError(name, 0, err)
			if !perr.Retryable {
				return backoff.Permanent(perr)
			}
			return perr
		}
		completion = out
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.cfg.InitialInterval
	policy.MaxInterval = c.cfg.MaxInterval
	policy.MaxElapsedTime = 0

	notify := func(err error, wait time.Duration) {
		c.metrics.RecordProviderRetry(name)
		c.logger.Warn("Model call failed, retrying",
			zap.String("provider", name),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err))
	}

	start := time.Now()
	err := backoff.RetryNotify(op,
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.cfg.MaxRetries)), ctx),
		notify)
	if err != nil {
		c.metrics.RecordProviderRequest(name, "error")
		c.logger.Error("Model call failed",
			zap.String("provider", name),
			zap.Int("attempts", attempt),
			zap.Error(err))
		if errors.Is(err, context.Canceled) || (ctx.Err() != nil && errors.Is(err, ctx.Err())) {
			return "", err
		}
		return "", NewProviderError(name, 0, err)
	}

	c.metrics.RecordProviderRequest(name, "ok")
	c.logger.Debug("Model call succeeded",
		zap.String("provider", name),
		zap.Int("attempts", attempt),
		zap.Duration("duration", time.Since(start)))
	return completion, nil
}
