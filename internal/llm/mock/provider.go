// Package mock provides a scripted llm.Provider for tests.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/ashutoshrp06/toolloop/internal/llm"
)

// ErrScriptExhausted is returned once every scripted reply has been used.
var ErrScriptExhausted = errors.New("mock: no scripted replies left")

// Provider is a test double implementing llm.Provider. GenerateFn wins over
// Replies when both are set.
type Provider struct {
	NameValue  string
	GenerateFn func(ctx context.Context, req llm.Request) (string, error)
	// Replies are returned in order, one per call.
	Replies []string

	mu       sync.Mutex
	requests []llm.Request
}

// NewScripted returns a provider that answers with replies in order.
func NewScripted(replies ...string) *Provider {
	return &Provider{Replies: replies}
}

func (p *Provider) Name() string {
	if p.NameValue != "" {
		return p.NameValue
	}
	return "mock"
}

func (p *Provider) Generate(ctx context.Context, req llm.Request) (string, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	n := len(p.requests)
	p.mu.Unlock()

	if p.GenerateFn != nil {
		return p.GenerateFn(ctx, req)
	}
	if n > len(p.Replies) {
		return "", &llm.ProviderError{Provider: p.Name(), Err: ErrScriptExhausted}
	}
	return p.Replies[n-1], nil
}

// Requests returns every request received so far.
func (p *Provider) Requests() []llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]llm.Request, len(p.requests))
	copy(out, p.requests)
	return out
}

// Calls returns the number of Generate calls.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}
