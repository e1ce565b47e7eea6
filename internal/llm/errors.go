package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
)

// ErrEmptyResponse is reported when a provider returns no text.
var ErrEmptyResponse = errors.New("empty response from model")

// ProviderError is a failed model call.
type ProviderError struct {
	Provider   string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Retryable
	}
	return false
}

// NewProviderError wraps err, classifying it by status code and message.
// A status of zero means the status is unknown.
func NewProviderError(provider string, status int, err error) *ProviderError {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr
	}
	return &ProviderError{
		Provider:   provider,
		StatusCode: status,
		Retryable:  retryable(status, err),
		Err:        err,
	}
}

var statusRegexp = regexp.MustCompile(`(?i)status(?: code)?:?\s*(\d{3})`)

// StatusFromError extracts an HTTP status code embedded in an error message,
// for SDKs that do not expose a typed error. It returns 0 when none is found.
func StatusFromError(err error) int {
	if err == nil {
		return 0
	}
	m := statusRegexp.FindStringSubmatch(err.Error())
	if m == nil {
		return 0
	}
	code, _ := strconv.Atoi(m[1])
	return code
}

var transientMarkers = []string{
	"resource_exhausted",
	"unavailable",
	"deadline_exceeded",
	"rate limit",
	"overloaded",
	"timeout",
	"connection reset",
	"connection refused",
	"eof",
}

func retryable(status int, err error) bool {
	switch {
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout:
		return true
	case status >= 500:
		return true
	case status >= 400:
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrEmptyResponse) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
