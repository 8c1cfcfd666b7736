// Package llm calls chat-completion providers for move proposals.
//
// Clients make exactly one HTTP request per Call. Retries, backoff and
// timeouts are the caller's concern; a client only maps what happened onto
// the provider error kinds below.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/park285/llm-chess-arena/internal/prompt"
)

var (
	ErrProviderTimeout   = errors.New("provider timeout")
	ErrProviderAuth      = errors.New("provider auth failure")
	ErrProviderRateLimit = errors.New("provider rate limited")
	ErrProviderTransport = errors.New("provider transport failure")
)

// ProviderError carries the failure kind plus HTTP details.
type ProviderError struct {
	Kind       error
	Provider   string
	Status     int
	RetryAfter time.Duration
	Body       string
	Err        error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Provider, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status=%d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	} else if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func (e *ProviderError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// Raw is one model reply.
type Raw struct {
	Text         string
	Model        string
	Latency      time.Duration
	InputTokens  int
	OutputTokens int
}

// Client is a provider binding.
type Client interface {
	Provider() string
	Model() string
	Call(ctx context.Context, p prompt.Payload) (Raw, error)
}

// Config holds everything needed to construct a client. Credentials are always
// passed in; clients never read the environment.
type Config struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64
	MaxTokens   int

	// MinInterval spaces consecutive calls on the same client.
	MinInterval time.Duration
	// RequestTimeout caps a single request when ctx has no earlier deadline.
	RequestTimeout time.Duration

	transport []TransportOption
}

// WithTransportOptions attaches low-level HTTP options, mainly for tests.
func (c Config) WithTransportOptions(opts ...TransportOption) Config {
	c.transport = append(append([]TransportOption(nil), c.transport...), opts...)
	return c
}
