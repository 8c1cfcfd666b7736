package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/valyala/fasthttp"
)

// transport is a thin fasthttp JSON client shared by the provider bindings.
type transport struct {
	provider string
	baseURL  string
	http     *fasthttp.Client
	headers  map[string]string

	defaultTimeout time.Duration
	minInterval    time.Duration

	mu       sync.Mutex
	lastCall time.Time
}

// TransportOption configures the HTTP layer.
type TransportOption func(*transport)

// WithDial overrides how connections are opened (fasthttputil listeners in tests).
func WithDial(dial fasthttp.DialFunc) TransportOption {
	return func(t *transport) { t.http.Dial = dial }
}

func WithMaxConnsPerHost(n int) TransportOption {
	return func(t *transport) { t.http.MaxConnsPerHost = n }
}

func newTransport(provider, baseURL string, headers map[string]string, cfg Config) *transport {
	t := &transport{
		provider:       provider,
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 120 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		headers:        headers,
		defaultTimeout: 60 * time.Second,
		minInterval:    cfg.MinInterval,
	}
	if cfg.RequestTimeout > 0 {
		t.defaultTimeout = cfg.RequestTimeout
	}
	for _, opt := range cfg.transport {
		opt(t)
	}
	return t
}

func (t *transport) postJSON(ctx context.Context, path string, in any, out any) error {
	if err := t.waitTurn(ctx); err != nil {
		return t.fail(ErrProviderTimeout, 0, err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	release := func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}
	owned := true
	defer func() {
		if owned {
			release()
		}
	}()

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(t.baseURL + path)
	req.Header.SetContentType("application/json")
	for k, v := range t.headers {
		if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
			req.Header.Set(k, v)
		}
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req.SetBody(payload)

	// fasthttp does not watch ctx, so a cancelled call returns at once and
	// the request buffers are released when DoDeadline gives up.
	done := make(chan error, 1)
	go func() { done <- t.http.DoDeadline(req, resp, t.computeDeadline(ctx)) }()
	var doErr error
	select {
	case doErr = <-done:
	case <-ctx.Done():
		owned = false
		go func() {
			<-done
			release()
		}()
		return t.fail(ErrProviderTimeout, 0, ctx.Err())
	}
	if doErr != nil {
		if errors.Is(doErr, fasthttp.ErrTimeout) || errors.Is(doErr, fasthttp.ErrDialTimeout) || ctx.Err() != nil {
			return t.fail(ErrProviderTimeout, 0, doErr)
		}
		return t.fail(ErrProviderTransport, 0, doErr)
	}

	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		pe := &ProviderError{
			Kind:     statusKind(status),
			Provider: t.provider,
			Status:   status,
			Body:     truncate(string(resp.Body()), 512),
		}
		if status == fasthttp.StatusTooManyRequests {
			pe.RetryAfter = retryAfter(string(resp.Header.Peek("Retry-After")))
		}
		return pe
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return t.fail(ErrProviderTransport, status, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func (t *transport) fail(kind error, status int, err error) *ProviderError {
	return &ProviderError{Kind: kind, Provider: t.provider, Status: status, Err: err}
}

// waitTurn enforces the minimum spacing between calls.
func (t *transport) waitTurn(ctx context.Context) error {
	if t.minInterval <= 0 {
		return nil
	}
	t.mu.Lock()
	wait := time.Until(t.lastCall.Add(t.minInterval))
	if wait < 0 {
		wait = 0
	}
	t.lastCall = time.Now().Add(wait)
	t.mu.Unlock()
	if wait == 0 {
		return nil
	}
	return sleepWithContext(ctx, wait)
}

func (t *transport) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(t.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func statusKind(code int) error {
	switch code {
	case fasthttp.StatusUnauthorized, fasthttp.StatusForbidden:
		return ErrProviderAuth
	case fasthttp.StatusTooManyRequests:
		return ErrProviderRateLimit
	case fasthttp.StatusRequestTimeout, fasthttp.StatusGatewayTimeout:
		return ErrProviderTimeout
	default:
		return ErrProviderTransport
	}
}

func retryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := time.Parse(time.RFC1123, v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
