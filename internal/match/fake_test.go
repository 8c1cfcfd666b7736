package match

import (
	"context"
	"fmt"
	"sync"

	"github.com/park285/llm-chess-arena/internal/llm"
	"github.com/park285/llm-chess-arena/internal/prompt"
)

// fakeClient answers every call through fn and records the prompts it saw.
type fakeClient struct {
	name string
	fn   func(ctx context.Context, call int, p prompt.Payload) (string, error)

	mu       sync.Mutex
	payloads []prompt.Payload
}

func (f *fakeClient) Provider() string { return "fake" }
func (f *fakeClient) Model() string    { return f.name }

func (f *fakeClient) Call(ctx context.Context, p prompt.Payload) (llm.Raw, error) {
	f.mu.Lock()
	f.payloads = append(f.payloads, p)
	call := len(f.payloads)
	f.mu.Unlock()
	text, err := f.fn(ctx, call, p)
	if err != nil {
		return llm.Raw{}, err
	}
	return llm.Raw{Text: text, Model: f.name}, nil
}

func (f *fakeClient) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func (f *fakeClient) prompt(i int) prompt.Payload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.payloads[i]
}

// scripted replies with one JSON move per call and a malformed reply once the
// script runs out.
func scripted(name string, moves ...string) *fakeClient {
	return &fakeClient{name: name, fn: func(_ context.Context, call int, _ prompt.Payload) (string, error) {
		if call > len(moves) {
			return "I have nothing left to say.", nil
		}
		return fmt.Sprintf(`{"move": %q, "explanation": "scripted", "confidence": 0.5}`, moves[call-1]), nil
	}}
}

// replies returns raw texts in order, repeating the last one.
func replies(name string, texts ...string) *fakeClient {
	return &fakeClient{name: name, fn: func(_ context.Context, call int, _ prompt.Payload) (string, error) {
		if call > len(texts) {
			return texts[len(texts)-1], nil
		}
		return texts[call-1], nil
	}}
}

func failing(name string, err error) *fakeClient {
	return &fakeClient{name: name, fn: func(context.Context, int, prompt.Payload) (string, error) {
		return "", err
	}}
}

// blocking waits for cancellation and reports it the way a real client does.
func blocking(name string) *fakeClient {
	return &fakeClient{name: name, fn: func(ctx context.Context, _ int, _ prompt.Payload) (string, error) {
		<-ctx.Done()
		return "", &llm.ProviderError{Kind: llm.ErrProviderTimeout, Provider: "fake", Err: ctx.Err()}
	}}
}
