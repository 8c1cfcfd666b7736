package llm

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownProvider is returned for a provider name with no registered factory.
var ErrUnknownProvider = errors.New("unknown provider")

// Factory builds a client from configuration.
type Factory func(Config) (Client, error)

// Registry maps provider names to factories. It is built once at startup and
// only read afterwards.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns a registry with the openai and anthropic bindings.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("openai", func(c Config) (Client, error) { return NewOpenAI(c) })
	r.Register("anthropic", func(c Config) (Client, error) { return NewAnthropic(c) })
	return r
}

// Register adds or replaces a factory.
func (r *Registry) Register(name string, f Factory) {
	r.factories[strings.ToLower(strings.TrimSpace(name))] = f
}

// Providers lists registered names, sorted.
func (r *Registry) Providers() []string {
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// New builds the client named by cfg.Provider.
func (r *Registry) New(cfg Config) (Client, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Provider))
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w %q (known: %s)", ErrUnknownProvider, cfg.Provider, strings.Join(r.Providers(), ", "))
	}
	return f(cfg)
}

func requireCredentials(provider string, cfg Config) error {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return fmt.Errorf("%s: api key is required", provider)
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return fmt.Errorf("%s: model is required", provider)
	}
	return nil
}
