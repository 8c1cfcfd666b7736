package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
)

// AppConfig is the process-level configuration read from the environment.
// Per-match settings live in the match file; see LoadMatchFile.
type AppConfig struct {
	MatchFile string

	OpenAIAPIKey     string
	OpenAIBaseURL    string
	AnthropicAPIKey  string
	AnthropicBaseURL string

	MaxPlies       int
	FeedbackPolicy string
	PromptDir      string

	RedisURL string
	WSAddr   string

	ConcurrentMatches int
}

var ErrMatchFileRequired = errors.New("ARENA_MATCH_FILE is required")

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		FeedbackPolicy:    "sample",
		ConcurrentMatches: 1,
	}

	cfg.MatchFile = strings.TrimSpace(os.Getenv("ARENA_MATCH_FILE"))

	cfg.OpenAIAPIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	cfg.OpenAIBaseURL = strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
	cfg.AnthropicAPIKey = strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	cfg.AnthropicBaseURL = strings.TrimSpace(os.Getenv("ANTHROPIC_BASE_URL"))

	if v := strings.TrimSpace(os.Getenv("ARENA_MAX_PLIES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxPlies = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("ARENA_FEEDBACK_POLICY")); v != "" {
		cfg.FeedbackPolicy = strings.ToLower(v)
	}
	cfg.PromptDir = strings.TrimSpace(os.Getenv("ARENA_PROMPT_DIR"))

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.WSAddr = strings.TrimSpace(os.Getenv("ARENA_WS_ADDR"))

	if v := strings.TrimSpace(os.Getenv("ARENA_CONCURRENT_MATCHES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ConcurrentMatches = n
		}
	}

	if cfg.MatchFile == "" {
		return nil, ErrMatchFileRequired
	}
	return cfg, nil
}

// Credentials returns the environment API key and base URL for a provider.
func (c *AppConfig) Credentials(provider string) (apiKey, baseURL string) {
	switch strings.ToLower(provider) {
	case "openai":
		return c.OpenAIAPIKey, c.OpenAIBaseURL
	case "anthropic":
		return c.AnthropicAPIKey, c.AnthropicBaseURL
	}
	return "", ""
}
