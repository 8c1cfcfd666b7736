package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ARENA_MATCH_FILE", " match.yaml ")
	t.Setenv("ARENA_MAX_PLIES", "")
	t.Setenv("ARENA_FEEDBACK_POLICY", "")
	t.Setenv("ARENA_CONCURRENT_MATCHES", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MatchFile != "match.yaml" {
		t.Fatalf("match file = %q", cfg.MatchFile)
	}
	if cfg.FeedbackPolicy != "sample" || cfg.ConcurrentMatches != 1 || cfg.MaxPlies != 0 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ARENA_MATCH_FILE", "m.yaml")
	t.Setenv("ARENA_MAX_PLIES", "120")
	t.Setenv("ARENA_FEEDBACK_POLICY", "FULL")
	t.Setenv("ARENA_CONCURRENT_MATCHES", "4")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ANTHROPIC_BASE_URL", "http://localhost:9000")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxPlies != 120 || cfg.FeedbackPolicy != "full" || cfg.ConcurrentMatches != 4 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if key, _ := cfg.Credentials("OpenAI"); key != "sk-test" {
		t.Fatalf("openai key = %q", key)
	}
	if _, base := cfg.Credentials("anthropic"); base != "http://localhost:9000" {
		t.Fatalf("anthropic base = %q", base)
	}
}

func TestLoadIgnoresBadNumbers(t *testing.T) {
	t.Setenv("ARENA_MATCH_FILE", "m.yaml")
	t.Setenv("ARENA_MAX_PLIES", "lots")
	t.Setenv("ARENA_CONCURRENT_MATCHES", "-2")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxPlies != 0 || cfg.ConcurrentMatches != 1 {
		t.Fatalf("bad values should fall back to defaults: %+v", cfg)
	}
}

func TestLoadRequiresMatchFile(t *testing.T) {
	t.Setenv("ARENA_MATCH_FILE", "")
	if _, err := Load(); !errors.Is(err, ErrMatchFileRequired) {
		t.Fatalf("expected ErrMatchFileRequired, got %v", err)
	}
}

const sampleMatch = `
event: Friday night
max_plies: 200
feedback_policy: full
claim_draws: true
games: 2
alternate_colors: true
white:
  provider: OpenAI
  model: gpt-4o-mini
  persona: You love gambits.
  retry_budget: 4
  timeout: 30s
  clock: 10m
  temperature: 0.2
black:
  provider: anthropic
  model: claude-test
  api_key: file-key
  min_interval: 1s
`

func TestLoadMatchFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "match.yaml")
	if err := os.WriteFile(path, []byte(sampleMatch), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	mf, err := LoadMatchFile(path)
	if err != nil {
		t.Fatalf("LoadMatchFile: %v", err)
	}
	if mf.Games != 2 || !mf.AlternateColors || !mf.ClaimDraws || mf.MaxPlies != 200 {
		t.Fatalf("match settings: %+v", mf)
	}
	if mf.White.Provider != "openai" || mf.White.Timeout != 30*time.Second || mf.White.Clock != 10*time.Minute {
		t.Fatalf("white: %+v", mf.White)
	}
	if mf.Black.MinInterval != time.Second {
		t.Fatalf("black: %+v", mf.Black)
	}

	app := &AppConfig{OpenAIAPIKey: "env-key", AnthropicAPIKey: "env-anthropic"}
	w := mf.White.ClientConfig(app)
	if w.APIKey != "env-key" || w.Model != "gpt-4o-mini" || w.Temperature != 0.2 {
		t.Fatalf("white client config: %+v", w)
	}
	b := mf.Black.ClientConfig(app)
	if b.APIKey != "file-key" {
		t.Fatalf("file key should win, got %q", b.APIKey)
	}
	if b.Temperature != DefaultTemperature {
		t.Fatalf("unset temperature = %v, want %v", b.Temperature, DefaultTemperature)
	}
}

func TestExplicitZeroTemperatureIsKept(t *testing.T) {
	mf, err := ParseMatchFile([]byte("white: {provider: openai, model: m, temperature: 0}\nblack: {provider: openai, model: m}\n"))
	if err != nil {
		t.Fatalf("ParseMatchFile: %v", err)
	}
	if got := mf.White.ClientConfig(nil).Temperature; got != 0 {
		t.Fatalf("explicit zero temperature became %v", got)
	}
	if got := mf.Black.ClientConfig(nil).Temperature; got != DefaultTemperature {
		t.Fatalf("unset temperature = %v", got)
	}
}

func TestParseMatchFileRejects(t *testing.T) {
	cases := map[string]string{
		"missing model":   "white: {provider: openai}\nblack: {provider: openai, model: m}\n",
		"unknown key":     "colour: red\nwhite: {provider: openai, model: m}\nblack: {provider: openai, model: m}\n",
		"bad policy":      "feedback_policy: loud\nwhite: {provider: openai, model: m}\nblack: {provider: openai, model: m}\n",
		"negative clock":  "white: {provider: openai, model: m, clock: -1s}\nblack: {provider: openai, model: m}\n",
		"negative budget": "provider_budget: -1\nwhite: {provider: openai, model: m}\nblack: {provider: openai, model: m}\n",
		"negative temp":   "white: {provider: openai, model: m, temperature: -0.5}\nblack: {provider: openai, model: m}\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseMatchFile([]byte(doc)); !errors.Is(err, ErrInvalidMatchFile) {
				t.Fatalf("expected ErrInvalidMatchFile, got %v", err)
			}
		})
	}
}

func TestParseMatchFileDefaultsGames(t *testing.T) {
	mf, err := ParseMatchFile([]byte("white: {provider: openai, model: a}\nblack: {provider: openai, model: b}\n"))
	if err != nil {
		t.Fatalf("ParseMatchFile: %v", err)
	}
	if mf.Games != 1 {
		t.Fatalf("games = %d", mf.Games)
	}
}
