package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/park285/llm-chess-arena/internal/llm"
	"github.com/park285/llm-chess-arena/internal/prompt"
)

var ErrInvalidMatchFile = errors.New("invalid match file")

// DefaultTemperature is sent when a player leaves temperature unset.
const DefaultTemperature = 0.7

// PlayerFile configures one side of a match.
type PlayerFile struct {
	Name        string        `yaml:"name"`
	Provider    string        `yaml:"provider"`
	Model       string        `yaml:"model"`
	Persona     string        `yaml:"persona"`
	RetryBudget int           `yaml:"retry_budget"`
	Timeout     time.Duration `yaml:"timeout"`
	Temperature *float64      `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Clock       time.Duration `yaml:"clock"`
	MinInterval time.Duration `yaml:"min_interval"`

	// APIKey and BaseURL override the environment for this player.
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// MatchFile is the YAML definition of one or more games between two players.
type MatchFile struct {
	Event          string `yaml:"event"`
	StartFEN       string `yaml:"start_fen"`
	MaxPlies       int    `yaml:"max_plies"`
	ProviderBudget int    `yaml:"provider_budget"`
	FeedbackPolicy string `yaml:"feedback_policy"`
	ClaimDraws     bool   `yaml:"claim_draws"`

	// Games is the number of games to play; AlternateColors swaps sides on
	// every other game.
	Games           int  `yaml:"games"`
	AlternateColors bool `yaml:"alternate_colors"`

	White PlayerFile `yaml:"white"`
	Black PlayerFile `yaml:"black"`
}

func LoadMatchFile(path string) (*MatchFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseMatchFile(raw)
}

// ParseMatchFile decodes and validates a match definition. Unknown keys are
// rejected.
func ParseMatchFile(raw []byte) (*MatchFile, error) {
	var mf MatchFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&mf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMatchFile, err)
	}
	if mf.Games <= 0 {
		mf.Games = 1
	}
	if err := mf.validate(); err != nil {
		return nil, err
	}
	return &mf, nil
}

func (mf *MatchFile) validate() error {
	sides := []struct {
		name string
		p    *PlayerFile
	}{{"white", &mf.White}, {"black", &mf.Black}}
	for _, sd := range sides {
		side, p := sd.name, sd.p
		p.Provider = strings.ToLower(strings.TrimSpace(p.Provider))
		p.Model = strings.TrimSpace(p.Model)
		if p.Provider == "" || p.Model == "" {
			return fmt.Errorf("%w: %s needs provider and model", ErrInvalidMatchFile, side)
		}
		if p.RetryBudget < 0 || p.Timeout < 0 || p.Clock < 0 || p.MaxTokens < 0 || (p.Temperature != nil && *p.Temperature < 0) {
			return fmt.Errorf("%w: %s has a negative limit", ErrInvalidMatchFile, side)
		}
	}
	if mf.MaxPlies < 0 || mf.ProviderBudget < 0 {
		return fmt.Errorf("%w: negative match limit", ErrInvalidMatchFile)
	}
	if mf.FeedbackPolicy != "" {
		if _, err := prompt.ParseFeedbackPolicy(mf.FeedbackPolicy); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidMatchFile, err)
		}
	}
	return nil
}

// ClientConfig builds the model client configuration for a player, taking
// credentials from the environment unless the file sets them.
func (p PlayerFile) ClientConfig(app *AppConfig) llm.Config {
	cfg := llm.Config{
		Provider:    p.Provider,
		Model:       p.Model,
		APIKey:      p.APIKey,
		BaseURL:     p.BaseURL,
		Temperature: DefaultTemperature,
		MaxTokens:   p.MaxTokens,
		MinInterval: p.MinInterval,
	}
	if p.Temperature != nil {
		cfg.Temperature = *p.Temperature
	}
	if app != nil {
		key, base := app.Credentials(p.Provider)
		if cfg.APIKey == "" {
			cfg.APIKey = key
		}
		if cfg.BaseURL == "" {
			cfg.BaseURL = base
		}
	}
	return cfg
}
