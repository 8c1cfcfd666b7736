package llm

import (
	"context"
	"strings"
	"time"

	"github.com/park285/llm-chess-arena/internal/prompt"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"
	anthropicMaxTokens      = 1000
)

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature"`
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Anthropic talks to the Messages API.
type Anthropic struct {
	t           *transport
	model       string
	temperature float64
	maxTokens   int
}

func NewAnthropic(cfg Config) (*Anthropic, error) {
	if err := requireCredentials("anthropic", cfg); err != nil {
		return nil, err
	}
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = defaultAnthropicBaseURL
	}
	headers := map[string]string{
		"x-api-key":         cfg.APIKey,
		"anthropic-version": anthropicVersion,
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicMaxTokens
	}
	return &Anthropic{
		t:           newTransport("anthropic", base, headers, cfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
	}, nil
}

func (c *Anthropic) Provider() string { return "anthropic" }
func (c *Anthropic) Model() string    { return c.model }

func (c *Anthropic) Call(ctx context.Context, p prompt.Payload) (Raw, error) {
	req := anthropicRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		System:      p.System,
		Messages:    []anthropicMessage{{Role: "user", Content: p.User}},
		Temperature: c.temperature,
	}
	start := time.Now()
	var resp anthropicResponse
	if err := c.t.postJSON(ctx, "/v1/messages", req, &resp); err != nil {
		return Raw{}, err
	}
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return Raw{
		Text:         sb.String(),
		Model:        resp.Model,
		Latency:      time.Since(start),
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}
