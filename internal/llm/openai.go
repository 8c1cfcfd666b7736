package llm

import (
	"context"
	"strings"
	"time"

	"github.com/park285/llm-chess-arena/internal/prompt"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model          string            `json:"model"`
	Messages       []openAIMessage   `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type openAIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// OpenAI talks to the chat completions endpoint in JSON mode.
type OpenAI struct {
	t           *transport
	model       string
	temperature float64
	maxTokens   int
}

func NewOpenAI(cfg Config) (*OpenAI, error) {
	if err := requireCredentials("openai", cfg); err != nil {
		return nil, err
	}
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = defaultOpenAIBaseURL
	}
	headers := map[string]string{"Authorization": "Bearer " + cfg.APIKey}
	return &OpenAI{
		t:           newTransport("openai", base, headers, cfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

func (c *OpenAI) Provider() string { return "openai" }
func (c *OpenAI) Model() string    { return c.model }

func (c *OpenAI) Call(ctx context.Context, p prompt.Payload) (Raw, error) {
	req := openAIRequest{
		Model: c.model,
		Messages: []openAIMessage{
			{Role: "system", Content: p.System},
			{Role: "user", Content: p.User},
		},
		Temperature:    c.temperature,
		MaxTokens:      c.maxTokens,
		ResponseFormat: map[string]string{"type": "json_object"},
	}
	start := time.Now()
	var resp openAIResponse
	if err := c.t.postJSON(ctx, "/chat/completions", req, &resp); err != nil {
		return Raw{}, err
	}
	raw := Raw{
		Model:        resp.Model,
		Latency:      time.Since(start),
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	if len(resp.Choices) > 0 {
		raw.Text = resp.Choices[0].Message.Content
	}
	return raw, nil
}
