// Package openai implements the OpenAI chat-completions adapter.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dreddmarket/engine/internal/pool"
	"github.com/dreddmarket/engine/llm/cost"
	"github.com/dreddmarket/engine/llm/providers"
	"github.com/dreddmarket/engine/market"
	"go.uber.org/zap"
)

// Config is the OpenAI-specific subset of market.ProviderConfig.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Provider calls the OpenAI /v1/chat/completions endpoint.
type Provider struct {
	cfg        Config
	httpClient *http.Client
	costs      *cost.Calculator
	logger     *zap.Logger
}

// New creates an OpenAI provider adapter.
func New(cfg Config, costs *cost.Calculator, logger *zap.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		costs:      costs,
		logger:     logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	Temperature    float64         `json:"temperature,omitempty"`
}

type chatChoice struct {
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

// Call submits one prompt as a single user turn and parses the JSON answer
// contract out of the model's reply.
func (p *Provider) Call(ctx context.Context, model, prompt string) (*market.ProviderAnswer, error) {
	start := time.Now()

	body := chatRequest{
		Model:          model,
		Messages:       []chatMessage{{Role: "user", Content: prompt}},
		ResponseFormat: &responseFormat{Type: "json_object"},
		Temperature:    0.2,
	}
	buf := pool.ByteBufferPool.Get()
	defer pool.ByteBufferPool.Put(buf)
	if err := json.NewEncoder(buf).Encode(body); err != nil {
		return nil, market.Wrap(market.KindConfigError, "marshal request", err)
	}

	endpoint := strings.TrimRight(p.cfg.BaseURL, "/") + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, market.Wrap(market.KindConfigError, "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, providers.ClassifyTransportError(err, "openai request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := providers.ReadErrorMessage(resp.Body)
		return nil, providers.MapHTTPError(resp.StatusCode, msg)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, market.Wrap(market.KindParseError, "decode openai response", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, market.New(market.KindParseError, "openai response had no choices")
	}

	content := parsed.Choices[0].Message.Content
	latency := time.Since(start).Milliseconds()

	answer := &market.ProviderAnswer{
		Provider:  market.ProviderOpenAI,
		Model:     model,
		Status:    market.AnswerOK,
		LatencyMS: latency,
		Usage: market.Usage{
			InputTokens:  parsed.Usage.PromptTokens,
			OutputTokens: parsed.Usage.CompletionTokens,
			TotalTokens:  parsed.Usage.TotalTokens,
		},
	}

	if !providers.ParseRoundAnswer(content, answer) {
		answer.Status = market.AnswerParseError
		answer.Answer = content
		answer.Err = market.New(market.KindParseError, fmt.Sprintf("could not recover JSON from openai reply for model %s", model))
	}

	if answer.Usage.TotalTokens == 0 {
		answer.Usage.InputTokens = providers.EstimateTokens(prompt)
		answer.Usage.OutputTokens = providers.EstimateTokens(content)
		answer.Usage.TotalTokens = answer.Usage.InputTokens + answer.Usage.OutputTokens
	}

	if p.costs != nil {
		if usd, ok := p.costs.Calculate(model, answer.Usage.InputTokens, answer.Usage.OutputTokens); ok {
			answer.Usage.CostUSD = usd
		}
	}

	return answer, nil
}
