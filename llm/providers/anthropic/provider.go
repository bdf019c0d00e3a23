package anthropic

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

const anthropicVersion = "2023-06-01"

// Config is the Anthropic-specific subset of market.ProviderConfig.
type Config struct {
	APIKey    string
	BaseURL   string
	Timeout   time.Duration
	MaxTokens int
}

// Provider calls the Anthropic /v1/messages endpoint.
type Provider struct {
	cfg        Config
	httpClient *http.Client
	costs      *cost.Calculator
	logger     *zap.Logger
}

// New creates an Anthropic provider adapter.
func New(cfg Config, costs *cost.Calculator, logger *zap.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
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

type messageParam struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model     string         `json:"model"`
	MaxTokens int            `json:"max_tokens"`
	Messages  []messageParam `json:"messages"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type messagesResponse struct {
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      usage          `json:"usage"`
}

// Call submits one prompt as a single user turn and parses the JSON answer
// contract out of the concatenated text blocks of the reply.
func (p *Provider) Call(ctx context.Context, model, prompt string) (*market.ProviderAnswer, error) {
	start := time.Now()

	body := messagesRequest{
		Model:     model,
		MaxTokens: p.cfg.MaxTokens,
		Messages:  []messageParam{{Role: "user", Content: prompt}},
	}
	buf := pool.ByteBufferPool.Get()
	defer pool.ByteBufferPool.Put(buf)
	if err := json.NewEncoder(buf).Encode(body); err != nil {
		return nil, market.Wrap(market.KindConfigError, "marshal request", err)
	}

	endpoint := strings.TrimRight(p.cfg.BaseURL, "/") + "/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, market.Wrap(market.KindConfigError, "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, providers.ClassifyTransportError(err, "anthropic request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := providers.ReadErrorMessage(resp.Body)
		return nil, providers.MapHTTPError(resp.StatusCode, msg)
	}

	var parsed messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, market.Wrap(market.KindParseError, "decode anthropic response", err)
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	latency := time.Since(start).Milliseconds()

	answer := &market.ProviderAnswer{
		Provider:  market.ProviderAnthropic,
		Model:     model,
		Status:    market.AnswerOK,
		LatencyMS: latency,
		Usage: market.Usage{
			InputTokens:  parsed.Usage.InputTokens,
			OutputTokens: parsed.Usage.OutputTokens,
			TotalTokens:  parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
		},
	}

	switch parsed.StopReason {
	case "content_filter", "safety":
		answer.Status = market.AnswerError
		answer.Err = market.New(market.KindSafetyBlock, "anthropic stop_reason="+parsed.StopReason)
		return answer, nil
	}

	content := text.String()
	if !providers.ParseRoundAnswer(content, answer) {
		answer.Status = market.AnswerParseError
		answer.Answer = content
		answer.Err = market.New(market.KindParseError, fmt.Sprintf("could not recover JSON from anthropic reply for model %s", model))
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
