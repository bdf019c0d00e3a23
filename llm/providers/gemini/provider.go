package gemini

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

// Config is the Gemini-specific subset of market.ProviderConfig.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Provider calls the Gemini generateContent endpoint.
type Provider struct {
	cfg        Config
	httpClient *http.Client
	costs      *cost.Calculator
	logger     *zap.Logger
}

// New creates a Gemini provider adapter.
func New(cfg Config, costs *cost.Calculator, logger *zap.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com"
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

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature,omitempty"`
	ResponseMIMEType string  `json:"responseMimeType,omitempty"`
}

type generateRequest struct {
	Contents         []geminiContent   `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type candidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type usageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type generateResponse struct {
	Candidates    []candidate    `json:"candidates"`
	UsageMetadata *usageMetadata `json:"usageMetadata"`
}

var unsafeFinishReasons = map[string]bool{
	"SAFETY":    true,
	"RECITATION": true,
	"OTHER":     true,
}

// Call submits one prompt via generateContent and parses the JSON answer
// contract out of the concatenated text parts of the first candidate.
func (p *Provider) Call(ctx context.Context, model, prompt string) (*market.ProviderAnswer, error) {
	start := time.Now()

	body := generateRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: &generationConfig{
			Temperature:      0.2,
			ResponseMIMEType: "application/json",
		},
	}
	buf := pool.ByteBufferPool.Get()
	defer pool.ByteBufferPool.Put(buf)
	if err := json.NewEncoder(buf).Encode(body); err != nil {
		return nil, market.Wrap(market.KindConfigError, "marshal request", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", strings.TrimRight(p.cfg.BaseURL, "/"), model, p.cfg.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, market.Wrap(market.KindConfigError, "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, providers.ClassifyTransportError(err, "gemini request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := providers.ReadErrorMessage(resp.Body)
		return nil, providers.MapHTTPError(resp.StatusCode, msg)
	}

	var parsed generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, market.Wrap(market.KindParseError, "decode gemini response", err)
	}
	if len(parsed.Candidates) == 0 {
		return nil, market.New(market.KindParseError, "gemini response had no candidates")
	}

	latency := time.Since(start).Milliseconds()
	answer := &market.ProviderAnswer{
		Provider:  market.ProviderGemini,
		Model:     model,
		Status:    market.AnswerOK,
		LatencyMS: latency,
	}
	if parsed.UsageMetadata != nil {
		answer.Usage = market.Usage{
			InputTokens:  parsed.UsageMetadata.PromptTokenCount,
			OutputTokens: parsed.UsageMetadata.CandidatesTokenCount,
			TotalTokens:  parsed.UsageMetadata.TotalTokenCount,
		}
	}

	first := parsed.Candidates[0]
	if unsafeFinishReasons[first.FinishReason] {
		answer.Status = market.AnswerError
		answer.Err = market.New(market.KindSafetyBlock, "gemini finish_reason="+first.FinishReason)
		return answer, nil
	}

	var text strings.Builder
	for _, part := range first.Content.Parts {
		text.WriteString(part.Text)
	}

	content := text.String()
	if !providers.ParseRoundAnswer(content, answer) {
		answer.Status = market.AnswerParseError
		answer.Answer = content
		answer.Err = market.New(market.KindParseError, fmt.Sprintf("could not recover JSON from gemini reply for model %s", model))
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
