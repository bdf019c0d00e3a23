// Package providers holds the HTTP-facing adapters for each supported
// remote model (component A): request building, response normalization,
// and classification of transport/HTTP failures into market.Error.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"sync"

	"github.com/dreddmarket/engine/market"
	"github.com/pkoukk/tiktoken-go"
)

// Adapter is the wire-protocol contract each provider package implements.
// A single call maps one prompt to one normalized market.ProviderAnswer;
// callers (llm/client) own retries, rate limiting and circuit breaking.
type Adapter interface {
	Call(ctx context.Context, model, prompt string) (*market.ProviderAnswer, error)
}

// MapHTTPError classifies an HTTP status code into a market.Error per §4.1's
// response classification table.
func MapHTTPError(status int, msg string) *market.Error {
	switch status {
	case http.StatusUnauthorized:
		return market.New(market.KindAuthError, msg).WithStatus(status)
	case http.StatusForbidden:
		return market.New(market.KindForbidden, msg).WithStatus(status)
	case http.StatusTooManyRequests:
		return market.New(market.KindRateLimit, msg).WithStatus(status)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return market.New(market.KindServerError, msg).WithStatus(status)
	default:
		if status >= 500 {
			return market.New(market.KindServerError, msg).WithStatus(status)
		}
		return market.New(market.KindNetworkError, msg).WithStatus(status)
	}
}

// ClassifyTransportError distinguishes a transport timeout — a context
// deadline or a net.Error reporting Timeout() — from any other httpClient.Do
// failure, per §4.1's "transport timeout -> {timeout, no status}" row. Any
// other error (DNS failure, connection refused, reset) is KindNetworkError.
func ClassifyTransportError(err error, msg string) *market.Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return market.Wrap(market.KindTimeout, msg, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return market.Wrap(market.KindTimeout, msg, err)
	}
	return market.Wrap(market.KindNetworkError, msg, err)
}

// ReadErrorMessage extracts a human-readable message from an error response
// body, falling back to the raw text if it isn't the expected JSON shape.
func ReadErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(body)
	if err != nil {
		return "failed to read error response"
	}

	var errResp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		return errResp.Error.Message
	}
	return string(data)
}

var (
	fencedJSONRe    = regexp.MustCompile("(?s)```(?:json)?\\s*\\n(.*?)\\n```")
	trailingCommaRe = regexp.MustCompile(`,\s*([\]}])`)
	lineCommentRe   = regexp.MustCompile(`//[^\n]*`)
)

// RecoverJSON attempts to parse raw as JSON directly; on failure it applies,
// in order: (a) extraction of the first fenced ```json code block, (b)
// stripping of trailing commas before ] or }, (c) stripping of // comments.
// It returns the first candidate that parses successfully.
func RecoverJSON(raw string, target any) bool {
	if json.Unmarshal([]byte(raw), target) == nil {
		return true
	}

	candidate := raw
	if m := fencedJSONRe.FindStringSubmatch(raw); len(m) == 2 {
		candidate = m[1]
		if json.Unmarshal([]byte(candidate), target) == nil {
			return true
		}
	}

	stripped := trailingCommaRe.ReplaceAllString(candidate, "$1")
	if json.Unmarshal([]byte(stripped), target) == nil {
		return true
	}

	noComments := lineCommentRe.ReplaceAllString(stripped, "")
	return json.Unmarshal([]byte(noComments), target) == nil
}

// roundAnswerPayload is the Round-1/Round-2 JSON contract §6 describes.
type roundAnswerPayload struct {
	Answer      string              `json:"answer"`
	Confidence  *float64            `json:"confidence"`
	KeyClaims   []string            `json:"key_claims"`
	Assumptions []string            `json:"assumptions"`
	Citations   []market.Citation   `json:"citations"`
}

// ParseRoundAnswer tries to decode text as the round-answer JSON contract,
// applying RecoverJSON's heuristics. On success it fills in the normalized
// fields on answer and returns true.
func ParseRoundAnswer(text string, answer *market.ProviderAnswer) bool {
	var payload roundAnswerPayload
	if !RecoverJSON(text, &payload) {
		return false
	}
	if payload.Answer == "" {
		answer.Answer = text
	} else {
		answer.Answer = payload.Answer
	}
	answer.Confidence = payload.Confidence
	answer.KeyClaims = payload.KeyClaims
	answer.Assumptions = payload.Assumptions
	answer.Citations = payload.Citations
	return true
}

// stripCodeFence trims surrounding whitespace only; it does not remove a
// code fence. No adapter in this module calls it.
func stripCodeFence(s string) string {
	return strings.TrimSpace(s)
}

var (
	tokenizerOnce sync.Once
	tokenizer     *tiktoken.Tiktoken
)

// EstimateTokens counts s with the cl100k_base BPE encoding, used whenever
// a provider response omits usage fields (§4.1) so the cost calculator
// always has a number to price. It is an approximation — providers that
// use a different tokenizer will disagree slightly — not a substitute for
// a real usage field when one is present.
func EstimateTokens(s string) int {
	tokenizerOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			tokenizer = enc
		}
	})
	if tokenizer == nil || s == "" {
		return 0
	}
	return len(tokenizer.Encode(s, nil, nil))
}
