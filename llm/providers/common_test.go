package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/dreddmarket/engine/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapHTTPError(t *testing.T) {
	cases := []struct {
		status int
		kind   market.Kind
	}{
		{http.StatusUnauthorized, market.KindAuthError},
		{http.StatusForbidden, market.KindForbidden},
		{http.StatusTooManyRequests, market.KindRateLimit},
		{http.StatusInternalServerError, market.KindServerError},
		{http.StatusBadGateway, market.KindServerError},
		{http.StatusBadRequest, market.KindNetworkError},
	}
	for _, c := range cases {
		err := MapHTTPError(c.status, "boom")
		assert.Equal(t, c.kind, err.Kind)
		assert.Equal(t, c.status, err.HTTPStatus)
	}
}

type fakeTimeoutErr struct{}

func (fakeTimeoutErr) Error() string   { return "i/o timeout" }
func (fakeTimeoutErr) Timeout() bool   { return true }
func (fakeTimeoutErr) Temporary() bool { return true }

func TestClassifyTransportError_ContextDeadline(t *testing.T) {
	err := ClassifyTransportError(context.DeadlineExceeded, "boom")
	assert.Equal(t, market.KindTimeout, err.Kind)
}

func TestClassifyTransportError_NetTimeout(t *testing.T) {
	wrapped := fmt.Errorf("dial tcp: %w", fakeTimeoutErr{})
	err := ClassifyTransportError(wrapped, "boom")
	assert.Equal(t, market.KindTimeout, err.Kind)
}

func TestClassifyTransportError_OtherNetworkError(t *testing.T) {
	err := ClassifyTransportError(errors.New("connection refused"), "boom")
	assert.Equal(t, market.KindNetworkError, err.Kind)
}

func TestReadErrorMessage_JSONShape(t *testing.T) {
	body := strings.NewReader(`{"error":{"message":"invalid api key","type":"invalid_request_error"}}`)
	assert.Equal(t, "invalid api key", ReadErrorMessage(body))
}

func TestReadErrorMessage_RawFallback(t *testing.T) {
	body := strings.NewReader(`not json at all`)
	assert.Equal(t, "not json at all", ReadErrorMessage(body))
}

func TestRecoverJSON_DirectParse(t *testing.T) {
	var out map[string]any
	ok := RecoverJSON(`{"answer":"42"}`, &out)
	require.True(t, ok)
	assert.Equal(t, "42", out["answer"])
}

func TestRecoverJSON_FencedCodeBlock(t *testing.T) {
	raw := "Here you go:\n```json\n{\"answer\":\"42\"}\n```\nHope that helps."
	var out map[string]any
	ok := RecoverJSON(raw, &out)
	require.True(t, ok)
	assert.Equal(t, "42", out["answer"])
}

func TestRecoverJSON_TrailingComma(t *testing.T) {
	raw := `{"answer":"42","key_claims":["a","b",],}`
	var out map[string]any
	ok := RecoverJSON(raw, &out)
	require.True(t, ok)
	assert.Equal(t, "42", out["answer"])
}

func TestRecoverJSON_LineComments(t *testing.T) {
	raw := "{\n  \"answer\": \"42\", // the answer\n  \"confidence\": 0.9\n}"
	var out map[string]any
	ok := RecoverJSON(raw, &out)
	require.True(t, ok)
	assert.Equal(t, "42", out["answer"])
}

func TestRecoverJSON_Unrecoverable(t *testing.T) {
	var out map[string]any
	ok := RecoverJSON("not json and no fences here", &out)
	assert.False(t, ok)
}

func TestParseRoundAnswer_UnparseableReturnsFalse(t *testing.T) {
	answer := &market.ProviderAnswer{}
	ok := ParseRoundAnswer("not json at all, just prose", answer)
	assert.False(t, ok)
}

func TestParseRoundAnswer_FillsFields(t *testing.T) {
	answer := &market.ProviderAnswer{}
	raw := `{"answer":"42","confidence":0.85,"key_claims":["the answer is 42"],"assumptions":["base 10"]}`
	ok := ParseRoundAnswer(raw, answer)
	require.True(t, ok)
	assert.Equal(t, "42", answer.Answer)
	require.NotNil(t, answer.Confidence)
	assert.InDelta(t, 0.85, *answer.Confidence, 0.0001)
	assert.Equal(t, []string{"the answer is 42"}, answer.KeyClaims)
	assert.Equal(t, []string{"base 10"}, answer.Assumptions)
}
