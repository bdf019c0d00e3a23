package market

import (
	"context"
	"encoding/json"
	"regexp"
	"time"

	"go.uber.org/zap"
)

// ArbiterCaller is the subset of the provider client actor the arbiter
// chain needs: a single synchronous call keyed by provider+model.
type ArbiterCaller interface {
	Call(ctx context.Context, provider ProviderTag, model string, prompt string) (*ProviderAnswer, error)
}

// ArbiterChainConfig names the primary and fallback arbiter specs.
type ArbiterChainConfig struct {
	Default  ArbiterSpec
	Fallback ArbiterSpec
}

// RunArbiter executes the primary/retry/fallback synthesis chain described
// in §4.6 and returns the resulting ArbiterOutput. It never returns a Go
// error for a failed synthesis: arbiter_failed is data, not an error.
func RunArbiter(
	ctx context.Context,
	caller ArbiterCaller,
	runID interface{ String() string },
	question string,
	finalRound []ProviderAnswer,
	roundsCompleted int,
	override *ArbiterSpec,
	chain ArbiterChainConfig,
	logger *zap.Logger,
) *ArbiterOutput {
	if logger == nil {
		logger = zap.NewNop()
	}

	spec := chain.Default
	if override != nil {
		spec = *override
	}

	prompt := BuildArbiterPrompt(question, finalRound, roundsCompleted)

	start := time.Now()

	attempt := func(s ArbiterSpec) (*ArbiterOutput, bool) {
		answer, err := caller.Call(ctx, s.Provider, s.Model, prompt)
		if err != nil || answer == nil || answer.Status != AnswerOK {
			return nil, false
		}
		out, ok := parseArbiterAnswer(answer)
		if !ok || out.FinalAnswer == nil {
			return nil, false
		}
		out.ArbiterProvider = s.Provider
		out.ArbiterModel = s.Model
		out.LatencyMS = answer.LatencyMS
		out.CostUSD = answer.Usage.CostUSD
		return out, true
	}

	if out, ok := attempt(spec); ok {
		return out
	}
	logger.Debug("primary arbiter failed, retrying once", zap.String("provider", string(spec.Provider)))

	if out, ok := attempt(spec); ok {
		return out
	}
	logger.Warn("primary arbiter exhausted, falling back", zap.String("provider", string(spec.Provider)))

	if out, ok := attempt(chain.Fallback); ok {
		return out
	}

	logger.Error("arbiter chain exhausted", zap.Duration("elapsed", time.Since(start)))
	return fallbackOutput(finalRound)
}

// fallbackOutput returns arbiter_failed=true with the highest-confidence
// answer surfaced as a courtesy, per §4.6 step 5.
func fallbackOutput(finalRound []ProviderAnswer) *ArbiterOutput {
	var best *ProviderAnswer
	for i := range finalRound {
		a := &finalRound[i]
		if a.Confidence == nil {
			continue
		}
		if best == nil || *a.Confidence > *best.Confidence {
			best = a
		}
	}

	out := &ArbiterOutput{ArbiterFailed: true}
	if best != nil {
		answer := best.Answer
		out.FinalAnswer = &answer
	}
	return out
}

// arbiterFencedJSONRe extracts the first fenced ```json code block, the one
// recovery step this package needs of its own: llm/providers.RecoverJSON
// already imports market, so market cannot import llm/providers back without
// a cycle, and the arbiter reply never goes through ParseRoundAnswer's
// round-answer contract to begin with.
var arbiterFencedJSONRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n(.*?)\\n```")

// recoverArbiterJSON parses raw directly, falling back to the contents of
// its first fenced code block if the model wrapped its reply in prose.
func recoverArbiterJSON(raw string, target any) bool {
	if json.Unmarshal([]byte(raw), target) == nil {
		return true
	}
	m := arbiterFencedJSONRe.FindStringSubmatch(raw)
	if len(m) != 2 {
		return false
	}
	return json.Unmarshal([]byte(m[1]), target) == nil
}

// arbiterJSONPayload is the arbiter's own JSON contract — distinct from the
// round-answer contract every provider-round reply uses. conflicts and
// fact_table are left as raw messages because §4.6 step 6 allows either a
// bare array or an {items:[...]} wrapper.
type arbiterJSONPayload struct {
	FinalAnswer       *string         `json:"final_answer"`
	Agreements        []string        `json:"agreements"`
	Conflicts         json.RawMessage `json:"conflicts"`
	FactTable         json.RawMessage `json:"fact_table"`
	NextQuestions     []string        `json:"next_questions"`
	OverallConfidence *float64        `json:"overall_confidence"`
	DreddFailed       bool            `json:"dredd_failed"`
}

// decodeListOrItems unmarshals raw as either a bare JSON array or an
// {items:[...]} wrapper object, per §4.6 step 6.
func decodeListOrItems[T any](raw json.RawMessage) []T {
	if len(raw) == 0 {
		return nil
	}
	var list []T
	if json.Unmarshal(raw, &list) == nil {
		return list
	}
	var wrapped struct {
		Items []T `json:"items"`
	}
	if json.Unmarshal(raw, &wrapped) == nil {
		return wrapped.Items
	}
	return nil
}

// parseArbiterAnswer decodes the arbiter's own JSON contract out of a raw
// arbiter ProviderAnswer and builds an ArbiterOutput from it. A response that
// parses but carries no final_answer is treated as a failed attempt, per
// §4.6 step 3.
func parseArbiterAnswer(answer *ProviderAnswer) (*ArbiterOutput, bool) {
	if answer.Answer == "" {
		return nil, false
	}

	var payload arbiterJSONPayload
	if !recoverArbiterJSON(answer.Answer, &payload) {
		return nil, false
	}
	if payload.FinalAnswer == nil {
		return nil, false
	}

	out := &ArbiterOutput{
		FinalAnswer:       payload.FinalAnswer,
		Agreements:        payload.Agreements,
		Conflicts:         decodeListOrItems[Conflict](payload.Conflicts),
		FactTable:         decodeListOrItems[FactEntry](payload.FactTable),
		NextQuestions:     payload.NextQuestions,
		OverallConfidence: confidenceOrZero(payload.OverallConfidence),
		ArbiterFailed:     payload.DreddFailed,
	}
	return out, true
}

func confidenceOrZero(c *float64) float64 {
	if c == nil {
		return 0
	}
	return *c
}
