package market

import (
	"fmt"
	"strings"
)

const truncatedSummaryBytes = 1500

// BuildRoundPrompt builds the per-provider prompt for a given round. Round 1
// uses the same prompt for every provider. Later rounds give a provider its
// own previous answer, truncated summaries of every other provider's
// previous answer, and the disagreement list. A provider that failed in the
// previous round receives the round-1 prompt instead.
func BuildRoundPrompt(question string, round int, self ProviderTag, previous []ProviderAnswer, disagreements []Disagreement, selfFailedPreviousRound bool) string {
	if round == 1 || selfFailedPreviousRound {
		return question
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Original question: %s\n\n", question)

	for _, a := range previous {
		if a.Provider == self {
			fmt.Fprintf(&b, "Your previous answer: %s\n\n", a.Answer)
			continue
		}
		if a.Status != AnswerOK && a.Status != AnswerParseError {
			continue
		}
		summary := truncateBytes(a.Answer, truncatedSummaryBytes)
		fmt.Fprintf(&b, "Answer from %s: %s\n", a.Provider, summary)
		if len(a.KeyClaims) > 0 {
			fmt.Fprintf(&b, "  key claims: %s\n", strings.Join(a.KeyClaims, "; "))
		}
		b.WriteString("\n")
	}

	if len(disagreements) > 0 {
		b.WriteString("Points of disagreement to address:\n")
		for _, d := range disagreements {
			fmt.Fprintf(&b, "- %s:\n", d.Topic)
			for _, c := range d.Claims {
				fmt.Fprintf(&b, "    %s: %s\n", c.Provider, c.Claim)
			}
		}
	}

	b.WriteString("\nRevise your answer, taking the above into account.")
	return b.String()
}

// BuildArbiterPrompt builds the synthesis prompt for the arbiter model,
// listing every final-round ProviderAnswer with its provider, model,
// confidence, full answer, and key claims.
func BuildArbiterPrompt(question string, finalRound []ProviderAnswer, roundsCompleted int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", question)
	fmt.Fprintf(&b, "Rounds completed: %d\n\n", roundsCompleted)
	b.WriteString("Provider answers:\n")

	for _, a := range finalRound {
		conf := "unknown"
		if a.Confidence != nil {
			conf = fmt.Sprintf("%.2f", *a.Confidence)
		}
		fmt.Fprintf(&b, "\n[%s / %s] (confidence %s)\n%s\n", a.Provider, a.Model, conf, a.Answer)
		if len(a.KeyClaims) > 0 {
			fmt.Fprintf(&b, "key claims: %s\n", strings.Join(a.KeyClaims, "; "))
		}
	}

	b.WriteString("\nSynthesize a single final answer, noting agreements, conflicts, and a fact table with provider support.")
	return b.String()
}

func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
