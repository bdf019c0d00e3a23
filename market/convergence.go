package market

import (
	"regexp"
	"strings"
)

// ConvergenceConfig holds the stop-condition thresholds for one run.
type ConvergenceConfig struct {
	ConfidenceThreshold float64
	OverlapThreshold    float64
}

// DefaultConvergenceConfig returns the spec's documented defaults.
func DefaultConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{ConfidenceThreshold: 0.1, OverlapThreshold: 0.7}
}

// DisagreementClaim pairs a provider with the original (non-normalized)
// claim text it asserted, for presentation in the next-round prompt.
type DisagreementClaim struct {
	Provider ProviderTag
	Claim    string
}

// Disagreement is one topic bucket where providers hold differing claims.
type Disagreement struct {
	Topic  string
	Claims []DisagreementClaim
}

var claimNormalizeRe = regexp.MustCompile(`[^\w\s]`)

// normalizeClaim lowercases, strips non-word/non-space characters, and
// trims a claim string for set membership comparisons.
func normalizeClaim(claim string) string {
	lower := strings.ToLower(claim)
	stripped := claimNormalizeRe.ReplaceAllString(lower, "")
	return strings.TrimSpace(stripped)
}

// ConfidenceDelta returns max(confidences) - min(confidences) over the
// non-null confidences in answers. Zero non-null confidences yields 1.0;
// exactly one yields 0.0.
func ConfidenceDelta(answers []ProviderAnswer) float64 {
	var confidences []float64
	for _, a := range answers {
		if a.Confidence != nil {
			confidences = append(confidences, *a.Confidence)
		}
	}
	switch len(confidences) {
	case 0:
		return 1.0
	case 1:
		return 0.0
	}
	min, max := confidences[0], confidences[0]
	for _, c := range confidences[1:] {
		if c < min {
			min = c
		}
		if c > max {
			max = c
		}
	}
	return max - min
}

// jaccard computes |A∩B|/|A∪B|. An empty union yields 1.0.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	union := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		union[k] = struct{}{}
	}
	for k := range b {
		union[k] = struct{}{}
	}
	if len(union) == 0 {
		return 1.0
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(union))
}

// claimSets builds one normalized claim set per answer with non-empty
// KeyClaims.
func claimSets(answers []ProviderAnswer) []map[string]struct{} {
	var sets []map[string]struct{}
	for _, a := range answers {
		if len(a.KeyClaims) == 0 {
			continue
		}
		set := make(map[string]struct{}, len(a.KeyClaims))
		for _, c := range a.KeyClaims {
			set[normalizeClaim(c)] = struct{}{}
		}
		sets = append(sets, set)
	}
	return sets
}

// ClaimOverlap averages the Jaccard similarity of every ordered pair of
// distinct non-empty claim sets among answers. Zero sets yields 0.0; one
// set yields 1.0.
func ClaimOverlap(answers []ProviderAnswer) float64 {
	sets := claimSets(answers)
	switch len(sets) {
	case 0:
		return 0.0
	case 1:
		return 1.0
	}
	var sum float64
	var pairs int
	for i := range sets {
		for j := range sets {
			if i == j {
				continue
			}
			sum += jaccard(sets[i], sets[j])
			pairs++
		}
	}
	if pairs == 0 {
		return 1.0
	}
	return sum / float64(pairs)
}

// Converged reports whether the round's answers satisfy the stop
// condition: confidence_delta ≤ threshold AND claim_overlap ≥ threshold.
func Converged(answers []ProviderAnswer, cfg ConvergenceConfig) bool {
	return ConfidenceDelta(answers) <= cfg.ConfidenceThreshold &&
		ClaimOverlap(answers) >= cfg.OverlapThreshold
}

// Disagreements buckets every (normalized_claim, provider, original_claim)
// triple by its normalized claim, keeping buckets that hold two or more
// providers with differing normalized claims on the same topic key, and
// returns up to 5 such buckets.
//
// By construction a bucket keyed on its own comparison value cannot contain
// differing values; this retains that permissive (effectively near-empty)
// behavior rather than introducing a separate topic extractor. See
// DESIGN.md for the recorded rationale.
func Disagreements(answers []ProviderAnswer) []Disagreement {
	type entry struct {
		provider ProviderTag
		claim    string
	}
	buckets := make(map[string][]entry)
	order := make([]string, 0)

	for _, a := range answers {
		for _, claim := range a.KeyClaims {
			key := normalizeClaim(claim)
			if _, seen := buckets[key]; !seen {
				order = append(order, key)
			}
			buckets[key] = append(buckets[key], entry{provider: a.Provider, claim: claim})
		}
	}

	var out []Disagreement
	for _, key := range order {
		entries := buckets[key]
		if len(entries) < 2 {
			continue
		}
		distinct := make(map[string]struct{})
		for _, e := range entries {
			distinct[normalizeClaim(e.claim)] = struct{}{}
		}
		if len(distinct) < 2 {
			continue
		}
		d := Disagreement{Topic: key}
		for _, e := range entries {
			d.Claims = append(d.Claims, DisagreementClaim{Provider: e.provider, Claim: e.claim})
		}
		out = append(out, d)
		if len(out) >= 5 {
			break
		}
	}
	return out
}
