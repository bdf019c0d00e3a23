package market

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func ptr(f float64) *float64 { return &f }

func TestConfidenceDelta(t *testing.T) {
	assert.Equal(t, 1.0, ConfidenceDelta(nil))
	assert.Equal(t, 0.0, ConfidenceDelta([]ProviderAnswer{{Confidence: ptr(0.5)}}))
	assert.InDelta(t, 0.4, ConfidenceDelta([]ProviderAnswer{
		{Confidence: ptr(0.9)},
		{Confidence: ptr(0.5)},
	}), 1e-9)
}

func TestClaimOverlap_EdgeCases(t *testing.T) {
	assert.Equal(t, 0.0, ClaimOverlap(nil))
	assert.Equal(t, 1.0, ClaimOverlap([]ProviderAnswer{{KeyClaims: []string{"a"}}}))
}

func TestClaimOverlap_IdenticalClaims(t *testing.T) {
	answers := []ProviderAnswer{
		{KeyClaims: []string{"42", "the answer"}},
		{KeyClaims: []string{"42", "The Answer!"}},
	}
	assert.InDelta(t, 1.0, ClaimOverlap(answers), 1e-9)
}

func TestConverged(t *testing.T) {
	cfg := DefaultConvergenceConfig()
	converged := []ProviderAnswer{
		{Confidence: ptr(0.85), KeyClaims: []string{"42"}},
		{Confidence: ptr(0.85), KeyClaims: []string{"42"}},
	}
	assert.True(t, Converged(converged, cfg))

	notConverged := []ProviderAnswer{
		{Confidence: ptr(0.9), KeyClaims: []string{"42"}},
		{Confidence: ptr(0.5), KeyClaims: []string{"42"}},
	}
	assert.False(t, Converged(notConverged, cfg))
}

func TestDisagreements_EmptyByConstruction(t *testing.T) {
	answers := []ProviderAnswer{
		{Provider: ProviderOpenAI, KeyClaims: []string{"the sky is blue"}},
		{Provider: ProviderAnthropic, KeyClaims: []string{"the ocean is blue"}},
	}
	assert.Empty(t, Disagreements(answers))
}

func TestDisagreements_CapsAtFive(t *testing.T) {
	var answers []ProviderAnswer
	for i := 0; i < 10; i++ {
		answers = append(answers, ProviderAnswer{Provider: ProviderOpenAI, KeyClaims: []string{"same claim"}})
		answers = append(answers, ProviderAnswer{Provider: ProviderAnthropic, KeyClaims: []string{"same claim"}})
	}
	assert.LessOrEqual(t, len(Disagreements(answers)), 5)
}

// TestJaccardLaws verifies J(A,A)=1, J(A,∅)+J(∅,A) with both empty = 1,
// and J(A,B)=|A∩B|/|A∪B| on a non-empty union.
func TestJaccardLaws(t *testing.T) {
	params := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(params)

	setGen := gen.SliceOf(gen.AlphaString()).Map(func(xs []string) map[string]struct{} {
		m := make(map[string]struct{})
		for _, x := range xs {
			if x != "" {
				m[x] = struct{}{}
			}
		}
		return m
	})

	properties.Property("J(A,A) = 1", prop.ForAll(
		func(a map[string]struct{}) bool {
			return jaccard(a, a) == 1.0
		},
		setGen,
	))

	properties.Property("both empty yields 1.0", prop.ForAll(
		func() bool {
			return jaccard(map[string]struct{}{}, map[string]struct{}{}) == 1.0
		},
	))

	properties.Property("J(A,B) matches the intersection-over-union definition", prop.ForAll(
		func(a, b map[string]struct{}) bool {
			if len(a) == 0 && len(b) == 0 {
				return true
			}
			got := jaccard(a, b)
			union := make(map[string]struct{})
			for k := range a {
				union[k] = struct{}{}
			}
			for k := range b {
				union[k] = struct{}{}
			}
			inter := 0
			for k := range a {
				if _, ok := b[k]; ok {
					inter++
				}
			}
			want := float64(inter) / float64(len(union))
			diff := got - want
			if diff < 0 {
				diff = -diff
			}
			return diff < 1e-9
		},
		setGen, setGen,
	))

	properties.TestingRun(t)
}

// TestConvergenceMonotonicity: raising confidence_threshold or lowering
// overlap_threshold can only make Converged more often true on the same
// input.
func TestConvergenceMonotonicity(t *testing.T) {
	params := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(params)

	properties.Property("raising confidence threshold never flips converged true->false", prop.ForAll(
		func(c1, c2 float64, delta1 float64) bool {
			if c2 < c1 {
				c1, c2 = c2, c1
			}
			answers := []ProviderAnswer{
				{Confidence: ptr(0.5)},
				{Confidence: ptr(0.5 + delta1)},
				{KeyClaims: []string{"x"}},
				{KeyClaims: []string{"x"}},
			}
			lo := Converged(answers, ConvergenceConfig{ConfidenceThreshold: c1, OverlapThreshold: 0.5})
			hi := Converged(answers, ConvergenceConfig{ConfidenceThreshold: c2, OverlapThreshold: 0.5})
			return !lo || hi
		},
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 0.5),
	))

	properties.Property("lowering overlap threshold never flips converged true->false", prop.ForAll(
		func(o1, o2 float64) bool {
			if o1 < o2 {
				o1, o2 = o2, o1
			}
			// o1 >= o2 now; lowering from o1 to o2 should only help.
			answers := []ProviderAnswer{
				{Confidence: ptr(0.5)},
				{Confidence: ptr(0.5)},
				{KeyClaims: []string{"x", "y"}},
				{KeyClaims: []string{"x", "z"}},
			}
			strict := Converged(answers, ConvergenceConfig{ConfidenceThreshold: 1, OverlapThreshold: o1})
			relaxed := Converged(answers, ConvergenceConfig{ConfidenceThreshold: 1, OverlapThreshold: o2})
			return !strict || relaxed
		},
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
	))

	properties.TestingRun(t)
}
