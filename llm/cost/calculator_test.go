package cost

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculator_ExactMatch(t *testing.T) {
	c := NewCalculator()

	got, ok := c.Calculate("gpt-4o", 1000, 1000)
	require.True(t, ok)
	assert.InDelta(t, 0.02, got, 1e-9)
}

func TestCalculator_UnknownModel(t *testing.T) {
	c := NewCalculator()

	got, ok := c.Calculate("some-unlisted-model", 1000, 1000)
	assert.False(t, ok)
	assert.Zero(t, got)
}

func TestCalculator_ExactBeatsPrefix(t *testing.T) {
	c := NewCalculator()
	c.SetRate(Rate{Model: "gpt-4o-mini-2024-07-18", InputPer1K: 1, OutputPer1K: 1})

	got, ok := c.Calculate("gpt-4o-mini-2024-07-18", 1000, 0)
	require.True(t, ok)
	assert.InDelta(t, 1.0, got, 1e-9)
}

func TestCalculator_LongestPrefixWins(t *testing.T) {
	c := NewCalculator()
	c.SetRate(Rate{Model: "claude-3", InputPer1K: 1, OutputPer1K: 1})
	c.SetRate(Rate{Model: "claude-3-5-sonnet", InputPer1K: 2, OutputPer1K: 2})

	got, ok := c.Calculate("claude-3-5-sonnet-20241022", 1000, 0)
	require.True(t, ok)
	assert.InDelta(t, 2.0, got, 1e-9)
}

func TestCalculator_RoundsToSixDecimals(t *testing.T) {
	c := NewCalculator()
	c.SetRate(Rate{Model: "tiny-model", InputPer1K: 0.0000001, OutputPer1K: 0})

	got, ok := c.Calculate("tiny-model", 1000, 0)
	require.True(t, ok)
	assert.Equal(t, 0.0, got)
}

// TestCalculator_CostPrefixRuleProperty 对应 "cost prefix rule"：精确匹配总是
// 优先于前缀匹配；多个前缀匹配命中时，最长前缀胜出。
func TestCalculator_CostPrefixRuleProperty(t *testing.T) {
	params := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(params)

	properties.Property("exact match always wins over any prefix match", prop.ForAll(
		func(base string, suffix string, inRate, outRate float64) bool {
			if base == "" || suffix == "" {
				return true
			}
			model := base + suffix
			c := NewCalculator()
			c.rates = map[string]Rate{}
			c.SetRate(Rate{Model: base, InputPer1K: inRate, OutputPer1K: outRate})
			c.SetRate(Rate{Model: model, InputPer1K: inRate + 1, OutputPer1K: outRate + 1})

			got, ok := c.Calculate(model, 1000, 1000)
			if !ok {
				return false
			}
			want := (inRate + 1) + (outRate + 1)
			return approxEqual(got, want)
		},
		gen.AlphaString().SuchThat(func(s string) bool { return len(s) > 0 }),
		gen.AlphaString().SuchThat(func(s string) bool { return len(s) > 0 }),
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
	))

	properties.TestingRun(t)
}

func approxEqual(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < 1e-6
}
