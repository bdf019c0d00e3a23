package ratelimit

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestNew_StartsFull(t *testing.T) {
	b := New(Config{MaxTokens: 5, RefillPerTick: 5, RefillInterval: time.Second})
	assert.Equal(t, float64(5), b.Available())
}

func TestAcquire_DecrementsByOne(t *testing.T) {
	b := New(Config{MaxTokens: 5, RefillPerTick: 5, RefillInterval: time.Second})
	ok := b.Acquire()
	assert.True(t, ok)
	assert.InDelta(t, 4.0, b.tokens, 1e-6)
}

func TestAcquire_FailsWhenEmpty(t *testing.T) {
	b := New(Config{MaxTokens: 1, RefillPerTick: 1, RefillInterval: time.Hour})
	assert.True(t, b.Acquire())
	assert.False(t, b.Acquire())
}

func TestAcquire_RefillAfterInterval(t *testing.T) {
	b := New(Config{MaxTokens: 2, RefillPerTick: 2, RefillInterval: time.Millisecond})
	assert.True(t, b.Acquire())
	assert.True(t, b.Acquire())
	assert.False(t, b.Acquire())

	time.Sleep(5 * time.Millisecond)
	assert.True(t, b.Acquire())
}

func TestAvailable_DoesNotConsume(t *testing.T) {
	b := New(Config{MaxTokens: 3, RefillPerTick: 3, RefillInterval: time.Second})
	before := b.Available()
	after := b.Available()
	assert.Equal(t, before, after)
}

// TestBucketMonotonicityProperty: for a sequence of Acquire calls with no
// time advancement, tokens is non-increasing and never negative; after any
// Acquire, tokens never exceeds MaxTokens.
func TestBucketMonotonicityProperty(t *testing.T) {
	params := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(params)

	properties.Property("tokens never negative and never exceeds max across a burst of acquires", prop.ForAll(
		func(maxTokens int, calls int) bool {
			b := New(Config{MaxTokens: float64(maxTokens), RefillPerTick: float64(maxTokens), RefillInterval: time.Hour})
			// lastRefill in the future makes refill see no elapsed time during the burst.
			b.lastRefill = time.Now().Add(time.Hour)
			prev := b.tokens
			for i := 0; i < calls; i++ {
				b.Acquire()
				if b.tokens < 0 {
					return false
				}
				if b.tokens > float64(maxTokens) {
					return false
				}
				if b.tokens > prev {
					return false
				}
				prev = b.tokens
			}
			return true
		},
		gen.IntRange(1, 20),
		gen.IntRange(0, 50),
	))

	properties.TestingRun(t)
}

// TestBucketRefillLaw: starting from tokens=0 at t0, calling Acquire at
// t0 + k*interval succeeds and leaves tokens = max - 1, for any k >= 1.
func TestBucketRefillLaw(t *testing.T) {
	const maxTokens = 4.0
	b := &Bucket{
		cfg:        Config{MaxTokens: maxTokens, RefillPerTick: maxTokens, RefillInterval: time.Second},
		tokens:     0,
		lastRefill: time.Now(),
	}

	for k := 1; k <= 3; k++ {
		b.lastRefill = time.Now().Add(-time.Duration(k) * time.Second)
		b.tokens = 0
		ok := b.Acquire()
		assert.True(t, ok)
		assert.InDelta(t, maxTokens-1, b.tokens, 1e-6)
	}
}
