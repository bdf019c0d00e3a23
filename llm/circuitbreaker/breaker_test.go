package circuitbreaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 3, cfg.Threshold)
	assert.Equal(t, 30*time.Second, cfg.RecoveryTimeout)
}

func TestNew_ZeroValuesCorrected(t *testing.T) {
	b := New("openai", Config{}, nil)
	assert.Equal(t, 3, b.cfg.Threshold)
	assert.Equal(t, 30*time.Second, b.cfg.RecoveryTimeout)
	assert.Equal(t, StateClosed, b.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half_open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(99).String())
}

// TestBreaker_StateTable exercises every row of the §4.3 transition table.
func TestBreaker_StateTable(t *testing.T) {
	t.Run("closed success stays closed and resets count", func(t *testing.T) {
		b := New("p", Config{Threshold: 3, RecoveryTimeout: time.Hour}, zap.NewNop())
		b.RecordFailure()
		b.RecordFailure()
		b.RecordSuccess()
		assert.Equal(t, StateClosed, b.State())
		assert.Equal(t, 0, b.FailureCount())
	})

	t.Run("closed failure below threshold stays closed", func(t *testing.T) {
		b := New("p", Config{Threshold: 3, RecoveryTimeout: time.Hour}, zap.NewNop())
		b.RecordFailure()
		b.RecordFailure()
		assert.Equal(t, StateClosed, b.State())
		assert.Equal(t, 2, b.FailureCount())
	})

	t.Run("closed failure reaching threshold opens", func(t *testing.T) {
		b := New("p", Config{Threshold: 3, RecoveryTimeout: time.Hour}, zap.NewNop())
		b.RecordFailure()
		b.RecordFailure()
		b.RecordFailure()
		assert.Equal(t, StateOpen, b.State())
	})

	t.Run("open rejects before recovery timeout", func(t *testing.T) {
		b := New("p", Config{Threshold: 1, RecoveryTimeout: time.Hour}, zap.NewNop())
		b.RecordFailure()
		require.Equal(t, StateOpen, b.State())
		assert.False(t, b.Allow())
		assert.Equal(t, StateOpen, b.State())
	})

	t.Run("open transitions to half_open after recovery timeout", func(t *testing.T) {
		b := New("p", Config{Threshold: 1, RecoveryTimeout: 10 * time.Millisecond}, zap.NewNop())
		b.RecordFailure()
		require.Equal(t, StateOpen, b.State())
		time.Sleep(20 * time.Millisecond)
		assert.True(t, b.Allow())
		assert.Equal(t, StateHalfOpen, b.State())
	})

	t.Run("half_open success closes", func(t *testing.T) {
		b := New("p", Config{Threshold: 1, RecoveryTimeout: 10 * time.Millisecond}, zap.NewNop())
		b.RecordFailure()
		time.Sleep(20 * time.Millisecond)
		require.True(t, b.Allow())
		b.RecordSuccess()
		assert.Equal(t, StateClosed, b.State())
		assert.Equal(t, 0, b.FailureCount())
	})

	t.Run("half_open failure reopens", func(t *testing.T) {
		b := New("p", Config{Threshold: 1, RecoveryTimeout: 10 * time.Millisecond}, zap.NewNop())
		b.RecordFailure()
		time.Sleep(20 * time.Millisecond)
		require.True(t, b.Allow())
		b.RecordFailure()
		assert.Equal(t, StateOpen, b.State())
	})
}

// TestBreaker_RecoveryBoundary checks the >= boundary in the recovery check (§8 property).
func TestBreaker_RecoveryBoundary(t *testing.T) {
	b := New("p", Config{Threshold: 1, RecoveryTimeout: 50 * time.Millisecond}, zap.NewNop())
	b.RecordFailure()
	b.lastFailureTime = time.Now().Add(-50 * time.Millisecond)
	assert.True(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.State())
}
