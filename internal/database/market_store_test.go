package database

import (
	"context"
	"testing"

	"github.com/dreddmarket/engine/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *MarketStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, AutoMigrateMarket(db))

	pm, err := NewPoolManager(db, PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pm.Close() })

	return NewMarketStore(pm, 3)
}

func TestMarketStore_UpsertThread_CreatesThenReuses(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t1, err := store.UpsertThread(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), t1.ChatID)

	t2, err := store.UpsertThread(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, t1.ID, t2.ID)
}

func TestMarketStore_RunLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	thread, err := store.UpsertThread(ctx, 1)
	require.NoError(t, err)

	run, err := store.CreateRun(ctx, thread.ID, "what is the answer?")
	require.NoError(t, err)
	assert.Equal(t, market.RunInProgress, run.Status)

	confidence := 0.9
	err = store.SaveAnswer(ctx, &market.ProviderAnswer{
		RunID:      run.ID,
		Round:      1,
		Provider:   market.ProviderOpenAI,
		Model:      "gpt-4o",
		Status:     market.AnswerOK,
		Answer:     "42",
		Confidence: &confidence,
		KeyClaims:  []string{"42"},
		Usage:      market.Usage{InputTokens: 10, OutputTokens: 5, CostUSD: 0.001},
	})
	require.NoError(t, err)

	finalAnswer := "42"
	err = store.SaveArbiterOutput(ctx, &market.ArbiterOutput{
		RunID:             run.ID,
		ArbiterProvider:   market.ProviderOpenAI,
		ArbiterModel:      "gpt-4o",
		FinalAnswer:       &finalAnswer,
		OverallConfidence: 0.9,
	})
	require.NoError(t, err)

	err = store.CompleteRun(ctx, run.ID, 1, true, 1200, 0.001)
	require.NoError(t, err)
}

func TestMarketStore_FailRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	thread, err := store.UpsertThread(ctx, 2)
	require.NoError(t, err)
	run, err := store.CreateRun(ctx, thread.ID, "q")
	require.NoError(t, err)

	require.NoError(t, store.FailRun(ctx, run.ID))
}
