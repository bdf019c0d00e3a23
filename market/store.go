package market

import (
	"context"

	"github.com/google/uuid"
)

// Store is the persistence contract the coordinator writes through
// (component I). Every insert/update is expected to be its own
// transaction, retried by the implementation on deadlock/serialization
// failure/transient-connection errors.
type Store interface {
	// UpsertThread finds or creates the Thread for an external chat id.
	UpsertThread(ctx context.Context, chatID int64) (*Thread, error)

	// CreateRun inserts a new in-progress Run for the given thread.
	CreateRun(ctx context.Context, threadID uuid.UUID, question string) (*Run, error)

	// SaveAnswer persists one ProviderAnswer (success or error), tagged
	// with its round number.
	SaveAnswer(ctx context.Context, answer *ProviderAnswer) error

	// SaveArbiterOutput persists the single ArbiterOutput for a run, even
	// when ArbiterFailed is true.
	SaveArbiterOutput(ctx context.Context, output *ArbiterOutput) error

	// CompleteRun marks a run completed with its final accounting.
	CompleteRun(ctx context.Context, runID uuid.UUID, roundsCompleted int, convergenceAchieved bool, totalLatencyMS int64, totalCostUSD float64) error

	// FailRun marks a run failed (zero successful answers, or an
	// unrecoverable persistence error upstream).
	FailRun(ctx context.Context, runID uuid.UUID) error
}

// Locker is the distributed per-thread run lock described in §4.7/§10.4.
type Locker interface {
	Lock(ctx context.Context, threadID uuid.UUID) (unlock func(context.Context), err error)
}
