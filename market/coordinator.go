package market

import (
	"context"
	"errors"
	"time"

	"github.com/dreddmarket/engine/internal/ctxkeys"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MarketConfig holds the §6 configuration table values the coordinator
// consults at Run time.
type MarketConfig struct {
	MaxRounds       int
	MaxConcurrency  int
	ProviderTimeout time.Duration
	Convergence     ConvergenceConfig
	Arbiter         ArbiterChainConfig
}

// DefaultMarketConfig returns the spec's documented defaults.
func DefaultMarketConfig() MarketConfig {
	return MarketConfig{
		MaxRounds:       2,
		MaxConcurrency:  4,
		ProviderTimeout: 25 * time.Second,
		Convergence:     DefaultConvergenceConfig(),
	}
}

// MetricsRecorder is the subset of internal/metrics.Collector the
// coordinator drives; kept as a narrow interface so this package does not
// import the Prometheus registration machinery.
type MetricsRecorder interface {
	RecordRound(round int, duration time.Duration)
	RecordRunOutcome(status string, convergenceAchieved, arbiterFailed bool, roundsCompleted int)
}

// Coordinator is the market engine's per-run state machine (component G).
type Coordinator struct {
	store          Store
	locker         Locker
	clients        map[ProviderTag]ProviderClient
	providerModels map[ProviderTag]string
	cfg            MarketConfig
	metrics        MetricsRecorder
	logger         *zap.Logger
}

// NewCoordinator wires the clients, persistence store, distributed lock and
// configuration for one market engine instance.
func NewCoordinator(store Store, locker Locker, clients map[ProviderTag]ProviderClient, providerModels map[ProviderTag]string, cfg MarketConfig, metrics MetricsRecorder, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		store:          store,
		locker:         locker,
		clients:        clients,
		providerModels: providerModels,
		cfg:            cfg,
		metrics:        metrics,
		logger:         logger,
	}
}

// Run executes the market for one question against one chat thread,
// per the procedure in §4.7.
func (c *Coordinator) Run(ctx context.Context, chatID int64, question string, opts RunOptions) (*Run, error) {
	start := time.Now()

	thread, err := c.store.UpsertThread(ctx, chatID)
	if err != nil {
		return nil, Wrap(KindConfigError, "upsert thread", err)
	}

	if c.locker != nil {
		unlock, err := c.locker.Lock(ctx, thread.ID)
		if err != nil {
			return nil, Wrap(KindConfigError, "acquire thread lock", err)
		}
		defer unlock(ctx)
	}

	run, err := c.store.CreateRun(ctx, thread.ID, question)
	if err != nil {
		return nil, Wrap(KindConfigError, "create run", err)
	}

	if len(c.clients) == 0 {
		_ = c.store.FailRun(ctx, run.ID)
		c.recordOutcome("failed", false, false, 0)
		return nil, New(KindAllProvidersFailed, "no enabled providers")
	}

	maxRounds := c.cfg.MaxRounds
	if opts.MaxRounds > 0 {
		maxRounds = opts.MaxRounds
	}
	if maxRounds <= 0 {
		maxRounds = 2
	}

	var (
		allAnswers      []ProviderAnswer
		previousRound   []ProviderAnswer
		failedPrevious  = map[ProviderTag]bool{}
		roundsCompleted int
		converged       bool
	)

	for round := 1; ; round++ {
		roundStart := time.Now()

		disagreements := Disagreements(previousRound)
		roundAnswers, err := c.runRound(ctx, run.ID, round, question, previousRound, disagreements, failedPrevious)
		if err != nil {
			_ = c.store.FailRun(ctx, run.ID)
			c.recordOutcome("failed", false, false, round-1)
			return nil, err
		}

		if c.metrics != nil {
			c.metrics.RecordRound(round, time.Since(roundStart))
		}

		allAnswers = append(allAnswers, roundAnswers...)

		successful := filterSuccessful(roundAnswers)
		if len(successful) == 0 {
			_ = c.store.FailRun(ctx, run.ID)
			c.recordOutcome("failed", false, false, round)
			return nil, New(KindAllProvidersFailed, "no successful provider answers in round")
		}

		roundsCompleted = round
		converged = Converged(successful, c.cfg.Convergence)

		failedPrevious = map[ProviderTag]bool{}
		for _, a := range roundAnswers {
			if a.Status == AnswerError || a.Status == AnswerTimeout {
				failedPrevious[a.Provider] = true
			}
		}
		previousRound = successful

		if round >= maxRounds || converged {
			break
		}
	}

	arbiterSpec := opts.ArbiterSpec
	if arbiterSpec == nil && thread.ArbiterOverrideModel != "" {
		arbiterSpec = &ArbiterSpec{Provider: thread.ArbiterOverrideTag, Model: thread.ArbiterOverrideModel}
	}

	arbiterOutput := RunArbiter(ctx, clientArbiterCaller{clients: c.clients}, run.ID, question, previousRound, roundsCompleted, arbiterSpec, c.cfg.Arbiter, c.logger)
	arbiterOutput.RunID = run.ID

	if err := c.store.SaveArbiterOutput(ctx, arbiterOutput); err != nil {
		_ = c.store.FailRun(ctx, run.ID)
		c.recordOutcome("failed", converged, arbiterOutput.ArbiterFailed, roundsCompleted)
		return nil, Wrap(KindConfigError, "save arbiter output", err)
	}

	totalCost := arbiterOutput.CostUSD
	for _, a := range allAnswers {
		totalCost += a.Usage.CostUSD
	}
	totalLatency := time.Since(start).Milliseconds()

	if err := c.store.CompleteRun(ctx, run.ID, roundsCompleted, converged, totalLatency, totalCost); err != nil {
		return nil, Wrap(KindConfigError, "complete run", err)
	}

	c.recordOutcome("completed", converged, arbiterOutput.ArbiterFailed, roundsCompleted)

	run.Status = RunCompleted
	run.RoundsCompleted = roundsCompleted
	run.ConvergenceAchieved = converged
	run.TotalLatencyMS = totalLatency
	run.TotalCostUSD = totalCost
	run.Answers = allAnswers
	run.Arbiter = arbiterOutput

	return run, nil
}

// runRound fans out one round's calls, bounded by MaxConcurrency, and
// persists every answer (success or error) before returning.
func (c *Coordinator) runRound(ctx context.Context, runID uuid.UUID, round int, question string, previous []ProviderAnswer, disagreements []Disagreement, failedPrevious map[ProviderTag]bool) ([]ProviderAnswer, error) {
	answers := make([]ProviderAnswer, len(c.clients))
	tags := make([]ProviderTag, 0, len(c.clients))
	for tag := range c.clients {
		tags = append(tags, tag)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.MaxConcurrency)

	for i, tag := range tags {
		i, tag := i, tag
		g.Go(func() error {
			client := c.clients[tag]
			model := c.providerModels[tag]
			prompt := BuildRoundPrompt(question, round, tag, previous, disagreements, failedPrevious[tag])

			deadline := c.cfg.ProviderTimeout + 5*time.Second
			taskCtx, cancel := context.WithTimeout(gctx, deadline)
			defer cancel()
			taskCtx = ctxkeys.WithRunID(taskCtx, runID.String())

			start := time.Now()
			answer, callErr := client.Call(taskCtx, prompt, CallOptions{Model: model, Timeout: c.cfg.ProviderTimeout})
			latency := time.Since(start).Milliseconds()

			if callErr != nil || answer == nil {
				answer = errorAnswer(callErr, latency)
			}
			answer.RunID = runID
			answer.Round = round
			answer.Provider = tag
			if answer.Model == "" {
				answer.Model = model
			}
			if answer.LatencyMS == 0 {
				answer.LatencyMS = latency
			}

			answers[i] = *answer
			return c.store.SaveAnswer(gctx, answer)
		})
	}

	if err := g.Wait(); err != nil {
		return nil, Wrap(KindConfigError, "persist round answers", err)
	}

	return answers, nil
}

func errorAnswer(err error, latencyMS int64) *ProviderAnswer {
	var merr *Error
	status := AnswerError
	if errors.As(err, &merr) && merr.Kind == KindTimeout {
		status = AnswerTimeout
	}
	if merr == nil {
		merr = Wrap(KindNetworkError, "provider call failed", err)
	}
	return &ProviderAnswer{
		Status:    status,
		Err:       merr,
		LatencyMS: latencyMS,
	}
}

func filterSuccessful(answers []ProviderAnswer) []ProviderAnswer {
	var out []ProviderAnswer
	for _, a := range answers {
		if a.Status == AnswerOK || a.Status == AnswerParseError {
			out = append(out, a)
		}
	}
	return out
}

func (c *Coordinator) recordOutcome(status string, convergenceAchieved, arbiterFailed bool, roundsCompleted int) {
	if c.metrics != nil {
		c.metrics.RecordRunOutcome(status, convergenceAchieved, arbiterFailed, roundsCompleted)
	}
}
