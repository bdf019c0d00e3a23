// Package client wires one serialized provider actor per remote model
// (component D): a rate limiter, a circuit breaker, the wire adapter and
// a bounded retry loop, behind the market.ProviderClient contract.
package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dreddmarket/engine/internal/ctxkeys"
	"github.com/dreddmarket/engine/llm/circuitbreaker"
	"github.com/dreddmarket/engine/llm/observability"
	"github.com/dreddmarket/engine/llm/providers"
	"github.com/dreddmarket/engine/llm/ratelimit"
	"github.com/dreddmarket/engine/llm/retry"
	"github.com/dreddmarket/engine/market"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Config configures one provider actor.
type Config struct {
	Provider    market.ProviderTag
	MaxRetries  int
	RateLimit   ratelimit.Config
	Breaker     circuitbreaker.Config
}

// Actor is a mutex-guarded per-provider client: exactly one call is ever
// in flight at a time, matching the serialized-actor model in §4.4.
type Actor struct {
	mu      sync.Mutex
	tag     market.ProviderTag
	adapter providers.Adapter
	bucket  *ratelimit.Bucket
	breaker *circuitbreaker.Breaker
	retryer *retry.Retryer
	logger  *zap.Logger
	obs     *observability.Metrics
}

// New creates a provider actor wrapping adapter with the rate limit,
// circuit breaker and retry policy described in cfg. Per-call OTel spans
// and metrics are best-effort: if the OTel meter can't be constructed
// (obs stays nil), Call still runs, just unobserved.
func New(cfg Config, adapter providers.Adapter, logger *zap.Logger) *Actor {
	if logger == nil {
		logger = zap.NewNop()
	}
	policy := retry.ProviderCallPolicy(cfg.MaxRetries, market.IsRetryable)
	obs, err := observability.NewMetrics()
	if err != nil {
		logger.Warn("observability metrics unavailable, continuing unobserved", zap.Error(err))
		obs = nil
	}
	return &Actor{
		tag:     cfg.Provider,
		adapter: adapter,
		bucket:  ratelimit.New(cfg.RateLimit),
		breaker: circuitbreaker.New(string(cfg.Provider), cfg.Breaker, logger),
		retryer: retry.NewRetryer(policy, logger),
		logger:  logger,
		obs:     obs,
	}
}

// Call executes the serialized call procedure from §4.4: consult the
// circuit breaker, consult the rate limiter, invoke the adapter under the
// caller's timeout, and retry bounded-ly on retryable errors without
// re-consulting the rate limiter on each retry.
func (a *Actor) Call(ctx context.Context, prompt string, opts market.CallOptions) (*market.ProviderAnswer, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.breaker.Allow() {
		return nil, market.New(market.KindCircuitOpen, "circuit open for provider "+string(a.tag))
	}

	if !a.bucket.Acquire() {
		return nil, market.New(market.KindRateLimited, "rate limit exhausted for provider "+string(a.tag))
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 25 * time.Second
	}

	runID, _ := ctxkeys.RunID(ctx)
	reqAttrs := observability.RequestAttrs{Provider: string(a.tag), Model: opts.Model, RunID: runID}
	var span trace.Span
	if a.obs != nil {
		ctx, span = a.obs.StartRequest(ctx, reqAttrs)
	}
	start := time.Now()

	var answer *market.ProviderAnswer
	err := a.retryer.Do(ctx, func(attempt int) error {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		result, callErr := a.adapter.Call(callCtx, opts.Model, prompt)
		if callErr != nil {
			return callErr
		}
		answer = result
		return nil
	})

	if a.obs != nil {
		resp := observability.ResponseAttrs{Status: "ok", Duration: time.Since(start)}
		if err != nil {
			resp.Status = "error"
			var merr *market.Error
			if errors.As(err, &merr) {
				resp.ErrorCode = string(merr.Kind)
			}
		} else if answer != nil {
			resp.Status = string(answer.Status)
			resp.TokensPrompt = answer.Usage.InputTokens
			resp.TokensCompletion = answer.Usage.OutputTokens
			resp.Cost = answer.Usage.CostUSD
		}
		a.obs.EndRequest(ctx, span, reqAttrs, resp)
	}

	if err != nil {
		a.breaker.RecordFailure()
		return nil, err
	}

	a.breaker.RecordSuccess()
	return answer, nil
}

// Inspect reports this actor's current health for observability.
func (a *Actor) Inspect() market.ClientStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return market.ClientStatus{
		Circuit:      a.breaker.State().String(),
		Tokens:       a.bucket.Available(),
		FailureCount: a.breaker.FailureCount(),
	}
}
