package market

import (
	"context"
	"time"
)

// CallOptions are the per-call overrides a coordinator may pass to a
// provider client.
type CallOptions struct {
	Model   string
	Timeout time.Duration
}

// ClientStatus is the health-facing snapshot of one provider client's
// internal state, returned by Inspect.
type ClientStatus struct {
	Circuit      string
	Tokens       float64
	FailureCount int
}

// ProviderClient is the serialized per-provider actor (component D). Exactly
// one call is in flight per provider at any moment; implementations own
// that mutual exclusion internally.
type ProviderClient interface {
	Call(ctx context.Context, prompt string, opts CallOptions) (*ProviderAnswer, error)
	Inspect() ClientStatus
}

// clientArbiterCaller adapts a map of per-provider clients to the
// ArbiterCaller interface the arbiter chain expects.
type clientArbiterCaller struct {
	clients map[ProviderTag]ProviderClient
}

func (c clientArbiterCaller) Call(ctx context.Context, provider ProviderTag, model string, prompt string) (*ProviderAnswer, error) {
	client, ok := c.clients[provider]
	if !ok {
		return nil, New(KindProviderNotStarted, "no client configured for provider "+string(provider))
	}
	return client.Call(ctx, prompt, CallOptions{Model: model})
}
