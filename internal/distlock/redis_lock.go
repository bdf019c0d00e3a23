// Package distlock implements market.Locker as a Redis-backed per-thread
// lock: SET NX PX to acquire, a Lua compare-and-delete to release so a
// holder never unlocks someone else's lock after its own lease expired.
package distlock

import (
	"context"
	"fmt"
	"time"

	"github.com/dreddmarket/engine/market"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// Locker is a Redis-backed implementation of market.Locker.
type Locker struct {
	client  *redis.Client
	prefix  string
	lease   time.Duration
	retry   time.Duration
	timeout time.Duration
}

// Config configures the distributed lock's timing.
type Config struct {
	Lease        time.Duration // how long a lock is held before it auto-expires
	RetryEvery   time.Duration // polling interval while waiting to acquire
	AcquireWithin time.Duration // give up waiting to acquire after this long
}

// DefaultConfig returns reasonable lock timings for one market run: a run
// can take several rounds, each bounded by the provider timeout, so the
// lease must comfortably outlive the longest expected run.
func DefaultConfig() Config {
	return Config{
		Lease:         2 * time.Minute,
		RetryEvery:    100 * time.Millisecond,
		AcquireWithin: 10 * time.Second,
	}
}

// New creates a Locker bound to client, namespacing keys under prefix
// (e.g. "dreddmarket:thread-lock:").
func New(client *redis.Client, prefix string, cfg Config) *Locker {
	if prefix == "" {
		prefix = "dreddmarket:thread-lock:"
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 2 * time.Minute
	}
	if cfg.RetryEvery <= 0 {
		cfg.RetryEvery = 100 * time.Millisecond
	}
	if cfg.AcquireWithin <= 0 {
		cfg.AcquireWithin = 10 * time.Second
	}
	return &Locker{client: client, prefix: prefix, lease: cfg.Lease, retry: cfg.RetryEvery, timeout: cfg.AcquireWithin}
}

// Lock blocks until the thread's lock is acquired or the acquire timeout
// elapses, returning an unlock function that releases it (only if this
// holder's token is still the current value — a lease that already
// expired and was taken by someone else is left alone).
func (l *Locker) Lock(ctx context.Context, threadID uuid.UUID) (func(context.Context), error) {
	key := l.prefix + threadID.String()
	token := uuid.New().String()

	deadline := time.Now().Add(l.timeout)
	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.lease).Result()
		if err != nil {
			return nil, market.Wrap(market.KindConfigError, "acquire distributed lock", err)
		}
		if ok {
			return func(unlockCtx context.Context) {
				l.client.Eval(unlockCtx, unlockScript, []string{key}, token)
			}, nil
		}

		if time.Now().After(deadline) {
			return nil, market.New(market.KindConfigError, fmt.Sprintf("timed out acquiring lock for thread %s", threadID))
		}

		select {
		case <-ctx.Done():
			return nil, market.Wrap(market.KindConfigError, "context cancelled while acquiring lock", ctx.Err())
		case <-ticker.C:
		}
	}
}
