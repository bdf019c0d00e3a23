package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

// Policy 定义指数退避重试策略。
type Policy struct {
	MaxRetries   int           // 最大重试次数（0 表示不重试）
	InitialDelay time.Duration // 第一次重试前的延迟
	MaxDelay     time.Duration // 延迟上限
	Multiplier   float64       // 指数退避的倍增因子

	// ShouldRetry 判断一个错误是否值得重试；为 nil 时所有错误都重试。
	ShouldRetry func(err error) bool

	// OnRetry 每次重试前的回调，便于埋点。
	OnRetry func(attempt int, err error, delay time.Duration)
}

// ProviderCallPolicy 返回规格规定的 provider 调用重试策略：
// 延迟 = 2^attempt * 1000ms，无抖动，最多重试 maxRetries 次。
func ProviderCallPolicy(maxRetries int, shouldRetry func(error) bool) Policy {
	return Policy{
		MaxRetries:   maxRetries,
		InitialDelay: 2 * time.Second,
		MaxDelay:     time.Hour,
		Multiplier:   2.0,
		ShouldRetry:  shouldRetry,
	}
}

// Retryer 执行一个函数，按策略重试。
type Retryer struct {
	policy Policy
	logger *zap.Logger
}

// NewRetryer 创建重试器；policy 的零值会被矫正为合理默认值。
func NewRetryer(policy Policy, logger *zap.Logger) *Retryer {
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = time.Second
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 30 * time.Second
	}
	if policy.Multiplier < 1.0 {
		policy.Multiplier = 2.0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retryer{policy: policy, logger: logger}
}

// Do 执行 fn，按策略重试，返回最后一次尝试的结果。
func (r *Retryer) Do(ctx context.Context, fn func(attempt int) error) error {
	var lastErr error

	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.Delay(attempt)

			if r.policy.OnRetry != nil {
				r.policy.OnRetry(attempt, lastErr, delay)
			}

			select {
			case <-ctx.Done():
				return fmt.Errorf("retry cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}

		if !r.isRetryable(lastErr) {
			return lastErr
		}
		if attempt >= r.policy.MaxRetries {
			break
		}

		r.logger.Debug("provider call failed, will retry",
			zap.Int("attempt", attempt),
			zap.Error(lastErr),
		)
	}

	return lastErr
}

// Delay 返回第 attempt 次重试前应等待的时长：InitialDelay * Multiplier^(attempt-1)，
// 夹在 [InitialDelay, MaxDelay] 之间。
func (r *Retryer) Delay(attempt int) time.Duration {
	delay := float64(r.policy.InitialDelay) * math.Pow(r.policy.Multiplier, float64(attempt-1))
	if delay > float64(r.policy.MaxDelay) {
		delay = float64(r.policy.MaxDelay)
	}
	if delay < float64(r.policy.InitialDelay) {
		delay = float64(r.policy.InitialDelay)
	}
	return time.Duration(delay)
}

func (r *Retryer) isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if r.policy.ShouldRetry == nil {
		return true
	}
	return r.policy.ShouldRetry(err)
}
