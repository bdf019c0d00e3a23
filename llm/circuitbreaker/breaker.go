package circuitbreaker

import (
	"time"

	"go.uber.org/zap"
)

// State 熔断器状态
type State int

const (
	// StateClosed 关闭状态（正常工作）
	StateClosed State = iota
	// StateOpen 打开状态（熔断中，拒绝调用）
	StateOpen
	// StateHalfOpen 半开状态（允许下一次调用试探性恢复）
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config 熔断器配置，对应每个 provider 一份。
type Config struct {
	// Threshold 连续失败次数阈值，达到后从 closed 转为 open
	Threshold int

	// RecoveryTimeout open -> half_open 的等待时长
	RecoveryTimeout time.Duration
}

// DefaultConfig 返回规格规定的默认值：threshold=3, recovery_timeout=30s
func DefaultConfig() Config {
	return Config{
		Threshold:       3,
		RecoveryTimeout: 30 * time.Second,
	}
}

// Breaker 是单个 provider 的三态熔断器。Breaker 自身不加锁，也不导出锁；
// 它的方法只能由持有互斥锁的调用方（llm/client 的 provider actor）调用。
//
// 状态只按照下表迁移，不存在半开状态下的调用计数限制：
//
//	closed  + success                      -> closed
//	closed  + failure                      -> closed (failure_count++)
//	closed  + failure, count >= threshold   -> open
//	open    + allow, now-last >= recovery   -> half_open
//	open    + allow, otherwise              -> (reject)
//	half_open + success                     -> closed
//	half_open + failure                     -> open
type Breaker struct {
	provider string
	cfg      Config
	logger   *zap.Logger

	state           State
	failureCount    int
	lastFailureTime time.Time
}

// New 创建一个 provider 的熔断器。logger 为 nil 时使用 noop logger。
func New(provider string, cfg Config, logger *zap.Logger) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 3
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Breaker{
		provider: provider,
		cfg:      cfg,
		logger:   logger,
		state:    StateClosed,
	}
}

// Allow 在发起一次调用前询问熔断器是否放行。open 状态下若恢复期已过，
// 就地转为 half_open 并放行这一次调用；否则拒绝。
func (b *Breaker) Allow() bool {
	switch b.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		return true
	case StateOpen:
		if time.Since(b.lastFailureTime) >= b.cfg.RecoveryTimeout {
			b.transition(StateHalfOpen)
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess 记录一次成功调用。
func (b *Breaker) RecordSuccess() {
	switch b.state {
	case StateClosed:
		b.failureCount = 0
	case StateHalfOpen:
		b.failureCount = 0
		b.transition(StateClosed)
	case StateOpen:
		// open 状态下不应该有调用发生；忽略。
	}
}

// RecordFailure 记录一次失败调用。
func (b *Breaker) RecordFailure() {
	b.lastFailureTime = time.Now()

	switch b.state {
	case StateClosed:
		b.failureCount++
		if b.failureCount >= b.cfg.Threshold {
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		b.transition(StateOpen)
	case StateOpen:
		// 已经 open，失败只是刷新 lastFailureTime。
	}
}

// State 返回当前状态，用于 ProviderClient.Inspect。
func (b *Breaker) State() State {
	return b.state
}

// FailureCount 返回当前连续失败计数，用于 Inspect 与测试。
func (b *Breaker) FailureCount() int {
	return b.failureCount
}

func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	if from == to {
		return
	}
	b.logger.Info("circuit breaker state change",
		zap.String("provider", b.provider),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.Int("failure_count", b.failureCount),
	)
}
