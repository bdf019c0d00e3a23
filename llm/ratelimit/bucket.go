// Package ratelimit 实现每个 provider 一把的令牌桶限流器，惰性补充，
// 单写者（由 llm/client 的 provider actor 串行化所有访问）。
package ratelimit

import "time"

// Config 配置一个令牌桶。
type Config struct {
	MaxTokens      float64       // 桶容量
	RefillPerTick  float64       // 每个 RefillInterval 补充的 token 数
	RefillInterval time.Duration // 补充周期
}

// Bucket 是一个惰性补充的令牌桶。所有方法假定调用方已经做了
// 互斥串行化；Bucket 本身不加锁。
type Bucket struct {
	cfg         Config
	tokens      float64
	lastRefill  time.Time
}

// New 创建一个令牌桶，初始状态为满桶。
func New(cfg Config) *Bucket {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1
	}
	if cfg.RefillInterval <= 0 {
		cfg.RefillInterval = time.Second
	}
	if cfg.RefillPerTick <= 0 {
		cfg.RefillPerTick = cfg.MaxTokens
	}
	return &Bucket{
		cfg:        cfg,
		tokens:     cfg.MaxTokens,
		lastRefill: time.Now(),
	}
}

// refill 按惰性补充规则更新 tokens，使用单调时钟算术。
func (b *Bucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill)
	if elapsed <= 0 {
		return
	}
	if elapsed >= b.cfg.RefillInterval {
		b.tokens = b.cfg.MaxTokens
		b.lastRefill = now
		return
	}
	added := (float64(elapsed) / float64(b.cfg.RefillInterval)) * b.cfg.RefillPerTick
	b.tokens += added
	if b.tokens > b.cfg.MaxTokens {
		b.tokens = b.cfg.MaxTokens
	}
	b.lastRefill = now
}

// Acquire 先惰性补充，再尝试消耗一个 token。成功时返回 true 并减一；
// 桶内 token 不足一个时返回 false，且不改变 tokens。
func (b *Bucket) Acquire() bool {
	b.refill(time.Now())
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Available 补充后直接返回当前 token 数，不消耗。
func (b *Bucket) Available() float64 {
	b.refill(time.Now())
	return b.tokens
}
