package market

import (
	"errors"
	"fmt"
)

// Kind 是市场引擎错误分类的闭合枚举，而非自由字符串。
type Kind string

const (
	KindConfigError         Kind = "config_error"
	KindAuthError           Kind = "auth_error"
	KindForbidden           Kind = "forbidden"
	KindRateLimited         Kind = "rate_limited"   // 本地令牌桶拒绝
	KindRateLimit           Kind = "rate_limit"      // 远端 HTTP 429
	KindServerError         Kind = "server_error"
	KindTimeout             Kind = "timeout"
	KindNetworkError        Kind = "network_error"
	KindParseError          Kind = "parse_error"
	KindSafetyBlock         Kind = "safety_block"
	KindCircuitOpen         Kind = "circuit_open"
	KindProviderNotStarted  Kind = "provider_not_started"
	KindAllProvidersFailed  Kind = "all_providers_failed"
	KindArbiterFailed       Kind = "arbiter_failed"
)

// Error 是市场引擎内贯穿所有组件的错误类型：携带分类、消息、可选的
// HTTP 状态码与被包装的原始 cause，兼容 errors.Unwrap / errors.As。
type Error struct {
	Kind       Kind
	Message    string
	HTTPStatus int // 0 表示没有对应的 HTTP 状态
	Cause      error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New 构造一个 market.Error。
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap 构造一个包裹 cause 的 market.Error。
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithStatus 返回携带 HTTP 状态码的副本。
func (e *Error) WithStatus(status int) *Error {
	cp := *e
	cp.HTTPStatus = status
	return &cp
}

// retryableKinds 是 §4.4 规定的可重试错误分类集合：429/500/502/503/504 或
// 传输超时。network_error 不在其中——一旦底层适配器正确地把超时分类为
// KindTimeout，剩下的 network_error（DNS 失败、连接被拒等）就不再是
// 值得重试的瞬时故障。auth/forbidden/parse_error/safety_block 等均不可重试。
var retryableKinds = map[Kind]bool{
	KindRateLimit:   true,
	KindServerError: true,
	KindTimeout:     true,
}

// IsRetryable 判断一个错误是否值得重试，供 llm/retry.Retryer 的
// ShouldRetry 钩子使用。
func IsRetryable(err error) bool {
	var merr *Error
	if !errors.As(err, &merr) {
		return false
	}
	if merr.HTTPStatus != 0 {
		switch merr.HTTPStatus {
		case 429, 500, 502, 503, 504:
			return true
		default:
			return retryableKinds[merr.Kind]
		}
	}
	return retryableKinds[merr.Kind]
}
