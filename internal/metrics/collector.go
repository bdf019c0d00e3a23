// Package metrics provides internal Prometheus instrumentation for the
// market engine. This package is internal and should not be imported by
// external projects.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector 指标收集器，聚合 provider 调用、熔断器、令牌桶、
// 轮次与运行结果、以及数据库层的 Prometheus 指标。
type Collector struct {
	// provider 调用
	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec
	llmTokensUsed      *prometheus.CounterVec
	llmCost            *prometheus.CounterVec

	// 熔断器 / 限流
	circuitStateTransitions *prometheus.CounterVec
	tokenBucketRejections   *prometheus.CounterVec

	// 市场协调器
	roundDuration *prometheus.HistogramVec
	runOutcomes   *prometheus.CounterVec
	runRounds     *prometheus.HistogramVec

	// 数据库
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec
	dbQueryDuration   *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器并在默认 Prometheus registerer 上注册所有指标。
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.llmRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Total number of provider calls by outcome status",
		},
		[]string{"provider", "model", "status"},
	)

	c.llmRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Provider call duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)

	c.llmTokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_tokens_total",
			Help:      "Total tokens consumed by provider calls",
		},
		[]string{"provider", "model", "type"}, // type: input, output
	)

	c.llmCost = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_cost_usd_total",
			Help:      "Total provider cost in USD",
		},
		[]string{"provider", "model"},
	)

	c.circuitStateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_transitions_total",
			Help:      "Total circuit breaker state transitions",
		},
		[]string{"provider", "from", "to"},
	)

	c.tokenBucketRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limiter_rejections_total",
			Help:      "Total calls rejected by the per-provider token bucket",
		},
		[]string{"provider"},
	)

	c.roundDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "market_round_duration_seconds",
			Help:      "Duration of one market round (fan-out + barrier)",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60},
		},
		[]string{"round"},
	)

	c.runOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "market_run_outcomes_total",
			Help:      "Total runs by terminal status",
		},
		[]string{"status", "convergence_achieved", "arbiter_failed"},
	)

	c.runRounds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "market_run_rounds",
			Help:      "Number of rounds completed per run",
			Buckets:   []float64{1, 2, 3, 4, 5},
		},
		[]string{"status"},
	)

	c.dbConnectionsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	c.dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"database", "operation"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// RecordProviderCall 记录一次 provider 调用（成功、错误、超时、解析错误均走这条路径）。
func (c *Collector) RecordProviderCall(provider, model, status string, duration time.Duration, inputTokens, outputTokens int, cost float64) {
	c.llmRequestsTotal.WithLabelValues(provider, model, status).Inc()
	c.llmRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	c.llmTokensUsed.WithLabelValues(provider, model, "input").Add(float64(inputTokens))
	c.llmTokensUsed.WithLabelValues(provider, model, "output").Add(float64(outputTokens))
	c.llmCost.WithLabelValues(provider, model).Add(cost)
}

// RecordCircuitTransition 记录一次熔断器状态迁移。
func (c *Collector) RecordCircuitTransition(provider, from, to string) {
	c.circuitStateTransitions.WithLabelValues(provider, from, to).Inc()
}

// RecordRateLimitRejection 记录一次被令牌桶拒绝的调用。
func (c *Collector) RecordRateLimitRejection(provider string) {
	c.tokenBucketRejections.WithLabelValues(provider).Inc()
}

// RecordRound 记录一轮的耗时。
func (c *Collector) RecordRound(round int, duration time.Duration) {
	c.roundDuration.WithLabelValues(roundLabel(round)).Observe(duration.Seconds())
}

// RecordRunOutcome 记录一次运行的终态。
func (c *Collector) RecordRunOutcome(status string, convergenceAchieved, arbiterFailed bool, roundsCompleted int) {
	c.runOutcomes.WithLabelValues(status, boolLabel(convergenceAchieved), boolLabel(arbiterFailed)).Inc()
	c.runRounds.WithLabelValues(status).Observe(float64(roundsCompleted))
}

// RecordDBConnections 记录数据库连接池状态。
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// RecordDBQuery 记录一次数据库查询耗时。
func (c *Collector) RecordDBQuery(database, operation string, duration time.Duration) {
	c.dbQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func roundLabel(round int) string {
	switch {
	case round <= 0:
		return "0"
	case round > 9:
		return "10+"
	default:
		return strconv.Itoa(round)
	}
}
