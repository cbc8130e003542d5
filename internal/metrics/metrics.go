// Package metrics 提供 quantrix-rbm 服务的 Prometheus 监控指标
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "quantrix_rbm"

// 审批指标
var (
	// ElevationRequestsTotal RBM 提升申请总数
	ElevationRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "elevation_requests_total",
			Help:      "RBM 提升申请总数",
		},
		[]string{"result"}, // approved, denied, rejected
	)

	// ElevationRequestDuration RBM 提升申请处理耗时
	ElevationRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "elevation_request_duration_seconds",
			Help:      "RBM 提升申请处理耗时(秒)",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	// GateCheckFailures 质量门禁检查未通过数
	GateCheckFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_check_failures_total",
			Help:      "质量门禁检查未通过总数",
		},
		[]string{"check"}, // regime/circuit_breaker/drawdown/anti_fraud/spread_slippage/liquidity
	)
)

// 回滚监控指标
var (
	// MonitorSweepsTotal 监控巡检总数
	MonitorSweepsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "monitor_sweeps_total",
			Help:      "回滚监控巡检总数",
		},
	)

	// MonitorTriggersTotal 回滚/降档触发总数
	MonitorTriggersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "monitor_triggers_total",
			Help:      "回滚/降档触发总数",
		},
		[]string{"cause", "action"}, // cause: campaign_state/regime/confidence/breaker/drawdown/staleness, action: reduce/rollback
	)

	// MonitorSweepDuration 单轮巡检耗时
	MonitorSweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "monitor_sweep_duration_seconds",
			Help:      "单轮回滚监控巡检耗时(秒)",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	// ElevatedCampaignsGauge 当前处于提升状态的活动数
	ElevatedCampaignsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "elevated_campaigns_total",
			Help:      "当前处于提升状态的活动数",
		},
	)
)

// Kafka 指标
var (
	// KafkaMessagesProduced Kafka 生产消息数
	KafkaMessagesProduced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_messages_produced_total",
			Help:      "Kafka 生产消息总数",
		},
		[]string{"topic"},
	)

	// KafkaMessagesConsumed Kafka 消费消息数
	KafkaMessagesConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_messages_consumed_total",
			Help:      "Kafka 消费消息总数",
		},
		[]string{"topic"},
	)
)

// HTTP 服务指标
var (
	// HTTPRequestsTotal HTTP 请求总数
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP 请求总数",
		},
		[]string{"method", "path", "code"},
	)

	// HTTPRequestDuration HTTP 请求耗时
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP 请求耗时(秒)",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"method", "path"},
	)
)

// Helper functions

// RecordElevationRequest 记录提升申请结果
func RecordElevationRequest(result string, durationSeconds float64) {
	ElevationRequestsTotal.WithLabelValues(result).Inc()
	ElevationRequestDuration.Observe(durationSeconds)
}

// RecordMonitorTrigger 记录回滚/降档触发
func RecordMonitorTrigger(cause, action string) {
	MonitorTriggersTotal.WithLabelValues(cause, action).Inc()
}

// RecordKafkaMessage 记录 Kafka 消息
func RecordKafkaMessage(topic string, produced bool) {
	if produced {
		KafkaMessagesProduced.WithLabelValues(topic).Inc()
	} else {
		KafkaMessagesConsumed.WithLabelValues(topic).Inc()
	}
}

// RecordHTTPRequest 记录 HTTP 请求
func RecordHTTPRequest(method, path, code string, durationSeconds float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, code).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(durationSeconds)
}
