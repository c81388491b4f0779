package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraud_scoring",
			Name:      "messages_received_total",
			Help:      "Kafka messages pulled by the worker",
		},
		[]string{"topic"},
	)

	TransactionsScored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraud_scoring",
			Name:      "scored_total",
			Help:      "Transactions scored and recorded successfully",
		},
		[]string{"topic"},
	)

	PipelineFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraud_scoring",
			Name:      "failed_total",
			Help:      "Pipeline failures by stage and error code",
		},
		[]string{"topic", "stage", "code"},
	)

	RetriesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraud_scoring",
			Name:      "retries_total",
			Help:      "Messages republished to the retry topic",
		},
		[]string{"topic"},
	)

	DLQPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraud_scoring",
			Name:      "dlq_total",
			Help:      "Messages dead-lettered by reason",
		},
		[]string{"topic", "reason"},
	)

	StageLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fraud_scoring",
			Name:      "stage_duration_seconds",
			Help:      "Per-stage latency within the scoring pipeline",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	ProcessLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fraud_scoring",
			Name:      "process_duration_seconds",
			Help:      "End-to-end processing latency per message",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"topic"},
	)

	InflightMessages = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fraud_scoring",
			Name:      "inflight_messages",
			Help:      "Messages currently being processed (semaphore depth)",
		},
	)

	FraudProbability = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fraud_scoring",
			Name:      "fraud_probability",
			Help:      "Distribution of calibrated fraud probabilities",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		},
	)
)
