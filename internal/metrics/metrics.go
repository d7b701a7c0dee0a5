package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockalerting_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stockalerting_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint", "status"},
	)

	// Ingestion metrics
	SamplesIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockalerting_samples_ingested_total",
			Help: "Total number of price samples ingested",
		},
		[]string{"symbol", "status"}, // status: accepted, out_of_order, failed
	)

	// Engine metrics
	EvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockalerting_evaluations_total",
			Help: "Total number of alert condition evaluations",
		},
		[]string{"alert_type", "outcome"}, // outcome: satisfied, not_satisfied
	)

	AlertsTriggeredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockalerting_alerts_triggered_total",
			Help: "Total number of alerts fired",
		},
		[]string{"alert_type"},
	)

	TrackerResetsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stockalerting_tracker_resets_total",
			Help: "Total number of duration streaks reset before firing",
		},
	)

	// Kafka metrics
	KafkaPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockalerting_kafka_publish_total",
			Help: "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"}, // status: success, failed
	)

	// Price feed metrics
	QuoteFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockalerting_quote_fetches_total",
			Help: "Total number of external quote API requests",
		},
		[]string{"status"}, // status: success, failed, limited
	)

	// Notification metrics
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockalerting_notifications_total",
			Help: "Total number of alert notifications attempted",
		},
		[]string{"status"}, // status: sent, failed, skipped
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockalerting_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)
