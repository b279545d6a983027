package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "binwatch_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "binwatch_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "binwatch_http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 6),
		},
		[]string{"method", "endpoint"},
	)

	// Ingestion metrics
	ReadingsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "binwatch_readings_ingested_total",
			Help: "Total number of level readings stored",
		},
		[]string{"bin"},
	)

	BinLevel = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "binwatch_bin_level_percent",
			Help: "Latest reported fill level per bin",
		},
		[]string{"bin"},
	)

	// Alert metrics
	AlertAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "binwatch_alert_attempts_total",
			Help: "Total number of SMS alert attempts",
		},
		[]string{"bin", "mode", "status"}, // mode: auto, manual; status: sent, failed
	)

	AlertsSuppressedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "binwatch_alerts_suppressed_total",
			Help: "Qualifying readings that did not alert because of the cooldown",
		},
		[]string{"bin"},
	)

	AuditWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "binwatch_audit_write_failures_total",
			Help: "Total number of action log writes that failed",
		},
	)

	// Settings cache metrics
	SettingsCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "binwatch_settings_cache_total",
			Help: "Settings cache lookups",
		},
		[]string{"result"}, // result: hit, miss, error
	)

	// Event stream metrics
	EventsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "binwatch_events_dropped_total",
			Help: "Bin events dropped because the queue was full",
		},
	)

	EventQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "binwatch_event_queue_size",
			Help: "Current size of the event queue",
		},
	)

	WorkerProcessedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "binwatch_worker_processed_total",
			Help: "Total number of events published by workers",
		},
	)

	WorkerFailedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "binwatch_worker_failed_total",
			Help: "Total number of events workers failed to publish",
		},
	)

	WorkerBatchPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "binwatch_worker_batch_publish_duration_seconds",
			Help:    "Time taken to publish a batch to Kafka",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// Kafka producer metrics
	KafkaPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "binwatch_kafka_publish_total",
			Help: "Total number of messages published to Kafka",
		},
		[]string{"status"}, // status: success, failed
	)

	KafkaPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "binwatch_kafka_publish_retries_total",
			Help: "Total number of Kafka publish retries",
		},
	)

	KafkaPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "binwatch_kafka_publish_duration_seconds",
			Help:    "Time taken to write a batch to Kafka",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	KafkaBytesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "binwatch_kafka_bytes_written_total",
			Help: "Total bytes of event payload written to Kafka",
		},
	)

	// Simulator metrics
	SimulatorPostsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "binwatch_simulator_posts_total",
			Help: "Simulated readings posted to the service",
		},
		[]string{"bin", "status"}, // status: success, failed
	)

	SimulatorPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "binwatch_simulator_paused",
			Help: "1 while the simulator honours the pause flag",
		},
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "binwatch_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)
