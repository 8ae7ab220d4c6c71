package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_messages_received_total",
			Help: "Total number of queue messages received",
		},
		[]string{"queue"},
	)

	MessagesHandledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_messages_handled_total",
			Help: "Total number of queue messages by outcome (acked, swallowed, retained, skipped)",
		},
		[]string{"queue", "outcome"},
	)

	MessageHandleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_message_handle_duration_seconds",
			Help:    "Time spent handling a single message",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"queue"},
	)

	PollErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_poll_errors_total",
			Help: "Total number of failed receive calls",
		},
		[]string{"queue"},
	)

	PollersActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pipeline_pollers_active",
			Help: "Number of running pollers per queue",
		},
		[]string{"queue"},
	)

	AssetTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_asset_transitions_total",
			Help: "Total number of asset state writes",
		},
		[]string{"kind", "state"},
	)

	AssetRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_asset_rejections_total",
			Help: "Uploads discarded by content type or moderation",
		},
		[]string{"kind", "reason"},
	)

	ExternalCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_external_calls_total",
			Help: "Calls to moderation, transcoding, transcription and image processing",
		},
		[]string{"service", "operation", "status"},
	)

	ExternalCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_external_call_duration_seconds",
			Help:    "External collaborator call duration",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"service", "operation"},
	)

	TranscodeJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_transcode_jobs_total",
			Help: "MediaConvert job state changes seen on the status queue",
		},
		[]string{"status"},
	)

	BillingEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_billing_events_total",
			Help: "Billing webhook events by type and result",
		},
		[]string{"type", "result"},
	)

	StorageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_operations_total",
			Help: "Total number of storage operations",
		},
		[]string{"operation", "status"},
	)

	StorageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storage_operation_duration_seconds",
			Help:    "Storage operation duration in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation"},
	)

	StorageBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_bytes_total",
			Help: "Total bytes transferred to/from storage",
		},
		[]string{"operation"},
	)

	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application information",
		},
		[]string{"version", "environment", "service", "instance"},
	)

	AppUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_up",
			Help: "Whether the application is up",
		},
	)
)

func SetAppInfo(version, environment, service, instance string) {
	AppInfo.WithLabelValues(version, environment, service, instance).Set(1)
	AppUp.Set(1)
}

func RecordTransition(kind, state string) {
	AssetTransitionsTotal.WithLabelValues(kind, state).Inc()
}

func RecordRejection(kind, reason string) {
	AssetRejectionsTotal.WithLabelValues(kind, reason).Inc()
}

func RecordExternalCall(service, operation string, err error, durationSeconds float64) {
	status := "success"
	if err != nil {
		status = "error"
	}
	ExternalCallsTotal.WithLabelValues(service, operation, status).Inc()
	ExternalCallDuration.WithLabelValues(service, operation).Observe(durationSeconds)
}

func RecordTranscodeStatus(status string) {
	TranscodeJobsTotal.WithLabelValues(status).Inc()
}

func RecordBillingEvent(eventType, result string) {
	BillingEventsTotal.WithLabelValues(eventType, result).Inc()
}
