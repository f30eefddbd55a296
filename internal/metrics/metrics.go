package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values for PredictionsTotal.
const (
	ResultAnomaly = "anomaly"
	ResultNormal  = "normal"
	ResultInvalid = "invalid"
	ResultError   = "error"
)

// Classifier service metrics
var (
	PredictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessionwatch_predictions_total",
			Help: "Total number of classification requests by outcome",
		},
		[]string{"result"},
	)

	PredictionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sessionwatch_prediction_duration_seconds",
			Help:    "Classification latency including the decision log append",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
		},
	)

	// Decision log metrics
	LogWriteFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sessionwatch_log_write_failures_total",
			Help: "Decisions that could not be appended to the log",
		},
	)

	SchemaDriftTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessionwatch_schema_drift_total",
			Help: "Records whose field set differed from the log header",
		},
		[]string{"policy"},
	)

	// Alert metrics
	AlertDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessionwatch_alert_deliveries_total",
			Help: "Webhook alert deliveries by event and outcome",
		},
		[]string{"event", "outcome"},
	)

	// Report metrics
	SummaryFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sessionwatch_summary_failures_total",
			Help: "Summaries that degraded to zero because the log could not be read",
		},
	)
)
