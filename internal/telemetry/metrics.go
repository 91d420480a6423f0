// Package telemetry provides application-level observability for ProcureFlow.
//
// All metrics are registered against the default Prometheus registry and are
// served on the side-channel HTTP server started by main.go:
//
//	GET http://<host>:<PF_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint is NOT served by the Gin router so the
// scrape path stays off the public ingress.
//
// Metric groups:
//
//   - HTTP request counters and latency histograms (labelled by route template,
//     not raw URL, to keep label cardinality bounded)
//   - Audit record write counters, by action type
//   - Anomaly pipeline gauges and counters: queue depth, classification
//     verdicts, retries, terminal drops, drain duration, classifier health
//   - Database connection pool gauge (polled every 30 s)
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics — labelled by method, route template, and status code.
//
// The path label holds the Gin route template (e.g. /api/v1/audit-logs/:id),
// NOT the raw URL, to prevent unbounded cardinality from user-supplied path
// segments.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Audit metrics.
//
// AuditRecordsTotal counts every successfully persisted audit record, by
// action type. The action label is drawn from a closed enumeration so
// cardinality is fixed.
//
// Example PromQL queries:
//   - Write rate by action:  sum by (action) (rate(audit_records_total[5m]))
//   - Failed login volume:   rate(audit_records_total{action="LOGIN"}[1h])
var AuditRecordsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "audit_records_total",
		Help: "Total number of audit records persisted, by action type.",
	},
	[]string{"action"},
)

// Anomaly pipeline metrics — recorded by the queue and background processor.
//
// AnomalyQueueDepth tracks the number of items currently waiting for
// classification. A steadily growing depth means the classifier cannot keep up
// (or is down) and is the primary alert signal for the pipeline.
//
// ClassificationsTotal counts completed classifications by verdict
// ("normal" / "anomaly"). ClassificationRetriesTotal and
// ClassificationDropsTotal count the failure paths: a drop is terminal — the
// audit record stays unscored.
//
// Example PromQL queries:
//   - Pipeline backlog:            anomaly_queue_depth
//   - Anomaly rate:                rate(classifications_total{verdict="anomaly"}[1h])
//   - Terminal failures (alert):   increase(classification_drops_total[30m]) > 0
var (
	AnomalyQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "anomaly_queue_depth",
			Help: "Current number of audit records queued for anomaly classification.",
		},
	)

	ClassificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classifications_total",
			Help: "Total number of completed anomaly classifications, by verdict.",
		},
		[]string{"verdict"},
	)

	ClassificationRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "classification_retries_total",
			Help: "Total number of classification attempts re-queued after a failure.",
		},
	)

	ClassificationDropsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "classification_drops_total",
			Help: "Total number of queue items dropped after exhausting retries.",
		},
	)

	DrainDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "anomaly_drain_duration_seconds",
			Help:    "Duration of a single queue drain cycle, including classifier calls.",
			Buckets: prometheus.DefBuckets,
		},
	)

	ClassifierHealthy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "classifier_healthy",
			Help: "1 when the most recent classifier health check succeeded, 0 otherwise.",
		},
	)
)

// DBOpenConnections is a Gauge that tracks the number of open connections
// currently held by the sql.DB connection pool. It is sampled every 30 seconds
// by StartDBStatsCollector rather than per-request to avoid the overhead of
// sql.DB.Stats().
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB
// connection pool statistics every 30 seconds and updates the
// DBOpenConnections gauge. The goroutine exits when the database becomes
// unreachable, which happens naturally at shutdown once db.Close() runs.
//
// Call this once, immediately after db.Connect() succeeds in main.go.
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
