// Package telemetry provides application-level observability for the librería backend.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// automatically available on the side-channel HTTP server started by main.go:
//
//	GET http(s)://<host>:<LIB_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090.  The endpoint returns data in the Prometheus text exposition
// format (Content-Type: text/plain; version=0.0.4) and is intended to be scraped by
// a Prometheus server every 15–60 seconds.  It is NOT served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Audit pipeline counters (records written, write failures, queue drops)
//   - Audit retention job counters
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /api/v1/books/:id)
// rather than the raw request URL to prevent unbounded label cardinality from
// user-supplied path segments such as book IDs or search strings.
//
// # Usage
//
// Import the package for side effects so metrics are registered before the HTTP server
// starts listening:
//
//	import _ "github.com/libreria/libreria-backend/internal/telemetry"
//
// Or import it directly and use an exported var:
//
//	telemetry.AuditRecordsWritten.Inc()
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
// HTTPRequestsTotal is a CounterVec with labels {method, path, status}.
// The path label holds the Gin route template (e.g. /api/v1/books/:id),
// NOT the raw URL, to prevent unbounded cardinality.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - Requests by route:                 sum by (path) (rate(http_requests_total[5m]))
//
// HTTPRequestDuration is a HistogramVec with labels {method, path} and exponential-ish
// buckets from 5 ms to 30 s.  Use histogram_quantile to compute latency percentiles.
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

// Audit pipeline metrics — recorded by the asynchronous audit log writer.
//
// AuditRecordsWritten is incremented once per audit record successfully persisted
// by the background writer goroutine.
//
// AuditWriteFailures counts records the writer dequeued but could not persist
// (database errors, write timeouts).  These records are lost; an alert on
// rate(audit_write_failures_total[15m]) > 0 is recommended.
//
// AuditQueueDrops counts records discarded at enqueue time because the bounded
// channel was full.  A non-zero rate means the writer cannot keep up with request
// volume and the queue size should be increased.
//
// Example PromQL queries:
//   - Loss ratio: (rate(audit_write_failures_total[1h]) + rate(audit_queue_drops_total[1h])) / rate(audit_records_written_total[1h])
var (
	AuditRecordsWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_records_written_total",
			Help: "Total number of audit log records successfully persisted.",
		},
	)

	AuditWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_write_failures_total",
			Help: "Total number of audit log records that failed to persist.",
		},
	)

	AuditQueueDrops = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_queue_drops_total",
			Help: "Total number of audit log records dropped because the write queue was full.",
		},
	)
)

// AuditRetentionDeletes is incremented by the retention background job with the
// number of records hard-deleted per cleanup cycle.
//
// Example PromQL queries:
//   - Deletions per day:  increase(audit_retention_deletes_total[24h])
var AuditRetentionDeletes = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "audit_retention_deletes_total",
		Help: "Total number of audit log records removed by the retention job.",
	},
)

// DBOpenConnections is a Gauge that tracks the number of open connections currently
// held by the sql.DB connection pool.  It is sampled every 30 seconds by
// StartDBStatsCollector rather than per-request to avoid the overhead of sql.DB.Stats().
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every 30 seconds and updates the DBOpenConnections gauge.
// The goroutine exits cleanly when the database becomes unreachable (db.Ping fails),
// which happens automatically when the application shuts down and defers db.Close().
//
// Call this once, immediately after db.Connect() succeeds in main.go:
//
//	telemetry.StartDBStatsCollector(database)
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
