// Package metrics provides Prometheus instrumentation for the anomaly
// scoring pipeline.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "txnsentinel",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "txnsentinel",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// TransactionsIngestedTotal counts ingested transactions by resolution.
	TransactionsIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "txnsentinel",
			Name:      "transactions_ingested_total",
			Help:      "Total transactions ingested, by resolution (new or existing).",
		},
		[]string{"resolution"},
	)

	// AnomaliesFlaggedTotal counts transactions flagged anomalous at scoring time.
	AnomaliesFlaggedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "txnsentinel",
			Name:      "anomalies_flagged_total",
			Help:      "Total transactions flagged anomalous by a scoring pass.",
		},
	)

	// ExplanationRequestsTotal counts explanation attempts by result.
	ExplanationRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "txnsentinel",
			Name:      "explanation_requests_total",
			Help:      "Total explanation collaborator calls by result.",
		},
		[]string{"result"},
	)

	// RecomputeRunsTotal counts recompute passes.
	RecomputeRunsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "txnsentinel",
			Name:      "recompute_runs_total",
			Help:      "Total recompute passes executed.",
		},
	)

	// RecomputedTransactionsTotal counts transactions rescored by recompute.
	RecomputedTransactionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "txnsentinel",
			Name:      "recomputed_transactions_total",
			Help:      "Total transactions rescored by recompute passes.",
		},
	)

	// ActiveWebSocketClients tracks connected WebSocket clients.
	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "txnsentinel",
			Name:      "active_websocket_clients",
			Help:      "Number of currently connected WebSocket clients.",
		},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "txnsentinel", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "txnsentinel", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "txnsentinel", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "txnsentinel", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		TransactionsIngestedTotal,
		AnomaliesFlaggedTotal,
		ExplanationRequestsTotal,
		RecomputeRunsTotal,
		RecomputedTransactionsTotal,
		ActiveWebSocketClients,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBIdleConnections.Set(float64(stats.Idle))
			DBInUseConnections.Set(float64(stats.InUse))
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// statusBucket groups status codes into classes (2xx, 4xx, ...) to keep
// label cardinality down.
func statusBucket(status int) string {
	return strconv.Itoa(status/100) + "xx"
}

// Handler returns the Prometheus scrape endpoint handler.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
