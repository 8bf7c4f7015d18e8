// Package metrics provides Prometheus instrumentation for the escrow engine.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dp2p",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dp2p",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// EscrowCreatedTotal counts escrows created.
	EscrowCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dp2p",
		Name:      "escrow_created_total",
		Help:      "Total escrows created.",
	})

	// EscrowDepositsTotal counts deposits (zero-amount deposits included).
	EscrowDepositsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dp2p",
		Name:      "escrow_deposits_total",
		Help:      "Total escrow deposits.",
	})

	// EscrowReleasesTotal counts releases by authorization path.
	EscrowReleasesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dp2p",
			Name:      "escrow_releases_total",
			Help:      "Total escrow releases by kind (release_seller_sig, release_agent_sig, partial).",
		},
		[]string{"kind"},
	)

	// EscrowCancelsTotal counts cancellations by initiating role.
	EscrowCancelsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dp2p",
			Name:      "escrow_cancels_total",
			Help:      "Total escrow cancellations by initiator (buyer, seller, agent).",
		},
		[]string{"by"},
	)

	// EscrowDisputesResolvedTotal counts settled disputes.
	EscrowDisputesResolvedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dp2p",
		Name:      "escrow_disputes_resolved_total",
		Help:      "Total disputes resolved (agent-signed and owner-arbitrated).",
	})

	// EscrowTakeoversTotal counts buyer takeovers.
	EscrowTakeoversTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dp2p",
		Name:      "escrow_takeovers_total",
		Help:      "Total buyer takeovers of unassigned escrows.",
	})

	// ActiveWebSocketClients tracks connected WebSocket clients.
	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "dp2p",
			Name:      "active_websocket_clients",
			Help:      "Number of currently connected WebSocket clients.",
		},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "dp2p", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "dp2p", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "dp2p", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "dp2p", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		EscrowCreatedTotal,
		EscrowDepositsTotal,
		EscrowReleasesTotal,
		EscrowCancelsTotal,
		EscrowDisputesResolvedTotal,
		EscrowTakeoversTotal,
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
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
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

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
