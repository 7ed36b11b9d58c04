// Package metrics provides Prometheus instrumentation for the pool engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// StakesTotal counts accepted stakes, partitioned by pool kind.
	StakesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pooler_stakes_total",
		Help: "Total number of stakes accepted",
	}, []string{"pool_kind"})

	// StakeRejections counts stakes rejected at the boundary.
	StakeRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pooler_stake_rejections_total",
		Help: "Stakes rejected by input validation",
	})

	// SettlementsTotal counts settlement runs, partitioned by pool kind.
	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pooler_settlements_total",
		Help: "Total number of settlement runs",
	}, []string{"pool_kind"})

	// SettlementPayout tracks cumulative payout distributed to winners.
	SettlementPayout = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pooler_settlement_payout_total",
		Help: "Cumulative payout distributed to winners",
	}, []string{"pool_kind"})

	// ConservationViolations counts settlement runs that failed the
	// conservation check. Any non-zero value is a defect.
	ConservationViolations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pooler_conservation_violations_total",
		Help: "Settlement runs that violated pool conservation",
	})

	// OpenPools tracks the number of pools currently held by the service.
	OpenPools = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pooler_open_pools",
		Help: "Number of currently open pools",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pooler_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pooler_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pooler_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the raw path for the label; route cardinality is low here.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
