// Package metrics provides Prometheus instrumentation for the exchange.
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
	// OrdersTotal counts orders accepted, partitioned by side and TIF.
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nukex_orders_total",
		Help: "Total number of orders accepted",
	}, []string{"side", "time_in_force"})

	// OrdersRejected counts orders rejected at admission, by reason.
	OrdersRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nukex_orders_rejected_total",
		Help: "Orders rejected at admission",
	}, []string{"reason"})

	// TradesTotal counts trades executed.
	TradesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nukex_trades_total",
		Help: "Total number of trades executed",
	})

	// MatchLatency tracks the submit-to-settle latency of one order.
	MatchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nukex_match_latency_seconds",
		Help:    "Order matching latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"side"})

	// SettlementFailures counts trades that failed mid-settlement.
	SettlementFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nukex_settlement_failures_total",
		Help: "Trades that failed during settlement",
	})

	// OpenOfferings tracks the number of offerings accepting orders.
	OpenOfferings = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nukex_open_offerings",
		Help: "Number of currently open offerings",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nukex_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nukex_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nukex_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})

	// TradeVolume tracks cumulative executed volume in shares per offering.
	TradeVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nukex_trade_volume_shares_total",
		Help: "Cumulative trade volume in shares",
	}, []string{"offering_id"})

	// CommissionCents tracks cumulative commission collected.
	CommissionCents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nukex_commission_cents_total",
		Help: "Cumulative commission collected in cents",
	})
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

		// Use the route pattern for path label to avoid high cardinality.
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
