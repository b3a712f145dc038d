package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the HTTP surface and the stock
// engine. It satisfies the Metrics interfaces of every module and the
// transaction retry observer; a nil *Metrics is a no-op.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	movements     *prometheus.CounterVec
	rejections    prometheus.Counter
	transitions   *prometheus.CounterVec
	retries       prometheus.Counter
	discrepancies prometheus.Gauge
}

// NewMetrics initialises the registry with HTTP and domain collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "odyssey_http_request_duration_seconds",
			Help:    "HTTP request duration per route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		movements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_stock_movements_total",
			Help: "Committed ledger movements by kind.",
		}, []string{"kind"}),
		rejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "odyssey_stock_reservation_rejections_total",
			Help: "Reservations refused for insufficient stock.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_status_transitions_total",
			Help: "Committed status transitions by entity.",
		}, []string{"entity", "from", "to"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "odyssey_tx_conflict_retries_total",
			Help: "Units of work re-run after a serialization, deadlock or lock timeout failure.",
		}),
		discrepancies: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "odyssey_ledger_discrepancies",
			Help: "Products whose balance disagreed with ledger or reservations at the last reconciliation.",
		}),
	}
	registry.MustRegister(m.requestsTotal, m.requestDuration, m.movements, m.rejections, m.transitions, m.retries, m.discrepancies)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request counters and durations.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for additional collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// MovementRecorded counts a committed movement.
func (m *Metrics) MovementRecorded(kind string) {
	if m == nil {
		return
	}
	m.movements.WithLabelValues(kind).Inc()
}

// ReservationRejected counts a reservation refused for lack of stock.
func (m *Metrics) ReservationRejected() {
	if m == nil {
		return
	}
	m.rejections.Inc()
}

// Transition counts a committed status change.
func (m *Metrics) Transition(entity, from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(entity, from, to).Inc()
}

// TxConflictRetry counts a retried unit of work.
func (m *Metrics) TxConflictRetry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

// LedgerDiscrepancies publishes the last reconciliation result.
func (m *Metrics) LedgerDiscrepancies(n int) {
	if m == nil {
		return
	}
	m.discrepancies.Set(float64(n))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
