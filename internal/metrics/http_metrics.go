package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics — метрики HTTP API по шаблону маршрута chi.
type HTTPMetrics struct {
	requests       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	idempotentHits *prometheus.CounterVec
}

func NewHTTPMetrics(registerer prometheus.Registerer) *HTTPMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &HTTPMetrics{
		requests: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qrpro_http_requests_total",
			Help: "Total number of HTTP requests grouped by method, route and status code.",
		}, []string{"method", "route", "code"})),
		duration: register(registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "qrpro_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"})),
		idempotentHits: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qrpro_http_idempotency_outcomes_total",
			Help: "Idempotency-Key handling outcomes: new, replayed, in_progress, mismatch, error.",
		}, []string{"outcome"})),
	}
}

// ObserveRequest учитывает завершённый запрос.
func (m *HTTPMetrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordIdempotency учитывает исход обработки Idempotency-Key.
func (m *HTTPMetrics) RecordIdempotency(outcome string) {
	if m == nil {
		return
	}
	m.idempotentHits.WithLabelValues(outcome).Inc()
}
