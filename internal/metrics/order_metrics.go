package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics — метрики жизненного цикла заказов и корзины.
type OrderMetrics struct {
	ordersCreated     prometheus.Counter
	orderEdits        prometheus.Counter
	statusTransitions *prometheus.CounterVec
	rejections        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	timelineEvents    prometheus.Counter
	cartEvents        *prometheus.CounterVec
}

// NewOrderMetrics регистрирует метрики в DefaultRegisterer.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWithRegisterer регистрирует метрики в переданном registerer.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		ordersCreated: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qrpro_orders_created_total",
			Help: "Total number of orders created.",
		})),
		orderEdits: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qrpro_order_edits_total",
			Help: "Total number of successful order edits.",
		})),
		statusTransitions: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qrpro_order_status_transitions_total",
			Help: "Total number of order status transitions grouped by source, target and kind.",
		}, []string{"from", "to", "kind"})),
		rejections: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qrpro_order_operation_rejections_total",
			Help: "Total number of rejected order operations grouped by operation and reason.",
		}, []string{"operation", "reason"})),
		operationDuration: register(registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "qrpro_order_operation_duration_seconds",
			Help:    "Duration of order operations in seconds.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}, []string{"operation"})),
		timelineEvents: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qrpro_timeline_events_total",
			Help: "Total number of timeline events recorded.",
		})),
		cartEvents: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qrpro_cart_events_total",
			Help: "Total number of cart events grouped by type.",
		}, []string{"event"})),
	}
}

func register[T prometheus.Collector](registerer prometheus.Registerer, collector T) T {
	err := registerer.Register(collector)
	if err == nil {
		return collector
	}

	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		existing, ok := already.ExistingCollector.(T)
		if !ok {
			panic(fmt.Sprintf("collector already registered with unexpected type %T", already.ExistingCollector))
		}
		return existing
	}
	panic(fmt.Sprintf("register collector: %v", err))
}

// RecordOrderCreated увеличивает счётчик созданных заказов.
func (m *OrderMetrics) RecordOrderCreated() {
	m.ordersCreated.Inc()
}

// RecordOrderEdited увеличивает счётчик правок заказа.
func (m *OrderMetrics) RecordOrderEdited() {
	m.orderEdits.Inc()
}

// RecordTransition фиксирует смену статуса; forced означает административный обход таблицы.
func (m *OrderMetrics) RecordTransition(from, to string, forced bool) {
	kind := "regular"
	if forced {
		kind = "forced"
	}
	m.statusTransitions.WithLabelValues(from, to, kind).Inc()
}

// RecordRejection фиксирует отказ в операции.
func (m *OrderMetrics) RecordRejection(operation, reason string) {
	m.rejections.WithLabelValues(operation, reason).Inc()
}

// ObserveOperation записывает длительность операции.
func (m *OrderMetrics) ObserveOperation(operation string, duration time.Duration) {
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *OrderMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordCartEvent увеличивает счётчик событий корзины.
func (m *OrderMetrics) RecordCartEvent(event string) {
	m.cartEvents.WithLabelValues(event).Inc()
}
