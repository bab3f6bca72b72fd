package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Callback results.
const (
	CallbackApplied   = "applied"
	CallbackDuplicate = "duplicate"
	CallbackUnknown   = "unknown_transaction"
	CallbackLate      = "late"
	CallbackBadMAC    = "bad_mac"
	CallbackFailed    = "failed"
)

// MarketplaceMetrics — метрики жизненного цикла заказов.
// Nil-значение допустимо: все методы становятся no-op.
type MarketplaceMetrics struct {
	ordersCreated    prometheus.Counter
	checkoutFailed   prometheus.Counter
	checkoutDuration prometheus.Histogram

	transitions      *prometheus.CounterVec
	transitionErrors *prometheus.CounterVec

	stockAdjustments *prometheus.CounterVec
	callbacks        *prometheus.CounterVec

	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter
}

// NewMarketplaceMetrics регистрирует метрики в DefaultRegisterer.
func NewMarketplaceMetrics() *MarketplaceMetrics {
	return NewMarketplaceMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewMarketplaceMetricsWithRegisterer регистрирует метрики в указанном реестре.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewMarketplaceMetricsWithRegisterer(registerer prometheus.Registerer) *MarketplaceMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &MarketplaceMetrics{
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "marketplace_orders_created_total",
			Help: "Total number of orders created at checkout",
		}),
		checkoutFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "marketplace_checkout_failed_total",
			Help: "Total number of checkout requests rolled back",
		}),
		checkoutDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "marketplace_checkout_duration_seconds",
			Help:    "Duration of checkout transactions in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		transitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "marketplace_order_transitions_total",
			Help: "Total number of applied order status transitions",
		}, []string{"event", "to"}),
		transitionErrors: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "marketplace_order_transition_rejected_total",
			Help: "Total number of rejected order status transitions",
		}, []string{"event"}),
		stockAdjustments: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "marketplace_stock_adjusted_units_total",
			Help: "Total number of stock units moved by reason",
		}, []string{"reason"}),
		callbacks: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "marketplace_gateway_callbacks_total",
			Help: "Total number of payment gateway callbacks by result",
		}, []string{"provider", "result"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "marketplace_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "marketplace_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
	}
}

// RecordOrdersCreated учитывает успешно оформленные заказы.
func (m *MarketplaceMetrics) RecordOrdersCreated(count int, duration time.Duration) {
	if m == nil {
		return
	}
	m.ordersCreated.Add(float64(count))
	m.checkoutDuration.Observe(duration.Seconds())
}

// RecordCheckoutFailed учитывает откаченное оформление.
func (m *MarketplaceMetrics) RecordCheckoutFailed() {
	if m == nil {
		return
	}
	m.checkoutFailed.Inc()
}

// RecordTransition учитывает применённый переход статуса.
func (m *MarketplaceMetrics) RecordTransition(event, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(event, to).Inc()
}

// RecordTransitionRejected учитывает отклонённый переход.
func (m *MarketplaceMetrics) RecordTransitionRejected(event string) {
	if m == nil {
		return
	}
	m.transitionErrors.WithLabelValues(event).Inc()
}

// RecordStockAdjusted учитывает перемещённые единицы товара.
func (m *MarketplaceMetrics) RecordStockAdjusted(reason string, units int) {
	if m == nil || units <= 0 {
		return
	}
	m.stockAdjustments.WithLabelValues(reason).Add(float64(units))
}

// RecordCallback учитывает обработанный callback шлюза.
func (m *MarketplaceMetrics) RecordCallback(provider, result string) {
	if m == nil {
		return
	}
	m.callbacks.WithLabelValues(provider, result).Inc()
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *MarketplaceMetrics) RecordTimelineEvent() {
	if m == nil {
		return
	}
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *MarketplaceMetrics) RecordOutboxEvent() {
	if m == nil {
		return
	}
	m.outboxEvents.Inc()
}
