package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SagaMetrics содержит метрики саги размещения заказа.
type SagaMetrics struct {
	// Счётчики операций
	ordersSubmitted  prometheus.Counter
	ordersFulfilled  prometheus.Counter
	ordersFailed     prometheus.Counter
	paymentAttempts  *prometheus.CounterVec
	couponUsage      *prometheus.CounterVec
	stockDecremented prometheus.Counter
	stockClampFlags  prometheus.Counter

	// Гистограмма полного цикла заказа
	sagaDuration prometheus.Histogram

	// Счётчик событий outbox
	outboxEvents prometheus.Counter

	// Gauge для заказов, ожидающих оплату
	pendingOrders prometheus.Gauge
}

// NewSagaMetrics создаёт новый экземпляр метрик саги.
func NewSagaMetrics() *SagaMetrics {
	return newSagaMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newSagaMetricsWithRegisterer(registerer prometheus.Registerer) *SagaMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &SagaMetrics{
		ordersSubmitted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "rfs_orders_submitted_total",
			Help: "Total number of orders accepted at submission",
		}),
		ordersFulfilled: registerCounter(registerer, prometheus.CounterOpts{
			Name: "rfs_orders_fulfilled_total",
			Help: "Total number of orders that reached the fulfilled status",
		}),
		ordersFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "rfs_orders_payment_failed_total",
			Help: "Total number of orders that ended in payment_failed",
		}),
		paymentAttempts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "rfs_payment_attempts_total",
			Help: "Total number of payment attempts grouped by outcome",
		}, []string{"outcome"}),
		couponUsage: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "rfs_coupon_usage_total",
			Help: "Total number of coupon consumption attempts grouped by outcome",
		}, []string{"outcome"}),
		stockDecremented: registerCounter(registerer, prometheus.CounterOpts{
			Name: "rfs_stock_decrements_total",
			Help: "Total number of stock line decrements applied after payment",
		}),
		stockClampFlags: registerCounter(registerer, prometheus.CounterOpts{
			Name: "rfs_stock_clamped_total",
			Help: "Total number of stock decrements clamped at zero (oversell flag)",
		}),
		sagaDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "rfs_order_saga_duration_seconds",
			Help:    "Duration from submission to a terminal order status in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "rfs_outbox_events_total",
			Help: "Total number of analytics events enqueued to the outbox",
		}),
		pendingOrders: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "rfs_orders_payment_pending",
			Help: "Number of orders currently waiting for a payment outcome",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordOrderSubmitted увеличивает счётчик принятых заказов.
func (m *SagaMetrics) RecordOrderSubmitted() {
	m.ordersSubmitted.Inc()
	m.pendingOrders.Inc()
}

// RecordOrderFulfilled фиксирует успешное завершение саги.
func (m *SagaMetrics) RecordOrderFulfilled(startedAt time.Time) {
	m.ordersFulfilled.Inc()
	m.pendingOrders.Dec()
	m.sagaDuration.Observe(time.Since(startedAt).Seconds())
}

// RecordOrderFailed фиксирует заказ с неуспешной оплатой.
func (m *SagaMetrics) RecordOrderFailed(startedAt time.Time) {
	m.ordersFailed.Inc()
	m.pendingOrders.Dec()
	m.sagaDuration.Observe(time.Since(startedAt).Seconds())
}

// RecordPaymentAttempt фиксирует исход попытки оплаты.
func (m *SagaMetrics) RecordPaymentAttempt(outcome string) {
	m.paymentAttempts.WithLabelValues(outcome).Inc()
}

// RecordCouponUsage фиксирует исход погашения купона.
func (m *SagaMetrics) RecordCouponUsage(outcome string) {
	m.couponUsage.WithLabelValues(outcome).Inc()
}

// RecordStockDecrement фиксирует списание одной позиции.
func (m *SagaMetrics) RecordStockDecrement(clamped bool) {
	m.stockDecremented.Inc()
	if clamped {
		m.stockClampFlags.Inc()
	}
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *SagaMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
