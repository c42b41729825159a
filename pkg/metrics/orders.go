package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics tracks order placement, status transitions, and gateway traffic.
type OrderMetrics struct {
	placed      *prometheus.CounterVec
	transitions *prometheus.CounterVec
	webhooks    *prometheus.CounterVec
	gateway     *prometheus.HistogramVec
}

// NewOrderMetrics registers the order metrics on the provided registerer. A nil
// registerer yields a no-op recorder.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	placed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_placed_total",
		Help: "Orders persisted, by payment method.",
	}, []string{"payment_method"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_total",
		Help: "Applied order status transitions.",
	}, []string{"actor", "to"})
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Gateway webhook deliveries by event and outcome.",
	}, []string{"event", "outcome"})
	gateway := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_request_duration_seconds",
		Help:    "Latency of payment gateway calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	reg.MustRegister(placed, transitions, webhooks, gateway)
	return &OrderMetrics{
		placed:      placed,
		transitions: transitions,
		webhooks:    webhooks,
		gateway:     gateway,
	}
}

func (m *OrderMetrics) IncPlaced(paymentMethod string) {
	if m == nil || m.placed == nil {
		return
	}
	m.placed.WithLabelValues(normalizeLabel(paymentMethod)).Inc()
}

func (m *OrderMetrics) IncTransition(actor, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(actor), normalizeLabel(to)).Inc()
}

func (m *OrderMetrics) IncWebhook(event, outcome string) {
	if m == nil || m.webhooks == nil {
		return
	}
	m.webhooks.WithLabelValues(normalizeLabel(event), normalizeLabel(outcome)).Inc()
}

func (m *OrderMetrics) ObserveGateway(outcome string, duration time.Duration) {
	if m == nil || m.gateway == nil {
		return
	}
	m.gateway.WithLabelValues(normalizeLabel(outcome)).Observe(duration.Seconds())
}
