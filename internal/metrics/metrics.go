package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collectors groups the service's Prometheus instruments. A nil *Collectors
// is valid and records nothing, so domain packages never need a guard.
type Collectors struct {
	Reservations     *prometheus.CounterVec
	SlotReservations *prometheus.CounterVec
	Checkouts        *prometheus.CounterVec
	Transitions      *prometheus.CounterVec
	PaymentCallbacks *prometheus.CounterVec
	PaymentExpiries  prometheus.Counter
	StockAdjustments *prometheus.CounterVec
	OrphanRecords    *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		Reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stock_reservations_total",
			Help: "Stock reserve/release operations by store, op and outcome.",
		}, []string{"store", "op", "outcome"}),
		SlotReservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slot_reservations_total",
			Help: "Delivery slot reserve/release operations by op and outcome.",
		}, []string{"op", "outcome"}),
		Checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkouts_total",
			Help: "Order creation attempts by payment mode and outcome.",
		}, []string{"payment_mode", "outcome"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "order_transitions_total",
			Help: "Order status transitions by target status.",
		}, []string{"to"}),
		PaymentCallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_callbacks_total",
			Help: "Payment gateway callbacks by outcome.",
		}, []string{"outcome"}),
		PaymentExpiries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "payment_expiries_total",
			Help: "Online orders cancelled because no payment arrived before the deadline.",
		}),
		StockAdjustments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stock_adjustments_total",
			Help: "Admin absolute stock adjustments by store.",
		}, []string{"store"}),
		OrphanRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crm_orphan_records_total",
			Help: "CRM records handled by the orphan reconciler by action.",
		}, []string{"action"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route, method and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}
	if reg != nil {
		reg.MustRegister(
			c.Reservations, c.SlotReservations, c.Checkouts, c.Transitions,
			c.PaymentCallbacks, c.PaymentExpiries, c.StockAdjustments,
			c.OrphanRecords, c.HTTPDuration,
		)
	}
	return c
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (c *Collectors) Reservation(store, op string, err error) {
	if c == nil {
		return
	}
	c.Reservations.WithLabelValues(store, op, outcome(err)).Inc()
}

func (c *Collectors) SlotReservation(op string, err error) {
	if c == nil {
		return
	}
	c.SlotReservations.WithLabelValues(op, outcome(err)).Inc()
}

// Checkout records a creation attempt; label is "ok" or a short failure kind.
func (c *Collectors) Checkout(mode, label string) {
	if c == nil {
		return
	}
	c.Checkouts.WithLabelValues(mode, label).Inc()
}

func (c *Collectors) Transition(to string) {
	if c == nil {
		return
	}
	c.Transitions.WithLabelValues(to).Inc()
}

func (c *Collectors) PaymentCallback(label string) {
	if c == nil {
		return
	}
	c.PaymentCallbacks.WithLabelValues(label).Inc()
}

func (c *Collectors) PaymentExpired() {
	if c == nil {
		return
	}
	c.PaymentExpiries.Inc()
}

func (c *Collectors) StockAdjusted(store string) {
	if c == nil {
		return
	}
	c.StockAdjustments.WithLabelValues(store).Inc()
}

func (c *Collectors) Orphan(action string, n int) {
	if c == nil || n == 0 {
		return
	}
	c.OrphanRecords.WithLabelValues(action).Add(float64(n))
}

func (c *Collectors) ObserveHTTP(route, method, status string, seconds float64) {
	if c == nil {
		return
	}
	c.HTTPDuration.WithLabelValues(route, method, status).Observe(seconds)
}
