package redisx

import "time"

const (
	// idem:checkout:{idempotency_key} -> order_id ("pending" while in flight)
	KeyIdemCheckout = "idem:checkout:%s"

	// order_status:{order_id} -> hash {v: order version, data: CachedStatus json}
	KeyOrderStatus = "order_status:%s"

	// dedup:payment:{reference} -> order_id
	KeyDedupPayment = "dedup:payment:%s"

	// sorted set of order ids scored by payment deadline (unix ms)
	KeyPaymentDeadlines = "payment:deadlines"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLInFlight    = 30 * time.Second
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
