package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

const (
	TypeOrderCreated       = "OrderCreated"
	TypeOrderCancelled     = "OrderCancelled"
	TypeOrderStatusChanged = "OrderStatusChanged"
	TypePaymentConfirmed   = "PaymentConfirmed"
	TypeStockAdjusted      = "StockAdjusted"
	TypeStallDeleted       = "StallDeleted"
)

const (
	TopicOrderCreated       = "order.created"
	TopicOrderCancelled     = "order.cancelled"
	TopicOrderStatusChanged = "order.status_changed"
	TopicPaymentConfirmed   = "payment.confirmed"
	TopicStockAdjusted      = "stock.adjusted"
	TopicStallDeleted       = "stall.deleted"
)

// Topics lists every topic this service produces to.
var Topics = []string{
	TopicOrderCreated,
	TopicOrderCancelled,
	TopicOrderStatusChanged,
	TopicPaymentConfirmed,
	TopicStockAdjusted,
	TopicStallDeleted,
}

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// Sink receives domain events after a state change has been persisted.
// Implementations must not block the caller for long and never fail the
// transition that produced the event.
type Sink interface {
	Emit(ctx context.Context, topic, eventType, correlationID string, payload any)
}

type Discard struct{}

func (Discard) Emit(context.Context, string, string, string, any) {}

type Emitted struct {
	Topic         string
	Type          string
	CorrelationID string
	Payload       any
}

// Recorder keeps every emitted event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Emitted
}

func (r *Recorder) Emit(_ context.Context, topic, eventType, correlationID string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Emitted{Topic: topic, Type: eventType, CorrelationID: correlationID, Payload: payload})
}

func (r *Recorder) Events() []Emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Emitted(nil), r.events...)
}

// OfType returns the recorded events with the given type, oldest first.
func (r *Recorder) OfType(eventType string) []Emitted {
	var out []Emitted
	for _, e := range r.Events() {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// ---- payloads ----

type LinePayload struct {
	ItemID     string `json:"item_id"`
	Qty        int    `json:"qty"`
	PriceCents int    `json:"price_cents"`
}

type OrderCreatedPayload struct {
	OrderID     string        `json:"order_id"`
	CustomerID  string        `json:"customer_id"`
	StallID     string        `json:"stall_id,omitempty"`
	SlotID      string        `json:"slot_id,omitempty"`
	PaymentMode string        `json:"payment_mode"`
	Items       []LinePayload `json:"items"`
	TotalCents  int           `json:"total_cents"`
}

type OrderCancelledPayload struct {
	OrderID string        `json:"order_id"`
	Reason  string        `json:"reason"`
	ActorID string        `json:"actor_id"`
	Items   []LinePayload `json:"items"`
	SlotID  string        `json:"slot_id,omitempty"`
}

type OrderStatusChangedPayload struct {
	OrderID string `json:"order_id"`
	From    string `json:"from"`
	To      string `json:"to"`
	ActorID string `json:"actor_id"`
}

type PaymentConfirmedPayload struct {
	OrderID     string `json:"order_id"`
	PaymentRef  string `json:"payment_ref"`
	AmountCents int    `json:"amount_cents"`
}

type StockAdjustedPayload struct {
	ItemID   string `json:"item_id"`
	Previous int    `json:"previous"`
	Quantity int    `json:"quantity"`
	Reason   string `json:"reason"`
	ActorID  string `json:"actor_id"`
}

type StallDeletedPayload struct {
	StallID string `json:"stall_id"`
	ActorID string `json:"actor_id"`
}
