package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-mango-store/internal/auth"
	"github.com/ariefcatur/go-mango-store/internal/events"
	"github.com/ariefcatur/go-mango-store/internal/inventory"
	"github.com/ariefcatur/go-mango-store/internal/logging"
	"github.com/ariefcatur/go-mango-store/internal/metrics"
	"github.com/ariefcatur/go-mango-store/internal/slots"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Stock is the reservation surface of a catalog or a stall partition.
type Stock interface {
	Get(ctx context.Context, id string) (inventory.Item, error)
	Reserve(ctx context.Context, id string, qty int) error
	Release(ctx context.Context, id string, qty int) error
}

// StockResolver picks the keyspace an order draws from. An empty stallID
// means the shop catalog.
type StockResolver func(ctx context.Context, stallID string) (Stock, error)

type SlotBooker interface {
	ReserveSlot(ctx context.Context, id string) error
	ReleaseSlot(ctx context.Context, id string) error
}

// StatusCache is handed the order after every persisted transition. Put
// must ignore an order older than what it already holds.
type StatusCache interface {
	Put(ctx context.Context, o Order)
}

const maxCASAttempts = 8

var tracer = otel.Tracer("github.com/ariefcatur/go-mango-store/internal/orders")

type Ledger struct {
	Orders   Repository
	Stocks   StockResolver
	Slots    SlotBooker
	Shipping *FeeCalculator
	Cache    StatusCache
	Events   events.Sink
	Log      *zap.Logger
	Metrics  *metrics.Collectors
	Currency string
	Now      func() time.Time
}

func (l *Ledger) now() time.Time {
	if l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

func (l *Ledger) log(ctx context.Context) *zap.Logger {
	base := l.Log
	if base == nil {
		base = zap.NewNop()
	}
	return logging.FromContext(ctx, base)
}

func (l *Ledger) emit(ctx context.Context, topic, typ, id string, payload any) {
	if l.Events != nil {
		l.Events.Emit(ctx, topic, typ, id, payload)
	}
}

func (l *Ledger) refresh(ctx context.Context, o Order) {
	if l.Cache != nil {
		l.Cache.Put(ctx, o)
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func checkoutLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, inventory.ErrInsufficientStock):
		return "sold_out"
	case errors.Is(err, inventory.ErrInactive):
		return "inactive"
	case errors.Is(err, slots.ErrSlotFull):
		return "slot_full"
	default:
		return "error"
	}
}

// Create places an order. Every reservation taken is recorded on a
// compensation list; any failure walks the list backwards before the error
// is returned, so no partial order is ever visible.
func (l *Ledger) Create(ctx context.Context, by auth.Principal, req CheckoutRequest) (o Order, err error) {
	ctx, span := tracer.Start(ctx, "orders.Create", trace.WithAttributes(
		attribute.String("order.payment_mode", string(req.PaymentMode)),
		attribute.Int("order.lines", len(req.Items)),
	))
	defer func() {
		l.Metrics.Checkout(string(req.PaymentMode), checkoutLabel(err))
		endSpan(span, err)
	}()

	if err := req.Validate(); err != nil {
		return Order{}, err
	}
	stock, err := l.Stocks(ctx, req.StallID)
	if err != nil {
		return Order{}, err
	}

	lines := make([]Line, 0, len(req.Items))
	subtotal := 0
	for _, in := range req.Items {
		it, err := stock.Get(ctx, in.ItemID)
		if err != nil {
			return Order{}, fmt.Errorf("item %s: %w", in.ItemID, err)
		}
		if !it.Active {
			return Order{}, fmt.Errorf("item %s: %w", in.ItemID, inventory.ErrInactive)
		}
		line := Line{ItemID: it.ID, Name: it.Variety, Variant: it.WeightClass, PriceCents: it.PriceCents, Qty: in.Qty}
		lines = append(lines, line)
		subtotal += line.Amount()
	}
	shipping := l.Shipping.Fee(ctx, req.Address.PostalCode, lines)

	var undo []func(context.Context) error
	rollback := func() {
		rctx := context.WithoutCancel(ctx)
		for i := len(undo) - 1; i >= 0; i-- {
			if err := undo[i](rctx); err != nil {
				l.log(ctx).Error("checkout_compensation_failed", zap.Error(err))
			}
		}
	}

	for _, line := range lines {
		if err := stock.Reserve(ctx, line.ItemID, line.Qty); err != nil {
			rollback()
			return Order{}, err
		}
		line := line
		undo = append(undo, func(ctx context.Context) error { return stock.Release(ctx, line.ItemID, line.Qty) })
	}
	if req.SlotID != "" {
		if l.Slots == nil {
			rollback()
			return Order{}, errors.New("orders: delivery slots are not configured")
		}
		if err := l.Slots.ReserveSlot(ctx, req.SlotID); err != nil {
			rollback()
			return Order{}, err
		}
		undo = append(undo, func(ctx context.Context) error { return l.Slots.ReleaseSlot(ctx, req.SlotID) })
	}

	now := l.now()
	o = Order{
		ID:            uuid.NewString(),
		CustomerID:    by.UserID,
		StallID:       req.StallID,
		Lines:         lines,
		SubtotalCents: subtotal,
		ShippingCents: shipping,
		TotalCents:    subtotal + shipping,
		Currency:      l.Currency,
		Status:        StatusPending,
		PaymentMode:   req.PaymentMode,
		PaymentStatus: PaymentPending,
		SlotID:        req.SlotID,
		Contact:       req.Contact,
		Address:       req.Address,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := l.Orders.Insert(ctx, &o); err != nil {
		rollback()
		return Order{}, fmt.Errorf("persist order: %w", err)
	}

	span.SetAttributes(attribute.String("order.id", o.ID))
	l.log(ctx).Info("order_created",
		zap.String("order_id", o.ID),
		zap.String("customer_id", o.CustomerID),
		zap.String("stall_id", o.StallID),
		zap.String("payment_mode", string(o.PaymentMode)),
		zap.Int("total_cents", o.TotalCents),
		zap.String("actor_id", by.ActorID()),
	)
	l.emit(ctx, events.TopicOrderCreated, events.TypeOrderCreated, o.ID, events.OrderCreatedPayload{
		OrderID:     o.ID,
		CustomerID:  o.CustomerID,
		StallID:     o.StallID,
		SlotID:      o.SlotID,
		PaymentMode: string(o.PaymentMode),
		Items:       linePayloads(o.Lines),
		TotalCents:  o.TotalCents,
	})
	return o, nil
}

func linePayloads(lines []Line) []events.LinePayload {
	out := make([]events.LinePayload, 0, len(lines))
	for _, l := range lines {
		out = append(out, events.LinePayload{ItemID: l.ItemID, Qty: l.Qty, PriceCents: l.PriceCents})
	}
	return out
}

// Get returns an order visible to by: its customer, the stall that sold it,
// or anyone allowed to view every order.
func (l *Ledger) Get(ctx context.Context, id string, by auth.Principal) (Order, error) {
	o, err := l.Orders.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if !CanView(o.CustomerID, o.StallID, by) {
		return Order{}, fmt.Errorf("%w: order %s", auth.ErrUnauthorized, id)
	}
	return o, nil
}

// CanView reports whether by may read an order placed by customerID at
// stallID.
func CanView(customerID, stallID string, by auth.Principal) bool {
	if by.UserID != "" && by.UserID == customerID {
		return true
	}
	if stallID != "" && by.OwnsStall(stallID) {
		return true
	}
	return auth.Can(by.Role, auth.CapViewAnyOrder)
}

// ByIntent looks an order up by payment intent without an ownership check.
// It is for the payment gate, which authenticates by signature instead.
func (l *Ledger) ByIntent(ctx context.Context, intent string) (Order, error) {
	return l.Orders.FindByIntent(ctx, intent)
}

func (l *Ledger) ListMine(ctx context.Context, by auth.Principal) ([]Order, error) {
	return l.Orders.ListByCustomer(ctx, by.UserID)
}

// guard inspects the freshly loaded order inside a CAS attempt.
type guard func(o Order) error

// Cancel is allowed from Pending or Confirmed, by the owning customer or by
// anyone holding the cancel-any capability.
func (l *Ledger) Cancel(ctx context.Context, id string, by auth.Principal, reason string) (Order, error) {
	return l.cancel(ctx, id, by, reason, "", func(o Order) error {
		if by.UserID != o.CustomerID {
			if err := by.Require(auth.CapCancelAnyOrder); err != nil {
				return err
			}
		}
		return nil
	})
}

// Expire cancels an online order whose payment window closed. A paid order
// is left alone.
func (l *Ledger) Expire(ctx context.Context, id string) (Order, error) {
	o, err := l.cancel(ctx, id, auth.System(), "payment timeout", PaymentFailed, requireUnpaid)
	if err == nil {
		l.Metrics.PaymentExpired()
	}
	return o, err
}

// Overdue lists unpaid online orders whose payment clock ran out by now,
// straight from the repository. Orders that never got a deadline count once
// they are older than window.
func (l *Ledger) Overdue(ctx context.Context, now time.Time, window time.Duration, limit int) ([]string, error) {
	found, err := l.Orders.ListOverdue(ctx, now, now.Add(-window), limit)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(found))
	for _, o := range found {
		ids = append(ids, o.ID)
	}
	return ids, nil
}

// FailPayment cancels an unpaid order after the gateway reported failure.
func (l *Ledger) FailPayment(ctx context.Context, id, reason string) (Order, error) {
	return l.cancel(ctx, id, auth.System(), reason, PaymentFailed, requireUnpaid)
}

func requireUnpaid(o Order) error {
	if o.PaymentStatus == PaymentPaid {
		return ErrAlreadyPaid
	}
	return nil
}

// cancel persists the Cancelled status first and only the CAS winner
// releases stock and slot, so the release happens exactly once.
func (l *Ledger) cancel(ctx context.Context, id string, by auth.Principal, reason string, payment PaymentStatus, check guard) (o Order, err error) {
	ctx, span := tracer.Start(ctx, "orders.Cancel", trace.WithAttributes(attribute.String("order.id", id)))
	defer func() { endSpan(span, err) }()

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		o, err = l.Orders.Get(ctx, id)
		if err != nil {
			return Order{}, err
		}
		if err := check(o); err != nil {
			return o, err
		}
		if o.Status == StatusCancelled {
			return o, ErrAlreadyCancelled
		}
		if !CanTransition(o.Status, StatusCancelled) {
			return o, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, StatusCancelled)
		}

		from := o.Status
		o.Status = StatusCancelled
		o.CancelReason = reason
		if payment != "" {
			o.PaymentStatus = payment
		}
		o.UpdatedAt = l.now()
		err = l.Orders.Update(ctx, &o)
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			return Order{}, err
		}

		l.releaseHoldings(ctx, o)
		l.refresh(ctx, o)
		l.Metrics.Transition(string(StatusCancelled))
		l.log(ctx).Info("order_cancelled",
			zap.String("order_id", o.ID),
			zap.String("from", string(from)),
			zap.String("reason", reason),
			zap.String("actor_id", by.ActorID()),
			zap.String("as_user", by.UserID),
		)
		l.emit(ctx, events.TopicOrderCancelled, events.TypeOrderCancelled, o.ID, events.OrderCancelledPayload{
			OrderID: o.ID,
			Reason:  reason,
			ActorID: by.ActorID(),
			Items:   linePayloads(o.Lines),
			SlotID:  o.SlotID,
		})
		return o, nil
	}
	return Order{}, ErrConflict
}

// releaseHoldings runs after the cancellation is durable. Failures leave
// stock short rather than double counted and are logged for follow-up.
func (l *Ledger) releaseHoldings(ctx context.Context, o Order) {
	ctx = context.WithoutCancel(ctx)
	log := l.log(ctx)
	stock, err := l.Stocks(ctx, o.StallID)
	if err != nil {
		log.Error("release_stock_failed", zap.String("order_id", o.ID), zap.Error(err))
	} else {
		for _, line := range o.Lines {
			if err := stock.Release(ctx, line.ItemID, line.Qty); err != nil {
				log.Error("release_stock_failed",
					zap.String("order_id", o.ID),
					zap.String("item_id", line.ItemID),
					zap.Int("qty", line.Qty),
					zap.Error(err),
				)
			}
		}
	}
	if o.SlotID != "" && l.Slots != nil {
		if err := l.Slots.ReleaseSlot(ctx, o.SlotID); err != nil {
			log.Error("release_slot_failed", zap.String("order_id", o.ID), zap.String("slot_id", o.SlotID), zap.Error(err))
		}
	}
}

// Advance moves an order forward for staff. Cancelled goes through the
// cancellation protocol. Pending to Confirmed is only for cash on delivery;
// online orders are confirmed by payment.
func (l *Ledger) Advance(ctx context.Context, id string, by auth.Principal, to Status) (Order, error) {
	if err := by.Require(auth.CapAdvanceOrder); err != nil {
		return Order{}, err
	}
	if to == StatusCancelled {
		return l.Cancel(ctx, id, by, "cancelled by "+string(by.Role))
	}
	return l.transition(ctx, id, by, to, func(o Order) error {
		if o.Status == StatusPending && to == StatusConfirmed && o.PaymentMode != PaymentCOD {
			return fmt.Errorf("%w: online orders are confirmed by payment", ErrInvalidTransition)
		}
		return nil
	}, nil)
}

// AttachIntent stores the gateway's intent handle and the confirmation
// deadline on a pending online order. Attaching again returns the order
// unchanged.
func (l *Ledger) AttachIntent(ctx context.Context, id, intent string, deadline time.Time) (Order, error) {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		o, err := l.Orders.Get(ctx, id)
		if err != nil {
			return Order{}, err
		}
		if o.PaymentIntent != "" {
			return o, nil
		}
		if o.PaymentMode != PaymentOnline || o.Status != StatusPending || o.PaymentStatus != PaymentPending {
			return o, fmt.Errorf("%w: order %s cannot take a payment intent", ErrInvalidTransition, id)
		}
		d := deadline.UTC()
		o.PaymentIntent = intent
		o.PaymentDeadline = &d
		o.UpdatedAt = l.now()
		err = l.Orders.Update(ctx, &o)
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			return Order{}, err
		}
		l.refresh(ctx, o)
		return o, nil
	}
	return Order{}, ErrConflict
}

// ConfirmPayment marks the order behind intent as paid and Confirmed. The
// bool reports whether anything changed; an already paid order is a no-op.
func (l *Ledger) ConfirmPayment(ctx context.Context, intent, reference string) (o Order, changed bool, err error) {
	ctx, span := tracer.Start(ctx, "orders.ConfirmPayment", trace.WithAttributes(attribute.String("payment.intent", intent)))
	defer func() { endSpan(span, err) }()

	o, err = l.Orders.FindByIntent(ctx, intent)
	if err != nil {
		return Order{}, false, err
	}
	if o.PaymentStatus == PaymentPaid {
		return o, false, nil
	}
	o, err = l.transition(ctx, o.ID, auth.System(), StatusConfirmed, func(cur Order) error {
		if cur.PaymentStatus == PaymentPaid {
			return ErrAlreadyPaid
		}
		if cur.Status == StatusCancelled {
			return ErrAlreadyCancelled
		}
		return nil
	}, func(cur *Order) {
		cur.PaymentStatus = PaymentPaid
		cur.PaymentReference = reference
	})
	if errors.Is(err, ErrAlreadyPaid) {
		return o, false, nil
	}
	if err != nil {
		return o, false, err
	}
	l.emit(ctx, events.TopicPaymentConfirmed, events.TypePaymentConfirmed, o.ID, events.PaymentConfirmedPayload{
		OrderID: o.ID, PaymentRef: reference, AmountCents: o.TotalCents,
	})
	return o, true, nil
}

// transition is the CAS loop for forward moves without stock side effects.
func (l *Ledger) transition(ctx context.Context, id string, by auth.Principal, to Status, check guard, mutate func(*Order)) (Order, error) {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		o, err := l.Orders.Get(ctx, id)
		if err != nil {
			return Order{}, err
		}
		if err := check(o); err != nil {
			return o, err
		}
		if !CanTransition(o.Status, to) {
			return o, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
		}
		from := o.Status
		o.Status = to
		if mutate != nil {
			mutate(&o)
		}
		o.UpdatedAt = l.now()
		err = l.Orders.Update(ctx, &o)
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			return Order{}, err
		}

		l.refresh(ctx, o)
		l.Metrics.Transition(string(to))
		l.log(ctx).Info("order_status_changed",
			zap.String("order_id", o.ID),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
			zap.String("actor_id", by.ActorID()),
			zap.String("as_user", by.UserID),
		)
		l.emit(ctx, events.TopicOrderStatusChanged, events.TypeOrderStatusChanged, o.ID, events.OrderStatusChangedPayload{
			OrderID: o.ID, From: string(from), To: string(to), ActorID: by.ActorID(),
		})
		return o, nil
	}
	return Order{}, ErrConflict
}
