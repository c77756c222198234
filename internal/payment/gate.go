package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-mango-store/internal/logging"
	"github.com/ariefcatur/go-mango-store/internal/metrics"
	"github.com/ariefcatur/go-mango-store/internal/orders"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var ErrInvalidCallback = errors.New("payment: unknown callback status")

const (
	CallbackSucceeded = "succeeded"
	CallbackFailed    = "failed"
)

// Callback is what the gateway posts back. Signature covers Intent and
// Reference only.
type Callback struct {
	Intent    string `json:"intent"`
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
	Signature string `json:"signature"`
}

// Ledger is the slice of the order ledger the gate drives.
type Ledger interface {
	ByIntent(ctx context.Context, intent string) (orders.Order, error)
	AttachIntent(ctx context.Context, id, intent string, deadline time.Time) (orders.Order, error)
	ConfirmPayment(ctx context.Context, intent, reference string) (orders.Order, bool, error)
	FailPayment(ctx context.Context, id, reason string) (orders.Order, error)
	Expire(ctx context.Context, id string) (orders.Order, error)
	Overdue(ctx context.Context, now time.Time, window time.Duration, limit int) ([]string, error)
}

var tracer = otel.Tracer("github.com/ariefcatur/go-mango-store/internal/payment")

type Gate struct {
	Ledger    Ledger
	Gateway   Gateway
	Signer    Signer
	Deadlines DeadlineQueue
	Dedup     Dedup
	// Timeout is how long an online order may wait for its callback.
	Timeout  time.Duration
	Currency string
	Log      *zap.Logger
	Metrics  *metrics.Collectors
	Now      func() time.Time
}

func (g *Gate) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

func (g *Gate) log(ctx context.Context) *zap.Logger {
	base := g.Log
	if base == nil {
		base = zap.NewNop()
	}
	return logging.FromContext(ctx, base)
}

// CreateIntent opens a payment intent for a pending online order and starts
// its confirmation clock. When the gateway cannot be reached the order is
// cancelled so its stock goes back, and ErrGatewayUnavailable is returned
// with the cancelled order.
func (g *Gate) CreateIntent(ctx context.Context, o orders.Order) (orders.Order, error) {
	if o.PaymentMode != orders.PaymentOnline || o.PaymentIntent != "" {
		return o, nil
	}
	log := g.log(ctx).With(zap.String("order_id", o.ID))

	intent, err := g.Gateway.CreateIntent(ctx, IntentRequest{OrderID: o.ID, AmountCents: o.TotalCents, Currency: g.Currency})
	if err != nil {
		log.Warn("payment_intent_failed", zap.Error(err))
		return g.abandon(ctx, log, o, err)
	}

	deadline := g.now().Add(g.Timeout)
	if err := g.Deadlines.Schedule(ctx, o.ID, deadline); err != nil {
		log.Error("payment_deadline_schedule_failed", zap.String("intent", intent), zap.Error(err))
		return g.abandon(ctx, log, o, fmt.Errorf("schedule deadline: %w", err))
	}
	out, err := g.Ledger.AttachIntent(ctx, o.ID, intent, deadline)
	if err != nil {
		return o, err
	}
	log.Info("payment_intent_created", zap.String("intent", intent), zap.Time("deadline", deadline))
	return out, nil
}

// abandon cancels an order whose payment could not be set up, releasing its
// stock, and reports ErrGatewayUnavailable with the cancelled order.
func (g *Gate) abandon(ctx context.Context, log *zap.Logger, o orders.Order, cause error) (orders.Order, error) {
	cancelled, err := g.Ledger.FailPayment(context.WithoutCancel(ctx), o.ID, "payment gateway unavailable")
	if err != nil {
		log.Error("payment_intent_rollback_failed", zap.Error(err))
		cancelled = o
	}
	if errors.Is(cause, ErrGatewayUnavailable) {
		return cancelled, cause
	}
	return cancelled, fmt.Errorf("%w: %v", ErrGatewayUnavailable, cause)
}

// HandleCallback authenticates a gateway callback before it touches any
// order, then confirms or cancels. Replays of an applied confirmation are
// no-ops.
func (g *Gate) HandleCallback(ctx context.Context, cb Callback) (o orders.Order, err error) {
	ctx, span := tracer.Start(ctx, "payment.HandleCallback")
	span.SetAttributes(attribute.String("payment.intent", cb.Intent), attribute.String("payment.status", cb.Status))
	label := "error"
	defer func() {
		g.Metrics.PaymentCallback(label)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, label)
		} else {
			span.SetStatus(codes.Ok, label)
		}
		span.End()
	}()

	log := g.log(ctx).With(zap.String("intent", cb.Intent), zap.String("reference", cb.Reference))
	if err := g.Signer.Verify(cb.Intent, cb.Reference, cb.Signature); err != nil {
		label = "invalid_signature"
		log.Warn("payment_callback_rejected", zap.Error(err))
		return orders.Order{}, err
	}

	switch cb.Status {
	case CallbackSucceeded:
		if g.Dedup != nil && cb.Reference != "" {
			if seen, derr := g.Dedup.Seen(ctx, cb.Reference); derr == nil && seen {
				label = "duplicate"
				return g.Ledger.ByIntent(ctx, cb.Intent)
			}
		}
		o, changed, err := g.Ledger.ConfirmPayment(ctx, cb.Intent, cb.Reference)
		if err != nil {
			if errors.Is(err, orders.ErrAlreadyCancelled) {
				label = "late"
				log.Warn("payment_after_cancellation", zap.String("order_id", o.ID))
			}
			return o, err
		}
		if !changed {
			label = "duplicate"
			return o, nil
		}
		label = "confirmed"
		if err := g.Deadlines.Remove(ctx, o.ID); err != nil {
			log.Warn("payment_deadline_remove_failed", zap.Error(err))
		}
		if g.Dedup != nil && cb.Reference != "" {
			if err := g.Dedup.Mark(ctx, cb.Reference); err != nil {
				log.Warn("payment_dedup_mark_failed", zap.Error(err))
			}
		}
		log.Info("payment_confirmed", zap.String("order_id", o.ID))
		return o, nil

	case CallbackFailed:
		cur, err := g.Ledger.ByIntent(ctx, cb.Intent)
		if err != nil {
			return orders.Order{}, err
		}
		reason := "payment failed"
		if cb.Reason != "" {
			reason += ": " + cb.Reason
		}
		o, err := g.Ledger.FailPayment(ctx, cur.ID, reason)
		switch {
		case errors.Is(err, orders.ErrAlreadyCancelled):
			label = "duplicate"
			return o, nil
		case errors.Is(err, orders.ErrAlreadyPaid):
			label = "ignored"
			log.Warn("payment_failure_after_paid", zap.String("order_id", cur.ID))
			return o, nil
		case err != nil:
			return o, err
		}
		label = "failed"
		if err := g.Deadlines.Remove(ctx, o.ID); err != nil {
			log.Warn("payment_deadline_remove_failed", zap.Error(err))
		}
		return o, nil
	}
	label = "invalid"
	return orders.Order{}, fmt.Errorf("%w: %q", ErrInvalidCallback, cb.Status)
}

// Expire drives one overdue order through cancellation. An order that got
// paid or cancelled in the meantime is left as is.
func (g *Gate) Expire(ctx context.Context, orderID string) (bool, error) {
	_, err := g.Ledger.Expire(ctx, orderID)
	switch {
	case err == nil:
		g.log(ctx).Info("payment_expired", zap.String("order_id", orderID))
		return true, nil
	case errors.Is(err, orders.ErrAlreadyPaid),
		errors.Is(err, orders.ErrAlreadyCancelled),
		errors.Is(err, orders.ErrInvalidTransition),
		errors.Is(err, orders.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

const sweepBatch = 100

// Sweep expires every order whose deadline has passed and returns how many
// were cancelled. The deadline queue is drained first, then the repository
// is scanned for unpaid orders the queue lost track of.
func (g *Gate) Sweep(ctx context.Context) (int, error) {
	expired := 0
	for {
		ids, err := g.Deadlines.Due(ctx, g.now(), sweepBatch)
		if err != nil {
			g.log(ctx).Warn("payment_deadline_due_failed", zap.Error(err))
			break
		}
		expired += g.expireAll(ctx, ids, true)
		if len(ids) < sweepBatch {
			break
		}
	}

	if g.Timeout <= 0 {
		return expired, nil
	}
	ids, err := g.Ledger.Overdue(ctx, g.now(), g.Timeout, sweepBatch)
	if err != nil {
		return expired, err
	}
	return expired + g.expireAll(ctx, ids, false), nil
}

func (g *Gate) expireAll(ctx context.Context, ids []string, requeue bool) int {
	n := 0
	for _, id := range ids {
		ok, err := g.Expire(ctx, id)
		if err != nil {
			log := g.log(ctx).With(zap.String("order_id", id))
			log.Error("payment_expire_failed", zap.Error(err))
			if requeue {
				if err := g.Deadlines.Schedule(ctx, id, g.now().Add(time.Minute)); err != nil {
					log.Warn("payment_deadline_requeue_failed", zap.Error(err))
				}
			}
			continue
		}
		if ok {
			n++
		}
	}
	return n
}

// RunSweeper sweeps every interval until ctx is done.
func (g *Gate) RunSweeper(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			n, err := g.Sweep(ctx)
			if err != nil && ctx.Err() == nil {
				g.log(ctx).Error("payment_sweep_failed", zap.Error(err))
			}
			if n > 0 {
				g.log(ctx).Info("payment_sweep", zap.Int("expired", n))
			}
		}
	}
}
