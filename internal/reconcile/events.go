package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/go-mango-store/internal/events"
	kafkax "github.com/ariefcatur/go-mango-store/internal/kafka"
	"github.com/ariefcatur/go-mango-store/internal/logging"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// HandleStallDeleted is the consumer handler for stall.deleted. Runs are
// idempotent, so a redelivered event only costs a scan.
func (r *Reconciler) HandleStallDeleted(ctx context.Context, m kafkago.Message) error {
	env, err := kafkax.UnmarshalEnvelope(m.Value)
	if err != nil {
		return err
	}
	if env.EventType != events.TypeStallDeleted {
		return nil
	}
	p, err := kafkax.UnwrapPayload[events.StallDeletedPayload](env.Payload)
	if err != nil {
		return err
	}
	if p.StallID == "" {
		return fmt.Errorf("stall.deleted %s: empty stall id", env.EventID)
	}

	log := logging.FromContext(ctx, r.Log).With(
		zap.String("event_id", env.EventID),
		zap.String("stall_id", p.StallID),
		zap.String("actor_id", p.ActorID),
	)
	rep, err := r.Run(logging.WithLogger(ctx, log), p.StallID)
	if err != nil {
		return err
	}
	log.Info("stall_deleted_handled",
		zap.Int("relabeled", rep.Relabeled),
		zap.Int("removed", rep.Removed),
		zap.Int("items_deactivated", rep.ItemsDeactivated),
	)
	return nil
}

// RunEvery reconciles on a fixed interval until ctx is done, catching
// deletions whose event was lost.
func (r *Reconciler) RunEvery(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := r.Run(ctx); err != nil && ctx.Err() == nil {
				logging.FromContext(ctx, r.Log).Error("orphan_reconcile_failed", zap.Error(err))
			}
		}
	}
}
