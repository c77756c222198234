package slots

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-mango-store/internal/logging"
	"github.com/ariefcatur/go-mango-store/internal/metrics"
	"go.uber.org/zap"
)

// Registry is the slot API used by checkout and the admin endpoints.
type Registry struct {
	Store   Store
	Log     *zap.Logger
	Metrics *metrics.Collectors
}

func NewRegistry(store Store, log *zap.Logger, m *metrics.Collectors) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{Store: store, Log: log, Metrics: m}
}

func (r *Registry) ReserveSlot(ctx context.Context, id string) error {
	_, err := r.Store.Reserve(ctx, id)
	r.Metrics.SlotReservation("reserve", err)
	if err != nil {
		return fmt.Errorf("reserve slot %s: %w", id, err)
	}
	return nil
}

func (r *Registry) ReleaseSlot(ctx context.Context, id string) error {
	_, err := r.Store.Release(ctx, id)
	r.Metrics.SlotReservation("release", err)
	if err != nil {
		return fmt.Errorf("release slot %s: %w", id, err)
	}
	return nil
}

// SetCapacity never evicts bookings. Lowering max below current bookings
// leaves the slot over capacity until cancellations bring it back under.
func (r *Registry) SetCapacity(ctx context.Context, id string, max int) (Slot, error) {
	s, err := r.Store.SetCapacity(ctx, id, max)
	if err != nil {
		return Slot{}, err
	}
	logger := logging.FromContext(ctx, r.Log).With(
		zap.String("slot_id", id),
		zap.Int("max_bookings", s.Max),
		zap.Int("current_bookings", s.Current),
	)
	if s.OverCapacity() {
		logger.Warn("slot_over_capacity")
	} else {
		logger.Info("slot_capacity_set")
	}
	return s, nil
}

func (r *Registry) Create(ctx context.Context, s Slot) (Slot, error) {
	out, err := r.Store.Create(ctx, s)
	if err != nil {
		return Slot{}, err
	}
	logging.FromContext(ctx, r.Log).Info("slot_created", zap.String("slot_id", out.ID), zap.Int("max_bookings", out.Max))
	return out, nil
}

func (r *Registry) Get(ctx context.Context, id string) (Slot, error) { return r.Store.Get(ctx, id) }

func (r *Registry) List(ctx context.Context) ([]Slot, error) { return r.Store.List(ctx) }

func (r *Registry) Update(ctx context.Context, s Slot) (Slot, error) { return r.Store.Update(ctx, s) }

func (r *Registry) Delete(ctx context.Context, id string) error {
	if err := r.Store.Delete(ctx, id); err != nil {
		return err
	}
	logging.FromContext(ctx, r.Log).Info("slot_deleted", zap.String("slot_id", id))
	return nil
}
