package orders

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Repository persists orders. Update is a compare-and-set on Version: it
// fails with ErrConflict when the stored version differs from o.Version and
// bumps o.Version on success.
type Repository interface {
	Insert(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (Order, error)
	FindByIntent(ctx context.Context, intent string) (Order, error)
	Update(ctx context.Context, o *Order) error
	ListByCustomer(ctx context.Context, customerID string) ([]Order, error)
	// ListOverdue returns unpaid pending online orders whose payment
	// deadline is at or before now, plus those that never got a deadline and
	// were created at or before staleBefore. Oldest first.
	ListOverdue(ctx context.Context, now, staleBefore time.Time, limit int) ([]Order, error)
}

type MemoryRepo struct {
	mu       sync.RWMutex
	orders   map[string]Order
	byIntent map[string]string
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{orders: map[string]Order{}, byIntent: map[string]string{}}
}

func clone(o Order) Order {
	o.Lines = append([]Line(nil), o.Lines...)
	if o.PaymentDeadline != nil {
		d := *o.PaymentDeadline
		o.PaymentDeadline = &d
	}
	return o
}

func (m *MemoryRepo) Insert(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ID]; ok {
		return ErrConflict
	}
	o.Version = 1
	m.orders[o.ID] = clone(*o)
	if o.PaymentIntent != "" {
		m.byIntent[o.PaymentIntent] = o.ID
	}
	return nil
}

func (m *MemoryRepo) Get(_ context.Context, id string) (Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return clone(o), nil
}

func (m *MemoryRepo) FindByIntent(ctx context.Context, intent string) (Order, error) {
	m.mu.RLock()
	id, ok := m.byIntent[intent]
	m.mu.RUnlock()
	if !ok {
		return Order{}, ErrNotFound
	}
	return m.Get(ctx, id)
}

func (m *MemoryRepo) Update(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.orders[o.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != o.Version {
		return ErrConflict
	}
	o.Version++
	m.orders[o.ID] = clone(*o)
	if o.PaymentIntent != "" {
		m.byIntent[o.PaymentIntent] = o.ID
	}
	return nil
}

func (m *MemoryRepo) ListByCustomer(_ context.Context, customerID string) ([]Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Order
	for _, o := range m.orders {
		if o.CustomerID == customerID {
			out = append(out, clone(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func overdue(o Order, now, staleBefore time.Time) bool {
	if o.PaymentMode != PaymentOnline || o.Status != StatusPending || o.PaymentStatus != PaymentPending {
		return false
	}
	if o.PaymentDeadline != nil {
		return !o.PaymentDeadline.After(now)
	}
	return !o.CreatedAt.After(staleBefore)
}

func (m *MemoryRepo) ListOverdue(_ context.Context, now, staleBefore time.Time, limit int) ([]Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Order
	for _, o := range m.orders {
		if overdue(o, now, staleBefore) {
			out = append(out, clone(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
