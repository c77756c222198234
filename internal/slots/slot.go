package slots

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("slots: slot not found")
	ErrSlotFull        = errors.New("slots: slot is full")
	ErrInvalidCapacity = errors.New("slots: capacity must not be negative")
	ErrInvalidWindow   = errors.New("slots: window end must be after start")
	ErrInUse           = errors.New("slots: slot still has bookings")
	ErrExists          = errors.New("slots: slot id already taken")
)

// Slot is a delivery window. Current never drops below zero. Current above
// Max only happens after an admin lowered Max; the slot is then over
// capacity and refuses bookings until Current < Max again.
type Slot struct {
	ID       string    `json:"id"`
	Label    string    `json:"label"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
	Max      int       `json:"max_bookings"`
	Current  int       `json:"current_bookings"`
}

func (s Slot) OverCapacity() bool { return s.Current > s.Max }

func (s Slot) Available() int {
	if s.Current >= s.Max {
		return 0
	}
	return s.Max - s.Current
}

func (s Slot) Validate() error {
	if s.Max < 0 {
		return ErrInvalidCapacity
	}
	if !s.EndsAt.After(s.StartsAt) {
		return ErrInvalidWindow
	}
	return nil
}

type Store interface {
	Create(ctx context.Context, s Slot) (Slot, error)
	Get(ctx context.Context, id string) (Slot, error)
	List(ctx context.Context) ([]Slot, error)
	// Update changes label and window only; counters are untouched.
	Update(ctx context.Context, s Slot) (Slot, error)
	SetCapacity(ctx context.Context, id string, max int) (Slot, error)
	Delete(ctx context.Context, id string) error
	Reserve(ctx context.Context, id string) (Slot, error)
	Release(ctx context.Context, id string) (Slot, error)
}
