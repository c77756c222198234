package stalls

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound    = errors.New("stalls: stall not found")
	ErrStallLocked = errors.New("stalls: stall is locked")
	ErrInvalid     = errors.New("stalls: name and owner are required")
	ErrExists      = errors.New("stalls: stall id already taken")
)

// Stall is a tenant kiosk with its own inventory partition. A locked stall
// is read-only to its owner.
type Stall struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"owner_id"`
	Locked    bool      `json:"locked"`
	CreatedAt time.Time `json:"created_at"`
}

// Registry is the set of live stalls. Delete removes the stall row only;
// records that point at it are cleaned up by the reconciler.
type Registry interface {
	Create(ctx context.Context, s Stall) (Stall, error)
	Get(ctx context.Context, id string) (Stall, error)
	List(ctx context.Context) ([]Stall, error)
	SetLocked(ctx context.Context, id string, locked bool) (Stall, error)
	Delete(ctx context.Context, id string) error
	// LiveIDs is one consistent read of every existing stall id.
	LiveIDs(ctx context.Context) (map[string]struct{}, error)
}
