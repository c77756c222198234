package crm

import (
	"context"
	"errors"
	"time"
)

// DeletedStoreLabel replaces the stall reference of a record whose stall
// no longer exists.
const DeletedStoreLabel = "deleted-store"

var ErrNotFound = errors.New("crm: record not found")

// Record is a customer acquired by a stall. StallID is kept in line with
// the live stall set by the reconciler, not by a foreign key.
type Record struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Contact   string    `json:"contact"`
	Consent   bool      `json:"consent"`
	StallID   string    `json:"stall_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Store interface {
	Put(ctx context.Context, r Record) (Record, error)
	Get(ctx context.Context, id string) (Record, error)
	List(ctx context.Context) ([]Record, error)
	// Relabel and Delete only act while the record still references
	// fromStall. They report whether the record was changed.
	Relabel(ctx context.Context, id, fromStall, label string) (bool, error)
	Delete(ctx context.Context, id, fromStall string) (bool, error)
}
