package inventory

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("inventory: item not found")
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	ErrInactive          = errors.New("inventory: item is not active")
	ErrInvalidQuantity   = errors.New("inventory: invalid quantity")
	ErrReasonRequired    = errors.New("inventory: adjustment reason is required")
	ErrInvalidItem       = errors.New("inventory: item id is required")
)

// Item is a sellable mango lot. Quantity is on-hand stock and never negative.
type Item struct {
	ID          string    `json:"id"`
	Variety     string    `json:"variety"`
	WeightClass string    `json:"weight_class"`
	PriceCents  int       `json:"price_cents"`
	Quantity    int       `json:"quantity"`
	Active      bool      `json:"active"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (it Item) Validate() error {
	if it.ID == "" {
		return ErrInvalidItem
	}
	if it.Quantity < 0 || it.PriceCents < 0 {
		return ErrInvalidQuantity
	}
	return nil
}

// Store is one keyspace of items. Reserve, Release and Adjust on the same id
// are linearizable; different ids never contend.
type Store interface {
	Get(ctx context.Context, id string) (Item, error)
	// List returns items whose id starts with prefix, ordered by id.
	List(ctx context.Context, prefix string) ([]Item, error)
	// Put creates or replaces catalog fields. Quantity is only taken on create;
	// existing stock changes go through Adjust.
	Put(ctx context.Context, it Item) (Item, error)
	Reserve(ctx context.Context, id string, qty int) (Item, error)
	Release(ctx context.Context, id string, qty int) (Item, error)
	// Adjust sets an absolute quantity and returns the previous one.
	Adjust(ctx context.Context, id string, qty int) (previous int, err error)
	SetActive(ctx context.Context, id string, active bool) error
}
