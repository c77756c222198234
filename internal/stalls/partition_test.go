package stalls

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ariefcatur/go-mango-store/internal/auth"
	"github.com/ariefcatur/go-mango-store/internal/events"
	"github.com/ariefcatur/go-mango-store/internal/inventory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var admin = auth.Principal{UserID: "admin-1", Role: auth.RoleAdmin}

func setup(t *testing.T) (*Partition, *Service, Stall, auth.Principal) {
	t.Helper()
	reg := NewMemoryRegistry()
	svc := &Service{Registry: reg}
	s, err := svc.Create(context.Background(), admin, Stall{Name: "Ratnagiri Corner", OwnerID: "owner-1"})
	require.NoError(t, err)
	p := &Partition{
		Stalls:            reg,
		Catalog:           inventory.NewCatalog("stall", inventory.NewMemoryStore(), nil, nil, nil),
		LockedPurchasable: true,
	}
	owner := auth.Principal{UserID: "owner-1", Role: auth.RoleStallOwner, StallID: s.ID}
	return p, svc, s, owner
}

func TestMemoryRegistry_CreateRejectsTakenID(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()
	_, err := reg.Create(ctx, Stall{ID: "s1", Name: "Devgad", OwnerID: "owner-1"})
	require.NoError(t, err)
	_, err = reg.SetLocked(ctx, "s1", true)
	require.NoError(t, err)

	_, err = reg.Create(ctx, Stall{ID: "s1", Name: "Other", OwnerID: "owner-2"})
	assert.ErrorIs(t, err, ErrExists)

	got, err := reg.Get(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, got.Locked)
	assert.Equal(t, "owner-1", got.OwnerID)
}

func TestPartition_OwnerManagesOwnStall(t *testing.T) {
	p, svc, s, owner := setup(t)
	ctx := context.Background()

	it, err := p.PutItem(ctx, owner, s.ID, inventory.Item{ID: "alphonso", Variety: "Alphonso", WeightClass: "1kg", PriceCents: 900, Quantity: 6, Active: true})
	require.NoError(t, err)
	assert.Equal(t, "alphonso", it.ID)

	other, err := svc.Create(ctx, admin, Stall{Name: "Devgad Stand", OwnerID: "owner-2"})
	require.NoError(t, err)
	_, err = p.PutItem(ctx, owner, other.ID, inventory.Item{ID: "x", Quantity: 1})
	assert.ErrorIs(t, err, auth.ErrUnauthorized)

	items, err := p.Items(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "alphonso", items[0].ID)

	none, err := p.Items(ctx, other.ID)
	require.NoError(t, err)
	assert.Empty(t, none, "partitions do not leak across stalls")

	adj, err := p.AdjustItem(ctx, owner, s.ID, "alphonso", 3, "spoiled crate")
	require.NoError(t, err)
	assert.Equal(t, 6, adj.Previous)
	assert.Equal(t, "alphonso", adj.ItemID)

	_, err = p.PutItem(ctx, owner, s.ID, inventory.Item{ID: "a/b"})
	assert.ErrorIs(t, err, inventory.ErrInvalidItem)
}

func TestPartition_LockedStallIsReadOnlyToOwner(t *testing.T) {
	p, svc, s, owner := setup(t)
	ctx := context.Background()
	_, err := p.PutItem(ctx, owner, s.ID, inventory.Item{ID: "kesar", Variety: "Kesar", PriceCents: 700, Quantity: 4, Active: true})
	require.NoError(t, err)

	_, err = svc.SetLocked(ctx, owner, s.ID, true)
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
	_, err = svc.SetLocked(ctx, admin, s.ID, true)
	require.NoError(t, err)

	_, err = p.AdjustItem(ctx, owner, s.ID, "kesar", 10, "restock")
	assert.ErrorIs(t, err, ErrStallLocked)
	_, err = p.AdjustItem(ctx, admin, s.ID, "kesar", 10, "restock by admin")
	assert.NoError(t, err)

	assert.NoError(t, p.For(s.ID).Reserve(ctx, "kesar", 1), "customers can still buy")

	p.LockedPurchasable = false
	assert.ErrorIs(t, p.For(s.ID).Reserve(ctx, "kesar", 1), ErrStallLocked)
	assert.NoError(t, p.For(s.ID).Release(ctx, "kesar", 1), "releases always go through")
}

func TestPartition_ConcurrentReserveSameStallItem(t *testing.T) {
	p, _, s, owner := setup(t)
	ctx := context.Background()
	_, err := p.PutItem(ctx, owner, s.ID, inventory.Item{ID: "A", Variety: "Totapuri", PriceCents: 300, Quantity: 5, Active: true})
	require.NoError(t, err)

	var ok, soldOut int32
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := p.For(s.ID).Reserve(ctx, "A", 3)
			switch {
			case err == nil:
				atomic.AddInt32(&ok, 1)
			case errors.Is(err, inventory.ErrInsufficientStock):
				atomic.AddInt32(&soldOut, 1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, ok)
	assert.EqualValues(t, 1, soldOut)
	it, err := p.For(s.ID).Get(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, 2, it.Quantity)
}

func TestService_DeleteAnnouncesAndDeactivates(t *testing.T) {
	p, svc, s, owner := setup(t)
	rec := &events.Recorder{}
	svc.Events = rec
	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		_, err := p.PutItem(ctx, owner, s.ID, inventory.Item{ID: id, PriceCents: 100, Quantity: 2, Active: true})
		require.NoError(t, err)
	}

	require.NoError(t, svc.Delete(ctx, admin, s.ID))
	assert.Len(t, rec.OfType(events.TypeStallDeleted), 1)
	assert.ErrorIs(t, svc.Delete(ctx, admin, s.ID), ErrNotFound)

	assert.ErrorIs(t, p.For(s.ID).Reserve(ctx, "a", 1), ErrNotFound)
	n, err := p.DeactivateAll(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = p.DeactivateAll(ctx, s.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	it, err := p.For(s.ID).Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, it.Active)
	assert.Equal(t, 2, it.Quantity)
}
