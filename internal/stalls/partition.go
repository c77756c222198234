package stalls

import (
	"context"
	"fmt"
	"strings"

	"github.com/ariefcatur/go-mango-store/internal/auth"
	"github.com/ariefcatur/go-mango-store/internal/inventory"
)

// Partition is the per-stall inventory. Every stall shares one item store;
// ids are namespaced as "<stallID>/<itemID>" so stalls never see or contend
// on each other's keys.
type Partition struct {
	Stalls  Registry
	Catalog *inventory.Catalog
	// LockedPurchasable keeps a locked stall's items on sale to customers.
	LockedPurchasable bool
}

func key(stallID, itemID string) string { return stallID + "/" + itemID }

func prefix(stallID string) string { return stallID + "/" }

func local(stallID string, it inventory.Item) inventory.Item {
	it.ID = strings.TrimPrefix(it.ID, prefix(stallID))
	return it
}

// For returns the reservation view of one stall. Releases always go through
// so cancellations still restore stock after a stall is locked or deleted.
func (p *Partition) For(stallID string) *View {
	return &View{p: p, stallID: stallID}
}

// Items lists a stall's inventory with stall-local ids.
func (p *Partition) Items(ctx context.Context, stallID string) ([]inventory.Item, error) {
	if _, err := p.Stalls.Get(ctx, stallID); err != nil {
		return nil, err
	}
	items, err := p.Catalog.List(ctx, prefix(stallID))
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i] = local(stallID, items[i])
	}
	return items, nil
}

// editable checks that by may change stallID's inventory right now.
func (p *Partition) editable(ctx context.Context, by auth.Principal, stallID string) error {
	s, err := p.Stalls.Get(ctx, stallID)
	if err != nil {
		return err
	}
	if !by.OwnsStall(stallID) {
		return fmt.Errorf("%w: not the owner of stall %s", auth.ErrUnauthorized, stallID)
	}
	if s.Locked && !auth.Can(by.Role, auth.CapManageStalls) {
		return ErrStallLocked
	}
	return nil
}

func (p *Partition) PutItem(ctx context.Context, by auth.Principal, stallID string, it inventory.Item) (inventory.Item, error) {
	if err := p.editable(ctx, by, stallID); err != nil {
		return inventory.Item{}, err
	}
	if it.ID == "" || strings.Contains(it.ID, "/") {
		return inventory.Item{}, fmt.Errorf("%w: stall item ids must not contain '/'", inventory.ErrInvalidItem)
	}
	it.ID = key(stallID, it.ID)
	out, err := p.Catalog.Put(ctx, it)
	if err != nil {
		return inventory.Item{}, err
	}
	return local(stallID, out), nil
}

func (p *Partition) AdjustItem(ctx context.Context, by auth.Principal, stallID, itemID string, qty int, reason string) (inventory.Adjustment, error) {
	if err := p.editable(ctx, by, stallID); err != nil {
		return inventory.Adjustment{}, err
	}
	adj, err := p.Catalog.Adjust(ctx, key(stallID, itemID), qty, reason, by.ActorID())
	if err != nil {
		return inventory.Adjustment{}, err
	}
	adj.ItemID = itemID
	return adj, nil
}

// DeactivateAll soft-deletes every item of a stall. Items stay in place
// because orders may still reference them.
func (p *Partition) DeactivateAll(ctx context.Context, stallID string) (int, error) {
	items, err := p.Catalog.List(ctx, prefix(stallID))
	if err != nil {
		return 0, err
	}
	n := 0
	for _, it := range items {
		if !it.Active {
			continue
		}
		if err := p.Catalog.Deactivate(ctx, it.ID); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// View adapts one stall's slice of the partition to the order ledger.
type View struct {
	p       *Partition
	stallID string
}

func (v *View) Get(ctx context.Context, itemID string) (inventory.Item, error) {
	it, err := v.p.Catalog.Get(ctx, key(v.stallID, itemID))
	if err != nil {
		return inventory.Item{}, err
	}
	return local(v.stallID, it), nil
}

func (v *View) Reserve(ctx context.Context, itemID string, qty int) error {
	s, err := v.p.Stalls.Get(ctx, v.stallID)
	if err != nil {
		return err
	}
	if s.Locked && !v.p.LockedPurchasable {
		return ErrStallLocked
	}
	return v.p.Catalog.Reserve(ctx, key(v.stallID, itemID), qty)
}

func (v *View) Release(ctx context.Context, itemID string, qty int) error {
	return v.p.Catalog.Release(ctx, key(v.stallID, itemID), qty)
}
