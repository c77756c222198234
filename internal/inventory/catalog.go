package inventory

import (
	"context"
	"fmt"
	"strings"

	"github.com/ariefcatur/go-mango-store/internal/events"
	"github.com/ariefcatur/go-mango-store/internal/logging"
	"github.com/ariefcatur/go-mango-store/internal/metrics"
	"go.uber.org/zap"
)

// Adjustment is the audit record of an admin absolute stock set.
type Adjustment struct {
	ItemID   string `json:"item_id"`
	Previous int    `json:"previous"`
	Quantity int    `json:"quantity"`
	Reason   string `json:"reason"`
	ActorID  string `json:"actor_id"`
}

// Catalog fronts a Store with logging, metrics and events. The same type
// serves the shop catalog and each stall partition; Name tells them apart.
type Catalog struct {
	Name    string
	Store   Store
	Log     *zap.Logger
	Metrics *metrics.Collectors
	Events  events.Sink
}

func NewCatalog(name string, store Store, log *zap.Logger, m *metrics.Collectors, sink events.Sink) *Catalog {
	if log == nil {
		log = zap.NewNop()
	}
	if sink == nil {
		sink = events.Discard{}
	}
	return &Catalog{Name: name, Store: store, Log: log, Metrics: m, Events: sink}
}

func (c *Catalog) Get(ctx context.Context, id string) (Item, error) {
	return c.Store.Get(ctx, id)
}

func (c *Catalog) List(ctx context.Context, prefix string) ([]Item, error) {
	return c.Store.List(ctx, prefix)
}

func (c *Catalog) Put(ctx context.Context, it Item) (Item, error) {
	out, err := c.Store.Put(ctx, it)
	if err != nil {
		return Item{}, err
	}
	logging.FromContext(ctx, c.Log).Info("catalog_item_saved",
		zap.String("store", c.Name),
		zap.String("item_id", out.ID),
		zap.Bool("active", out.Active),
	)
	return out, nil
}

// Reserve takes qty units. ErrInsufficientStock means sold out; callers must
// not retry it.
func (c *Catalog) Reserve(ctx context.Context, id string, qty int) error {
	_, err := c.Store.Reserve(ctx, id, qty)
	c.Metrics.Reservation(c.Name, "reserve", err)
	if err != nil {
		return fmt.Errorf("reserve %s: %w", id, err)
	}
	return nil
}

func (c *Catalog) Release(ctx context.Context, id string, qty int) error {
	_, err := c.Store.Release(ctx, id, qty)
	c.Metrics.Reservation(c.Name, "release", err)
	if err != nil {
		return fmt.Errorf("release %s: %w", id, err)
	}
	return nil
}

// Adjust sets an absolute quantity. The reason is mandatory and is logged and
// published with the previous value.
func (c *Catalog) Adjust(ctx context.Context, id string, qty int, reason, actorID string) (Adjustment, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Adjustment{}, ErrReasonRequired
	}
	prev, err := c.Store.Adjust(ctx, id, qty)
	if err != nil {
		return Adjustment{}, fmt.Errorf("adjust %s: %w", id, err)
	}
	adj := Adjustment{ItemID: id, Previous: prev, Quantity: qty, Reason: reason, ActorID: actorID}

	c.Metrics.StockAdjusted(c.Name)
	logging.FromContext(ctx, c.Log).Info("stock_adjusted",
		zap.String("store", c.Name),
		zap.String("item_id", id),
		zap.Int("previous", prev),
		zap.Int("quantity", qty),
		zap.String("reason", reason),
		zap.String("actor_id", actorID),
	)
	c.Events.Emit(ctx, events.TopicStockAdjusted, events.TypeStockAdjusted, id, events.StockAdjustedPayload{
		ItemID: id, Previous: prev, Quantity: qty, Reason: reason, ActorID: actorID,
	})
	return adj, nil
}

// Deactivate hides an item from purchase. Items are never deleted because
// orders keep referencing them.
func (c *Catalog) Deactivate(ctx context.Context, id string) error {
	if err := c.Store.SetActive(ctx, id, false); err != nil {
		return err
	}
	logging.FromContext(ctx, c.Log).Info("catalog_item_deactivated",
		zap.String("store", c.Name),
		zap.String("item_id", id),
	)
	return nil
}
