package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-mango-store/internal/orders"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type CachedStatus struct {
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	CustomerID    string    `json:"customer_id"`
	StallID       string    `json:"stall_id,omitempty"`
	Version       int       `json:"version"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func StatusOf(o orders.Order) CachedStatus {
	return CachedStatus{
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
		CustomerID:    o.CustomerID,
		StallID:       o.StallID,
		Version:       o.Version,
		UpdatedAt:     o.UpdatedAt,
	}
}

// setIfNewer writes the entry only when the cached version is older, so a
// slow read-through fill never overwrites a later transition.
var setIfNewer = redis.NewScript(`
local cur = tonumber(redis.call('HGET', KEYS[1], 'v'))
if cur and cur >= tonumber(ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[1], 'v', ARGV[1])
redis.call('HSET', KEYS[1], 'data', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// StatusCache is a read-through cache of order status, written through by
// the ledger on every transition. Misses and Redis errors both fall back to
// the database.
type StatusCache struct {
	RDB *redis.Client
	Log *zap.Logger
}

func (c StatusCache) warn(msg, orderID string, err error) {
	if c.Log != nil {
		c.Log.Warn(msg, zap.String("order_id", orderID), zap.Error(err))
	}
}

func (c StatusCache) Get(ctx context.Context, orderID string) (CachedStatus, bool) {
	b, err := c.RDB.HGet(ctx, fmt.Sprintf(KeyOrderStatus, orderID), "data").Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.warn("status_cache_get_failed", orderID, err)
		}
		return CachedStatus{}, false
	}
	var s CachedStatus
	if err := json.Unmarshal(b, &s); err != nil {
		return CachedStatus{}, false
	}
	return s, true
}

func (c StatusCache) set(ctx context.Context, orderID string, s CachedStatus) (bool, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return false, err
	}
	n, err := setIfNewer.Run(ctx, c.RDB, []string{fmt.Sprintf(KeyOrderStatus, orderID)},
		s.Version, b, TTLStatusCache.Milliseconds()).Int()
	return n == 1, err
}

// Set stores s unless the cache already holds the same or a later version.
// It reports whether s was written.
func (c StatusCache) Set(ctx context.Context, orderID string, s CachedStatus) bool {
	ok, err := c.set(ctx, orderID, s)
	if err != nil {
		c.warn("status_cache_set_failed", orderID, err)
	}
	return ok
}

// Put caches the order's current status. When the write fails the entry is
// dropped so readers go back to the database.
func (c StatusCache) Put(ctx context.Context, o orders.Order) {
	if _, err := c.set(ctx, o.ID, StatusOf(o)); err != nil {
		c.warn("status_cache_put_failed", o.ID, err)
		c.Invalidate(ctx, o.ID)
	}
}

func (c StatusCache) Invalidate(ctx context.Context, orderID string) {
	if err := c.RDB.Del(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Err(); err != nil {
		c.warn("status_cache_invalidate_failed", orderID, err)
	}
}
