package redisx

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/go-mango-store/internal/orders"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := New(mr.Addr())
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestIdempotency(t *testing.T) {
	mr, rdb := newRedis(t)
	ctx := context.Background()
	idem := Idempotency{RDB: rdb}

	_, claimed, err := idem.Begin(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, claimed)

	_, _, err = idem.Begin(ctx, "k1")
	assert.ErrorIs(t, err, ErrInFlight)

	require.NoError(t, idem.Complete(ctx, "k1", "order-1"))
	id, claimed, err := idem.Begin(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Equal(t, "order-1", id)
	assert.Equal(t, TTLIdempotency, mr.TTL("idem:checkout:k1"))

	_, claimed, err = idem.Begin(ctx, "k2")
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, idem.Abort(ctx, "k2"))
	_, claimed, err = idem.Begin(ctx, "k2")
	require.NoError(t, err)
	assert.True(t, claimed, "aborted key can be retried")
}

func TestStatusCache(t *testing.T) {
	_, rdb := newRedis(t)
	ctx := context.Background()
	c := StatusCache{RDB: rdb}

	_, ok := c.Get(ctx, "o1")
	assert.False(t, ok)

	assert.True(t, c.Set(ctx, "o1", CachedStatus{Status: "PENDING", PaymentStatus: "pending", CustomerID: "alice", Version: 1}))
	got, ok := c.Get(ctx, "o1")
	require.True(t, ok)
	assert.Equal(t, "PENDING", got.Status)

	c.Put(ctx, orders.Order{ID: "o1", Status: orders.StatusCancelled, PaymentStatus: orders.PaymentPending, CustomerID: "alice", Version: 2})
	assert.False(t, c.Set(ctx, "o1", CachedStatus{Status: "PENDING", PaymentStatus: "pending", CustomerID: "alice", Version: 1}), "older version is dropped")
	assert.False(t, c.Set(ctx, "o1", CachedStatus{Status: "CONFIRMED", Version: 2}), "same version is kept")
	got, ok = c.Get(ctx, "o1")
	require.True(t, ok)
	assert.Equal(t, "CANCELLED", got.Status)
	assert.Equal(t, 2, got.Version)

	c.Invalidate(ctx, "o1")
	_, ok = c.Get(ctx, "o1")
	assert.False(t, ok)
}

func TestPaymentDedup(t *testing.T) {
	_, rdb := newRedis(t)
	ctx := context.Background()
	d := PaymentDedup{RDB: rdb}

	seen, err := d.Seen(ctx, "ref-1")
	require.NoError(t, err)
	assert.False(t, seen)
	require.NoError(t, d.Mark(ctx, "ref-1"))
	seen, err = d.Seen(ctx, "ref-1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestDeadlineQueue(t *testing.T) {
	_, rdb := newRedis(t)
	ctx := context.Background()
	q := DeadlineQueue{RDB: rdb}
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, q.Schedule(ctx, "early", now.Add(-2*time.Minute)))
	require.NoError(t, q.Schedule(ctx, "due", now.Add(-time.Second)))
	require.NoError(t, q.Schedule(ctx, "later", now.Add(time.Hour)))
	require.NoError(t, q.Schedule(ctx, "paid", now.Add(-time.Minute)))
	require.NoError(t, q.Remove(ctx, "paid"))

	ids, err := q.Due(ctx, now, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"early", "due"}, ids)

	ids, err = q.Due(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, ids, "claimed ids are handed out once")

	ids, err = q.Due(ctx, now.Add(2*time.Hour), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"later"}, ids)
}
