package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DeadlineQueue keeps payment deadlines in a sorted set. Due claims entries
// with ZREM, so two sweepers never expire the same order twice.
type DeadlineQueue struct{ RDB *redis.Client }

func (q DeadlineQueue) Schedule(ctx context.Context, orderID string, at time.Time) error {
	return q.RDB.ZAdd(ctx, KeyPaymentDeadlines, redis.Z{Score: float64(at.UnixMilli()), Member: orderID}).Err()
}

func (q DeadlineQueue) Due(ctx context.Context, now time.Time, limit int) ([]string, error) {
	ids, err := q.RDB.ZRangeByScore(ctx, KeyPaymentDeadlines, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%d", now.UnixMilli()),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("read due deadlines: %w", err)
	}
	claimed := ids[:0]
	for _, id := range ids {
		n, err := q.RDB.ZRem(ctx, KeyPaymentDeadlines, id).Result()
		if err != nil {
			return claimed, fmt.Errorf("claim deadline %s: %w", id, err)
		}
		if n == 1 {
			claimed = append(claimed, id)
		}
	}
	return claimed, nil
}

func (q DeadlineQueue) Remove(ctx context.Context, orderID string) error {
	return q.RDB.ZRem(ctx, KeyPaymentDeadlines, orderID).Err()
}
