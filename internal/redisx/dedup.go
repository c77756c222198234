package redisx

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// PaymentDedup remembers gateway references that were already applied.
type PaymentDedup struct{ RDB *redis.Client }

func (d PaymentDedup) Seen(ctx context.Context, reference string) (bool, error) {
	n, err := d.RDB.Exists(ctx, fmt.Sprintf(KeyDedupPayment, reference)).Result()
	return n > 0, err
}

func (d PaymentDedup) Mark(ctx context.Context, reference string) error {
	return d.RDB.Set(ctx, fmt.Sprintf(KeyDedupPayment, reference), 1, TTLDedup).Err()
}
