package redisx

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

var ErrInFlight = errors.New("redisx: request with this idempotency key is in progress")

const inFlight = "pending"

// Idempotency maps a client idempotency key to the order it produced.
type Idempotency struct{ RDB *redis.Client }

// Begin claims key. When the key already finished it returns the stored
// order id and claimed=false.
func (i Idempotency) Begin(ctx context.Context, key string) (orderID string, claimed bool, err error) {
	k := fmt.Sprintf(KeyIdemCheckout, key)
	ok, err := i.RDB.SetNX(ctx, k, inFlight, TTLInFlight).Result()
	if err != nil {
		return "", false, err
	}
	if ok {
		return "", true, nil
	}
	v, err := i.RDB.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET, try once more
		ok, err = i.RDB.SetNX(ctx, k, inFlight, TTLInFlight).Result()
		return "", ok, err
	}
	if err != nil {
		return "", false, err
	}
	if v == inFlight {
		return "", false, ErrInFlight
	}
	return v, false, nil
}

func (i Idempotency) Complete(ctx context.Context, key, orderID string) error {
	return i.RDB.Set(ctx, fmt.Sprintf(KeyIdemCheckout, key), orderID, TTLIdempotency).Err()
}

// Abort frees the key after a failed attempt so the client can retry.
func (i Idempotency) Abort(ctx context.Context, key string) error {
	return i.RDB.Del(ctx, fmt.Sprintf(KeyIdemCheckout, key)).Err()
}
