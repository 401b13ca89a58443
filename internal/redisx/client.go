package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// ErrInFlight means another request with the same idempotency key has not
// finished yet.
var ErrInFlight = errors.New("request with this idempotency key is still in progress")

// Idempotency guards checkout replays keyed by (user, Idempotency-Key).
type Idempotency struct{ RDB *redis.Client }

// Begin claims the key. It returns the order id recorded by an earlier
// successful request, or "" when the caller now owns the key.
func (i *Idempotency) Begin(ctx context.Context, userID, key string) (string, error) {
	k := fmt.Sprintf(KeyIdemCheckout, userID, key)
	ok, err := i.RDB.SetNX(ctx, k, pendingMarker, TTLPending).Result()
	if err != nil {
		return "", err
	}
	if ok {
		return "", nil
	}
	v, err := i.RDB.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; coba lagi sekali
		return i.Begin(ctx, userID, key)
	}
	if err != nil {
		return "", err
	}
	if v == pendingMarker {
		return "", ErrInFlight
	}
	return v, nil
}

// Complete records the order produced for the key.
func (i *Idempotency) Complete(ctx context.Context, userID, key, orderID string) error {
	return i.RDB.Set(ctx, fmt.Sprintf(KeyIdemCheckout, userID, key), orderID, TTLIdempotency).Err()
}

// Abort releases the key so a failed request can be retried with it.
func (i *Idempotency) Abort(ctx context.Context, userID, key string) error {
	return i.RDB.Del(ctx, fmt.Sprintf(KeyIdemCheckout, userID, key)).Err()
}

// Cache is a JSON read-through cache keyed by format + id.
type Cache struct {
	RDB *redis.Client
	TTL time.Duration
}

// Get reports false on a miss; a decode failure is treated as a miss.
func (c *Cache) Get(ctx context.Context, key string, out any) (bool, error) {
	b, err := c.RDB.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, out); err != nil {
		return false, nil
	}
	return true, nil
}

func (c *Cache) Set(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.RDB.Set(ctx, key, b, c.TTL).Err()
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.RDB.Del(ctx, key).Err()
}

func OrderKey(orderID string) string { return fmt.Sprintf(KeyOrder, orderID) }

// MarkProcessed records an event id for a consumer. It returns false when the
// event was already processed.
func MarkProcessed(ctx context.Context, rdb *redis.Client, service, eventID string) (bool, error) {
	return rdb.SetNX(ctx, fmt.Sprintf(KeyDedup, service, eventID), "1", TTLDedup).Result()
}

// ForgetProcessed drops a dedup mark so a failed event is handled again on
// redelivery.
func ForgetProcessed(ctx context.Context, rdb *redis.Client, service, eventID string) error {
	return rdb.Del(ctx, fmt.Sprintf(KeyDedup, service, eventID)).Err()
}
