package stock

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const availabilityKeyPrefix = "stock:available:"

// AvailabilityCache keeps read-side copies of available stock. Reservation and
// ledger decisions never consult it.
type AvailabilityCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewAvailabilityCache instantiates the cache helper.
func NewAvailabilityCache(client *redis.Client, ttl time.Duration) *AvailabilityCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &AvailabilityCache{client: client, ttl: ttl}
}

func versionKey(productID int64) string {
	return availabilityKeyPrefix + strconv.FormatInt(productID, 10) + ":version"
}

func availabilityKey(productID, version int64) string {
	return availabilityKeyPrefix + strconv.FormatInt(productID, 10) + ":v" + strconv.FormatInt(version, 10)
}

// Fetch loads a cached value or populates it using the loader. The value is
// stored under the version read before loading, so a write that invalidates
// mid-load leaves the stale value unreachable.
func (c *AvailabilityCache) Fetch(ctx context.Context, productID int64, loader func(context.Context) (int64, error)) (int64, error) {
	if loader == nil {
		return 0, errors.New("stock: cache loader required")
	}
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	version, err := c.client.Get(ctx, versionKey(productID)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		// An unreachable Redis degrades to uncached reads.
		return loader(ctx)
	}
	key := availabilityKey(productID, version)
	cached, err := c.client.Get(ctx, key).Int64()
	if err == nil {
		return cached, nil
	}
	value, loadErr := loader(ctx)
	if loadErr != nil {
		return 0, loadErr
	}
	if errors.Is(err, redis.Nil) {
		_ = c.client.Set(ctx, key, value, c.ttl).Err()
	}
	return value, nil
}

// Invalidate bumps the cache version of the given products.
func (c *AvailabilityCache) Invalidate(ctx context.Context, productIDs ...int64) error {
	if c == nil || c.client == nil || len(productIDs) == 0 {
		return nil
	}
	pipe := c.client.Pipeline()
	for _, id := range productIDs {
		pipe.Incr(ctx, versionKey(id))
	}
	_, err := pipe.Exec(ctx)
	return err
}
