package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tempora-hq/tempora/internal/shared"
)

// Cache stores monthly aggregates in Redis under a per-user-month version
// key. Entry mutations bump the version, so stale aggregates simply stop
// being addressed and age out through the TTL.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper. A nil client degrades to a
// pass-through.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func versionKey(userID int64, month shared.Month) string {
	return fmt.Sprintf("reports:ver:%d:%s", userID, month)
}

// version returns the current cache version for the user-month, initialising
// when missing.
func (c *Cache) version(ctx context.Context, userID int64, month shared.Month) (int64, error) {
	ver, err := c.client.Get(ctx, versionKey(userID, month)).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.Set(ctx, versionKey(userID, month), 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
		if err := c.client.Set(ctx, versionKey(userID, month), ver, 0).Err(); err != nil {
			return 0, err
		}
	}
	return ver, nil
}

// FetchAggregate loads a cached aggregate or populates it using the loader.
func (c *Cache) FetchAggregate(ctx context.Context, userID int64, month shared.Month,
	loader func(context.Context) (Aggregate, error)) (Aggregate, error) {
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	ver, err := c.version(ctx, userID, month)
	if err != nil {
		return Aggregate{}, err
	}
	key := fmt.Sprintf("reports:agg:%d:%s:%s", userID, month, strconv.FormatInt(ver, 10))

	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var agg Aggregate
		if err := json.Unmarshal(payload, &agg); err == nil {
			return agg, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return Aggregate{}, err
	}

	agg, err := loader(ctx)
	if err != nil {
		return Aggregate{}, err
	}
	raw, err := json.Marshal(agg)
	if err != nil {
		return Aggregate{}, err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return Aggregate{}, err
	}
	return agg, nil
}

// Invalidate bumps the user-month version. The timesheet service calls this
// after every committed entry mutation.
func (c *Cache) Invalidate(ctx context.Context, userID int64, month shared.Month) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, versionKey(userID, month)).Err()
}
