package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const cacheVersionKey = "ledger:view:version"

// ViewCache caches enriched ledger views in Redis behind a version counter.
// Mutations bump the version, which invalidates every cached view at once.
// Concurrent misses on the same key collapse into a single load.
type ViewCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewViewCache instantiates the cache helper.
func NewViewCache(client *redis.Client, ttl time.Duration) *ViewCache {
	return &ViewCache{client: client, ttl: ttl}
}

// Version returns the current cache version, initialising when missing.
func (c *ViewCache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if err == redis.Nil {
		if err := c.client.Set(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// Bump invalidates every cached view by incrementing the version.
func (c *ViewCache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, cacheVersionKey).Err()
}

// Fetch loads a cached view or populates it using the loader.
func (c *ViewCache) Fetch(ctx context.Context, kind ObligationKind, obligationID, ownerID int64, loader func(context.Context) (*LedgerView, error)) (*LedgerView, error) {
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return loader(ctx)
	}
	key := fmt.Sprintf("ledger:view:%s:%d:%d:%d", kind, obligationID, ownerID, ver)

	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var view LedgerView
		if err := json.Unmarshal(payload, &view); err == nil {
			return &view, nil
		}
	} else if err != redis.Nil {
		return loader(ctx)
	}

	value, err, _ := c.group.Do(key, func() (any, error) {
		view, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(view)
		if err != nil {
			return view, nil
		}
		_ = c.client.Set(ctx, key, raw, c.ttl).Err()
		return view, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*LedgerView), nil
}
