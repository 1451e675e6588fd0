package authz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const cacheVersionKey = "authz:permissions:version"

// PermissionCache holds effective permission sets in Redis under a versioned
// key. Invalidation bumps the version instead of deleting keys, so stale
// entries simply age out under their TTL. Concurrent fills for the same
// principal collapse through singleflight.
type PermissionCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewPermissionCache instantiates the cache helper. A nil client degrades to
// pass-through loads.
func NewPermissionCache(client *redis.Client, ttl time.Duration) *PermissionCache {
	return &PermissionCache{client: client, ttl: ttl}
}

// Version returns the current cache version, initialising it when missing.
func (c *PermissionCache) Version(ctx context.Context) (int64, error) {
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

// InvalidateCache bumps the version so every cached permission set is
// bypassed on the next read. This is the explicit hook the catalog and
// discovery call after graph mutations.
func (c *PermissionCache) InvalidateCache(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, cacheVersionKey).Err()
}

// FetchNames loads the principal's permission set for the guard, using the
// cache when possible and the loader otherwise.
func (c *PermissionCache) FetchNames(ctx context.Context, principalID int64, guard string, loader func(context.Context) ([]string, error)) ([]string, error) {
	if loader == nil {
		return nil, errors.New("authz: cache loader required")
	}
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return loader(ctx)
	}
	key := fmt.Sprintf("authz:perms:%d:%s:%d", ver, guard, principalID)

	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var names []string
		if jsonErr := json.Unmarshal(raw, &names); jsonErr == nil {
			return names, nil
		}
	}

	result, err, _ := c.group.Do(key, func() (any, error) {
		names, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		if encoded, err := json.Marshal(names); err == nil {
			_ = c.client.Set(ctx, key, encoded, c.ttl).Err()
		}
		return names, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}
