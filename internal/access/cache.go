package access

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// SetCache memoizes non-bypass accessible-set computations in Redis so the
// grant union is not recomputed on every request.
//
// Staleness contract: the cache is deleted synchronously for the affected
// user on every grant and revoke, and the per-tenant epoch embedded in each
// key is bumped when a fleet or vessel is deleted. A revoked "allow" can
// therefore outlive the revocation only up to the TTL, which is kept to a
// few seconds. Cached "deny" results carry no such risk.
type SetCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
}

// NewSetCache constructs a SetCache. TTL values above a few seconds widen
// the window during which a revoked grant can still authorize requests.
func NewSetCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *SetCache {
	return &SetCache{client: client, ttl: ttl, logger: logger}
}

// Compute produces the authoritative set when the cache cannot answer.
type Compute func(ctx context.Context) (IDSet, error)

// Fleets returns the cached accessible-fleet set for the identity, computing
// and storing it on miss. Concurrent misses for the same user collapse into
// one computation.
func (c *SetCache) Fleets(ctx context.Context, id Identity, compute Compute) (IDSet, error) {
	return c.lookup(ctx, id, "fleets", compute)
}

// Vessels is the vessel-set counterpart of Fleets.
func (c *SetCache) Vessels(ctx context.Context, id Identity, compute Compute) (IDSet, error) {
	return c.lookup(ctx, id, "vessels", compute)
}

func (c *SetCache) lookup(ctx context.Context, id Identity, kind string, compute Compute) (IDSet, error) {
	key, err := c.key(ctx, id.TenantID, id.UserID, kind)
	if err != nil {
		// Redis down: skip the cache, the store remains authoritative.
		c.warn("cache key", err)
		return compute(ctx)
	}

	if set, ok := c.get(ctx, key); ok {
		return set, nil
	}

	result, err, _ := c.group.Do(key, func() (any, error) {
		if set, ok := c.get(ctx, key); ok {
			return set, nil
		}
		set, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.put(ctx, key, set)
		return set, nil
	})
	if err != nil {
		return IDSet{}, err
	}
	return result.(IDSet), nil
}

func (c *SetCache) get(ctx context.Context, key string) (IDSet, bool) {
	payload, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.warn("cache get", err)
		}
		return nil, false
	}
	var ids []int64
	if err := json.Unmarshal(payload, &ids); err != nil {
		c.warn("cache decode", err)
		return nil, false
	}
	return NewIDSet(ids...), true
}

func (c *SetCache) put(ctx context.Context, key string, set IDSet) {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	payload, err := json.Marshal(ids)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.warn("cache put", err)
	}
}

// Invalidate drops both cached sets for the user. Called synchronously from
// every grant and revoke before the mutation returns to its caller.
func (c *SetCache) Invalidate(ctx context.Context, tenantID, userID int64) {
	for _, kind := range []string{"fleets", "vessels"} {
		key, err := c.key(ctx, tenantID, userID, kind)
		if err != nil {
			c.warn("cache invalidate", err)
			return
		}
		if err := c.client.Del(ctx, key).Err(); err != nil {
			c.warn("cache invalidate", err)
		}
	}
}

// BumpTenant advances the tenant epoch, orphaning every cached set in the
// tenant at once. Used when a fleet or vessel is deleted, where touching each
// affected user individually is not practical.
func (c *SetCache) BumpTenant(ctx context.Context, tenantID int64) {
	if err := c.client.Incr(ctx, epochKey(tenantID)).Err(); err != nil {
		c.warn("cache epoch bump", err)
	}
}

func (c *SetCache) key(ctx context.Context, tenantID, userID int64, kind string) (string, error) {
	epoch, err := c.client.Get(ctx, epochKey(tenantID)).Int64()
	if err != nil && err != redis.Nil {
		return "", err
	}
	return fmt.Sprintf("access:e%d:%s:t%d:u%d", epoch, kind, tenantID, userID), nil
}

func epochKey(tenantID int64) string {
	return fmt.Sprintf("access:epoch:t%d", tenantID)
}

func (c *SetCache) warn(op string, err error) {
	if c.logger != nil {
		c.logger.Warn("access set cache degraded", slog.String("op", op), slog.Any("error", err))
	}
}
