package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"time"

	"github.com/ignite/adscale/internal/domain"
	"github.com/redis/go-redis/v9"
)

// CachedProvider wraps a Provider with a short-TTL Redis cache. An engine
// pass over many rules bound to the same asset hits the same aggregates;
// the cache collapses those into one PG round trip per cycle.
//
// Cache errors degrade to the inner provider, never to a failed lookup.
type CachedProvider struct {
	inner Provider
	rdb   *redis.Client
	ttl   time.Duration
}

// NewCachedProvider wraps inner with a Redis snapshot cache.
func NewCachedProvider(inner Provider, rdb *redis.Client, ttl time.Duration) *CachedProvider {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &CachedProvider{inner: inner, rdb: rdb, ttl: ttl}
}

func (c *CachedProvider) Snapshot(ctx context.Context, asset *domain.AdAsset, keys []Key) (Snapshot, error) {
	cacheKey := c.snapshotKey(asset.ID, keys)

	if data, err := c.rdb.Get(ctx, cacheKey).Bytes(); err == nil {
		var snap Snapshot
		if json.Unmarshal(data, &snap) == nil {
			return snap, nil
		}
	}

	snap, err := c.inner.Snapshot(ctx, asset, keys)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(snap); err == nil {
		c.rdb.Set(ctx, cacheKey, data, c.ttl)
	}
	return snap, nil
}

func (c *CachedProvider) BudgetStatus(ctx context.Context, asset *domain.AdAsset) (*domain.BudgetStatus, error) {
	cacheKey := "adscale:metrics:budget:" + asset.ID

	if data, err := c.rdb.Get(ctx, cacheKey).Bytes(); err == nil {
		var bs domain.BudgetStatus
		if json.Unmarshal(data, &bs) == nil {
			return &bs, nil
		}
	}
	return c.budgetStatusFresh(ctx, asset, cacheKey)
}

// BudgetStatusRealTime bypasses the cache (the manual-adjust UI sends
// real_time=1 before allowing a human edit) and refreshes it.
func (c *CachedProvider) BudgetStatusRealTime(ctx context.Context, asset *domain.AdAsset) (*domain.BudgetStatus, error) {
	return c.budgetStatusFresh(ctx, asset, "adscale:metrics:budget:"+asset.ID)
}

func (c *CachedProvider) budgetStatusFresh(ctx context.Context, asset *domain.AdAsset, cacheKey string) (*domain.BudgetStatus, error) {
	bs, err := c.inner.BudgetStatus(ctx, asset)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(bs); err == nil {
		c.rdb.Set(ctx, cacheKey, data, c.ttl)
	}
	return bs, nil
}

func (c *CachedProvider) snapshotKey(assetID string, keys []Key) string {
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.String()
	}
	sort.Strings(names)
	h := fnv.New64a()
	h.Write([]byte(strings.Join(names, ",")))
	return fmt.Sprintf("adscale:metrics:snap:%s:%x", assetID, h.Sum64())
}
