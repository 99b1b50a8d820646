package brandconfig

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/motor-valuation/internal/obs"
	"github.com/noah-isme/motor-valuation/internal/valuation"
)

const cacheKeyPrefix = "brandcfg:v1:"

// CachedStore serves catalogs from Redis and falls back to the wrapped Store.
// Redis failures are logged and bypassed; only the underlying Store can fail a lookup.
type CachedStore struct {
	next   Store
	client redis.UniversalClient
	ttl    time.Duration
	logger *zerolog.Logger
}

// NewCachedStore wraps next with a Redis JSON cache. A nil client or a
// non-positive ttl disables caching.
func NewCachedStore(next Store, client redis.UniversalClient, ttl time.Duration, logger *zerolog.Logger) *CachedStore {
	return &CachedStore{next: next, client: client, ttl: ttl, logger: obs.LoggerOrNop(logger)}
}

func cacheKey(brand string) string {
	return cacheKeyPrefix + NormalizeBrand(brand)
}

func (c *CachedStore) enabled() bool {
	return c.client != nil && c.ttl > 0
}

// ActiveCatalog implements Store.
func (c *CachedStore) ActiveCatalog(ctx context.Context, brand string) ([]valuation.ParameterConfig, error) {
	if c.enabled() {
		var cached []valuation.ParameterConfig
		hit, err := c.getJSON(ctx, cacheKey(brand), &cached)
		switch {
		case err != nil:
			c.logger.Warn().Err(err).Str("brand", brand).Msg("brand catalog cache read failed")
		case hit:
			obs.IncCatalogLookup("cache")
			return cached, nil
		}
	}

	catalog, err := c.next.ActiveCatalog(ctx, brand)
	if err != nil {
		return nil, err
	}
	if len(catalog) == 0 {
		obs.IncCatalogLookup("missing")
		return catalog, nil
	}
	obs.IncCatalogLookup("store")
	if c.enabled() {
		if err := c.setJSON(ctx, cacheKey(brand), catalog); err != nil {
			c.logger.Warn().Err(err).Str("brand", brand).Msg("brand catalog cache write failed")
		}
	}
	return catalog, nil
}

// Invalidate drops the cached catalog of brand, typically after a configuration is saved.
func (c *CachedStore) Invalidate(ctx context.Context, brand string) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, cacheKey(brand)).Err()
}

func (c *CachedStore) getJSON(ctx context.Context, key string, dst any) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

func (c *CachedStore) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}
