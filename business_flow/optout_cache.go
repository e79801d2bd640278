package businessflow

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sepehrad/broadcastd/config"
	"github.com/sepehrad/broadcastd/repository"
)

// OptOutCache is a read-through redis cache over the opt-out registry.
// Dispatch validation consults it on every send, so registry reads must not
// hit postgres each time. A nil redis client falls through to the repository.
type OptOutCache struct {
	rc          *redis.Client
	cacheConfig *config.CacheConfig
	optOutRepo  repository.OptOutRepository
}

// NewOptOutCache creates a new opt-out cache
func NewOptOutCache(rc *redis.Client, cacheConfig *config.CacheConfig, optOutRepo repository.OptOutRepository) *OptOutCache {
	return &OptOutCache{
		rc:          rc,
		cacheConfig: cacheConfig,
		optOutRepo:  optOutRepo,
	}
}

func optOutKey(customerID, contactID uint) string {
	return fmt.Sprintf("opt_out:%d:%d", customerID, contactID)
}

// IsOptedOut checks the cache, falling back to the registry on a miss
func (c *OptOutCache) IsOptedOut(ctx context.Context, customerID, contactID uint) (bool, error) {
	if c.rc != nil {
		key := redisKey(*c.cacheConfig, optOutKey(customerID, contactID))
		if v, err := c.rc.Get(ctx, key).Result(); err == nil {
			return v == "1", nil
		}
	}

	optedOut, err := c.optOutRepo.IsOptedOut(ctx, customerID, contactID)
	if err != nil {
		return false, err
	}

	if c.rc != nil {
		key := redisKey(*c.cacheConfig, optOutKey(customerID, contactID))
		v := "0"
		if optedOut {
			v = "1"
		}
		_ = c.rc.Set(ctx, key, v, c.cacheConfig.DefaultTTL).Err()
	}

	return optedOut, nil
}

// MarkOptedOut records a fresh opt-out in the cache so dispatch validation
// sees it before the TTL of a cached negative expires
func (c *OptOutCache) MarkOptedOut(ctx context.Context, customerID, contactID uint) {
	if c.rc == nil {
		return
	}
	key := redisKey(*c.cacheConfig, optOutKey(customerID, contactID))
	_ = c.rc.Set(ctx, key, "1", c.cacheConfig.DefaultTTL).Err()
}
