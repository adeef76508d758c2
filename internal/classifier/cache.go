package classifier

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "janus:classify:"

// VerdictCache caches LLM-verified classifier verdicts in Redis, keyed by a
// hash of (model, latest user turn). Keyword and flag verdicts are cheap to
// recompute and are never cached. A nil Redis client disables the cache.
type VerdictCache struct {
	rdb *redis.Client
	ttl func() time.Duration
}

func NewVerdictCache(rdb *redis.Client, ttl func() time.Duration) *VerdictCache {
	return &VerdictCache{rdb: rdb, ttl: ttl}
}

func cacheKey(model, latestUserText string) string {
	h := sha256.Sum256([]byte(model + "\x00" + latestUserText))
	return fmt.Sprintf("%s%x", cacheKeyPrefix, h)
}

// Get returns the cached verdict and whether it was present.
func (c *VerdictCache) Get(ctx context.Context, model, latestUserText string) (bool, bool) {
	if c == nil || c.rdb == nil {
		return false, false
	}
	val, err := c.rdb.Get(ctx, cacheKey(model, latestUserText)).Result()
	if err != nil {
		return false, false
	}
	return val == "1", true
}

// Set stores a verdict. Errors are ignored; the cache is best effort.
func (c *VerdictCache) Set(ctx context.Context, model, latestUserText string, needsAgent bool) {
	if c == nil || c.rdb == nil {
		return
	}
	val := "0"
	if needsAgent {
		val = "1"
	}
	c.rdb.Set(ctx, cacheKey(model, latestUserText), val, c.ttl())
}
