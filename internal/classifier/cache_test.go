package classifier

import (
	"context"
	"testing"
	"time"
)

func TestVerdictCacheNilSafe(t *testing.T) {
	var nilCache *VerdictCache
	if _, ok := nilCache.Get(context.Background(), "m", "text"); ok {
		t.Error("nil cache must miss")
	}
	nilCache.Set(context.Background(), "m", "text", true)

	noRedis := NewVerdictCache(nil, func() time.Duration { return time.Minute })
	if _, ok := noRedis.Get(context.Background(), "m", "text"); ok {
		t.Error("cache without redis must miss")
	}
	noRedis.Set(context.Background(), "m", "text", true)
}

func TestCacheKeyDistinguishesInputs(t *testing.T) {
	base := cacheKey("gpt-4o-mini", "hello")
	if base == cacheKey("gpt-4o-mini", "hello!") {
		t.Error("different text must produce different keys")
	}
	if base == cacheKey("gpt-4o", "hello") {
		t.Error("different model must produce different keys")
	}
	if base != cacheKey("gpt-4o-mini", "hello") {
		t.Error("key must be deterministic")
	}
}
