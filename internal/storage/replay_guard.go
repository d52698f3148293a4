package storage

import (
	"context"
	"time"

	apperrors "github.com/portfolio-ledger/internal/errors"
)

// ReplayGuard remembers envelope signatures for the length of the signature window
type ReplayGuard struct {
	redis *RedisCache
	ttl   time.Duration
}

// NewReplayGuard creates a replay guard. ttl should cover the whole window on
// both sides of server time.
func NewReplayGuard(redis *RedisCache, ttl time.Duration) *ReplayGuard {
	return &ReplayGuard{redis: redis, ttl: ttl}
}

// Claim records signature and reports false if it was already seen
func (g *ReplayGuard) Claim(ctx context.Context, signature string) (bool, error) {
	ok, err := g.redis.SetNX(ctx, GenerateCacheKey(CacheKeySignature, signature), 1, g.ttl)
	if err != nil {
		return false, apperrors.NewCacheError("claim signature", err)
	}
	return ok, nil
}
