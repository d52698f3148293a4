package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/portfolio-ledger/internal/circuitbreaker"
	apperrors "github.com/portfolio-ledger/internal/errors"
)

// CacheKeyType represents different types of cache keys
type CacheKeyType string

const (
	// CacheKeyPortfolio is for portfolio record views
	CacheKeyPortfolio CacheKeyType = "portfolio"
	// CacheKeySignature is for claimed envelope signatures
	CacheKeySignature CacheKeyType = "sig"
)

// DefaultCacheTTL is used when no positive TTL is configured
const DefaultCacheTTL = 30 * time.Second

// GenerateCacheKey generates a cache key for a given type and parameters.
// Format: <type>:<param1>:<param2>:...
// Parameters are kept verbatim since base58 keys are case sensitive.
func GenerateCacheKey(keyType CacheKeyType, params ...string) string {
	parts := append([]string{string(keyType)}, params...)
	return strings.Join(parts, ":")
}

// PortfolioCacheKey returns the cache key of a portfolio view.
// Format: portfolio:<address>
func PortfolioCacheKey(address string) string {
	return GenerateCacheKey(CacheKeyPortfolio, address)
}

// Cache entries are hashes {v: version, d: JSON document}. The script only
// replaces an entry whose version is older, so a slow writer can never put
// back a document that a later one already superseded.
//
// KEYS[1] = entry key
// ARGV[1] = version, ARGV[2] = document, ARGV[3] = ttl in milliseconds
var setIfNewerScript = redis.NewScript(`
	local current = redis.call('HGET', KEYS[1], 'v')
	if current and tonumber(current) >= tonumber(ARGV[1]) then
		return 0
	end
	redis.call('HSET', KEYS[1], 'v', ARGV[1], 'd', ARGV[2])
	redis.call('PEXPIRE', KEYS[1], ARGV[3])
	return 1
`)

// CacheService stores versioned JSON documents in Redis behind a circuit breaker
type CacheService struct {
	redis   *RedisCache
	ttl     time.Duration
	breaker *circuitbreaker.CircuitBreaker
}

// NewCacheService creates a new cache service
func NewCacheService(redis *RedisCache, ttl time.Duration) *CacheService {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CacheService{
		redis:   redis,
		ttl:     ttl,
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig("redis-cache")),
	}
}

// Set stores value under key unless the cached entry already has the same or a
// newer version. It reports whether the value was stored.
func (c *CacheService) Set(ctx context.Context, key string, version int64, value interface{}) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("failed to marshal value: %w", err)
	}

	var stored bool
	err = c.breaker.Execute(ctx, func() error {
		n, runErr := setIfNewerScript.Run(ctx, c.redis.Client(), []string{key},
			version, data, c.ttl.Milliseconds()).Int()
		stored = n == 1
		return runErr
	})
	if err != nil {
		return false, apperrors.NewCacheError("set", err)
	}
	return stored, nil
}

// Get loads key into dest and reports whether it was found
func (c *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	var data string
	err := c.breaker.Execute(ctx, func() error {
		var getErr error
		data, getErr = c.redis.HGet(ctx, key, "d")
		if errors.Is(getErr, redis.Nil) {
			return nil
		}
		return getErr
	})
	if err != nil {
		return false, apperrors.NewCacheError("get", err)
	}
	if data == "" {
		return false, nil
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached value: %w", err)
	}
	return true, nil
}

// Invalidate removes one or more keys from cache
func (c *CacheService) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	err := c.breaker.Execute(ctx, func() error {
		return c.redis.Del(ctx, keys...)
	})
	if err != nil {
		return apperrors.NewCacheError("invalidate", err)
	}
	return nil
}
