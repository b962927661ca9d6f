package token

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	fherr "github.com/focushive/focushive-core/pkg/errors"
)

// cacheKeyPrefix namespaces validation-cache entries in the shared store.
const cacheKeyPrefix = "tokencache:"

// DefaultValidationCacheTTL is the lifetime of cached validation
// outcomes. Kept deliberately short: a cached entry delays the effect of
// a key rotation or an out-of-band revocation by at most this long.
const DefaultValidationCacheTTL = 60 * time.Second

// ValidationCacheConfig holds the configuration for the Redis-backed
// validation cache.
type ValidationCacheConfig struct {
	// TTL is the lifetime of cached outcomes. For valid tokens the
	// effective TTL is capped at the token's remaining lifetime.
	// Default: 60s
	// Environment variable: TOKEN_CACHE_TTL
	TTL time.Duration `json:"ttl,omitempty" env:"TOKEN_CACHE_TTL" envDefault:"60s"`
}

// Validate checks the cache configuration and applies defaults.
func (c *ValidationCacheConfig) Validate() *fherr.Error {
	if c.TTL == 0 {
		c.TTL = DefaultValidationCacheTTL
	}
	if c.TTL < 0 {
		return fherr.New(fherr.CodeValidation,
			"token: validation cache TTL must not be negative")
	}
	return nil
}

// ValidationCache memoizes validation outcomes in Redis, keyed by the
// SHA-256 fingerprint of the full token string. Because the fingerprint
// covers every byte of the token, a tampered token can never hit the
// cache entry of its untampered original.
//
// Both valid and invalid outcomes are cached, with one exception:
// [ReasonBackingStoreUnavailable] describes the state of the
// infrastructure, not the token, and is never written.
//
// A ValidationCache is safe for concurrent use by multiple goroutines.
type ValidationCache struct {
	kv     KV
	config ValidationCacheConfig
	tracer trace.Tracer
}

// Compile-time assertion that ValidationCache implements Cache.
var _ Cache = (*ValidationCache)(nil)

// cacheRecord is the JSON structure stored in Redis for each cached
// outcome.
type cacheRecord struct {
	Valid  bool    `json:"valid"`
	Reason Reason  `json:"reason,omitempty"`
	Claims *Claims `json:"claims,omitempty"`
}

// NewValidationCache creates a validation cache backed by the given KV
// store. The configuration is validated before use; kv must not be nil.
func NewValidationCache(kv KV, cfg ValidationCacheConfig) (*ValidationCache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if kv == nil {
		return nil, fherr.New(fherr.CodeValidationRequired,
			"token: validation cache requires a KV store")
	}
	return &ValidationCache{
		kv:     kv,
		config: cfg,
		tracer: otel.Tracer(tracerName),
	}, nil
}

// Get returns the cached outcome for the given token fingerprint, or
// (nil, nil) on a cache miss. A corrupt entry is treated as a miss.
//
// Errors from the backing store are propagated unchanged.
func (c *ValidationCache) Get(ctx context.Context, fingerprint string) (*Result, error) {
	ctx, span := c.tracer.Start(ctx, "token.CacheGet")
	defer span.End()

	raw, err := c.kv.Get(ctx, cacheKeyPrefix+fingerprint)
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			span.SetAttributes(attribute.Bool("token.cache_hit", false))
			return nil, nil
		}
		recordSpanError(span, err)
		return nil, err
	}

	var rec cacheRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		// Corrupt entry; treat as a miss and let the caller overwrite it.
		span.SetAttributes(attribute.Bool("token.cache_hit", false))
		return nil, nil
	}

	span.SetAttributes(attribute.Bool("token.cache_hit", true))
	return &Result{Valid: rec.Valid, Claims: rec.Claims, Reason: rec.Reason}, nil
}

// Put stores a validation outcome under the given token fingerprint.
//
// The effective TTL is the configured cache TTL, capped for valid
// outcomes at the token's remaining lifetime so a cached entry never
// outlives the token it describes. Outcomes with
// [ReasonBackingStoreUnavailable] are silently dropped, as is anything
// whose effective TTL would be zero or negative.
//
// Errors from the backing store are propagated unchanged.
func (c *ValidationCache) Put(ctx context.Context, fingerprint string, result Result) error {
	if result.Reason == ReasonBackingStoreUnavailable {
		return nil
	}

	ttl := c.config.TTL
	if result.Valid && result.Claims != nil && !result.Claims.ExpiresAt.IsZero() {
		if remaining := result.Claims.RemainingLifetime(); remaining < ttl {
			ttl = remaining
		}
	}
	if ttl <= 0 {
		return nil
	}

	ctx, span := c.tracer.Start(ctx, "token.CachePut")
	defer span.End()

	data, err := json.Marshal(cacheRecord{
		Valid:  result.Valid,
		Reason: result.Reason,
		Claims: result.Claims,
	})
	if err != nil {
		wrapped := fherr.Wrap(err, fherr.CodeInternal,
			"token: failed to encode cache record")
		recordSpanError(span, wrapped)
		return wrapped
	}

	if err := c.kv.Set(ctx, cacheKeyPrefix+fingerprint, string(data), ttl); err != nil {
		recordSpanError(span, err)
		return err
	}
	return nil
}

// Invalidate removes the cached outcome for the given token fingerprint.
// Invalidating an absent entry is not an error.
//
// Errors from the backing store are propagated unchanged.
func (c *ValidationCache) Invalidate(ctx context.Context, fingerprint string) error {
	ctx, span := c.tracer.Start(ctx, "token.CacheInvalidate")
	defer span.End()

	if _, err := c.kv.Del(ctx, cacheKeyPrefix+fingerprint); err != nil {
		recordSpanError(span, err)
		return err
	}
	return nil
}
