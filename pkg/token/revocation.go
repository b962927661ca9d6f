package token

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	redisclient "github.com/focushive/focushive-core/pkg/clients/redis"
	fherr "github.com/focushive/focushive-core/pkg/errors"
)

// KV is the key-value store surface the token layer needs from Redis:
// atomic writes with expiry, existence checks, reads, and deletes. It is
// satisfied by [*redisclient.Client] and by mocks in tests.
type KV interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) (int64, error)
	Exists(ctx context.Context, keys ...string) (int64, error)
}

// Compile-time assertion that the platform Redis client satisfies KV.
var _ KV = (*redisclient.Client)(nil)

// revocationKeyPrefix namespaces revocation entries in the shared store.
const revocationKeyPrefix = "revoked:token:"

// DefaultRevocationTTLFloor is the minimum lifetime of a revocation
// entry. Entries live at least this long even for tokens about to
// expire, so clock drift between services cannot resurrect a revoked
// token.
const DefaultRevocationTTLFloor = time.Minute

// RevocationStoreConfig holds the configuration for the Redis-backed
// revocation store.
type RevocationStoreConfig struct {
	// TTLFloor is the minimum revocation entry lifetime.
	// Default: 1m
	// Environment variable: TOKEN_REVOCATION_TTL_FLOOR
	TTLFloor time.Duration `json:"ttl_floor,omitempty" env:"TOKEN_REVOCATION_TTL_FLOOR" envDefault:"1m"`
}

// Validate checks the store configuration and applies defaults.
func (c *RevocationStoreConfig) Validate() *fherr.Error {
	if c.TTLFloor == 0 {
		c.TTLFloor = DefaultRevocationTTLFloor
	}
	if c.TTLFloor < 0 {
		return fherr.New(fherr.CodeValidation,
			"token: revocation TTL floor must not be negative")
	}
	return nil
}

// RedisRevocationStore records revoked tokens in the shared Redis
// instance so a revocation performed by one service instance is visible
// to all others immediately.
//
// Each revoked token gets its own key ("revoked:token:<id>") written with
// a single atomic SET ... EX command whose TTL covers the token's
// remaining lifetime; after the token would have expired anyway, the
// entry disappears on its own and the store stays bounded.
//
// The store deliberately propagates infrastructure errors instead of
// guessing: deciding what an unreachable Redis means for a validation
// outcome is the pipeline's job, not the store's.
//
// A RedisRevocationStore is safe for concurrent use by multiple
// goroutines.
type RedisRevocationStore struct {
	kv     KV
	config RevocationStoreConfig
	tracer trace.Tracer
}

// Compile-time assertion that RedisRevocationStore implements Revocations.
var _ Revocations = (*RedisRevocationStore)(nil)

// NewRedisRevocationStore creates a revocation store backed by the given
// KV store. The configuration is validated before use; kv must not be
// nil.
func NewRedisRevocationStore(kv KV, cfg RevocationStoreConfig) (*RedisRevocationStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if kv == nil {
		return nil, fherr.New(fherr.CodeValidationRequired,
			"token: revocation store requires a KV store")
	}
	return &RedisRevocationStore{
		kv:     kv,
		config: cfg,
		tracer: otel.Tracer(tracerName),
	}, nil
}

// revocationID returns the identifier under which a token is revoked: the
// jti claim when present, otherwise the token fingerprint. Tokens minted
// by [Issuer] always carry a jti; the fingerprint fallback covers foreign
// tokens that do not.
func revocationID(claims *Claims, tokenStr string) string {
	if claims != nil && claims.TokenID != "" {
		return claims.TokenID
	}
	return Fingerprint(tokenStr)
}

// Revoke records the token as revoked. The entry's TTL is the token's
// remaining lifetime or the configured floor, whichever is larger, so the
// entry outlives the token itself.
//
// Errors from the backing store are propagated unchanged (they carry
// [fherr.CodeInternalDatabase] or [fherr.CodeTimeoutDatabase] codes from
// the Redis client).
func (s *RedisRevocationStore) Revoke(ctx context.Context, claims *Claims, tokenStr string) error {
	ctx, span := s.tracer.Start(ctx, "token.Revoke")
	defer span.End()

	id := revocationID(claims, tokenStr)
	ttl := s.config.TTLFloor
	if claims != nil {
		if remaining := claims.RemainingLifetime(); remaining > ttl {
			ttl = remaining
		}
	}
	span.SetAttributes(
		attribute.String("token.revocation_id", id),
		attribute.String("token.revocation_ttl", ttl.String()),
	)

	if err := s.kv.Set(ctx, revocationKeyPrefix+id, "1", ttl); err != nil {
		recordSpanError(span, err)
		return err
	}
	return nil
}

// IsRevoked reports whether the token identified by id appears in the
// revocation store. An empty id cannot have been revoked and returns
// false without touching the store.
//
// Errors from the backing store are propagated unchanged.
func (s *RedisRevocationStore) IsRevoked(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}

	ctx, span := s.tracer.Start(ctx, "token.IsRevoked")
	defer span.End()
	span.SetAttributes(attribute.String("token.revocation_id", id))

	n, err := s.kv.Exists(ctx, revocationKeyPrefix+id)
	if err != nil {
		recordSpanError(span, err)
		return false, err
	}
	return n == 1, nil
}
