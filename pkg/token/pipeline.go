package token

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	fherr "github.com/focushive/focushive-core/pkg/errors"
)

// Validator verifies a token's signature and claims. [LocalValidator]
// and [RemoteValidator] are the production implementations.
//
// Implementations report token defects through the [Result] and reserve
// the error return for infrastructure failures.
type Validator interface {
	Validate(ctx context.Context, tokenStr string) (Result, error)
}

// Revocations tracks revoked tokens. [RedisRevocationStore] is the
// production implementation.
type Revocations interface {
	Revoke(ctx context.Context, claims *Claims, tokenStr string) error
	IsRevoked(ctx context.Context, id string) (bool, error)
}

// Cache memoizes validation outcomes by token fingerprint.
// [ValidationCache] is the production implementation.
type Cache interface {
	Get(ctx context.Context, fingerprint string) (*Result, error)
	Put(ctx context.Context, fingerprint string, result Result) error
	Invalidate(ctx context.Context, fingerprint string) error
}

// Pipeline composes the validation cache, the revocation store, and the
// signature validators into the single entry point services use to check
// a bearer token.
//
// # Validation Order
//
// [Pipeline.Validate] consults the cache first; a hit short-circuits
// everything else. On a miss it checks the revocation store, then routes
// the token to the remote validator when the header carries a kid and to
// the local validator otherwise, and finally caches the outcome
// best-effort.
//
// # Fail-Safe Policy
//
// The pipeline owns the decision of what an unreachable dependency means:
// any infrastructure failure (cache read, revocation lookup, JWKS
// resolution) produces Invalid([ReasonBackingStoreUnavailable]). Validate
// never reports a token valid on a guess, never returns an error, and
// never panics; an outage therefore degrades to authenticated requests
// being rejected, not to unauthenticated requests being let through.
//
// A Pipeline is safe for concurrent use by multiple goroutines.
type Pipeline struct {
	local       Validator
	remote      Validator
	revocations Revocations
	cache       Cache
	tracer      trace.Tracer
}

// NewPipeline creates a Pipeline from its components.
//
// At least one of local and remote must be non-nil; a nil validator
// rejects the tokens routed to it with [ReasonInvalidSignature]. The
// revocations store is required. The cache may be nil, which disables
// outcome memoization (every Validate call runs the full pipeline).
func NewPipeline(local, remote Validator, revocations Revocations, cache Cache) (*Pipeline, error) {
	if local == nil && remote == nil {
		return nil, fherr.New(fherr.CodeValidationRequired,
			"token: pipeline requires at least one validator")
	}
	if revocations == nil {
		return nil, fherr.New(fherr.CodeValidationRequired,
			"token: pipeline requires a revocation store")
	}
	return &Pipeline{
		local:       local,
		remote:      remote,
		revocations: revocations,
		cache:       cache,
		tracer:      otel.Tracer(tracerName),
	}, nil
}

// Validate checks a bearer token and returns the outcome. It never
// returns an error and never panics; every failure mode maps to an
// invalid [Result] with an explanatory [Reason].
func (p *Pipeline) Validate(ctx context.Context, tokenStr string) Result {
	ctx, span := p.tracer.Start(ctx, "token.Validate")
	defer span.End()

	if tokenStr == "" || len(tokenStr) > maxTokenSize {
		return invalidSpan(span, ReasonMalformed)
	}

	fingerprint := Fingerprint(tokenStr)

	// Cache lookup. A hit short-circuits revocation and signature
	// checks; revocations invalidate their cache entry, so a hit is
	// authoritative for the cache TTL.
	if p.cache != nil {
		cached, err := p.cache.Get(ctx, fingerprint)
		if err != nil {
			recordSpanError(span, err)
			return invalidSpan(span, ReasonBackingStoreUnavailable)
		}
		if cached != nil {
			span.SetAttributes(attribute.Bool("token.cache_hit", true))
			return *cached
		}
		span.SetAttributes(attribute.Bool("token.cache_hit", false))
	}

	// Decode without verification to learn the revocation identifier.
	// The claims are not trusted; they only tell us where to look.
	claims, err := DecodeUnverified(tokenStr)
	if err != nil {
		result := invalidSpan(span, ReasonMalformed)
		p.cachePut(ctx, fingerprint, result)
		return result
	}

	// Revocation check precedes signature verification: a revoked token
	// is rejected even while its signature still verifies.
	revoked, err := p.revocations.IsRevoked(ctx, revocationID(claims, tokenStr))
	if err != nil {
		recordSpanError(span, err)
		return invalidSpan(span, ReasonBackingStoreUnavailable)
	}
	if revoked {
		result := invalidSpan(span, ReasonRevoked)
		p.cachePut(ctx, fingerprint, result)
		return result
	}

	// Route by key ID: provider-issued tokens carry a kid header, local
	// HS256 tokens do not.
	result, err := p.verify(ctx, tokenStr)
	if err != nil {
		recordSpanError(span, err)
		return invalidSpan(span, ReasonBackingStoreUnavailable)
	}

	p.cachePut(ctx, fingerprint, result)
	if !result.Valid {
		span.SetAttributes(attribute.String("token.reject_reason", string(result.Reason)))
	}
	return result
}

// verify routes the token to the appropriate signature validator.
func (p *Pipeline) verify(ctx context.Context, tokenStr string) (Result, error) {
	_, kid, err := unverifiedHeader(tokenStr)
	if err != nil {
		return InvalidResult(ReasonMalformed), nil
	}

	validator := p.local
	if kid != "" {
		validator = p.remote
	}
	if validator == nil {
		return InvalidResult(ReasonInvalidSignature), nil
	}
	return validator.Validate(ctx, tokenStr)
}

// cachePut writes an outcome to the cache best-effort. A failed write
// only costs a re-validation on the next request, so the error is
// dropped; the cache itself refuses to store infrastructure outcomes.
func (p *Pipeline) cachePut(ctx context.Context, fingerprint string, result Result) {
	if p.cache == nil {
		return
	}
	_ = p.cache.Put(ctx, fingerprint, result)
}

// Revoke records the token as revoked and evicts its cached validation
// outcome. Call it on logout or credential compromise.
//
// Unlike Validate, Revoke propagates infrastructure errors: a caller that
// could not revoke a token must know about it.
func (p *Pipeline) Revoke(ctx context.Context, tokenStr string) error {
	ctx, span := p.tracer.Start(ctx, "token.PipelineRevoke")
	defer span.End()

	claims, err := DecodeUnverified(tokenStr)
	if err != nil {
		recordSpanError(span, err)
		return err
	}

	if err := p.revocations.Revoke(ctx, claims, tokenStr); err != nil {
		recordSpanError(span, err)
		return err
	}

	// Evict the cached outcome so the revocation takes effect
	// immediately instead of after the cache TTL.
	if p.cache != nil {
		if err := p.cache.Invalidate(ctx, Fingerprint(tokenStr)); err != nil {
			recordSpanError(span, err)
			return err
		}
	}
	return nil
}
