package token

import (
	"context"
	"crypto/rsa"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	fherr "github.com/focushive/focushive-core/pkg/errors"
)

// KeyResolver resolves RSA public keys by key ID. [KeySet] is the
// production implementation; tests inject stubs.
type KeyResolver interface {
	Key(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

// RemoteValidatorConfig holds the configuration for verifying RS256
// tokens issued by the identity provider.
type RemoteValidatorConfig struct {
	// Issuer is the trust anchor; tokens whose iss claim differs are
	// rejected with [ReasonUntrustedIssuer].
	// Default: "https://identity.focushive.app"
	// Environment variable: TOKEN_ISSUER
	Issuer string `json:"issuer,omitempty" env:"TOKEN_ISSUER" envDefault:"https://identity.focushive.app"`

	// ClockSkew is the leeway applied to exp and iat checks.
	// Default: 30s
	// Environment variable: TOKEN_CLOCK_SKEW
	ClockSkew time.Duration `json:"clock_skew,omitempty" env:"TOKEN_CLOCK_SKEW" envDefault:"30s"`
}

// Validate checks the validator configuration and applies defaults.
func (c *RemoteValidatorConfig) Validate() *fherr.Error {
	if c.Issuer == "" {
		c.Issuer = DefaultIssuer
	}
	if c.ClockSkew == 0 {
		c.ClockSkew = DefaultClockSkew
	}
	if c.ClockSkew < 0 {
		return fherr.New(fherr.CodeValidation,
			"token: clock skew must not be negative")
	}
	return nil
}

// RemoteValidator verifies RS256 tokens issued by the identity provider.
// Signing keys are resolved through a [KeyResolver], typically a [KeySet]
// backed by the provider's JWKS endpoint.
//
// CRITICAL: jwt.WithValidMethods restricts accepted algorithms to RS256
// only; a token signed with the shared HMAC key never verifies against an
// RSA public key, closing the algorithm confusion path in this direction
// as well.
//
// A RemoteValidator is safe for concurrent use by multiple goroutines.
type RemoteValidator struct {
	config RemoteValidatorConfig
	keys   KeyResolver
	tracer trace.Tracer
}

// Compile-time assertion that RemoteValidator implements Validator.
var _ Validator = (*RemoteValidator)(nil)

// NewRemoteValidator creates a RemoteValidator with the given
// configuration and key resolver. The configuration is validated before
// use; keys must not be nil.
func NewRemoteValidator(cfg RemoteValidatorConfig, keys KeyResolver) (*RemoteValidator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if keys == nil {
		return nil, fherr.New(fherr.CodeValidationRequired,
			"token: remote validator requires a key resolver")
	}
	return &RemoteValidator{
		config: cfg,
		keys:   keys,
		tracer: otel.Tracer(tracerName),
	}, nil
}

// Validate verifies the token's signature against the resolved signing
// key and checks the issuer and time-based claims.
//
// Rejections that are properties of the token (bad signature, expired,
// untrusted issuer, unknown kid) are reported through the [Result]. The
// error return is reserved for infrastructure failures, i.e. the key
// resolver could not reach the JWKS endpoint and no cached key was
// available; callers decide how to fail in that case.
func (v *RemoteValidator) Validate(ctx context.Context, tokenStr string) (Result, error) {
	ctx, span := v.tracer.Start(ctx, "token.RemoteValidate")
	defer span.End()

	if tokenStr == "" || len(tokenStr) > maxTokenSize {
		return invalidSpan(span, ReasonMalformed), nil
	}

	alg, kid, err := unverifiedHeader(tokenStr)
	if err != nil {
		return invalidSpan(span, ReasonMalformed), nil
	}
	if err := rejectAlgNone(alg); err != nil {
		return invalidSpan(span, ReasonInvalidSignature), nil
	}
	if kid == "" {
		return invalidSpan(span, ReasonUnknownKeyID), nil
	}
	span.SetAttributes(attribute.String("token.kid", kid))

	var wc wireClaims
	parsed, err := jwt.ParseWithClaims(tokenStr, &wc, func(t *jwt.Token) (interface{}, error) {
		return v.keys.Key(ctx, kid)
	},
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(v.config.Issuer),
		jwt.WithLeeway(v.config.ClockSkew),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		reason, infraErr := classifyValidationError(err)
		if infraErr != nil {
			recordSpanError(span, infraErr)
			return Result{}, infraErr
		}
		return invalidSpan(span, reason), nil
	}
	if !parsed.Valid {
		return invalidSpan(span, ReasonInvalidSignature), nil
	}

	claims := wc.toClaims()
	span.SetAttributes(attribute.String("token.subject", claims.UserID))
	return ValidResult(claims), nil
}
