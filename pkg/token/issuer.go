package token

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	fherr "github.com/focushive/focushive-core/pkg/errors"
)

// tracerName is the OpenTelemetry instrumentation scope name for token
// spans.
const tracerName = "github.com/focushive/focushive-core/pkg/token"

// DefaultIssuer is the trusted FocusHive identity issuer URL used when no
// issuer is configured.
const DefaultIssuer = "https://identity.focushive.app"

// DefaultTokenTTL is the lifetime of locally issued access tokens.
const DefaultTokenTTL = 15 * time.Minute

// DefaultClockSkew is the leeway applied to time-based claim checks (exp,
// iat) to tolerate clock drift between services.
const DefaultClockSkew = 30 * time.Second

// IssuerConfig holds the configuration for minting local HS256 tokens.
type IssuerConfig struct {
	// Issuer is written to the iss claim of every minted token.
	// Default: "https://identity.focushive.app"
	// Environment variable: TOKEN_ISSUER
	Issuer string `json:"issuer,omitempty" env:"TOKEN_ISSUER" envDefault:"https://identity.focushive.app"`

	// SigningKey is the shared HMAC secret used to sign tokens. The same
	// key must be configured on every service that validates local
	// tokens.
	// Environment variable: TOKEN_SIGNING_KEY
	SigningKey Secret `json:"-" env:"TOKEN_SIGNING_KEY" required:"true"`

	// TokenTTL is the default lifetime of minted tokens. Individual
	// Issue calls may override it.
	// Default: 15m
	// Environment variable: TOKEN_TTL
	TokenTTL time.Duration `json:"token_ttl,omitempty" env:"TOKEN_TTL" envDefault:"15m"`
}

// Validate checks the issuer configuration and applies defaults for
// zero-valued fields.
func (c *IssuerConfig) Validate() *fherr.Error {
	if c.SigningKey.Value() == "" {
		return fherr.New(fherr.CodeValidationRequired,
			"token: issuer signing key is required")
	}
	if c.Issuer == "" {
		c.Issuer = DefaultIssuer
	}
	if c.TokenTTL == 0 {
		c.TokenTTL = DefaultTokenTTL
	}
	if c.TokenTTL < 0 {
		return fherr.New(fherr.CodeValidation,
			"token: issuer token TTL must not be negative")
	}
	return nil
}

// Issuer mints HS256 access tokens for locally authenticated users.
//
// An Issuer is safe for concurrent use by multiple goroutines.
type Issuer struct {
	config IssuerConfig
	tracer trace.Tracer

	// now and newID are injection points for deterministic tests.
	now   func() time.Time
	newID func() string
}

// NewIssuer creates an Issuer with the given configuration. The
// configuration is validated before use.
func NewIssuer(cfg IssuerConfig) (*Issuer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Issuer{
		config: cfg,
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
		newID:  uuid.NewString,
	}, nil
}

// Issue mints a signed HS256 token for the given principal. The ttl
// parameter overrides the configured default token lifetime when
// positive; pass zero to use the default.
//
// Every token receives a unique jti claim so it can be revoked
// individually.
func (i *Issuer) Issue(ctx context.Context, p Principal, ttl time.Duration) (string, error) {
	_, span := i.tracer.Start(ctx, "token.Issue")
	defer span.End()

	if p.UserID == "" {
		err := fherr.New(fherr.CodeValidationRequired,
			"token: principal user ID is required")
		recordSpanError(span, err)
		return "", err
	}
	if ttl <= 0 {
		ttl = i.config.TokenTTL
	}

	now := i.now()
	wc := wireClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.config.Issuer,
			Subject:   p.UserID,
			ID:        i.newID(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID: p.UserID,
		Email:  p.Email,
		Roles:  p.Roles,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, wc).
		SignedString([]byte(i.config.SigningKey.Value()))
	if err != nil {
		wrapped := fherr.Wrap(err, fherr.CodeInternal,
			"token: failed to sign token")
		recordSpanError(span, wrapped)
		return "", wrapped
	}

	span.SetAttributes(
		attribute.String("token.subject", p.UserID),
		attribute.String("token.jti", wc.ID),
	)
	return signed, nil
}

// LocalValidatorConfig holds the configuration for verifying HS256 tokens
// minted by [Issuer].
type LocalValidatorConfig struct {
	// Issuer is the trust anchor; tokens whose iss claim differs are
	// rejected with [ReasonUntrustedIssuer].
	// Default: "https://identity.focushive.app"
	// Environment variable: TOKEN_ISSUER
	Issuer string `json:"issuer,omitempty" env:"TOKEN_ISSUER" envDefault:"https://identity.focushive.app"`

	// SigningKey is the shared HMAC secret tokens are verified against.
	// Environment variable: TOKEN_SIGNING_KEY
	SigningKey Secret `json:"-" env:"TOKEN_SIGNING_KEY" required:"true"`

	// ClockSkew is the leeway applied to exp and iat checks.
	// Default: 30s
	// Environment variable: TOKEN_CLOCK_SKEW
	ClockSkew time.Duration `json:"clock_skew,omitempty" env:"TOKEN_CLOCK_SKEW" envDefault:"30s"`
}

// Validate checks the validator configuration and applies defaults.
func (c *LocalValidatorConfig) Validate() *fherr.Error {
	if c.SigningKey.Value() == "" {
		return fherr.New(fherr.CodeValidationRequired,
			"token: local validator signing key is required")
	}
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

// LocalValidator verifies HS256 tokens against the shared signing key.
//
// CRITICAL: jwt.WithValidMethods restricts accepted algorithms to HS256
// only, preventing algorithm confusion attacks where an attacker presents
// an RSA-signed token and tricks the validator into using a public key as
// an HMAC secret.
//
// A LocalValidator is safe for concurrent use by multiple goroutines.
type LocalValidator struct {
	config LocalValidatorConfig
	tracer trace.Tracer
}

// Compile-time assertion that LocalValidator implements Validator.
var _ Validator = (*LocalValidator)(nil)

// NewLocalValidator creates a LocalValidator with the given configuration.
// The configuration is validated before use.
func NewLocalValidator(cfg LocalValidatorConfig) (*LocalValidator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &LocalValidator{
		config: cfg,
		tracer: otel.Tracer(tracerName),
	}, nil
}

// Validate verifies the token's signature, issuer, and time-based claims.
// Rejections are reported through the [Result]; the error return is
// reserved for infrastructure failures, which a local HMAC check cannot
// produce, so it is always nil.
func (v *LocalValidator) Validate(ctx context.Context, tokenStr string) (Result, error) {
	_, span := v.tracer.Start(ctx, "token.LocalValidate")
	defer span.End()

	if tokenStr == "" || len(tokenStr) > maxTokenSize {
		return invalidSpan(span, ReasonMalformed), nil
	}

	alg, _, err := unverifiedHeader(tokenStr)
	if err != nil {
		return invalidSpan(span, ReasonMalformed), nil
	}
	if err := rejectAlgNone(alg); err != nil {
		return invalidSpan(span, ReasonInvalidSignature), nil
	}

	var wc wireClaims
	parsed, err := jwt.ParseWithClaims(tokenStr, &wc, func(t *jwt.Token) (interface{}, error) {
		return []byte(v.config.SigningKey.Value()), nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
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

// invalidSpan records the rejection reason on the span and builds the
// invalid result.
func invalidSpan(span trace.Span, reason Reason) Result {
	span.SetAttributes(attribute.String("token.reject_reason", string(reason)))
	return InvalidResult(reason)
}

// recordSpanError records an error on the span and marks the span status.
func recordSpanError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
