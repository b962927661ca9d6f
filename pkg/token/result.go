package token

import (
	"context"
	"errors"

	"github.com/golang-jwt/jwt/v5"

	fherr "github.com/focushive/focushive-core/pkg/errors"
)

// Reason explains why a token was rejected. An empty Reason accompanies
// a valid result.
type Reason string

// Rejection reasons, ordered roughly from "bad input" to "bad state".
const (
	// ReasonMalformed means the token is not a structurally valid JWT,
	// is empty, or exceeds the maximum accepted size.
	ReasonMalformed Reason = "malformed"

	// ReasonExpired means the token's exp claim is in the past (beyond
	// the configured clock-skew leeway).
	ReasonExpired Reason = "expired"

	// ReasonInvalidSignature means signature verification failed,
	// including tokens declaring the "none" algorithm.
	ReasonInvalidSignature Reason = "invalid_signature"

	// ReasonUnknownKeyID means the token's kid header does not match any
	// key in the resolved key set, even after a refresh.
	ReasonUnknownKeyID Reason = "unknown_key_id"

	// ReasonUntrustedIssuer means the token's iss claim does not match
	// the configured trust anchor.
	ReasonUntrustedIssuer Reason = "untrusted_issuer"

	// ReasonRevoked means the token appears in the revocation store.
	ReasonRevoked Reason = "revoked"

	// ReasonBackingStoreUnavailable means validation could not be
	// completed because a backing dependency (Redis, the JWKS endpoint)
	// failed. The fail-safe policy reports such tokens as invalid.
	ReasonBackingStoreUnavailable Reason = "backing_store_unavailable"
)

// Result is the outcome of validating a token. A valid Result carries the
// verified claims; an invalid Result carries the rejection Reason and nil
// claims.
type Result struct {
	// Valid reports whether the token passed every check.
	Valid bool `json:"valid"`

	// Claims holds the verified claims when Valid is true, nil otherwise.
	Claims *Claims `json:"claims,omitempty"`

	// Reason explains the rejection when Valid is false, empty otherwise.
	Reason Reason `json:"reason,omitempty"`
}

// ValidResult constructs a successful validation outcome.
func ValidResult(claims *Claims) Result {
	return Result{Valid: true, Claims: claims}
}

// InvalidResult constructs a failed validation outcome.
func InvalidResult(reason Reason) Result {
	return Result{Valid: false, Reason: reason}
}

// classifyValidationError maps an error from the JWT library or a key
// resolver to a rejection [Reason], or reports it as an infrastructure
// failure. It returns either a non-empty reason or a non-nil infra error,
// never both.
//
// Infrastructure failures (unavailable or timed-out dependencies,
// canceled contexts) are surfaced as errors so the caller can apply the
// fail-safe policy; everything else is a property of the token itself and
// becomes a Reason.
func classifyValidationError(err error) (Reason, error) {
	if err == nil {
		return "", nil
	}

	// Key resolver and store failures travel as platform errors, wrapped
	// by the JWT library's keyfunc error chain.
	if fhErr, ok := fherr.AsError(err); ok {
		switch {
		case fhErr.Code == fherr.CodeAuthenticationUnknownKey:
			return ReasonUnknownKeyID, nil
		case fhErr.Code == fherr.CodeAuthenticationMalformed:
			return ReasonMalformed, nil
		case fhErr.Code == fherr.CodeAuthenticationSignature:
			return ReasonInvalidSignature, nil
		case fherr.IsUnavailable(fhErr), fherr.IsTimeout(fhErr), fherr.IsInternal(fhErr):
			return "", fhErr
		}
	}

	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ReasonExpired, nil
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ReasonUntrustedIssuer, nil
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ReasonMalformed, nil
	case errors.Is(err, jwt.ErrSignatureInvalid):
		return ReasonInvalidSignature, nil
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ReasonInvalidSignature, nil
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return ReasonExpired, nil
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "", fherr.Wrap(err, fherr.CodeTimeoutDependency,
			"token: validation interrupted")
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		// Keyfunc failed for a reason we could not classify above.
		return "", fherr.Wrap(err, fherr.CodeUnavailableDependency,
			"token: signing key could not be resolved")
	}

	// Anything else is a defect in the token.
	return ReasonInvalidSignature, nil
}
