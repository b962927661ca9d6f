// Package token implements the FocusHive token-trust layer: issuing and
// validating JWT access tokens, resolving remote signing keys, tracking
// revocations, and caching validation outcomes.
//
// # Architecture
//
// The package is organized around a small set of composable pieces:
//
//   - [Issuer] mints HS256 tokens for locally authenticated users.
//   - [LocalValidator] verifies HS256 tokens against the shared signing key.
//   - [KeySet] resolves RS256 public keys from a remote JWKS endpoint,
//     with caching, request collapsing, and background refresh.
//   - [RemoteValidator] verifies RS256 tokens issued by the identity
//     provider using a [KeyResolver].
//   - [RedisRevocationStore] records revoked tokens in Redis with a TTL
//     covering the token's remaining lifetime.
//   - [ValidationCache] memoizes validation outcomes in Redis, keyed by
//     the SHA-256 fingerprint of the full token string.
//   - [Pipeline] composes all of the above into a single Validate call
//     with a fail-safe policy: infrastructure failures always produce an
//     invalid result, never a valid one and never a panic.
//
// # Validation Outcomes
//
// Validation never returns raw JWT library errors to callers. Every
// outcome is a [Result] carrying a [Reason] that explains why a token was
// rejected, which keeps decision-making (HTTP status mapping, retry
// policy, audit logging) in one place.
package token

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	fherr "github.com/focushive/focushive-core/pkg/errors"
)

// maxTokenSize is the maximum accepted token length in bytes. Tokens
// larger than this are rejected before any parsing to prevent resource
// exhaustion from maliciously large inputs. 8 KB accommodates JWTs with
// extensive claims while rejecting obvious abuse.
const maxTokenSize = 8192

// Claims holds the identity information carried by a FocusHive access
// token. It is the decoded, application-facing view of the token payload;
// the wire format is a standard JWT claims set with userId, email, and
// roles as private claims.
type Claims struct {
	// UserID is the stable identifier of the authenticated user
	// (the JWT "sub" and "userId" claims).
	UserID string `json:"userId"`

	// Email is the user's email address at issue time.
	Email string `json:"email"`

	// Roles lists the user's role names for authorization decisions.
	Roles []string `json:"roles"`

	// Issuer is the JWT "iss" claim identifying who minted the token.
	Issuer string `json:"issuer"`

	// TokenID is the JWT "jti" claim, a unique identifier for this token
	// instance. It is the preferred key for revocation entries.
	TokenID string `json:"tokenId"`

	// IssuedAt is the JWT "iat" claim.
	IssuedAt time.Time `json:"issuedAt"`

	// ExpiresAt is the JWT "exp" claim. A zero value means the token
	// carries no expiry, which validators reject.
	ExpiresAt time.Time `json:"expiresAt"`
}

// HasRole reports whether the claims include the given role.
func (c *Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// RemainingLifetime returns the duration until the token expires, or zero
// if the token has already expired or carries no expiry.
func (c *Claims) RemainingLifetime() time.Duration {
	if c.ExpiresAt.IsZero() {
		return 0
	}
	remaining := time.Until(c.ExpiresAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// wireClaims is the JWT claims structure used on the wire. It embeds the
// registered claims (iss, sub, exp, iat, jti) and adds the FocusHive
// private claims.
type wireClaims struct {
	jwt.RegisteredClaims

	UserID string   `json:"userId,omitempty"`
	Email  string   `json:"email,omitempty"`
	Roles  []string `json:"roles,omitempty"`
}

// toClaims converts wire-format claims to the application-facing [Claims].
// The "sub" registered claim wins over the "userId" private claim when
// both are present, matching how the issuer writes them.
func (w *wireClaims) toClaims() *Claims {
	c := &Claims{
		UserID:  w.UserID,
		Email:   w.Email,
		Roles:   w.Roles,
		Issuer:  w.Issuer,
		TokenID: w.ID,
	}
	if w.Subject != "" {
		c.UserID = w.Subject
	}
	if w.IssuedAt != nil {
		c.IssuedAt = w.IssuedAt.Time
	}
	if w.ExpiresAt != nil {
		c.ExpiresAt = w.ExpiresAt.Time
	}
	return c
}

// DecodeUnverified parses a token and extracts its claims WITHOUT
// verifying the signature. The returned claims must never be trusted for
// authorization decisions; this function exists for routing (which
// validator handles the token), revocation bookkeeping (finding the jti
// of a token being revoked), and diagnostics.
//
// Returns a *[fherr.Error] with code [fherr.CodeAuthenticationMalformed]
// if the token is empty, oversized, or not a structurally valid JWT.
func DecodeUnverified(tokenStr string) (*Claims, error) {
	if tokenStr == "" {
		return nil, fherr.New(fherr.CodeAuthenticationMalformed,
			"token: token must not be empty")
	}
	if len(tokenStr) > maxTokenSize {
		return nil, fherr.New(fherr.CodeAuthenticationMalformed,
			"token: token exceeds maximum size")
	}

	parser := jwt.NewParser()
	var wc wireClaims
	if _, _, err := parser.ParseUnverified(tokenStr, &wc); err != nil {
		return nil, fherr.Wrap(err, fherr.CodeAuthenticationMalformed,
			"token: token is malformed")
	}
	return wc.toClaims(), nil
}

// unverifiedHeader parses the token header without verification and
// returns the signing algorithm and key ID. Used for validator routing
// and the alg:none rejection.
func unverifiedHeader(tokenStr string) (alg, kid string, err error) {
	parser := jwt.NewParser()
	unverified, _, parseErr := parser.ParseUnverified(tokenStr, jwt.MapClaims{})
	if parseErr != nil || unverified == nil {
		return "", "", fherr.New(fherr.CodeAuthenticationMalformed,
			"token: token is malformed")
	}
	alg, _ = unverified.Header["alg"].(string)
	kid, _ = unverified.Header["kid"].(string)
	return alg, kid, nil
}

// Fingerprint returns the SHA-256 hash of the full token string as a
// lowercase hex string. Fingerprints are used as cache and revocation
// keys so that raw tokens never appear in Redis or telemetry; any change
// to the token, including signature bytes, produces a different
// fingerprint.
func Fingerprint(tokenStr string) string {
	h := sha256.Sum256([]byte(tokenStr))
	return hex.EncodeToString(h[:])
}

// rejectAlgNone returns an error when the token header declares the
// "none" algorithm. Unsigned tokens are never accepted regardless of
// which validator handles them.
func rejectAlgNone(alg string) error {
	if strings.EqualFold(alg, "none") {
		return fherr.New(fherr.CodeAuthenticationSignature,
			"token: algorithm 'none' is not permitted")
	}
	return nil
}
