package token

import (
	"context"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/focushive/focushive-core/internal/testutil/fixtures"
	fherr "github.com/focushive/focushive-core/pkg/errors"
)

// stubResolver is a KeyResolver test double that records lookups.
type stubResolver struct {
	keys  map[string]*rsa.PublicKey
	err   error
	calls int
}

func (s *stubResolver) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	key, ok := s.keys[kid]
	if !ok {
		return nil, fherr.Newf(fherr.CodeAuthenticationUnknownKey,
			"token: key ID %q not found in key set", kid)
	}
	return key, nil
}

// signRemoteToken mints an RS256 token carrying the given kid header,
// mimicking tokens issued by the identity provider.
func signRemoteToken(t *testing.T, kid, issuer string, expiresIn time.Duration) string {
	t.Helper()
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, wireClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   fixtures.TestSubject,
			ID:        "remote-jti-001",
			IssuedAt:  jwt.NewNumericDate(now.Add(-expiresIn)),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
		},
		UserID: fixtures.TestSubject,
		Email:  fixtures.TestEmail,
		Roles:  fixtures.TestAdminRoles,
	})
	if kid != "" {
		tok.Header["kid"] = kid
	}
	signed, err := tok.SignedString(testKey(t))
	require.NoError(t, err)
	return signed
}

func newTestRemoteValidator(t *testing.T, resolver KeyResolver) *RemoteValidator {
	t.Helper()
	v, err := NewRemoteValidator(RemoteValidatorConfig{
		Issuer:    fixtures.TestIssuer,
		ClockSkew: time.Second,
	}, resolver)
	require.NoError(t, err)
	return v
}

func TestNewRemoteValidator_RequiresResolver(t *testing.T) {
	t.Parallel()

	_, err := NewRemoteValidator(RemoteValidatorConfig{Issuer: fixtures.TestIssuer}, nil)
	require.Error(t, err)
	assert.Equal(t, fherr.CodeValidationRequired, fherr.GetCode(err))
}

func TestRemoteValidator_RoundTrip(t *testing.T) {
	t.Parallel()

	resolver := &stubResolver{keys: map[string]*rsa.PublicKey{
		fixtures.TestKeyID: &testKey(t).PublicKey,
	}}
	v := newTestRemoteValidator(t, resolver)

	tok := signRemoteToken(t, fixtures.TestKeyID, fixtures.TestIssuer, 10*time.Minute)
	result, err := v.Validate(context.Background(), tok)
	require.NoError(t, err)

	require.True(t, result.Valid, "provider token should validate, got reason %q", result.Reason)
	require.NotNil(t, result.Claims)
	assert.Equal(t, fixtures.TestSubject, result.Claims.UserID)
	assert.Equal(t, fixtures.TestEmail, result.Claims.Email)
	assert.Equal(t, fixtures.TestAdminRoles, result.Claims.Roles)
	assert.Equal(t, 1, resolver.calls)
}

func TestRemoteValidator_Expired(t *testing.T) {
	t.Parallel()

	resolver := &stubResolver{keys: map[string]*rsa.PublicKey{
		fixtures.TestKeyID: &testKey(t).PublicKey,
	}}
	v := newTestRemoteValidator(t, resolver)

	tok := signRemoteToken(t, fixtures.TestKeyID, fixtures.TestIssuer, -time.Hour)
	result, err := v.Validate(context.Background(), tok)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, ReasonExpired, result.Reason)
}

func TestRemoteValidator_UntrustedIssuer(t *testing.T) {
	t.Parallel()

	resolver := &stubResolver{keys: map[string]*rsa.PublicKey{
		fixtures.TestKeyID: &testKey(t).PublicKey,
	}}
	v := newTestRemoteValidator(t, resolver)

	tok := signRemoteToken(t, fixtures.TestKeyID, fixtures.TestUntrustedIssuer, 10*time.Minute)
	result, err := v.Validate(context.Background(), tok)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, ReasonUntrustedIssuer, result.Reason)
}

func TestRemoteValidator_MissingKid(t *testing.T) {
	t.Parallel()

	resolver := &stubResolver{}
	v := newTestRemoteValidator(t, resolver)

	tok := signRemoteToken(t, "", fixtures.TestIssuer, 10*time.Minute)
	result, err := v.Validate(context.Background(), tok)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, ReasonUnknownKeyID, result.Reason)
	assert.Zero(t, resolver.calls, "a token without kid must not hit the resolver")
}

func TestRemoteValidator_UnknownKid(t *testing.T) {
	t.Parallel()

	resolver := &stubResolver{keys: map[string]*rsa.PublicKey{}}
	v := newTestRemoteValidator(t, resolver)

	tok := signRemoteToken(t, "rotated-away-kid", fixtures.TestIssuer, 10*time.Minute)
	result, err := v.Validate(context.Background(), tok)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, ReasonUnknownKeyID, result.Reason)
}

func TestRemoteValidator_ResolverUnavailable(t *testing.T) {
	t.Parallel()

	resolver := &stubResolver{err: fherr.New(fherr.CodeUnavailableDependency,
		"token: JWKS fetch failed")}
	v := newTestRemoteValidator(t, resolver)

	tok := signRemoteToken(t, fixtures.TestKeyID, fixtures.TestIssuer, 10*time.Minute)
	result, err := v.Validate(context.Background(), tok)

	require.Error(t, err, "an unreachable key source is an infrastructure failure, not a token defect")
	assert.Equal(t, fherr.CodeUnavailableDependency, fherr.GetCode(err))
	assert.False(t, result.Valid)
}

func TestRemoteValidator_RejectsHMACSignedToken(t *testing.T) {
	t.Parallel()

	// A token HMAC-signed with a "key" derived from the RSA public key
	// must not verify: only RS256 is an accepted method.
	resolver := &stubResolver{keys: map[string]*rsa.PublicKey{
		fixtures.TestKeyID: &testKey(t).PublicKey,
	}}
	v := newTestRemoteValidator(t, resolver)

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": fixtures.TestSubject,
		"iss": fixtures.TestIssuer,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	tok.Header["kid"] = fixtures.TestKeyID
	signed, err := tok.SignedString([]byte("attacker-controlled"))
	require.NoError(t, err)

	result, err := v.Validate(context.Background(), signed)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, ReasonInvalidSignature, result.Reason)
}

func TestRemoteValidator_MalformedInputs(t *testing.T) {
	t.Parallel()

	v := newTestRemoteValidator(t, &stubResolver{})

	for _, tok := range []string{"", "garbage", "a.b"} {
		result, err := v.Validate(context.Background(), tok)
		require.NoError(t, err)
		assert.False(t, result.Valid)
		assert.Equal(t, ReasonMalformed, result.Reason)
	}
}
