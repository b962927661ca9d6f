package token

import (
	"context"

	fherr "github.com/focushive/focushive-core/pkg/errors"
)

// Principal is the authenticated identity a service acts on behalf of
// after a token has been validated. It is the request-scoped counterpart
// of [Claims]: claims describe the token, the principal describes the
// user.
type Principal struct {
	// UserID is the stable identifier of the authenticated user.
	UserID string `json:"userId"`

	// Email is the user's email address.
	Email string `json:"email"`

	// Roles lists the user's role names for authorization decisions.
	Roles []string `json:"roles"`
}

// HasRole reports whether the principal holds the given role.
func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// PrincipalFromClaims builds the request principal from verified claims.
// Only call this with claims from a valid [Result]; unverified claims
// must never become a principal.
func PrincipalFromClaims(c *Claims) Principal {
	if c == nil {
		return Principal{}
	}
	return Principal{
		UserID: c.UserID,
		Email:  c.Email,
		Roles:  c.Roles,
	}
}

// contextKey is an unexported type for context keys defined in this
// package, preventing collisions with keys from other packages.
type contextKey int

// principalContextKey is the context key under which the request
// principal is stored.
const principalContextKey contextKey = iota

// ContextWithPrincipal returns a new context carrying the given
// principal. Middleware calls this after successful validation so
// downstream handlers can retrieve the identity with
// [PrincipalFromContext].
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// PrincipalFromContext retrieves the principal from the context. The
// second return value reports whether a principal was present.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(Principal)
	return p, ok
}

// MustPrincipalFromContext retrieves the principal from the context or
// returns an authentication error when none is present. Use it in
// handlers that run behind authentication middleware.
func MustPrincipalFromContext(ctx context.Context) (Principal, error) {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return Principal{}, fherr.New(fherr.CodeAuthentication,
			"token: no principal in context")
	}
	return p, nil
}
