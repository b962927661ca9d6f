package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Error(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "error without cause",
			err: &Error{
				Code:    CodeValidation,
				Message: "signing key too short",
			},
			want: "VAL_001: signing key too short",
		},
		{
			name: "error with cause",
			err: &Error{
				Code:    CodeInternalDatabase,
				Message: "failed to check revocation",
				Cause:   errors.New("connection refused"),
			},
			want: "INT_002: failed to check revocation: connection refused",
		},
		{
			name: "error with empty message",
			err: &Error{
				Code:    CodeInternal,
				Message: "",
			},
			want: "INT_001: ",
		},
		{
			name: "error with nested platform error cause",
			err: &Error{
				Code:    CodeInternal,
				Message: "operation failed",
				Cause: &Error{
					Code:    CodeTimeout,
					Message: "store timeout",
				},
			},
			want: "INT_001: operation failed: TIMEOUT_001: store timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	t.Parallel()
	cause := errors.New("underlying failure")
	err := Wrap(cause, CodeInternal, "wrapped")

	assert.Equal(t, cause, err.Unwrap())
	assert.True(t, errors.Is(err, cause), "errors.Is should find the cause")
}

func TestError_Unwrap_NoCause(t *testing.T) {
	t.Parallel()
	err := New(CodeValidation, "no cause")
	assert.Nil(t, err.Unwrap())
}

func TestError_HTTPStatus(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		code Code
		want int
	}{
		{"validation maps to 400", CodeValidation, http.StatusBadRequest},
		{"authentication maps to 401", CodeAuthentication, http.StatusUnauthorized},
		{"expired token maps to 401", CodeAuthenticationExpired, http.StatusUnauthorized},
		{"revoked token maps to 401", CodeAuthenticationRevoked, http.StatusUnauthorized},
		{"authorization maps to 403", CodeAuthorization, http.StatusForbidden},
		{"not found maps to 404", CodeNotFound, http.StatusNotFound},
		{"internal maps to 500", CodeInternal, http.StatusInternalServerError},
		{"unavailable maps to 503", CodeUnavailableDependency, http.StatusServiceUnavailable},
		{"timeout maps to 504", CodeTimeoutDatabase, http.StatusGatewayTimeout},
		{"unknown category maps to 500", Code("WEIRD_001"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := New(tt.code, "test")
			assert.Equal(t, tt.want, err.HTTPStatus())
		})
	}
}

func TestError_WithDetails(t *testing.T) {
	t.Parallel()
	original := New(CodeAuthenticationUnknownKey, "key not found")
	withDetails := original.WithDetails(map[string]any{
		"kid": "key-2024-01",
		"url": "https://identity.focushive.app/.well-known/jwks.json",
	})

	// Original is not modified.
	assert.Nil(t, original.Details)

	require.NotNil(t, withDetails.Details)
	assert.Equal(t, "key-2024-01", withDetails.Details["kid"])
	assert.Equal(t, original.Code, withDetails.Code)
	assert.Equal(t, original.Message, withDetails.Message)
}

func TestError_WithDetails_Merge(t *testing.T) {
	t.Parallel()
	err := New(CodeInternal, "test").
		WithDetail("a", 1).
		WithDetails(map[string]any{"b": 2, "a": 3})

	assert.Equal(t, 3, err.Details["a"], "later details should win")
	assert.Equal(t, 2, err.Details["b"])
}

func TestError_WithDetail(t *testing.T) {
	t.Parallel()
	original := New(CodeAuthenticationRevoked, "revoked")
	withDetail := original.WithDetail("jti", "token-123")

	assert.Nil(t, original.Details)
	assert.Equal(t, "token-123", withDetail.Details["jti"])
}

func TestError_Format(t *testing.T) {
	t.Parallel()
	err := Wrap(errors.New("root cause"), CodeUnavailableDependency, "store down").
		WithDetail("key", "revoked:token:abc")

	plain := fmt.Sprintf("%v", err)
	assert.Equal(t, "UNAVAIL_002: store down: root cause", plain)

	detailed := fmt.Sprintf("%+v", err)
	assert.Contains(t, detailed, `Code: "UNAVAIL_002"`)
	assert.Contains(t, detailed, "root cause")
	assert.Contains(t, detailed, "revoked:token:abc")

	quoted := fmt.Sprintf("%q", err)
	assert.Equal(t, `"UNAVAIL_002: store down: root cause"`, quoted)
}
