package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	t.Parallel()
	err := New(CodeValidation, "invalid input")

	assert.Equal(t, CodeValidation, err.Code)
	assert.Equal(t, "invalid input", err.Message)
	assert.Nil(t, err.Cause, "New().Cause should be nil")
	assert.Nil(t, err.Details, "New().Details should be nil")
}

func TestNewf(t *testing.T) {
	t.Parallel()
	err := Newf(CodeAuthenticationUnknownKey, "key %q not in trusted set after refresh", "key-42")

	assert.Equal(t, CodeAuthenticationUnknownKey, err.Code)
	want := `key "key-42" not in trusted set after refresh`
	assert.Equal(t, want, err.Message)
}

func TestNewf_NoArgs(t *testing.T) {
	t.Parallel()
	err := Newf(CodeInternal, "static message")

	assert.Equal(t, "static message", err.Message)
}

func TestWrap(t *testing.T) {
	t.Parallel()
	cause := errors.New("connection refused")
	err := Wrap(cause, CodeUnavailableDependency, "revocation store unreachable")

	assert.Equal(t, CodeUnavailableDependency, err.Code)
	assert.Equal(t, "revocation store unreachable", err.Message)
	assert.Equal(t, cause, err.Cause)
}

func TestWrap_NilError(t *testing.T) {
	t.Parallel()
	err := Wrap(nil, CodeInternal, "should not create error")

	assert.Nil(t, err, "Wrap(nil, ...) should return nil")
}

func TestWrap_PlatformError(t *testing.T) {
	t.Parallel()
	inner := New(CodeTimeout, "timeout")
	outer := Wrap(inner, CodeInternal, "operation failed")

	assert.Equal(t, inner, outer.Cause, "Wrap should preserve platform error as cause")
	assert.True(t, errors.Is(outer, inner))
}

func TestWrapf(t *testing.T) {
	t.Parallel()
	cause := errors.New("EOF")
	err := Wrapf(cause, CodeUnavailableDependency, "failed to fetch key set from %q", "https://idp.test/jwks")

	assert.Equal(t, `failed to fetch key set from "https://idp.test/jwks"`, err.Message)
	assert.Equal(t, cause, err.Cause)
}

func TestWrapf_NilError(t *testing.T) {
	t.Parallel()
	assert.Nil(t, Wrapf(nil, CodeInternal, "nope %d", 1))
}

func TestConvenienceConstructors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  *Error
		code Code
	}{
		{"Validation", Validation("bad"), CodeValidation},
		{"Validationf", Validationf("bad %d", 1), CodeValidation},
		{"Unauthorized", Unauthorized("no token"), CodeAuthentication},
		{"NotFound", NotFound("gone"), CodeNotFound},
		{"Internal", Internal("boom"), CodeInternal},
		{"Internalf", Internalf("boom %d", 2), CodeInternal},
		{"Unavailable", Unavailable("down"), CodeUnavailable},
		{"Timeout", Timeout("slow"), CodeTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.code, tt.err.Code)
			assert.NotEmpty(t, tt.err.Message)
		})
	}
}

func TestFromError_PlatformError(t *testing.T) {
	t.Parallel()
	original := New(CodeAuthenticationExpired, "expired")
	got := FromError(original)

	assert.Same(t, original, got, "FromError should return platform error as-is")
}

func TestFromError_StandardError(t *testing.T) {
	t.Parallel()
	cause := errors.New("plain failure")
	got := FromError(cause)

	assert.Equal(t, CodeInternal, got.Code)
	assert.Equal(t, cause, got.Cause)
}

func TestFromError_Nil(t *testing.T) {
	t.Parallel()
	assert.Nil(t, FromError(nil))
}
