package errors

import (
	"errors"
	"testing"
)

func TestAsError_PlatformError(t *testing.T) {
	platformErr := New(CodeValidation, "test")

	got, ok := AsError(platformErr)
	if !ok {
		t.Error("AsError should return true for platform error")
	}
	if got != platformErr {
		t.Error("AsError should return the same platform error")
	}
}

func TestAsError_WrappedPlatformError(t *testing.T) {
	platformErr := New(CodeValidation, "test")
	wrapped := Wrap(platformErr, CodeInternal, "wrapper")

	got, ok := AsError(wrapped)
	if !ok {
		t.Error("AsError should return true for wrapped platform error")
	}
	if got.Code != CodeInternal {
		t.Errorf("AsError should return outer error, got code %v", got.Code)
	}
}

func TestAsError_StandardError(t *testing.T) {
	stdErr := errors.New("standard error")

	got, ok := AsError(stdErr)
	if ok {
		t.Error("AsError should return false for standard error")
	}
	if got != nil {
		t.Error("AsError should return nil for standard error")
	}
}

func TestAsError_Nil(t *testing.T) {
	got, ok := AsError(nil)
	if ok {
		t.Error("AsError should return false for nil")
	}
	if got != nil {
		t.Error("AsError should return nil for nil input")
	}
}

func TestAsError_DeepChain(t *testing.T) {
	platformErr := New(CodeTimeout, "timeout")
	joined := errors.Join(errors.New("outer"), platformErr)

	got, ok := AsError(joined)
	if !ok {
		t.Error("AsError should find platform error in joined chain")
	}
	if got.Code != CodeTimeout {
		t.Errorf("AsError found wrong error, got code %v", got.Code)
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"platform error", New(CodeAuthenticationRevoked, "revoked"), CodeAuthenticationRevoked},
		{"wrapped platform error", Wrap(New(CodeTimeout, "t"), CodeUnavailable, "u"), CodeUnavailable},
		{"standard error", errors.New("std"), Code("")},
		{"nil error", nil, Code("")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.want {
				t.Errorf("GetCode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHasCode(t *testing.T) {
	err := New(CodeAuthenticationExpired, "expired")

	if !HasCode(err, CodeAuthenticationExpired) {
		t.Error("HasCode should match the error's code")
	}
	if HasCode(err, CodeAuthentication) {
		t.Error("HasCode should not match a different code")
	}
	if HasCode(nil, CodeAuthentication) {
		t.Error("HasCode should return false for nil")
	}
}

func TestCategoryChecks(t *testing.T) {
	tests := []struct {
		name  string
		check func(error) bool
		err   error
		want  bool
	}{
		{"IsValidation true", IsValidation, New(CodeValidationRequired, "x"), true},
		{"IsValidation false", IsValidation, New(CodeInternal, "x"), false},
		{"IsAuthentication true for expired", IsAuthentication, New(CodeAuthenticationExpired, "x"), true},
		{"IsAuthentication true for revoked", IsAuthentication, New(CodeAuthenticationRevoked, "x"), true},
		{"IsAuthentication false", IsAuthentication, New(CodeAuthorization, "x"), false},
		{"IsAuthorization true", IsAuthorization, New(CodeAuthorization, "x"), true},
		{"IsAuthorization not confused by AUTH prefix", IsAuthorization, New(CodeAuthentication, "x"), false},
		{"IsNotFound true", IsNotFound, New(CodeNotFound, "x"), true},
		{"IsInternal true", IsInternal, New(CodeInternalDatabase, "x"), true},
		{"IsUnavailable true", IsUnavailable, New(CodeUnavailableDependency, "x"), true},
		{"IsTimeout true", IsTimeout, New(CodeTimeoutDatabase, "x"), true},
		{"IsTimeout false for standard error", IsTimeout, errors.New("timeout"), false},
		{"nil error", IsValidation, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.check(tt.err); got != tt.want {
				t.Errorf("check = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"timeout is retryable", New(CodeTimeoutDependency, "x"), true},
		{"unavailable is retryable", New(CodeUnavailableDependency, "x"), true},
		{"internal is not retryable", New(CodeInternal, "x"), false},
		{"authentication is not retryable", New(CodeAuthenticationSignature, "x"), false},
		{"standard error is not retryable", errors.New("x"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClientServerSplit(t *testing.T) {
	clientErr := New(CodeAuthenticationMalformed, "bad token")
	serverErr := New(CodeUnavailableDependency, "store down")

	if !IsClientError(clientErr) || IsServerError(clientErr) {
		t.Error("AUTH errors should be client errors only")
	}
	if !IsServerError(serverErr) || IsClientError(serverErr) {
		t.Error("UNAVAIL errors should be server errors only")
	}
	if IsClientError(nil) || IsServerError(nil) {
		t.Error("nil should be neither client nor server error")
	}
}
