// Package errors provides standardized error types and error handling
// utilities for FocusHive services. It defines the platform error
// categories, stable machine-readable codes, and helpers for creating,
// wrapping, and inspecting errors across the token-trust layer and the
// services built on top of it.
//
// # Error Categories
//
// The package defines error categories that map to common failure
// scenarios:
//
//   - Validation errors: Invalid input, missing required fields
//   - Authentication errors: Malformed, expired, forged, or revoked tokens
//   - Authorization errors: Insufficient permissions
//   - NotFound errors: Resource does not exist
//   - Internal errors: Unexpected system failures
//   - Unavailable errors: Backing store or dependency unreachable
//   - Timeout errors: Operation exceeded its time limit
//
// # Error Codes
//
// Each error carries a machine-readable code (e.g., "AUTH_002") for
// tracking, alerting, and client-side handling. Codes follow the
// pattern CATEGORY_NNN and never change once assigned.
//
// # Usage
//
// Create a new error:
//
//	err := errors.New(errors.CodeAuthenticationExpired, "token has expired")
//
// Wrap an existing error:
//
//	err := errors.Wrap(err, errors.CodeUnavailableDependency, "revocation store unreachable")
//
// Check error category:
//
//	if errors.IsUnavailable(err) {
//	    // treat the token as invalid, do not trust it
//	}
//
// Extract structured fields for logging:
//
//	if e, ok := errors.AsError(err); ok {
//	    logger.Error("validation failed", "code", e.Code, "message", e.Message)
//	}
package errors
