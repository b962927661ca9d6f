package token

// Secret is a string type that prevents accidental logging of sensitive
// values such as HMAC signing keys. Its String and GoString methods return
// a redacted placeholder; use [Secret.Value] to retrieve the actual value.
//
// Security: this type provides defense-in-depth against credential leakage
// in log output, error messages, and serialized configuration. It does NOT
// provide encryption at rest.
type Secret string

// secretRedacted is the placeholder string returned by Secret's string
// conversion methods.
const secretRedacted = "[REDACTED]"

// String returns "[REDACTED]" to prevent accidental logging of the secret.
func (s Secret) String() string { return secretRedacted }

// GoString returns "[REDACTED]" for fmt.Sprintf("%#v", secret) safety.
func (s Secret) GoString() string { return secretRedacted }

// Value returns the actual secret string. Handle with care; avoid logging
// or serializing the returned value.
func (s Secret) Value() string { return string(s) }

// MarshalText implements encoding.TextMarshaler, returning "[REDACTED]"
// so the secret never appears in JSON or YAML output.
func (s Secret) MarshalText() ([]byte, error) { return []byte(secretRedacted), nil }
