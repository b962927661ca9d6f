// Package fixtures provides shared test data constants and factory
// functions for the FocusHive Core test suite.
//
// Using common constants for test token identities prevents magic strings
// in tests and ensures consistency across packages.
package fixtures

// Standard identity values used in token tests.
const (
	// TestSubject is the default subject claim for test tokens.
	TestSubject = "user-abc-123"

	// TestEmail is the default email claim for test tokens.
	TestEmail = "alex@focushive.test"

	// TestIssuer is the default trusted issuer for test tokens.
	TestIssuer = "https://identity.focushive.test"

	// TestUntrustedIssuer is an issuer outside the trust anchor, used in
	// issuer-mismatch tests.
	TestUntrustedIssuer = "https://rogue.example.test"

	// TestKeyID is the default signing key ID for remote validation tests.
	TestKeyID = "key-2025-01"

	// TestAltSubject is an alternative subject for tests requiring two users.
	TestAltSubject = "user-def-456"
)

// Standard role sets used in token tests.
var (
	// TestRoles is the default role set for test tokens.
	TestRoles = []string{"user"}

	// TestAdminRoles is an elevated role set for authorization tests.
	TestAdminRoles = []string{"user", "admin"}
)

// Standard configuration values used in config loader tests.
const (
	// TestEnvPrefix is the default environment variable prefix for config tests.
	TestEnvPrefix = "TESTAPP"

	// TestConfigYAML is a minimal valid YAML configuration for tests.
	TestConfigYAML = `host: localhost
port: 8080
database: testdb
`

	// TestConfigJSON is a minimal valid JSON configuration for tests.
	TestConfigJSON = `{
  "host": "localhost",
  "port": 8080,
  "database": "testdb"
}`
)

// Standard Redis configuration values used in client tests.
const (
	// TestRedisHost is the default Redis host for test configurations.
	TestRedisHost = "localhost"

	// TestRedisPort is the default Redis port for test configurations.
	TestRedisPort = 6379

	// TestRedisPassword is the default Redis password for test
	// configurations. This is a deliberately weak value suitable only
	// for unit tests.
	TestRedisPassword = "testpass"
)
