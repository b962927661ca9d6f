package token

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	fherr "github.com/focushive/focushive-core/pkg/errors"
)

// HTTPClient abstracts the HTTP client used for JWKS fetches, allowing
// tests to inject fakes and applications to provide clients with custom
// transports or instrumentation.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DefaultJWKSRefreshInterval is how often the background refresher
// re-fetches the key set when started with [KeySet.Start].
const DefaultJWKSRefreshInterval = 5 * time.Minute

// DefaultJWKSMinFetchInterval is the minimum time between unknown-kid
// triggered fetches. Within this window a kid that is absent from the
// cached key set is reported as unknown without another network call, so
// a flood of tokens bearing a bogus kid cannot hammer the JWKS endpoint.
const DefaultJWKSMinFetchInterval = 30 * time.Second

// maxJWKSResponseSize limits JWKS response bodies to 1 MB to prevent
// resource exhaustion from a misbehaving endpoint.
const maxJWKSResponseSize = 1 << 20

// KeySetConfig holds the configuration for the remote JWKS key resolver.
type KeySetConfig struct {
	// JWKSURL is the endpoint serving the identity provider's JSON Web
	// Key Set, typically "<issuer>/.well-known/jwks.json".
	// Environment variable: TOKEN_JWKS_URL
	JWKSURL string `json:"jwks_url,omitempty" env:"TOKEN_JWKS_URL" required:"true"`

	// RefreshInterval is the period of the background refresher.
	// Default: 5m
	// Environment variable: TOKEN_JWKS_REFRESH_INTERVAL
	RefreshInterval time.Duration `json:"refresh_interval,omitempty" env:"TOKEN_JWKS_REFRESH_INTERVAL" envDefault:"5m"`

	// MinFetchInterval is the minimum time between unknown-kid triggered
	// fetches.
	// Default: 30s
	MinFetchInterval time.Duration `json:"min_fetch_interval,omitempty" env:"TOKEN_JWKS_MIN_FETCH_INTERVAL" envDefault:"30s"`

	// HTTPClient is used for JWKS fetches. If nil, a default client with
	// a 10-second timeout is used.
	HTTPClient HTTPClient `json:"-"`
}

// Validate checks the key set configuration and applies defaults.
func (c *KeySetConfig) Validate() *fherr.Error {
	if c.JWKSURL == "" {
		return fherr.New(fherr.CodeValidationRequired,
			"token: JWKS URL is required")
	}
	if c.RefreshInterval == 0 {
		c.RefreshInterval = DefaultJWKSRefreshInterval
	}
	if c.RefreshInterval < 0 {
		return fherr.New(fherr.CodeValidation,
			"token: JWKS refresh interval must not be negative")
	}
	if c.MinFetchInterval == 0 {
		c.MinFetchInterval = DefaultJWKSMinFetchInterval
	}
	return nil
}

// KeySet resolves RSA public keys by key ID from a remote JWKS endpoint.
//
// Resolution behavior:
//
//   - Fetched keys are cached in memory; a cache hit involves no I/O.
//   - Concurrent requests for a missing kid collapse into a single
//     upstream fetch via singleflight.
//   - An unknown kid triggers at most one re-fetch per
//     [KeySetConfig.MinFetchInterval] window, covering key rotation
//     without letting bogus kids drive request floods.
//   - When a fetch fails and a previously fetched key set exists, the
//     last known good set keeps serving lookups.
//   - [KeySet.Start] launches an optional background refresher so key
//     rotations propagate without waiting for an unknown kid.
//
// A KeySet is safe for concurrent use by multiple goroutines.
type KeySet struct {
	config KeySetConfig
	client HTTPClient
	tracer trace.Tracer
	group  singleflight.Group

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// Compile-time assertion that KeySet implements KeyResolver.
var _ KeyResolver = (*KeySet)(nil)

// NewKeySet creates a KeySet with the given configuration. The
// configuration is validated before use. No fetch happens until the first
// [KeySet.Key] call or [KeySet.Start].
func NewKeySet(cfg KeySetConfig) (*KeySet, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &KeySet{
		config: cfg,
		client: client,
		tracer: otel.Tracer(tracerName),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}, nil
}

// Key returns the RSA public key for the given key ID.
//
// Error codes returned:
//   - [fherr.CodeAuthenticationUnknownKey]: the kid is not in the key
//     set, even after a refresh
//   - [fherr.CodeUnavailableDependency]: the JWKS endpoint failed and no
//     previously fetched key set contains the kid
func (ks *KeySet) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	ctx, span := ks.tracer.Start(ctx, "token.ResolveKey")
	defer span.End()
	span.SetAttributes(attribute.String("token.kid", kid))

	if kid == "" {
		return nil, fherr.New(fherr.CodeAuthenticationUnknownKey,
			"token: token header missing kid")
	}

	ks.mu.RLock()
	key, ok := ks.keys[kid]
	fetchedAt := ks.fetchedAt
	ks.mu.RUnlock()
	if ok {
		return key, nil
	}

	// The kid is not cached. If the key set was fetched very recently,
	// another fetch will not help; report the kid as unknown.
	if !fetchedAt.IsZero() && time.Since(fetchedAt) < ks.config.MinFetchInterval {
		err := fherr.Newf(fherr.CodeAuthenticationUnknownKey,
			"token: key ID %q not found in key set", kid)
		recordSpanError(span, err)
		return nil, err
	}

	// Collapse concurrent refreshes into a single upstream fetch. Every
	// waiter observes the same outcome. The fetch is skipped when another
	// goroutine already refreshed the set after this one's cache miss.
	if _, err, _ := ks.group.Do("jwks", func() (any, error) {
		ks.mu.RLock()
		refreshed := ks.fetchedAt.After(fetchedAt)
		ks.mu.RUnlock()
		if refreshed {
			return nil, nil
		}
		return nil, ks.refresh(ctx)
	}); err != nil {
		// Fetch failed; fall back to the last known good key set.
		ks.mu.RLock()
		key, ok := ks.keys[kid]
		ks.mu.RUnlock()
		if ok {
			return key, nil
		}
		wrapped := fherr.Wrap(err, fherr.CodeUnavailableDependency,
			"token: JWKS fetch failed")
		recordSpanError(span, wrapped)
		return nil, wrapped
	}

	ks.mu.RLock()
	key, ok = ks.keys[kid]
	ks.mu.RUnlock()
	if !ok {
		err := fherr.Newf(fherr.CodeAuthenticationUnknownKey,
			"token: key ID %q not found in key set", kid)
		recordSpanError(span, err)
		return nil, err
	}
	return key, nil
}

// Start launches the background refresher, which re-fetches the key set
// every [KeySetConfig.RefreshInterval] until [KeySet.Stop] is called. A
// failed refresh keeps the previous key set in place.
//
// Start returns immediately; call it at most once.
func (ks *KeySet) Start(ctx context.Context) {
	go func() {
		defer close(ks.done)
		ticker := time.NewTicker(ks.config.RefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				// Refresh errors are intentionally dropped: the last
				// known good key set keeps serving lookups.
				_, _, _ = ks.group.Do("jwks", func() (any, error) {
					return nil, ks.refresh(ctx)
				})
			case <-ks.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop terminates the background refresher started by [KeySet.Start].
// Stop is safe to call multiple times and safe to call when Start was
// never called.
func (ks *KeySet) Stop() {
	ks.stopOnce.Do(func() { close(ks.stop) })
}

// refresh fetches the JWKS document and replaces the cached key set. On
// failure the cached set is left untouched.
func (ks *KeySet) refresh(ctx context.Context) error {
	keys, err := ks.fetchJWKS(ctx)
	if err != nil {
		return err
	}
	ks.mu.Lock()
	ks.keys = keys
	ks.fetchedAt = time.Now()
	ks.mu.Unlock()
	return nil
}

// jwksResponse represents the JSON structure of a JWKS endpoint response.
type jwksResponse struct {
	Keys []jwkKey `json:"keys"`
}

// jwkKey represents a single key in a JWKS response. Only the fields
// needed for RSA key reconstruction are included.
type jwkKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// fetchJWKS makes an HTTP GET request to the JWKS URL, parses the
// response, and constructs a map of key ID to RSA public key. Keys of
// other types and malformed keys are skipped.
func (ks *KeySet) fetchJWKS(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ks.config.JWKSURL, nil)
	if err != nil {
		return nil, fmt.Errorf("token: failed to create JWKS request: %w", err)
	}

	resp, err := ks.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token: JWKS request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token: JWKS endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSResponseSize))
	if err != nil {
		return nil, fmt.Errorf("token: failed to read JWKS response: %w", err)
	}

	var jwks jwksResponse
	if err := json.Unmarshal(body, &jwks); err != nil {
		return nil, fmt.Errorf("token: failed to parse JWKS JSON: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(jwks.Keys))
	for _, k := range jwks.Keys {
		if k.Kid == "" || k.Kty != "RSA" {
			continue
		}
		pubKey, err := parseRSAPublicKey(k.N, k.E)
		if err != nil {
			continue // Skip malformed keys.
		}
		keys[k.Kid] = pubKey
	}
	return keys, nil
}

// parseRSAPublicKey constructs an *rsa.PublicKey from base64url-encoded
// modulus (n) and exponent (e) values.
func parseRSAPublicKey(nBase64, eBase64 string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nBase64)
	if err != nil {
		return nil, fmt.Errorf("token: failed to decode RSA modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eBase64)
	if err != nil {
		return nil, fmt.Errorf("token: failed to decode RSA exponent: %w", err)
	}

	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes)

	return &rsa.PublicKey{
		N: n,
		E: int(e.Int64()),
	}, nil
}
