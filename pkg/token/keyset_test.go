package token

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/focushive/focushive-core/internal/testutil/fixtures"
	fherr "github.com/focushive/focushive-core/pkg/errors"
)

// testRSAKey is generated once per test binary; 2048-bit generation is
// too slow to repeat in every test.
var (
	testRSAKeyOnce sync.Once
	testRSAKey     *rsa.PrivateKey
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	testRSAKeyOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testRSAKey = key
	})
	return testRSAKey
}

// jwksDocument builds a JWKS JSON document exposing the given public keys
// under their key IDs.
func jwksDocument(t *testing.T, keys map[string]*rsa.PublicKey) []byte {
	t.Helper()
	doc := jwksResponse{}
	for kid, pub := range keys {
		doc.Keys = append(doc.Keys, jwkKey{
			Kty: "RSA",
			Kid: kid,
			Alg: "RS256",
			Use: "sig",
			N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		})
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	return data
}

// jwksServer serves a mutable JWKS document and counts fetches.
type jwksServer struct {
	srv     *httptest.Server
	fetches atomic.Int64
	fail    atomic.Bool

	mu  sync.Mutex
	doc []byte
}

func newJWKSServer(t *testing.T, keys map[string]*rsa.PublicKey) *jwksServer {
	t.Helper()
	s := &jwksServer{doc: jwksDocument(t, keys)}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.fetches.Add(1)
		if s.fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		s.mu.Lock()
		doc := s.doc
		s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(doc)
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *jwksServer) setKeys(t *testing.T, keys map[string]*rsa.PublicKey) {
	t.Helper()
	doc := jwksDocument(t, keys)
	s.mu.Lock()
	s.doc = doc
	s.mu.Unlock()
}

func newTestKeySet(t *testing.T, s *jwksServer, minFetch time.Duration) *KeySet {
	t.Helper()
	ks, err := NewKeySet(KeySetConfig{
		JWKSURL:          s.srv.URL,
		MinFetchInterval: minFetch,
	})
	require.NoError(t, err)
	return ks
}

// ===========================================================================
// Tests
// ===========================================================================

func TestKeySetConfig_Validate(t *testing.T) {
	t.Parallel()

	cfg := KeySetConfig{}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, fherr.CodeValidationRequired, err.Code)

	cfg = KeySetConfig{JWKSURL: "https://identity.focushive.test/.well-known/jwks.json"}
	require.Nil(t, cfg.Validate())
	assert.Equal(t, DefaultJWKSRefreshInterval, cfg.RefreshInterval)
	assert.Equal(t, DefaultJWKSMinFetchInterval, cfg.MinFetchInterval)
}

func TestKeySet_ResolvesKey(t *testing.T) {
	t.Parallel()

	pub := &testKey(t).PublicKey
	srv := newJWKSServer(t, map[string]*rsa.PublicKey{fixtures.TestKeyID: pub})
	ks := newTestKeySet(t, srv, time.Minute)

	key, err := ks.Key(context.Background(), fixtures.TestKeyID)
	require.NoError(t, err)
	assert.Equal(t, pub.N, key.N)
	assert.Equal(t, pub.E, key.E)
	assert.Equal(t, int64(1), srv.fetches.Load())

	// Second resolution is served from the cache.
	_, err = ks.Key(context.Background(), fixtures.TestKeyID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), srv.fetches.Load(), "cache hit must not refetch")
}

func TestKeySet_SingleFetchForConcurrentLookups(t *testing.T) {
	t.Parallel()

	pub := &testKey(t).PublicKey
	srv := newJWKSServer(t, map[string]*rsa.PublicKey{fixtures.TestKeyID: pub})
	ks := newTestKeySet(t, srv, time.Minute)

	const goroutines = 25
	var wg sync.WaitGroup
	errs := make(chan error, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ks.Key(context.Background(), fixtures.TestKeyID); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent key lookup failed: %v", err)
	}

	assert.Equal(t, int64(1), srv.fetches.Load(),
		"concurrent lookups for the same unknown kid must collapse into one fetch")
}

func TestKeySet_UnknownKidAfterRefresh(t *testing.T) {
	t.Parallel()

	pub := &testKey(t).PublicKey
	srv := newJWKSServer(t, map[string]*rsa.PublicKey{fixtures.TestKeyID: pub})
	ks := newTestKeySet(t, srv, time.Minute)

	_, err := ks.Key(context.Background(), "no-such-kid")
	require.Error(t, err)
	assert.Equal(t, fherr.CodeAuthenticationUnknownKey, fherr.GetCode(err))
	assert.Equal(t, int64(1), srv.fetches.Load())
}

func TestKeySet_UnknownKidThrottledWithinMinFetchInterval(t *testing.T) {
	t.Parallel()

	pub := &testKey(t).PublicKey
	srv := newJWKSServer(t, map[string]*rsa.PublicKey{fixtures.TestKeyID: pub})
	ks := newTestKeySet(t, srv, time.Minute)

	// Prime the cache.
	_, err := ks.Key(context.Background(), fixtures.TestKeyID)
	require.NoError(t, err)

	// A flood of bogus kids inside the min fetch window must not reach
	// the endpoint again.
	for i := 0; i < 10; i++ {
		_, err := ks.Key(context.Background(), "bogus-kid")
		require.Error(t, err)
		assert.Equal(t, fherr.CodeAuthenticationUnknownKey, fherr.GetCode(err))
	}
	assert.Equal(t, int64(1), srv.fetches.Load(),
		"unknown kids inside the throttle window must not trigger fetches")
}

func TestKeySet_KeyRotation(t *testing.T) {
	t.Parallel()

	pub := &testKey(t).PublicKey
	srv := newJWKSServer(t, map[string]*rsa.PublicKey{fixtures.TestKeyID: pub})
	// Zero throttle window so the rotated kid triggers an immediate refetch.
	ks := newTestKeySet(t, srv, time.Nanosecond)

	_, err := ks.Key(context.Background(), fixtures.TestKeyID)
	require.NoError(t, err)

	// Rotate: new kid replaces the old one upstream.
	srv.setKeys(t, map[string]*rsa.PublicKey{"key-2025-02": pub})

	key, err := ks.Key(context.Background(), "key-2025-02")
	require.NoError(t, err)
	assert.Equal(t, pub.N, key.N)
	assert.Equal(t, int64(2), srv.fetches.Load())
}

func TestKeySet_LastKnownGoodOnFetchFailure(t *testing.T) {
	t.Parallel()

	pub := &testKey(t).PublicKey
	srv := newJWKSServer(t, map[string]*rsa.PublicKey{fixtures.TestKeyID: pub})
	ks := newTestKeySet(t, srv, time.Nanosecond)

	_, err := ks.Key(context.Background(), fixtures.TestKeyID)
	require.NoError(t, err)

	// Endpoint goes down; the cached key keeps serving.
	srv.fail.Store(true)

	key, err := ks.Key(context.Background(), fixtures.TestKeyID)
	require.NoError(t, err, "cached key must survive endpoint failure")
	assert.Equal(t, pub.N, key.N)
}

func TestKeySet_FetchFailureWithoutCachedKeys(t *testing.T) {
	t.Parallel()

	srv := newJWKSServer(t, map[string]*rsa.PublicKey{})
	srv.fail.Store(true)
	ks := newTestKeySet(t, srv, time.Minute)

	_, err := ks.Key(context.Background(), fixtures.TestKeyID)
	require.Error(t, err)
	assert.Equal(t, fherr.CodeUnavailableDependency, fherr.GetCode(err))
}

func TestKeySet_MissingKid(t *testing.T) {
	t.Parallel()

	srv := newJWKSServer(t, map[string]*rsa.PublicKey{})
	ks := newTestKeySet(t, srv, time.Minute)

	_, err := ks.Key(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, fherr.CodeAuthenticationUnknownKey, fherr.GetCode(err))
	assert.Zero(t, srv.fetches.Load(), "an empty kid must not trigger a fetch")
}

func TestKeySet_BackgroundRefresh(t *testing.T) {
	t.Parallel()

	pub := &testKey(t).PublicKey
	srv := newJWKSServer(t, map[string]*rsa.PublicKey{fixtures.TestKeyID: pub})

	ks, err := NewKeySet(KeySetConfig{
		JWKSURL:         srv.srv.URL,
		RefreshInterval: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	ks.Start(context.Background())
	defer ks.Stop()

	require.Eventually(t, func() bool {
		return srv.fetches.Load() >= 2
	}, 2*time.Second, 10*time.Millisecond, "background refresher should fetch periodically")

	// After the refresher has populated the cache, lookups need no fetch.
	fetched := srv.fetches.Load()
	_, err = ks.Key(context.Background(), fixtures.TestKeyID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, srv.fetches.Load(), fetched)
}

func TestKeySet_StopIsIdempotent(t *testing.T) {
	t.Parallel()

	srv := newJWKSServer(t, map[string]*rsa.PublicKey{})
	ks := newTestKeySet(t, srv, time.Minute)

	ks.Stop()
	ks.Stop() // must not panic
}

func TestParseRSAPublicKey(t *testing.T) {
	t.Parallel()

	pub := &testKey(t).PublicKey
	n := base64.RawURLEncoding.EncodeToString(pub.N.Bytes())
	e := base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes())

	parsed, err := parseRSAPublicKey(n, e)
	require.NoError(t, err)
	assert.Equal(t, pub.N, parsed.N)
	assert.Equal(t, pub.E, parsed.E)

	_, err = parseRSAPublicKey("!not-base64!", e)
	assert.Error(t, err)
	_, err = parseRSAPublicKey(n, "!not-base64!")
	assert.Error(t, err)
}
