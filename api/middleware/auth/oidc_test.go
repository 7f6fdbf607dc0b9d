package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const issuer = "https://idp.example.com"

func newKeys(t *testing.T) (jwk.Key, *httptest.Server) {
	t.Helper()
	raw, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	priv, err := jwk.FromRaw(raw)
	require.NoError(t, err)
	require.NoError(t, priv.Set(jwk.KeyIDKey, "test"))
	require.NoError(t, priv.Set(jwk.AlgorithmKey, jwa.RS256))
	pub, err := priv.PublicKey()
	require.NoError(t, err)
	set := jwk.NewSet()
	require.NoError(t, set.AddKey(pub))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(srv.Close)
	return priv, srv
}

func sign(t *testing.T, key jwk.Key, iss string, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewBuilder().Issuer(iss).Subject("svc").Expiration(exp).Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, key))
	require.NoError(t, err)
	return string(signed)
}

func TestMiddleware(t *testing.T) {
	key, jwks := newKeys(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	v, err := NewVerifier(ctx, jwks.URL, issuer, zaptest.NewLogger(t))
	require.NoError(t, err)

	h := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	call := func(header string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/assets", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusTeapot, call("Bearer "+sign(t, key, issuer, time.Now().Add(time.Hour))))
	assert.Equal(t, http.StatusUnauthorized, call(""))
	assert.Equal(t, http.StatusUnauthorized, call("Basic Zm9vOmJhcg=="))
	assert.Equal(t, http.StatusUnauthorized, call("Bearer "+sign(t, key, issuer, time.Now().Add(-time.Hour))))
	assert.Equal(t, http.StatusUnauthorized, call("Bearer "+sign(t, key, "https://other.example.com", time.Now().Add(time.Hour))))
	assert.Equal(t, http.StatusUnauthorized, call("Bearer not-a-jwt"))
}

func TestDiscoverJWKS(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/openid-configuration" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                 srv.URL,
			"authorization_endpoint": srv.URL + "/auth",
			"token_endpoint":         srv.URL + "/token",
			"jwks_uri":               srv.URL + "/certs",
		})
	}))
	t.Cleanup(srv.Close)

	got, err := DiscoverJWKS(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/certs", got)
}

func TestNewVerifierUnreachable(t *testing.T) {
	_, err := NewVerifier(context.Background(), "http://127.0.0.1:1/certs", "", nil)
	assert.Error(t, err)
}
