package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/opentdf/drmpolicy/internal/fixtures"
	"github.com/opentdf/drmpolicy/internal/mediaservice"
	"github.com/opentdf/drmpolicy/pkg/delivery"
	"github.com/opentdf/drmpolicy/pkg/keys"
	"github.com/opentdf/drmpolicy/pkg/license"
	"github.com/opentdf/drmpolicy/pkg/media"
	"github.com/opentdf/drmpolicy/pkg/policy"
	"github.com/opentdf/drmpolicy/pkg/store/memory"
	"github.com/opentdf/drmpolicy/pkg/store/storetest"
	"github.com/opentdf/drmpolicy/pkg/teardown"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const origin = "https://origin.example.com/"

func newService(t *testing.T, opts Options) (*mediaservice.Client, *memory.Store) {
	t.Helper()
	store := memory.New(origin)
	opts.Store = store
	opts.Logger = zaptest.NewLogger(t)
	srv := httptest.NewServer(NewRouter(opts))
	t.Cleanup(srv.Close)

	endpoint, err := url.Parse(srv.URL)
	require.NoError(t, err)
	client, err := mediaservice.NewClient(mediaservice.ClientOptions{HTTPClient: srv.Client(), Endpoint: endpoint})
	require.NoError(t, err)
	return client, store
}

func TestClientServerParity(t *testing.T) {
	client, _ := newService(t, Options{})
	storetest.Run(t, client, origin)
}

func TestHealthAndMetrics(t *testing.T) {
	client, _ := newService(t, Options{})
	_, err := client.ListAssets(context.Background())
	require.NoError(t, err)

	for path, want := range map[string]string{
		"/healthz": "ok",
		"/metrics": "drmpolicy_http_requests_total",
	} {
		resp, err := client.Get(client.Endpoint.String() + path)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Contains(t, string(body), want, path)
	}
}

func TestAuthGuardsAPI(t *testing.T) {
	deny := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "missing authorization header", http.StatusUnauthorized)
		})
	}
	client, _ := newService(t, Options{Auth: deny})
	_, err := client.ListContentKeys(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")

	resp, err := client.Get(client.Endpoint.String() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBadBodyIsConfigurationError(t *testing.T) {
	client, _ := newService(t, Options{})
	resp, err := client.Post(client.Endpoint.String()+"/api/assets", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// The provisioning flow works unchanged against the remote store.
func TestApplyPolicyOverHTTP(t *testing.T) {
	client, store := newService(t, Options{})
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	asset, err := store.CreateAsset(ctx, media.Asset{Name: "movie", Files: []media.AssetFile{{Name: "movie.ism"}}})
	require.NoError(t, err)

	p := &keys.Provisioner{Store: client, Assets: client, Logger: logger}
	composer := &policy.Composer{
		Store: client,
		FairPlay: license.FairPlayBuilder{
			Keys:        p,
			ASK:         fixtures.AllZeroASK,
			Certificate: fixtures.SelfSignedPFX(t, "fairplay", "secret"),
			Password:    "secret",
		},
		Names:  policy.Names{Common: policy.DefaultCommonName, CommonCbcs: policy.DefaultCommonCbcsName},
		Logger: logger,
	}
	resolver, err := delivery.NewURLResolver("https://keys.example.com/")
	require.NoError(t, err)
	td := &teardown.Coordinator{Store: client, Logger: logger}
	b := &delivery.Binder{
		Store:    client,
		Keys:     p,
		Policies: composer,
		Teardown: td,
		Resolver: resolver,
		Now:      time.Now,
		Logger:   logger,
	}

	res, err := b.ApplyPolicy(ctx, asset.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.HLSURL(), origin))

	got, err := store.GetAsset(ctx, asset.ID)
	require.NoError(t, err)
	assert.Len(t, got.ContentKeys, 2)
	assert.Len(t, got.DeliveryPolicies, 2)

	_, err = td.UnbindAssetPolicies(ctx, asset.ID)
	require.NoError(t, err)
	got, err = store.GetAsset(ctx, asset.ID)
	require.NoError(t, err)
	assert.Empty(t, got.ContentKeys)
	assert.Empty(t, got.DeliveryPolicies)
	assert.Empty(t, got.Locators)
}
