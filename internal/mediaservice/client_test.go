package mediaservice

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/opentdf/drmpolicy/pkg/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(ClientOptions{})
	assert.ErrorIs(t, err, media.ErrConfiguration)

	rel, _ := url.Parse("/store")
	_, err = NewClient(ClientOptions{HTTPClient: http.DefaultClient, Endpoint: rel})
	assert.ErrorIs(t, err, media.ErrConfiguration)
}

func TestURLEscapesIDs(t *testing.T) {
	endpoint, _ := url.Parse("https://store.example.com/base/")
	c, err := NewClient(ClientOptions{HTTPClient: http.DefaultClient, Endpoint: endpoint})
	require.NoError(t, err)
	assert.Equal(t, "https://store.example.com/base/api/assets/nb:cid:UUID:1/contentkeys/a%2Fb",
		c.url("assets", "nb:cid:UUID:1", "contentkeys", "a/b"))
}

func TestStatusMapping(t *testing.T) {
	statuses := map[string]int{
		"/api/contentkeys/missing":  http.StatusNotFound,
		"/api/contentkeys/conflict": http.StatusConflict,
		"/api/contentkeys/bad":      http.StatusBadRequest,
		"/api/contentkeys/boom":     http.StatusInternalServerError,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statuses[r.URL.Path])
		_, _ = w.Write([]byte(`{"error":"from server"}`))
	}))
	t.Cleanup(srv.Close)
	endpoint, _ := url.Parse(srv.URL)
	c, err := NewClient(ClientOptions{HTTPClient: srv.Client(), Endpoint: endpoint})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = c.GetContentKey(ctx, "missing")
	assert.ErrorIs(t, err, media.ErrNotFound)
	assert.Contains(t, err.Error(), "from server")
	assert.ErrorIs(t, c.DeleteContentKey(ctx, "conflict"), media.ErrConflict)
	assert.ErrorIs(t, c.DeleteContentKey(ctx, "bad"), media.ErrConfiguration)

	err = c.DeleteContentKey(ctx, "boom")
	require.Error(t, err)
	for _, s := range []error{media.ErrNotFound, media.ErrConflict, media.ErrConfiguration} {
		assert.NotErrorIs(t, err, s)
	}
}
