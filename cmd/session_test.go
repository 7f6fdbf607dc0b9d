package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opentdf/drmpolicy/internal/config"
	"github.com/opentdf/drmpolicy/internal/fixtures"
	"github.com/opentdf/drmpolicy/pkg/drm"
	"github.com/opentdf/drmpolicy/pkg/media"
	"github.com/opentdf/drmpolicy/pkg/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	s, closeStore, err := openStore(ctx, config.Config{Store: config.StoreConfig{Driver: "memory"}}, logger)
	require.NoError(t, err)
	defer closeStore()
	assert.IsType(t, &memory.Store{}, s)

	_, _, err = openStore(ctx, config.Config{Store: config.StoreConfig{Driver: "mongo"}}, logger)
	assert.ErrorIs(t, err, media.ErrConfiguration)

	_, _, err = openStore(ctx, config.Config{Store: config.StoreConfig{Driver: "postgres"}}, logger)
	assert.ErrorIs(t, err, media.ErrConfiguration)

	_, _, err = openStore(ctx, config.Config{Store: config.StoreConfig{Driver: "http", Endpoint: "store.example.com"}}, logger)
	assert.ErrorIs(t, err, media.ErrConfiguration)
}

func TestSessionUsesStreamingOrigin(t *testing.T) {
	out := &bytes.Buffer{}
	certFile := filepath.Join(t.TempDir(), "fairplay.pfx")
	require.NoError(t, os.WriteFile(certFile, fixtures.SelfSignedPFX(t, "fairplay", "secret"), 0o600))
	c := config.Config{
		FairPlay:    config.FairPlayConfig{ASK: fixtures.AllZeroASK, CertFile: certFile, CertPassword: "secret"},
		Store:       config.StoreConfig{Driver: "memory"},
		Streaming:   config.StreamingConfig{Origin: "https://cdn.example.com/"},
		KeyDelivery: config.KeyDeliveryConfig{BaseURL: "https://keys.example.com/"},
		Policy:      config.PolicyConfig{Common: "a", CommonCbc: "b"},
	}
	s, err := newSession(context.Background(), c, out, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer s.Close()

	results, err := s.engine.Run(context.Background(), drm.ListAll, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Contains(t, out.String(), "ContentKey List:")

	asset, err := s.store.CreateAsset(context.Background(), media.Asset{Name: "movie", Files: []media.AssetFile{{Name: "movie.ism"}}})
	require.NoError(t, err)
	res, err := s.engine.Binder.ApplyPolicy(context.Background(), asset.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.SmoothStreamingURL(), "https://cdn.example.com/"), res.SmoothStreamingURL())
}

func TestBatchError(t *testing.T) {
	assert.NoError(t, batchError(0, 3))
	assert.EqualError(t, batchError(1, 3), "1 of 3 item(s) failed")
}
