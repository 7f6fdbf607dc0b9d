package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opentdf/drmpolicy/internal/fixtures"
	"github.com/opentdf/drmpolicy/pkg/media"
	"github.com/opentdf/drmpolicy/pkg/policy"
	"github.com/opentdf/drmpolicy/pkg/token"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	c, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "memory", c.Store.Driver)
	assert.Equal(t, 30*time.Second, c.Store.Timeout)
	assert.Equal(t, policy.DefaultCommonName, c.Policy.Common)
	assert.Equal(t, policy.DefaultCommonCbcsName, c.Policy.CommonCbc)
	assert.Equal(t, "https://origin.example.com/", c.Streaming.Origin)
	assert.False(t, c.Token.Restricted)
	assert.True(t, c.Token.KidClaim)
	assert.Equal(t, "info", c.Log.Level)

	r, err := c.TokenRequirements()
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
store:
  driver: postgres
  url: postgres://localhost:5432/drm
streaming:
  origin: https://cdn.example.com/
token:
  restricted: true
  type: SWT
  issuer: http://sts.example.com/
  audience: urn:test
fairplay:
  ask: "00000000000000000000000000000000"
`), 0o600))
	key := fixtures.SymmetricKey(t)
	t.Setenv("DRMPOLICY_TOKEN_KEY", key)
	t.Setenv("DRMPOLICY_POLICY_COMMON", "from env")

	c, err := Load(viper.New(), file)
	require.NoError(t, err)
	assert.Equal(t, "postgres", c.Store.Driver)
	assert.Equal(t, "postgres://localhost:5432/drm", c.Store.URL)
	assert.Equal(t, "from env", c.Policy.Common)
	assert.Equal(t, "https://cdn.example.com/", c.Streaming.Origin)
	assert.Equal(t, fixtures.AllZeroASK, c.FairPlay.ASK)

	r, err := c.TokenRequirements()
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, token.SWT, r.Type)
	assert.Equal(t, key, r.VerificationKey)
	assert.True(t, r.RequireKeyIDClaim)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, media.ErrConfiguration)
}

func TestTokenRequirementsRejectsBadKey(t *testing.T) {
	c := Config{Token: TokenConfig{
		Restricted: true,
		Type:       "JWT",
		Issuer:     "http://sts.example.com/",
		Audience:   "urn:test",
		Key:        "***",
	}}
	_, err := c.TokenRequirements()
	assert.ErrorIs(t, err, media.ErrConfiguration)
}

func TestSaveRoundTrip(t *testing.T) {
	file := filepath.Join(t.TempDir(), "sub", "config")
	in := Config{
		Store:       StoreConfig{Driver: "http", Endpoint: "https://store.example.com"},
		KeyDelivery: KeyDeliveryConfig{BaseURL: "https://keys.example.com/"},
		Policy:      PolicyConfig{Common: "a", CommonCbc: "b"},
	}
	require.NoError(t, Save(in, file))

	out, err := Load(viper.New(), file)
	require.NoError(t, err)
	assert.Equal(t, "http", out.Store.Driver)
	assert.Equal(t, "https://store.example.com", out.Store.Endpoint)
	assert.Equal(t, "https://keys.example.com/", out.KeyDelivery.BaseURL)
	assert.Equal(t, "a", out.Policy.Common)
}

func TestFairPlayCertificate(t *testing.T) {
	_, err := Config{}.FairPlayCertificate()
	assert.ErrorIs(t, err, media.ErrConfiguration)

	file := filepath.Join(t.TempDir(), "app.pfx")
	pfx := fixtures.SelfSignedPFX(t, "fairplay", "pw")
	require.NoError(t, os.WriteFile(file, pfx, 0o600))
	got, err := Config{FairPlay: FairPlayConfig{CertFile: file}}.FairPlayCertificate()
	require.NoError(t, err)
	assert.Equal(t, pfx, got)
}
