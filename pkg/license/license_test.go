package license

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/goccy/go-json"
	"github.com/opentdf/drmpolicy/internal/fixtures"
	"github.com/opentdf/drmpolicy/pkg/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type minted struct {
	kind    media.KeyKind
	name    string
	payload []byte
}

type fakeMinter struct {
	keys []minted
	err  error
}

func (f *fakeMinter) CreateKeyWithPayload(_ context.Context, kind media.KeyKind, name string, payload []byte) (media.ContentKey, error) {
	if f.err != nil {
		return media.ContentKey{}, f.err
	}
	f.keys = append(f.keys, minted{kind, name, payload})
	return media.ContentKey{ID: media.NewID(media.KeyIDPrefix), Kind: kind, Name: name, Key: payload}, nil
}

func TestBuildPlayReadyTemplate(t *testing.T) {
	tmpl, err := BuildPlayReadyTemplate()
	require.NoError(t, err)
	assert.Contains(t, tmpl, "<PlayReadyLicenseResponseTemplate")
	assert.Contains(t, tmpl, `xmlns="`+playReadyNamespace+`"`)
	assert.Contains(t, tmpl, "<AllowTestDevices>false</AllowTestDevices>")
	assert.Contains(t, tmpl, `<ContentKey i:type="ContentEncryptionKeyFromHeader"></ContentKey>`)
	assert.Contains(t, tmpl, "<LicenseType>Nonpersistent</LicenseType>")
	assert.Contains(t, tmpl, "<PlayRight></PlayRight>")
	assert.NotContains(t, tmpl, "ResponseCustomData")
}

func TestBuildWidevineTemplate(t *testing.T) {
	tmpl, err := BuildWidevineTemplate()
	require.NoError(t, err)

	var m WidevineMessage
	require.NoError(t, json.Unmarshal([]byte(tmpl), &m))
	assert.Equal(t, "SD_HD", m.AllowedTrackTypes)
	require.Len(t, m.ContentKeySpecs, 1)
	assert.Equal(t, "SD", m.ContentKeySpecs[0].TrackType)
	assert.Nil(t, m.ContentKeySpecs[0].KeyID)
	assert.Equal(t, 1, m.ContentKeySpecs[0].SecurityLevel)
	assert.Equal(t, "HDCP_NONE", m.ContentKeySpecs[0].RequiredOutputProtection.HDCP)
	assert.True(t, m.PolicyOverrides.CanPlay)
	assert.True(t, m.PolicyOverrides.CanPersist)
	assert.False(t, m.PolicyOverrides.CanRenew)
	assert.NotContains(t, tmpl, "renewal_server_url")
}

func TestFairPlayBuild(t *testing.T) {
	pfx := fixtures.SelfSignedPFX(t, "fairplay test", "secret")
	keys := &fakeMinter{}
	b := FairPlayBuilder{Keys: keys, ASK: fixtures.AllZeroASK, Certificate: pfx, Password: "secret"}

	raw, cfg, err := b.Build(context.Background())
	require.NoError(t, err)

	require.Len(t, keys.keys, 2)
	assert.Equal(t, media.FairPlayAppSecret, keys.keys[0].kind)
	assert.Equal(t, "FairPlay AppSecret (ASK)", keys.keys[0].name)
	assert.Equal(t, make([]byte, 16), keys.keys[0].payload)
	assert.Equal(t, media.FairPlayPfxPassword, keys.keys[1].kind)
	assert.Equal(t, []byte("secret"), keys.keys[1].payload)

	parsed, err := ParseFairPlayConfiguration(raw)
	require.NoError(t, err)
	assert.Equal(t, cfg, parsed)
	assert.Len(t, cfg.IV(), 32)
	assert.Equal(t, base64.StdEncoding.EncodeToString(pfx), cfg.FairPlayPfx)
	assert.Contains(t, raw, `"ASkId"`)
	assert.Contains(t, raw, `"FairPlayPfxPasswordId"`)
}

func TestFairPlayBuildRejectsBadInput(t *testing.T) {
	pfx := fixtures.SelfSignedPFX(t, "fairplay test", "secret")
	tests := []struct {
		name string
		b    FairPlayBuilder
	}{
		{"short ask", FairPlayBuilder{ASK: fixtures.AllZeroASK[:30], Certificate: pfx, Password: "secret"}},
		{"non hex ask", FairPlayBuilder{ASK: "zz" + fixtures.AllZeroASK[2:], Certificate: pfx, Password: "secret"}},
		{"wrong password", FairPlayBuilder{ASK: fixtures.AllZeroASK, Certificate: pfx, Password: "nope"}},
		{"no certificate", FairPlayBuilder{ASK: fixtures.AllZeroASK, Password: "secret"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keys := &fakeMinter{}
			tt.b.Keys = keys
			_, _, err := tt.b.Build(context.Background())
			assert.ErrorIs(t, err, media.ErrConfiguration)
			assert.Empty(t, keys.keys)
		})
	}
}

func TestFairPlayBuildMinterFailure(t *testing.T) {
	boom := errors.New("store down")
	b := FairPlayBuilder{
		Keys:        &fakeMinter{err: boom},
		ASK:         fixtures.AllZeroASK,
		Certificate: fixtures.SelfSignedPFX(t, "fairplay test", "secret"),
		Password:    "secret",
	}
	_, _, err := b.Build(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestParseFairPlayConfigurationRejectsGarbage(t *testing.T) {
	_, err := ParseFairPlayConfiguration(`{"ASkId":"00000000-0000-0000-0000-000000000000"}`)
	assert.Error(t, err)
	_, err = ParseFairPlayConfiguration(`not json`)
	assert.Error(t, err)
}
