package crypto

import (
	"testing"

	"github.com/opentdf/drmpolicy/internal/fixtures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeHexKey(t *testing.T) {
	key, err := DecodeHexKey("000102030405060708090a0b0c0d0e0f", 16)
	require.NoError(t, err)
	assert.Len(t, key, 16)
	assert.Equal(t, byte(0x0f), key[15])

	_, err = DecodeHexKey("000102030405060708090a0b0c0d0e", 16)
	assert.ErrorIs(t, err, ErrHexKeyLength)

	_, err = DecodeHexKey("zz0102030405060708090a0b0c0d0e0f", 16)
	assert.ErrorIs(t, err, ErrHexKeyEncoded)
}

func TestGenerateKey(t *testing.T) {
	a, err := GenerateKey(ContentKeyLength)
	require.NoError(t, err)
	b, err := GenerateKey(ContentKeyLength)
	require.NoError(t, err)
	assert.Len(t, a, ContentKeyLength)
	assert.NotEqual(t, a, b)

	iv, err := GenerateIV()
	require.NoError(t, err)
	assert.Len(t, iv, IVLength)
}

func TestLoadPKCS12(t *testing.T) {
	pfx := fixtures.SelfSignedPFX(t, "fairplay-test", "secret")

	loaded, err := LoadPKCS12(pfx, "secret")
	require.NoError(t, err)
	assert.Equal(t, "fairplay-test", loaded.Subject.CommonName)

	_, err = LoadPKCS12(pfx, "wrong")
	assert.ErrorIs(t, err, ErrCertificate)

	_, err = LoadPKCS12(nil, "secret")
	assert.ErrorIs(t, err, ErrCertificate)
}
