package keys

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/opentdf/drmpolicy/pkg/media"
	"github.com/opentdf/drmpolicy/pkg/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newProvisioner(t *testing.T) (*Provisioner, *memory.Store) {
	store := memory.New("http://origin.example.com/")
	return &Provisioner{Store: store, Assets: store, Logger: zaptest.NewLogger(t)}, store
}

func TestCreateKey(t *testing.T) {
	p, store := newProvisioner(t)
	ctx := context.Background()

	a, err := p.CreateKey(ctx, media.CommonEncryption, "ContentKey CENC")
	require.NoError(t, err)
	b, err := p.CreateKey(ctx, media.CommonEncryption, "ContentKey CENC")
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Len(t, a.Key, 16)
	assert.False(t, bytes.Equal(a.Key, b.Key))
	_, err = media.UUIDFromKeyID(a.ID)
	assert.NoError(t, err)

	got, err := store.GetContentKey(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, media.CommonEncryption, got.Kind)
	assert.Empty(t, got.AuthorizationPolicyID)
}

func TestCreateKeyUsesGenerator(t *testing.T) {
	p, _ := newProvisioner(t)
	p.Generator = GeneratorFunc(func(n int) ([]byte, error) { return bytes.Repeat([]byte{7}, n), nil })
	k, err := p.CreateKey(context.Background(), media.CommonEncryptionCbcs, "ContentKey CENC cbcs")
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{7}, 16), k.Key)

	boom := errors.New("hsm offline")
	p.Generator = GeneratorFunc(func(int) ([]byte, error) { return nil, boom })
	_, err = p.CreateKey(context.Background(), media.CommonEncryption, "x")
	assert.ErrorIs(t, err, boom)
}

func TestCreateKeyWithPayloadRejectsEmpty(t *testing.T) {
	p, _ := newProvisioner(t)
	_, err := p.CreateKeyWithPayload(context.Background(), media.FairPlayPfxPassword, "pfx", nil)
	assert.ErrorIs(t, err, media.ErrConfiguration)
}

func TestAttachToAsset(t *testing.T) {
	p, store := newProvisioner(t)
	ctx := context.Background()
	asset, err := store.CreateAsset(ctx, media.Asset{Name: "movie"})
	require.NoError(t, err)
	k, err := p.CreateKey(ctx, media.CommonEncryption, "ContentKey CENC")
	require.NoError(t, err)

	require.NoError(t, p.AttachToAsset(ctx, asset.ID, k))
	got, err := store.GetAsset(ctx, asset.ID)
	require.NoError(t, err)
	require.Len(t, got.ContentKeys, 1)
	assert.Equal(t, k.ID, got.ContentKeys[0].ID)

	assert.ErrorIs(t, p.AttachToAsset(ctx, asset.ID, k), media.ErrConflict)
	assert.ErrorIs(t, p.AttachToAsset(ctx, "nb:cid:UUID:missing", k), media.ErrNotFound)
}

func TestSetAuthorizationPolicy(t *testing.T) {
	p, store := newProvisioner(t)
	ctx := context.Background()
	k, err := p.CreateKey(ctx, media.CommonEncryption, "ContentKey CENC")
	require.NoError(t, err)

	k, err = p.SetAuthorizationPolicy(ctx, k, "nb:ckpid:UUID:one")
	require.NoError(t, err)
	got, err := store.GetContentKey(ctx, k.ID)
	require.NoError(t, err)
	assert.Equal(t, "nb:ckpid:UUID:one", got.AuthorizationPolicyID)

	_, err = p.SetAuthorizationPolicy(ctx, k, "nb:ckpid:UUID:one")
	assert.NoError(t, err)
	_, err = p.SetAuthorizationPolicy(ctx, k, "nb:ckpid:UUID:two")
	assert.ErrorIs(t, err, media.ErrConflict)
}
