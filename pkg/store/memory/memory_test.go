package memory

import (
	"context"
	"testing"

	"github.com/opentdf/drmpolicy/pkg/media"
	"github.com/opentdf/drmpolicy/pkg/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	storetest.Run(t, New("https://origin.example.com"), "https://origin.example.com/")
}

func TestListingKeepsInsertionOrder(t *testing.T) {
	s := New("https://origin.example.com/")
	ctx := context.Background()
	var want []string
	for _, name := range []string{"c", "a", "b", "d"} {
		k, err := s.CreateContentKey(ctx, media.ContentKey{Name: name, Key: []byte("k"), Kind: media.CommonEncryption})
		require.NoError(t, err)
		want = append(want, k.ID)
	}
	keys, err := s.ListContentKeys(ctx)
	require.NoError(t, err)
	var got []string
	for _, k := range keys {
		got = append(got, k.ID)
	}
	assert.Equal(t, want, got)
}

func TestDeleteKeyDetachesFromAssets(t *testing.T) {
	s := New("https://origin.example.com/")
	ctx := context.Background()
	a, err := s.CreateAsset(ctx, media.Asset{Name: "a"})
	require.NoError(t, err)
	k, err := s.CreateContentKey(ctx, media.ContentKey{Key: []byte("k"), Kind: media.CommonEncryption})
	require.NoError(t, err)
	require.NoError(t, s.AddAssetContentKey(ctx, a.ID, k.ID))
	require.NoError(t, s.DeleteContentKey(ctx, k.ID))

	got, err := s.GetAsset(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, got.ContentKeys)
}
