// Package storetest checks that a media.Store behaves the way the
// provisioning components expect.
package storetest

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/opentdf/drmpolicy/pkg/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises s. Origin is the prefix the store puts in front of locator
// paths.
func Run(t *testing.T, s media.Store, origin string) {
	t.Run("ContentKeys", func(t *testing.T) { contentKeys(t, s) })
	t.Run("Policies", func(t *testing.T) { policies(t, s) })
	t.Run("Assets", func(t *testing.T) { assets(t, s, origin) })
	t.Run("DeliveryPolicies", func(t *testing.T) { deliveryPolicies(t, s) })
}

func contentKeys(t *testing.T, s media.Store) {
	ctx := context.Background()
	raw := []byte("0123456789abcdef")
	k, err := s.CreateContentKey(ctx, media.ContentKey{
		ID:   media.NewID(media.KeyIDPrefix),
		Key:  raw,
		Name: "cenc",
		Kind: media.CommonEncryption,
	})
	require.NoError(t, err)
	assert.False(t, k.Created.IsZero())

	_, err = s.CreateContentKey(ctx, media.ContentKey{ID: k.ID, Key: raw, Kind: media.CommonEncryption})
	assert.ErrorIs(t, err, media.ErrConflict)

	got, err := s.GetContentKey(ctx, k.ID)
	require.NoError(t, err)
	assert.Equal(t, "cenc", got.Name)
	assert.Equal(t, media.CommonEncryption, got.Kind)
	assert.Equal(t, raw, got.Key)
	assert.Empty(t, got.AuthorizationPolicyID)

	got.AuthorizationPolicyID = media.NewID(media.PolicyIDPrefix)
	got.Kind = media.StorageEncryption
	updated, err := s.UpdateContentKey(ctx, got)
	require.NoError(t, err)
	assert.Equal(t, got.AuthorizationPolicyID, updated.AuthorizationPolicyID)
	assert.Equal(t, media.CommonEncryption, updated.Kind, "kind is immutable")

	list, err := s.ListContentKeys(ctx)
	require.NoError(t, err)
	assert.True(t, containsKey(list, k.ID))

	require.NoError(t, s.DeleteContentKey(ctx, k.ID))
	_, err = s.GetContentKey(ctx, k.ID)
	assert.ErrorIs(t, err, media.ErrNotFound)
	assert.ErrorIs(t, s.DeleteContentKey(ctx, k.ID), media.ErrNotFound)
	_, err = s.UpdateContentKey(ctx, k)
	assert.ErrorIs(t, err, media.ErrNotFound)
}

func containsKey(keys []media.ContentKey, id string) bool {
	for _, k := range keys {
		if k.ID == id {
			return true
		}
	}
	return false
}

func policies(t *testing.T, s media.Store) {
	ctx := context.Background()
	pr, err := s.CreatePolicyOption(ctx, media.PolicyOption{
		Name:          "Open PlayReady Option 1",
		DeliveryKind:  media.PlayReadyLicense,
		Restrictions:  []media.RestrictionRule{{Name: "Open", Kind: media.Open}},
		Configuration: "<xml/>",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(pr.ID, media.OptionIDPrefix))
	wv, err := s.CreatePolicyOption(ctx, media.PolicyOption{
		Name:         "TokenRestricted Widevine Option 1",
		DeliveryKind: media.Widevine,
		Restrictions: []media.RestrictionRule{{
			Name:         "Token Authorization Policy",
			Kind:         media.TokenRestricted,
			Requirements: "<TokenRestrictionTemplate/>",
		}},
		Configuration: "{}",
	})
	require.NoError(t, err)

	got, err := s.GetPolicyOption(ctx, wv.ID)
	require.NoError(t, err)
	assert.Equal(t, wv, got)

	_, err = s.CreateAuthorizationPolicy(ctx, media.AuthorizationPolicy{
		Name:    "broken",
		Options: []media.PolicyOption{{ID: media.NewID(media.OptionIDPrefix)}},
	})
	assert.ErrorIs(t, err, media.ErrNotFound)

	p, err := s.CreateAuthorizationPolicy(ctx, media.AuthorizationPolicy{
		Name:    "Common",
		Options: []media.PolicyOption{pr, wv},
	})
	require.NoError(t, err)
	require.Len(t, p.Options, 2)
	assert.Equal(t, pr.ID, p.Options[0].ID)
	assert.Equal(t, wv.ID, p.Options[1].ID)

	got2, err := s.GetAuthorizationPolicy(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p, got2)

	list, err := s.ListAuthorizationPolicies(ctx)
	require.NoError(t, err)
	found := false
	for _, x := range list {
		found = found || x.ID == p.ID
	}
	assert.True(t, found)

	// deleting an option unlinks it from its policy
	require.NoError(t, s.DeletePolicyOption(ctx, wv.ID))
	got2, err = s.GetAuthorizationPolicy(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, got2.Options, 1)
	assert.Equal(t, pr.ID, got2.Options[0].ID)

	// deleting the policy leaves its options behind
	require.NoError(t, s.DeleteAuthorizationPolicy(ctx, p.ID))
	_, err = s.GetAuthorizationPolicy(ctx, p.ID)
	assert.ErrorIs(t, err, media.ErrNotFound)
	_, err = s.GetPolicyOption(ctx, pr.ID)
	require.NoError(t, err)
	assert.ErrorIs(t, s.DeleteAuthorizationPolicy(ctx, p.ID), media.ErrNotFound)

	require.NoError(t, s.DeletePolicyOption(ctx, pr.ID))
	assert.ErrorIs(t, s.DeletePolicyOption(ctx, pr.ID), media.ErrNotFound)
}

func assets(t *testing.T, s media.Store, origin string) {
	ctx := context.Background()
	a, err := s.CreateAsset(ctx, media.Asset{Name: "movie", Files: []media.AssetFile{{Name: "movie.mp4", Size: 10}}})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(a.ID, media.AssetIDPrefix))
	require.NoError(t, s.AddAssetFile(ctx, a.ID, media.AssetFile{Name: "Movie.ISM", Size: 1}))
	assert.ErrorIs(t, s.AddAssetFile(ctx, media.NewID(media.AssetIDPrefix), media.AssetFile{Name: "x"}), media.ErrNotFound)

	k, err := s.CreateContentKey(ctx, media.ContentKey{
		ID:   media.NewID(media.KeyIDPrefix),
		Key:  []byte("0123456789abcdef"),
		Name: "cenc",
		Kind: media.CommonEncryption,
	})
	require.NoError(t, err)
	require.NoError(t, s.AddAssetContentKey(ctx, a.ID, k.ID))
	assert.ErrorIs(t, s.AddAssetContentKey(ctx, a.ID, k.ID), media.ErrConflict)
	assert.ErrorIs(t, s.AddAssetContentKey(ctx, a.ID, media.NewID(media.KeyIDPrefix)), media.ErrNotFound)

	ap, err := s.CreateAccessPolicy(ctx, media.AccessPolicy{Name: "Streaming policy", Duration: 30 * 24 * time.Hour, Permissions: media.Read})
	require.NoError(t, err)
	aps, err := s.ListAccessPolicies(ctx)
	require.NoError(t, err)
	found := false
	for _, x := range aps {
		if x.ID == ap.ID {
			found = true
			assert.Equal(t, 30*24*time.Hour, x.Duration)
			assert.Equal(t, media.Read, x.Permissions)
		}
	}
	assert.True(t, found)

	start := time.Now().Add(-5 * time.Minute).UTC().Truncate(time.Second)
	l, err := s.CreateLocator(ctx, media.Locator{Type: media.OnDemandOrigin, AssetID: a.ID, AccessPolicyID: ap.ID, StartTime: start})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(l.ID, media.LocatorIDPrefix))
	assert.True(t, strings.HasPrefix(l.Path, origin), l.Path)
	assert.True(t, strings.HasSuffix(l.Path, "/"), l.Path)
	_, err = s.CreateLocator(ctx, media.Locator{Type: media.OnDemandOrigin, AssetID: media.NewID(media.AssetIDPrefix), AccessPolicyID: ap.ID})
	assert.ErrorIs(t, err, media.ErrNotFound)

	got, err := s.GetAsset(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "movie", got.Name)
	require.Len(t, got.Files, 2)
	f, ok := got.ManifestFile(".ism")
	assert.True(t, ok)
	assert.Equal(t, "Movie.ISM", f.Name)
	require.Len(t, got.ContentKeys, 1)
	assert.Equal(t, k.ID, got.ContentKeys[0].ID)
	require.Len(t, got.Locators, 1)
	assert.Equal(t, l.ID, got.Locators[0].ID)
	assert.True(t, start.Equal(got.Locators[0].StartTime))

	all, err := s.ListAssets(ctx)
	require.NoError(t, err)
	found = false
	for _, x := range all {
		found = found || x.ID == a.ID
	}
	assert.True(t, found)

	require.NoError(t, s.DeleteLocator(ctx, l.ID))
	assert.ErrorIs(t, s.DeleteLocator(ctx, l.ID), media.ErrNotFound)
	require.NoError(t, s.RemoveAssetContentKey(ctx, a.ID, k.ID))
	assert.ErrorIs(t, s.RemoveAssetContentKey(ctx, a.ID, k.ID), media.ErrNotFound)

	got, err = s.GetAsset(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, got.ContentKeys)
	assert.Empty(t, got.Locators)
	_, err = s.GetContentKey(ctx, k.ID)
	assert.NoError(t, err, "detaching does not delete the key")

	_, err = s.GetAsset(ctx, media.NewID(media.AssetIDPrefix))
	assert.ErrorIs(t, err, media.ErrNotFound)
}

func deliveryPolicies(t *testing.T, s media.Store) {
	ctx := context.Background()
	a, err := s.CreateAsset(ctx, media.Asset{Name: "clip"})
	require.NoError(t, err)
	p, err := s.CreateAssetDeliveryPolicy(ctx, media.AssetDeliveryPolicy{
		Name:      "AssetDeliveryPolicy CommonEncryption (SmoothStreaming, DASH)",
		Scheme:    media.DynamicCommonEncryption,
		Protocols: media.SmoothStreaming | media.Dash,
		Configuration: map[media.DeliveryConfigKey]string{
			media.PlayReadyLicenseAcquisitionURL: "https://keys.example.com/PlayReady/",
		},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(p.ID, media.DeliveryPolicyIDPrefix))

	require.NoError(t, s.AddAssetDeliveryPolicy(ctx, a.ID, p.ID))
	assert.ErrorIs(t, s.AddAssetDeliveryPolicy(ctx, a.ID, p.ID), media.ErrConflict)
	assert.ErrorIs(t, s.AddAssetDeliveryPolicy(ctx, a.ID, media.NewID(media.DeliveryPolicyIDPrefix)), media.ErrNotFound)
	assert.ErrorIs(t, s.DeleteAssetDeliveryPolicy(ctx, p.ID), media.ErrConflict)

	got, err := s.GetAsset(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, got.DeliveryPolicies, 1)
	assert.Equal(t, p, got.DeliveryPolicies[0])

	list, err := s.ListAssetDeliveryPolicies(ctx)
	require.NoError(t, err)
	found := false
	for _, x := range list {
		found = found || x.ID == p.ID
	}
	assert.True(t, found)

	require.NoError(t, s.RemoveAssetDeliveryPolicy(ctx, a.ID, p.ID))
	assert.ErrorIs(t, s.RemoveAssetDeliveryPolicy(ctx, a.ID, p.ID), media.ErrNotFound)
	require.NoError(t, s.DeleteAssetDeliveryPolicy(ctx, p.ID))
	assert.ErrorIs(t, s.DeleteAssetDeliveryPolicy(ctx, p.ID), media.ErrNotFound)
}
