package drm

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/opentdf/drmpolicy/internal/fixtures"
	"github.com/opentdf/drmpolicy/pkg/delivery"
	"github.com/opentdf/drmpolicy/pkg/keys"
	"github.com/opentdf/drmpolicy/pkg/license"
	"github.com/opentdf/drmpolicy/pkg/media"
	"github.com/opentdf/drmpolicy/pkg/policy"
	"github.com/opentdf/drmpolicy/pkg/store/memory"
	"github.com/opentdf/drmpolicy/pkg/teardown"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newEngine(t *testing.T, ask string) (*Engine, *memory.Store, *bytes.Buffer) {
	store := memory.New("http://origin.example.com/")
	logger := zaptest.NewLogger(t)
	p := &keys.Provisioner{Store: store, Assets: store, Logger: logger}
	composer := &policy.Composer{
		Store: store,
		FairPlay: license.FairPlayBuilder{
			Keys:        p,
			ASK:         ask,
			Certificate: fixtures.SelfSignedPFX(t, "fairplay", "secret"),
			Password:    "secret",
		},
		Names:  policy.Names{Common: "Common", CommonCbcs: "CommonCbcs"},
		Logger: logger,
	}
	td := &teardown.Coordinator{Store: store, Logger: logger}
	resolver, err := delivery.NewURLResolver("https://keys.example.com/")
	require.NoError(t, err)
	out := &bytes.Buffer{}
	return &Engine{
		Store:    store,
		Policies: composer,
		Binder: &delivery.Binder{
			Store:    store,
			Keys:     p,
			Policies: composer,
			Teardown: td,
			Resolver: resolver,
			Now:      time.Now,
			Logger:   logger,
		},
		Teardown: td,
		Reporter: NewTextReporter(out),
		Logger:   logger,
	}, store, out
}

func TestParseOperation(t *testing.T) {
	tests := map[string]Operation{
		"list-all":                       ListAll,
		"--listall":                      ListAll,
		"--listcontentkey":               ListKeys,
		"--listauthpolicy":               ListPolicies,
		"--listauthpolicyoption":         ListOptions,
		"--removecontentkey":             RemoveKey,
		"--removeauthpolicy":             RemovePolicy,
		"--removeauthpolicyoption":       RemoveOption,
		"--createdrmauthpolicy":          CreateDRMPolicy,
		"--deletedrmauthpolicy":          DeleteDRMPolicy,
		"--applydrmauthpolicytoasset":    ApplyDRMPolicyToAsset,
		"--deletedrmauthpolicyfromasset": RemoveDRMPolicyFromAsset,
		"Apply-DRM-Policy-To-Asset":      ApplyDRMPolicyToAsset,
	}
	for in, want := range tests {
		got, err := ParseOperation(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, name := range Operations() {
		op, err := ParseOperation(name)
		require.NoError(t, err)
		assert.Equal(t, name, op.String())
	}

	_, err := ParseOperation("--frobnicate")
	assert.ErrorIs(t, err, media.ErrConfiguration)

	op, ids, err := ParseArgs([]string{"--removecontentkey", "a", "b"})
	require.NoError(t, err)
	assert.Equal(t, RemoveKey, op)
	assert.Equal(t, []string{"a", "b"}, ids)
	_, _, err = ParseArgs(nil)
	assert.ErrorIs(t, err, media.ErrConfiguration)
}

func TestRunRequiresIDs(t *testing.T) {
	e, _, _ := newEngine(t, fixtures.AllZeroASK)
	_, err := e.Run(context.Background(), RemoveKey, nil)
	assert.ErrorIs(t, err, media.ErrConfiguration)
}

func TestRemoveKeyBatchIsolation(t *testing.T) {
	e, store, out := newEngine(t, fixtures.AllZeroASK)
	ctx := context.Background()
	a, err := e.Binder.Keys.CreateKey(ctx, media.CommonEncryption, "a")
	require.NoError(t, err)
	c, err := e.Binder.Keys.CreateKey(ctx, media.CommonEncryption, "c")
	require.NoError(t, err)
	missing := media.NewID(media.KeyIDPrefix)

	results, err := e.Run(ctx, RemoveKey, []string{a.ID, missing, c.ID})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, media.ErrNotFound)
	assert.NoError(t, results[2].Err)
	assert.Equal(t, 1, Failed(results))

	left, err := store.ListContentKeys(ctx)
	require.NoError(t, err)
	assert.Empty(t, left)
	assert.Contains(t, out.String(), "error "+missing)
}

func TestApplyAndRemoveScenario(t *testing.T) {
	e, store, out := newEngine(t, fixtures.AllZeroASK)
	ctx := context.Background()
	asset, err := store.CreateAsset(ctx, media.Asset{Name: "movie", Files: []media.AssetFile{{Name: "movie.ism"}}})
	require.NoError(t, err)

	results, err := e.Run(ctx, ApplyDRMPolicyToAsset, []string{asset.ID})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.Contains(t, out.String(), "manifest(format=m3u8-aapl)")

	results, err = e.Run(ctx, RemoveDRMPolicyFromAsset, []string{asset.ID})
	require.NoError(t, err)
	require.NoError(t, results[0].Err)

	got, err := store.GetAsset(ctx, asset.ID)
	require.NoError(t, err)
	assert.Empty(t, got.ContentKeys)
	assert.Empty(t, got.DeliveryPolicies)
}

func TestCreateAndDeleteDRMPolicy(t *testing.T) {
	e, store, out := newEngine(t, fixtures.AllZeroASK)
	ctx := context.Background()

	_, err := e.Run(ctx, CreateDRMPolicy, nil)
	require.NoError(t, err)
	policies, err := store.ListAuthorizationPolicies(ctx)
	require.NoError(t, err)
	assert.Len(t, policies, 2)

	out.Reset()
	_, err = e.Run(ctx, ListAll, nil)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "ContentKey List:")
	assert.Contains(t, out.String(), "FairPlay AppSecret (ASK)")
	assert.Contains(t, out.String(), "= Common")
	assert.Contains(t, out.String(), "Open FairPlay Option 1")

	_, err = e.Run(ctx, DeleteDRMPolicy, nil)
	require.NoError(t, err)
	policies, err = store.ListAuthorizationPolicies(ctx)
	require.NoError(t, err)
	assert.Empty(t, policies)
}

func TestCreateDRMPolicyBadASKIsFatal(t *testing.T) {
	e, _, _ := newEngine(t, fixtures.AllZeroASK[:30])
	_, err := e.Run(context.Background(), CreateDRMPolicy, nil)
	assert.ErrorIs(t, err, media.ErrConfiguration)
}
