package policy

import (
	"context"
	"testing"

	"github.com/opentdf/drmpolicy/internal/fixtures"
	"github.com/opentdf/drmpolicy/pkg/keys"
	"github.com/opentdf/drmpolicy/pkg/license"
	"github.com/opentdf/drmpolicy/pkg/media"
	"github.com/opentdf/drmpolicy/pkg/store/memory"
	"github.com/opentdf/drmpolicy/pkg/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newComposer(t *testing.T, restricted bool) (*Composer, *memory.Store) {
	store := memory.New("http://origin.example.com/")
	p := &keys.Provisioner{Store: store, Assets: store, Logger: zaptest.NewLogger(t)}
	c := &Composer{
		Store: store,
		FairPlay: license.FairPlayBuilder{
			Keys:        p,
			ASK:         fixtures.AllZeroASK,
			Certificate: fixtures.SelfSignedPFX(t, "fairplay", "secret"),
			Password:    "secret",
		},
		Names:  Names{Common: "Common", CommonCbcs: "CommonCbcs"},
		Logger: zaptest.NewLogger(t),
	}
	if restricted {
		c.Token = &token.Requirements{
			Type:              token.JWT,
			VerificationKey:   fixtures.SymmetricKey(t),
			Issuer:            "http://sts.example.com/",
			Audience:          "urn:test",
			RequireKeyIDClaim: true,
		}
	}
	return c, store
}

func TestRestrictions(t *testing.T) {
	c, _ := newComposer(t, false)
	rules, err := c.Restrictions()
	require.NoError(t, err)
	assert.Equal(t, []media.RestrictionRule{{Name: "Open", Kind: media.Open}}, rules)

	c, _ = newComposer(t, true)
	rules, err = c.Restrictions()
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "Token Authorization Policy", rules[0].Name)
	assert.Equal(t, media.TokenRestricted, rules[0].Kind)
	assert.NotEmpty(t, rules[0].Requirements)

	c.Token.VerificationKey = "%%%"
	_, err = c.Restrictions()
	assert.ErrorIs(t, err, media.ErrConfiguration)
}

func TestEnsurePolicyIsIdempotent(t *testing.T) {
	c, store := newComposer(t, true)
	ctx := context.Background()

	first, err := c.EnsureCommonPolicy(ctx)
	require.NoError(t, err)
	second, err := c.EnsureCommonPolicy(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	all, err := store.ListAuthorizationPolicies(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.Len(t, first.Options, 2)
	pr, ok := first.Option(media.PlayReadyLicense)
	require.True(t, ok)
	assert.Equal(t, "TokenRestricted PlayReady Option 1", pr.Name)
	wv, ok := first.Option(media.Widevine)
	require.True(t, ok)
	assert.Equal(t, "TokenRestricted Widevine Option 1", wv.Name)
	assert.Equal(t, pr.Restrictions, wv.Restrictions)
}

func TestEnsureCommonCbcsPolicy(t *testing.T) {
	c, store := newComposer(t, false)
	ctx := context.Background()

	p, err := c.EnsureCommonCbcsPolicy(ctx)
	require.NoError(t, err)
	assert.Equal(t, "CommonCbcs", p.Name)
	require.Len(t, p.Options, 1)
	o := p.Options[0]
	assert.Equal(t, "Open FairPlay Option 1", o.Name)

	cfg, err := license.ParseFairPlayConfiguration(o.Configuration)
	require.NoError(t, err)
	ask, err := store.GetContentKey(ctx, cfg.AppSecretKeyID())
	require.NoError(t, err)
	assert.Equal(t, media.FairPlayAppSecret, ask.Kind)
	pfx, err := store.GetContentKey(ctx, cfg.PfxPasswordKeyID())
	require.NoError(t, err)
	assert.Equal(t, media.FairPlayPfxPassword, pfx.Kind)

	// no new keys minted on reuse
	_, err = c.EnsureCommonCbcsPolicy(ctx)
	require.NoError(t, err)
	keys, err := store.ListContentKeys(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestEnsurePolicyDuplicates(t *testing.T) {
	c, store := newComposer(t, false)
	ctx := context.Background()

	a, err := c.EnsurePolicy(ctx, "dup", c.PlayReadyOption())
	require.NoError(t, err)
	// a second identical policy under the same name is tolerated
	b, err := store.CreateAuthorizationPolicy(ctx, media.AuthorizationPolicy{Name: "dup", Options: a.Options})
	require.NoError(t, err)
	got, err := c.EnsurePolicy(ctx, "dup", c.PlayReadyOption())
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.NotEqual(t, b.ID, got.ID)

	// a differing one is not
	w, err := c.EnsurePolicy(ctx, "other", c.WidevineOption())
	require.NoError(t, err)
	_, err = store.CreateAuthorizationPolicy(ctx, media.AuthorizationPolicy{Name: "dup", Options: w.Options})
	require.NoError(t, err)
	_, err = c.EnsurePolicy(ctx, "dup", c.PlayReadyOption())
	assert.ErrorIs(t, err, media.ErrConflict)
}

func TestEnsurePolicyDuplicatesWithDifferentTokens(t *testing.T) {
	c, store := newComposer(t, true)
	ctx := context.Background()

	a, err := c.EnsurePolicy(ctx, "gated", c.PlayReadyOption())
	require.NoError(t, err)

	other, _ := newComposer(t, true)
	other.Store = store
	other.Token.Issuer = "http://other-sts.example.com/"
	o, err := other.EnsurePolicy(ctx, "other", other.PlayReadyOption())
	require.NoError(t, err)
	_, err = store.CreateAuthorizationPolicy(ctx, media.AuthorizationPolicy{Name: "gated", Options: o.Options})
	require.NoError(t, err)

	_, err = c.EnsurePolicy(ctx, "gated", c.PlayReadyOption())
	assert.ErrorIs(t, err, media.ErrConflict)
	assert.NotEqual(t, a.Options[0].Restrictions[0].Requirements, o.Options[0].Restrictions[0].Requirements)
}

func TestEnsurePolicyFairPlayDuplicatesIgnoreMintedValues(t *testing.T) {
	c, store := newComposer(t, false)
	ctx := context.Background()

	a, err := c.EnsurePolicy(ctx, "cbcs", c.FairPlayOption())
	require.NoError(t, err)
	// a second build mints new key ids and a new IV for the same certificate
	b, err := c.EnsurePolicy(ctx, "cbcs-copy", c.FairPlayOption())
	require.NoError(t, err)
	require.NotEqual(t, a.Options[0].Configuration, b.Options[0].Configuration)
	_, err = store.CreateAuthorizationPolicy(ctx, media.AuthorizationPolicy{Name: "cbcs", Options: b.Options})
	require.NoError(t, err)

	got, err := c.EnsurePolicy(ctx, "cbcs", c.FairPlayOption())
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	// a different certificate is different content
	c.FairPlay.Certificate = fixtures.SelfSignedPFX(t, "other", "secret")
	d, err := c.EnsurePolicy(ctx, "cbcs-other", c.FairPlayOption())
	require.NoError(t, err)
	_, err = store.CreateAuthorizationPolicy(ctx, media.AuthorizationPolicy{Name: "cbcs", Options: d.Options})
	require.NoError(t, err)
	_, err = c.EnsurePolicy(ctx, "cbcs", c.FairPlayOption())
	assert.ErrorIs(t, err, media.ErrConflict)
}

func TestEnsurePolicyBadFairPlayCreatesNothing(t *testing.T) {
	c, store := newComposer(t, false)
	c.FairPlay.ASK = fixtures.AllZeroASK[:30]
	ctx := context.Background()

	_, err := c.EnsureCommonCbcsPolicy(ctx)
	assert.ErrorIs(t, err, media.ErrConfiguration)

	options, err := store.ListPolicyOptions(ctx)
	require.NoError(t, err)
	assert.Empty(t, options)
	keys, err := store.ListContentKeys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestEnsurePolicyRequiresName(t *testing.T) {
	c, _ := newComposer(t, false)
	_, err := c.EnsurePolicy(context.Background(), "")
	assert.ErrorIs(t, err, media.ErrConfiguration)
}

func TestOptionName(t *testing.T) {
	assert.Equal(t, "Open PlayReady Option 1", OptionName(media.Open, media.PlayReadyLicense))
	assert.Equal(t, "TokenRestricted FairPlay Option 1", OptionName(media.TokenRestricted, media.FairPlay))
}
