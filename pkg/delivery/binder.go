// Package delivery wires DRM keys, policies and dynamic encryption onto an
// asset and returns where it can be streamed from.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opentdf/drmpolicy/pkg/keys"
	"github.com/opentdf/drmpolicy/pkg/license"
	"github.com/opentdf/drmpolicy/pkg/media"
	"github.com/opentdf/drmpolicy/pkg/policy"
	"github.com/opentdf/drmpolicy/pkg/teardown"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const (
	CencKeyName = "ContentKey CENC"
	CbcsKeyName = "ContentKey CENC cbcs"

	CencDeliveryPolicyName = "AssetDeliveryPolicy CommonEncryption (SmoothStreaming, Dash)"
	CbcsDeliveryPolicyName = "AssetDeliveryPolicy CommonEncryptionCbcs (HLS)"

	AccessPolicyName     = "Streaming policy"
	AccessPolicyDuration = 30 * 24 * time.Hour
	// locators start in the past to absorb clock skew
	LocatorBackdate = 5 * time.Minute

	ManifestExtension = ".ism"
)

var tracer = otel.Tracer("github.com/opentdf/drmpolicy/pkg/delivery")

type Binder struct {
	Store    media.Store
	Keys     *keys.Provisioner
	Policies *policy.Composer
	Teardown *teardown.Coordinator
	Resolver media.KeyDeliveryResolver
	Now      func() time.Time
	Logger   *zap.Logger
}

// Result describes what ApplyPolicy wired onto an asset.
type Result struct {
	AssetID          string   `json:"assetId"`
	ContentKeys      []string `json:"contentKeys"`
	DeliveryPolicies []string `json:"deliveryPolicies"`
	LocatorID        string   `json:"locatorId"`
	ManifestURL      string   `json:"manifestUrl"`
}

func (r Result) SmoothStreamingURL() string { return r.ManifestURL + smoothSuffix }
func (r Result) DashURL() string            { return r.ManifestURL + dashSuffix }
func (r Result) HLSURL() string             { return r.ManifestURL + hlsSuffix }

func (b *Binder) logger() *zap.Logger {
	if b.Logger == nil {
		return zap.NewNop()
	}
	return b.Logger
}

func (b *Binder) now() time.Time {
	if b.Now == nil {
		return time.Now()
	}
	return b.Now()
}

// ApplyPolicy replaces any DRM wiring on the asset with fresh CENC and
// CENC cbcs keys bound to the common policies, attaches the matching
// delivery policies and publishes an origin locator. Completed steps are
// not rolled back when a later one fails.
func (b *Binder) ApplyPolicy(ctx context.Context, assetID string) (res Result, err error) {
	ctx, span := tracer.Start(ctx, "ApplyPolicy")
	span.SetAttributes(attribute.String("asset.id", assetID))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	asset, err := b.Store.GetAsset(ctx, assetID)
	if err != nil {
		return Result{}, fmt.Errorf("could not get asset %s: %w", assetID, err)
	}
	manifest, ok := asset.ManifestFile(ManifestExtension)
	if !ok {
		return Result{}, errors.Join(media.ErrNotFound, fmt.Errorf("asset %s has no %s file", assetID, ManifestExtension))
	}
	log := b.logger().With(zap.String("asset", assetID), zap.String("name", asset.Name))

	if _, err := b.Teardown.UnbindAssetPolicies(ctx, assetID); err != nil {
		return Result{}, err
	}
	res.AssetID = assetID

	cenc, err := b.Keys.CreateKey(ctx, media.CommonEncryption, CencKeyName)
	if err != nil {
		return res, err
	}
	cbcs, err := b.Keys.CreateKey(ctx, media.CommonEncryptionCbcs, CbcsKeyName)
	if err != nil {
		return res, err
	}
	for _, k := range []media.ContentKey{cenc, cbcs} {
		if err := b.Keys.AttachToAsset(ctx, assetID, k); err != nil {
			return res, err
		}
		res.ContentKeys = append(res.ContentKeys, k.ID)
	}
	log.Info("created content keys", zap.String("cenc", cenc.ID), zap.String("cbcs", cbcs.ID))

	common, err := b.Policies.EnsureCommonPolicy(ctx)
	if err != nil {
		return res, err
	}
	commonCbcs, err := b.Policies.EnsureCommonCbcsPolicy(ctx)
	if err != nil {
		return res, err
	}
	if cenc, err = b.Keys.SetAuthorizationPolicy(ctx, cenc, common.ID); err != nil {
		return res, err
	}
	if cbcs, err = b.Keys.SetAuthorizationPolicy(ctx, cbcs, commonCbcs.ID); err != nil {
		return res, err
	}

	cencPolicy, err := b.cencDeliveryPolicy(ctx, cenc)
	if err != nil {
		return res, err
	}
	cbcsPolicy, err := b.cbcsDeliveryPolicy(ctx, cbcs, commonCbcs)
	if err != nil {
		return res, err
	}
	for _, p := range []media.AssetDeliveryPolicy{cencPolicy, cbcsPolicy} {
		created, err := b.Store.CreateAssetDeliveryPolicy(ctx, p)
		if err != nil {
			return res, fmt.Errorf("could not create delivery policy %q: %w", p.Name, err)
		}
		if err := b.Store.AddAssetDeliveryPolicy(ctx, assetID, created.ID); err != nil {
			return res, fmt.Errorf("could not attach delivery policy %s: %w", created.ID, err)
		}
		res.DeliveryPolicies = append(res.DeliveryPolicies, created.ID)
	}
	log.Info("attached delivery policies", zap.Strings("ids", res.DeliveryPolicies))

	access, err := b.accessPolicy(ctx)
	if err != nil {
		return res, err
	}
	locator, err := b.Store.CreateLocator(ctx, media.Locator{
		Type:           media.OnDemandOrigin,
		AssetID:        assetID,
		AccessPolicyID: access.ID,
		StartTime:      b.now().Add(-LocatorBackdate),
	})
	if err != nil {
		return res, fmt.Errorf("could not create locator: %w", err)
	}
	res.LocatorID = locator.ID
	res.ManifestURL = locator.Path + manifest.Name
	log.Info("published asset", zap.String("locator", locator.ID), zap.String("url", res.ManifestURL))
	return res, nil
}

func (b *Binder) cencDeliveryPolicy(ctx context.Context, key media.ContentKey) (media.AssetDeliveryPolicy, error) {
	playReady, err := b.Resolver.KeyDeliveryURL(ctx, key, media.PlayReadyLicense)
	if err != nil {
		return media.AssetDeliveryPolicy{}, fmt.Errorf("could not resolve PlayReady url: %w", err)
	}
	widevine, err := b.Resolver.KeyDeliveryURL(ctx, key, media.Widevine)
	if err != nil {
		return media.AssetDeliveryPolicy{}, fmt.Errorf("could not resolve Widevine url: %w", err)
	}
	return media.AssetDeliveryPolicy{
		Name:      CencDeliveryPolicyName,
		Scheme:    media.DynamicCommonEncryption,
		Protocols: media.Dash | media.SmoothStreaming,
		Configuration: map[media.DeliveryConfigKey]string{
			media.PlayReadyLicenseAcquisitionURL:    playReady.String(),
			media.WidevineBaseLicenseAcquisitionURL: StripQuery(widevine).String(),
		},
	}, nil
}

func (b *Binder) cbcsDeliveryPolicy(ctx context.Context, key media.ContentKey, p media.AuthorizationPolicy) (media.AssetDeliveryPolicy, error) {
	option, ok := p.Option(media.FairPlay)
	if !ok {
		return media.AssetDeliveryPolicy{}, errors.Join(media.ErrConfiguration,
			fmt.Errorf("authorization policy %q has no FairPlay option", p.Name))
	}
	cfg, err := license.ParseFairPlayConfiguration(option.Configuration)
	if err != nil {
		return media.AssetDeliveryPolicy{}, errors.Join(media.ErrConfiguration, err)
	}
	fairPlay, err := b.Resolver.KeyDeliveryURL(ctx, key, media.FairPlay)
	if err != nil {
		return media.AssetDeliveryPolicy{}, fmt.Errorf("could not resolve FairPlay url: %w", err)
	}
	return media.AssetDeliveryPolicy{
		Name:      CbcsDeliveryPolicyName,
		Scheme:    media.DynamicCommonEncryptionCbcs,
		Protocols: media.HLS,
		Configuration: map[media.DeliveryConfigKey]string{
			media.FairPlayLicenseAcquisitionURL: ToStreamingKeyScheme(fairPlay).String(),
			media.CommonEncryptionIVForCbcs:     cfg.IV(),
		},
	}, nil
}

// accessPolicy reuses the read-only streaming grant when one exists.
func (b *Binder) accessPolicy(ctx context.Context) (media.AccessPolicy, error) {
	all, err := b.Store.ListAccessPolicies(ctx)
	if err != nil {
		return media.AccessPolicy{}, fmt.Errorf("could not list access policies: %w", err)
	}
	for _, p := range all {
		if p.Name == AccessPolicyName && p.Permissions == media.Read && p.Duration == AccessPolicyDuration {
			return p, nil
		}
	}
	p, err := b.Store.CreateAccessPolicy(ctx, media.AccessPolicy{
		Name:        AccessPolicyName,
		Duration:    AccessPolicyDuration,
		Permissions: media.Read,
	})
	if err != nil {
		return media.AccessPolicy{}, fmt.Errorf("could not create access policy: %w", err)
	}
	return p, nil
}
