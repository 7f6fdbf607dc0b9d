// Package teardown removes keys, policies, options and asset wiring in an
// order that never leaves a key pointing at a deleted policy or a FairPlay
// auxiliary key without its option.
package teardown

import (
	"context"
	"errors"
	"fmt"

	"github.com/opentdf/drmpolicy/pkg/license"
	"github.com/opentdf/drmpolicy/pkg/media"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"
)

var tracer = otel.Tracer("github.com/opentdf/drmpolicy/pkg/teardown")

type Coordinator struct {
	Store  media.Store
	Logger *zap.Logger
}

// Unbound lists what UnbindAssetPolicies detached from an asset.
type Unbound struct {
	Locators         []string
	DeliveryPolicies []string
	ContentKeys      []string
}

func (c *Coordinator) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (c *Coordinator) RemoveKey(ctx context.Context, id string) (err error) {
	ctx, span := tracer.Start(ctx, "RemoveKey", trace.WithAttributes(attribute.String("key.id", id)))
	defer func() { end(span, err) }()

	if err := c.Store.DeleteContentKey(ctx, id); err != nil {
		return fmt.Errorf("could not remove content key %s: %w", id, err)
	}
	c.logger().Info("removed content key", zap.String("id", id))
	return nil
}

// RemovePolicy deletes the policy and then its options. It refuses while
// any content key still references the policy.
func (c *Coordinator) RemovePolicy(ctx context.Context, id string) (err error) {
	ctx, span := tracer.Start(ctx, "RemovePolicy", trace.WithAttributes(attribute.String("policy.id", id)))
	defer func() { end(span, err) }()

	policy, err := c.Store.GetAuthorizationPolicy(ctx, id)
	if err != nil {
		return fmt.Errorf("could not get authorization policy %s: %w", id, err)
	}
	keys, err := c.Store.ListContentKeys(ctx)
	if err != nil {
		return fmt.Errorf("could not list content keys: %w", err)
	}
	var refs []string
	for _, k := range keys {
		if k.AuthorizationPolicyID == id {
			refs = append(refs, k.ID)
		}
	}
	if len(refs) > 0 {
		return errors.Join(media.ErrConflict,
			fmt.Errorf("authorization policy %s is referenced by %d content key(s): %v", id, len(refs), refs))
	}

	if err := c.Store.DeleteAuthorizationPolicy(ctx, id); err != nil {
		return fmt.Errorf("could not delete authorization policy %s: %w", id, err)
	}
	c.logger().Info("removed authorization policy", zap.String("id", id), zap.String("name", policy.Name))

	var errs []error
	for _, o := range policy.Options {
		if err := c.RemoveOption(ctx, o.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RemoveOption deletes an option. FairPlay options take their ASK and pfx
// password keys with them; those are removed first.
func (c *Coordinator) RemoveOption(ctx context.Context, id string) (err error) {
	ctx, span := tracer.Start(ctx, "RemoveOption", trace.WithAttributes(attribute.String("option.id", id)))
	defer func() { end(span, err) }()

	option, err := c.Store.GetPolicyOption(ctx, id)
	if err != nil {
		return fmt.Errorf("could not get policy option %s: %w", id, err)
	}
	if option.DeliveryKind == media.FairPlay {
		cfg, err := license.ParseFairPlayConfiguration(option.Configuration)
		if err != nil {
			return fmt.Errorf("policy option %s: %w", id, err)
		}
		for _, keyID := range []string{cfg.AppSecretKeyID(), cfg.PfxPasswordKeyID()} {
			err := c.Store.DeleteContentKey(ctx, keyID)
			switch {
			case err == nil:
				c.logger().Info("removed fairplay key", zap.String("id", keyID), zap.String("option", id))
			case errors.Is(err, media.ErrNotFound):
				c.logger().Warn("fairplay key already gone", zap.String("id", keyID), zap.String("option", id))
			default:
				return fmt.Errorf("could not remove fairplay key %s of option %s: %w", keyID, id, err)
			}
		}
	}
	if err := c.Store.DeletePolicyOption(ctx, id); err != nil {
		return fmt.Errorf("could not delete policy option %s: %w", id, err)
	}
	c.logger().Info("removed policy option", zap.String("id", id), zap.String("name", option.Name))
	return nil
}

// UnbindAssetPolicies deletes the asset's locators and detaches its DRM
// delivery policies and every content key except storage encryption keys.
// Delivery policies of other schemes stay attached.
func (c *Coordinator) UnbindAssetPolicies(ctx context.Context, assetID string) (u Unbound, err error) {
	ctx, span := tracer.Start(ctx, "UnbindAssetPolicies", trace.WithAttributes(attribute.String("asset.id", assetID)))
	defer func() { end(span, err) }()

	asset, err := c.Store.GetAsset(ctx, assetID)
	if err != nil {
		return Unbound{}, fmt.Errorf("could not get asset %s: %w", assetID, err)
	}
	log := c.logger().With(zap.String("asset", assetID))

	for _, l := range asset.Locators {
		if err := c.Store.DeleteLocator(ctx, l.ID); err != nil {
			return u, fmt.Errorf("could not delete locator %s: %w", l.ID, err)
		}
		log.Debug("deleted locator", zap.String("id", l.ID))
		u.Locators = append(u.Locators, l.ID)
	}
	for _, p := range asset.DeliveryPolicies {
		if !p.Scheme.IsDRM() {
			continue
		}
		if err := c.Store.RemoveAssetDeliveryPolicy(ctx, assetID, p.ID); err != nil {
			return u, fmt.Errorf("could not detach delivery policy %s: %w", p.ID, err)
		}
		log.Debug("detached delivery policy", zap.String("id", p.ID))
		u.DeliveryPolicies = append(u.DeliveryPolicies, p.ID)
	}
	for _, k := range asset.ContentKeys {
		if k.Kind == media.StorageEncryption {
			continue
		}
		if err := c.Store.RemoveAssetContentKey(ctx, assetID, k.ID); err != nil {
			return u, fmt.Errorf("could not detach content key %s: %w", k.ID, err)
		}
		log.Debug("detached content key", zap.String("id", k.ID))
		u.ContentKeys = append(u.ContentKeys, k.ID)
	}
	log.Info("unbound asset",
		zap.Int("locators", len(u.Locators)),
		zap.Int("deliveryPolicies", len(u.DeliveryPolicies)),
		zap.Int("contentKeys", len(u.ContentKeys)))
	return u, nil
}

// RemovePolicies removes every policy carrying one of names. Each name is
// looked up on its own; a name with no policy is skipped and a repeated
// name is only processed once.
func (c *Coordinator) RemovePolicies(ctx context.Context, names ...string) error {
	unique := make([]string, 0, len(names))
	for _, name := range names {
		if !slices.Contains(unique, name) {
			unique = append(unique, name)
		}
	}
	all, err := c.Store.ListAuthorizationPolicies(ctx)
	if err != nil {
		return fmt.Errorf("could not list authorization policies: %w", err)
	}
	var errs []error
	for _, name := range unique {
		found := false
		for _, p := range all {
			if p.Name != name {
				continue
			}
			found = true
			if err := c.RemovePolicy(ctx, p.ID); err != nil {
				errs = append(errs, err)
			}
		}
		if !found {
			c.logger().Info("no authorization policy to remove", zap.String("name", name))
		}
	}
	return errors.Join(errs...)
}
