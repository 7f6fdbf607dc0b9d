// Package keys mints content keys and manages their bindings to assets and
// authorization policies.
package keys

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/opentdf/drmpolicy/internal/crypto"
	"github.com/opentdf/drmpolicy/pkg/media"
	"go.uber.org/zap"
)

// Generator produces random key material.
type Generator interface {
	Generate(n int) ([]byte, error)
}

type GeneratorFunc func(n int) ([]byte, error)

func (f GeneratorFunc) Generate(n int) ([]byte, error) {
	return f(n)
}

// RandomGenerator reads from crypto/rand.
var RandomGenerator Generator = GeneratorFunc(crypto.GenerateKey)

type Provisioner struct {
	Store     media.KeyStore
	Assets    media.AssetStore
	Generator Generator
	Logger    *zap.Logger
}

func (p *Provisioner) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

// CreateKey mints a fresh 16 byte key of the given kind.
func (p *Provisioner) CreateKey(ctx context.Context, kind media.KeyKind, name string) (media.ContentKey, error) {
	gen := p.Generator
	if gen == nil {
		gen = RandomGenerator
	}
	material, err := gen.Generate(crypto.ContentKeyLength)
	if err != nil {
		return media.ContentKey{}, fmt.Errorf("could not generate key material: %w", err)
	}
	return p.CreateKeyWithPayload(ctx, kind, name, material)
}

// CreateKeyWithPayload stores payload as a content key. Used for the
// FairPlay auxiliary keys whose material is supplied by the operator.
func (p *Provisioner) CreateKeyWithPayload(ctx context.Context, kind media.KeyKind, name string, payload []byte) (media.ContentKey, error) {
	if len(payload) == 0 {
		return media.ContentKey{}, errors.Join(media.ErrConfiguration, errors.New("empty key payload"))
	}
	key, err := p.Store.CreateContentKey(ctx, media.ContentKey{
		ID:   media.KeyIDFromUUID(uuid.New()),
		Key:  payload,
		Name: name,
		Kind: kind,
	})
	if err != nil {
		return media.ContentKey{}, fmt.Errorf("could not create content key %q: %w", name, err)
	}
	p.logger().Debug("created content key",
		zap.String("id", key.ID),
		zap.String("name", key.Name),
		zap.Stringer("kind", key.Kind))
	return key, nil
}

// AttachToAsset links key to the asset. Linking a key twice is rejected by
// the store with media.ErrConflict.
func (p *Provisioner) AttachToAsset(ctx context.Context, assetID string, key media.ContentKey) error {
	if p.Assets == nil {
		return errors.Join(media.ErrConfiguration, errors.New("no asset store"))
	}
	if err := p.Assets.AddAssetContentKey(ctx, assetID, key.ID); err != nil {
		return fmt.Errorf("could not attach key %s to asset %s: %w", key.ID, assetID, err)
	}
	p.logger().Debug("attached content key", zap.String("id", key.ID), zap.String("asset", assetID))
	return nil
}

// SetAuthorizationPolicy binds key to policyID. A key is bound at most
// once; rebinding to the same policy is a no-op.
func (p *Provisioner) SetAuthorizationPolicy(ctx context.Context, key media.ContentKey, policyID string) (media.ContentKey, error) {
	switch key.AuthorizationPolicyID {
	case policyID:
		return key, nil
	case "":
	default:
		return media.ContentKey{}, errors.Join(media.ErrConflict,
			fmt.Errorf("key %s is already bound to policy %s", key.ID, key.AuthorizationPolicyID))
	}
	key.AuthorizationPolicyID = policyID
	updated, err := p.Store.UpdateContentKey(ctx, key)
	if err != nil {
		return media.ContentKey{}, fmt.Errorf("could not bind key %s to policy %s: %w", key.ID, policyID, err)
	}
	p.logger().Debug("bound content key", zap.String("id", key.ID), zap.String("policy", policyID))
	return updated, nil
}
