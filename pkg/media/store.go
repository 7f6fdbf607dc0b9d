package media

import (
	"context"
	"net/url"
)

// KeyStore persists content keys.
type KeyStore interface {
	CreateContentKey(ctx context.Context, key ContentKey) (ContentKey, error)
	GetContentKey(ctx context.Context, id string) (ContentKey, error)
	ListContentKeys(ctx context.Context) ([]ContentKey, error)
	UpdateContentKey(ctx context.Context, key ContentKey) (ContentKey, error)
	DeleteContentKey(ctx context.Context, id string) error
}

// PolicyStore persists authorization policies and their options. Deleting a
// policy only removes the policy record and its option links.
type PolicyStore interface {
	CreatePolicyOption(ctx context.Context, option PolicyOption) (PolicyOption, error)
	GetPolicyOption(ctx context.Context, id string) (PolicyOption, error)
	ListPolicyOptions(ctx context.Context) ([]PolicyOption, error)
	DeletePolicyOption(ctx context.Context, id string) error

	// CreateAuthorizationPolicy creates a policy linked to the options in
	// policy.Options, which must already exist.
	CreateAuthorizationPolicy(ctx context.Context, policy AuthorizationPolicy) (AuthorizationPolicy, error)
	GetAuthorizationPolicy(ctx context.Context, id string) (AuthorizationPolicy, error)
	ListAuthorizationPolicies(ctx context.Context) ([]AuthorizationPolicy, error)
	DeleteAuthorizationPolicy(ctx context.Context, id string) error
}

// AssetStore reads assets and manages what is attached to them.
type AssetStore interface {
	CreateAsset(ctx context.Context, asset Asset) (Asset, error)
	GetAsset(ctx context.Context, id string) (Asset, error)
	ListAssets(ctx context.Context) ([]Asset, error)
	AddAssetFile(ctx context.Context, assetID string, file AssetFile) error

	AddAssetContentKey(ctx context.Context, assetID, keyID string) error
	RemoveAssetContentKey(ctx context.Context, assetID, keyID string) error

	CreateAssetDeliveryPolicy(ctx context.Context, policy AssetDeliveryPolicy) (AssetDeliveryPolicy, error)
	ListAssetDeliveryPolicies(ctx context.Context) ([]AssetDeliveryPolicy, error)
	DeleteAssetDeliveryPolicy(ctx context.Context, id string) error
	AddAssetDeliveryPolicy(ctx context.Context, assetID, policyID string) error
	RemoveAssetDeliveryPolicy(ctx context.Context, assetID, policyID string) error

	CreateAccessPolicy(ctx context.Context, policy AccessPolicy) (AccessPolicy, error)
	ListAccessPolicies(ctx context.Context) ([]AccessPolicy, error)

	// CreateLocator assigns the locator id and path.
	CreateLocator(ctx context.Context, locator Locator) (Locator, error)
	DeleteLocator(ctx context.Context, id string) error
}

// Store is the remote asset, key and policy service.
type Store interface {
	KeyStore
	PolicyStore
	AssetStore
}

// KeyDeliveryResolver maps a content key and a DRM system to the license
// acquisition URL of the key delivery service.
type KeyDeliveryResolver interface {
	KeyDeliveryURL(ctx context.Context, key ContentKey, kind DeliveryKind) (*url.URL, error)
}
