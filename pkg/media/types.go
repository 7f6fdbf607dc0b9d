package media

import (
	"fmt"
	"strings"
	"time"
)

// KeyKind is the type of a content key. It never changes after creation.
type KeyKind int

const (
	CommonEncryption KeyKind = iota
	StorageEncryption
	ConfigurationEncryption
	EnvelopeEncryption
	CommonEncryptionCbcs
	FairPlayAppSecret
	FairPlayPfxPassword
)

var keyKindNames = map[KeyKind]string{
	CommonEncryption:        "CommonEncryption",
	StorageEncryption:       "StorageEncryption",
	ConfigurationEncryption: "ConfigurationEncryption",
	EnvelopeEncryption:      "EnvelopeEncryption",
	CommonEncryptionCbcs:    "CommonEncryptionCbcs",
	FairPlayAppSecret:       "FairPlayASk",
	FairPlayPfxPassword:     "FairPlayPfxPassword",
}

func (k KeyKind) String() string {
	if n, ok := keyKindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("KeyKind(%d)", int(k))
}

func (k KeyKind) MarshalText() ([]byte, error) {
	if _, ok := keyKindNames[k]; !ok {
		return nil, fmt.Errorf("unknown key kind %d", int(k))
	}
	return []byte(k.String()), nil
}

func (k *KeyKind) UnmarshalText(text []byte) error {
	v, err := ParseKeyKind(string(text))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// ParseKeyKind parses the name of a key kind, case insensitive.
func ParseKeyKind(s string) (KeyKind, error) {
	for k, n := range keyKindNames {
		if strings.EqualFold(n, s) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown key kind %q", s)
}

// ContentKey is a symmetric key held by the store. AuthorizationPolicyID is
// a weak reference: the policy is not owned by the key.
type ContentKey struct {
	ID                    string    `json:"id"`
	Key                   []byte    `json:"key,omitempty"`
	Name                  string    `json:"name"`
	Kind                  KeyKind   `json:"kind"`
	AuthorizationPolicyID string    `json:"authorizationPolicyId,omitempty"`
	Created               time.Time `json:"created"`
}

// RestrictionKind selects how key delivery is gated.
type RestrictionKind int

const (
	Open RestrictionKind = iota
	TokenRestricted
	IPRestricted
)

func (r RestrictionKind) String() string {
	switch r {
	case Open:
		return "Open"
	case TokenRestricted:
		return "TokenRestricted"
	case IPRestricted:
		return "IPRestricted"
	}
	return fmt.Sprintf("RestrictionKind(%d)", int(r))
}

// RestrictionRule is embedded in a policy option and never stored on its own.
// Requirements is set iff Kind is TokenRestricted.
type RestrictionRule struct {
	Name         string          `json:"name"`
	Kind         RestrictionKind `json:"kind"`
	Requirements string          `json:"requirements,omitempty"`
}

// DeliveryKind is the DRM system a policy option delivers licenses for.
type DeliveryKind int

const (
	NoDelivery DeliveryKind = iota
	PlayReadyLicense
	BaselineHTTP
	Widevine
	FairPlay
)

func (d DeliveryKind) String() string {
	switch d {
	case NoDelivery:
		return "None"
	case PlayReadyLicense:
		return "PlayReadyLicense"
	case BaselineHTTP:
		return "BaselineHttp"
	case Widevine:
		return "Widevine"
	case FairPlay:
		return "FairPlay"
	}
	return fmt.Sprintf("DeliveryKind(%d)", int(d))
}

// PolicyOption pairs a restriction rule set with a license payload whose
// format is dictated by DeliveryKind: XML for PlayReady, JSON for Widevine and
// a JSON FairPlay configuration referencing two auxiliary content keys.
type PolicyOption struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	DeliveryKind  DeliveryKind      `json:"deliveryKind"`
	Restrictions  []RestrictionRule `json:"restrictions"`
	Configuration string            `json:"configuration"`
}

// AuthorizationPolicy is a named, reusable set of options. It owns its options.
type AuthorizationPolicy struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Options []PolicyOption `json:"options"`
}

// Option returns the first option of the given delivery kind.
func (p AuthorizationPolicy) Option(kind DeliveryKind) (PolicyOption, bool) {
	for _, o := range p.Options {
		if o.DeliveryKind == kind {
			return o, true
		}
	}
	return PolicyOption{}, false
}

// DeliveryScheme is the dynamic encryption applied by an asset delivery policy.
type DeliveryScheme int

const (
	NoDynamicEncryption DeliveryScheme = iota
	Blocked
	DynamicEnvelopeEncryption
	DynamicCommonEncryption
	DynamicCommonEncryptionCbcs
)

func (s DeliveryScheme) String() string {
	switch s {
	case NoDynamicEncryption:
		return "NoDynamicEncryption"
	case Blocked:
		return "Blocked"
	case DynamicEnvelopeEncryption:
		return "DynamicEnvelopeEncryption"
	case DynamicCommonEncryption:
		return "DynamicCommonEncryption"
	case DynamicCommonEncryptionCbcs:
		return "DynamicCommonEncryptionCbcs"
	}
	return fmt.Sprintf("DeliveryScheme(%d)", int(s))
}

// IsDRM reports whether the scheme is one of the common encryption variants
// this tool manages.
func (s DeliveryScheme) IsDRM() bool {
	return s == DynamicCommonEncryption || s == DynamicCommonEncryptionCbcs
}

// Protocol is a bitmask of streaming protocols allowed by a delivery policy.
type Protocol int

const (
	SmoothStreaming Protocol = 1 << iota
	Dash
	HLS
	HDS
)

const NoProtocol Protocol = 0

func (p Protocol) Has(q Protocol) bool {
	return p&q == q
}

func (p Protocol) String() string {
	if p == NoProtocol {
		return "None"
	}
	var names []string
	for _, x := range []struct {
		p    Protocol
		name string
	}{{SmoothStreaming, "SmoothStreaming"}, {Dash, "Dash"}, {HLS, "HLS"}, {HDS, "HDS"}} {
		if p.Has(x.p) {
			names = append(names, x.name)
		}
	}
	return strings.Join(names, ", ")
}

// DeliveryConfigKey is a well-known key of a delivery policy configuration.
type DeliveryConfigKey string

const (
	PlayReadyLicenseAcquisitionURL    DeliveryConfigKey = "PlayReadyLicenseAcquisitionUrl"
	WidevineBaseLicenseAcquisitionURL DeliveryConfigKey = "WidevineBaseLicenseAcquisitionUrl"
	FairPlayLicenseAcquisitionURL     DeliveryConfigKey = "FairPlayLicenseAcquisitionUrl"
	CommonEncryptionIVForCbcs         DeliveryConfigKey = "CommonEncryptionIVForCbcs"
)

// AssetDeliveryPolicy tells the origin how to encrypt an asset on the fly.
type AssetDeliveryPolicy struct {
	ID            string                       `json:"id"`
	Name          string                       `json:"name"`
	Scheme        DeliveryScheme               `json:"scheme"`
	Protocols     Protocol                     `json:"protocols"`
	Configuration map[DeliveryConfigKey]string `json:"configuration,omitempty"`
}

// Permission is a bitmask of access rights granted by an access policy.
type Permission int

const (
	Read Permission = 1 << iota
	Write
	Delete
	List
)

const NoPermission Permission = 0

// AccessPolicy is a time-bounded access grant referenced by locators.
type AccessPolicy struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Duration    time.Duration `json:"duration"`
	Permissions Permission    `json:"permissions"`
}

type LocatorType int

const (
	NoLocator LocatorType = iota
	SAS
	OnDemandOrigin
)

func (l LocatorType) String() string {
	switch l {
	case SAS:
		return "Sas"
	case OnDemandOrigin:
		return "OnDemandOrigin"
	}
	return "None"
}

// Locator is a time-bounded network path to an asset. Path ends with a slash
// and is assigned by the store.
type Locator struct {
	ID             string      `json:"id"`
	Name           string      `json:"name,omitempty"`
	Type           LocatorType `json:"type"`
	AssetID        string      `json:"assetId"`
	AccessPolicyID string      `json:"accessPolicyId"`
	StartTime      time.Time   `json:"startTime"`
	Path           string      `json:"path"`
}

type AssetFile struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Asset aggregates the keys, delivery policies, locators and files the store
// associates with it.
type Asset struct {
	ID               string                `json:"id"`
	Name             string                `json:"name"`
	ContentKeys      []ContentKey          `json:"contentKeys"`
	DeliveryPolicies []AssetDeliveryPolicy `json:"deliveryPolicies"`
	Locators         []Locator             `json:"locators"`
	Files            []AssetFile           `json:"files"`
}

// ManifestFile returns the first file whose name ends with ext, compared
// case insensitively.
func (a Asset) ManifestFile(ext string) (AssetFile, bool) {
	for _, f := range a.Files {
		if strings.HasSuffix(strings.ToLower(f.Name), strings.ToLower(ext)) {
			return f, true
		}
	}
	return AssetFile{}, false
}
