package media

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Identifier prefixes used by the store for each entity type.
const (
	KeyIDPrefix            = "nb:kid:UUID:"
	PolicyIDPrefix         = "nb:ckpid:UUID:"
	OptionIDPrefix         = "nb:ckpoid:UUID:"
	AssetIDPrefix          = "nb:cid:UUID:"
	DeliveryPolicyIDPrefix = "nb:adpid:UUID:"
	AccessPolicyIDPrefix   = "nb:pid:UUID:"
	LocatorIDPrefix        = "nb:lid:UUID:"
)

// KeyIDFromUUID returns the store identifier of the content key with the given uuid.
func KeyIDFromUUID(id uuid.UUID) string {
	return KeyIDPrefix + id.String()
}

// UUIDFromKeyID extracts the uuid part of a content key identifier. Bare
// uuids are accepted as well.
func UUIDFromKeyID(id string) (uuid.UUID, error) {
	u, err := uuid.Parse(strings.TrimPrefix(id, KeyIDPrefix))
	if err != nil {
		return uuid.Nil, errors.Join(ErrConfiguration, fmt.Errorf("invalid content key id %q: %w", id, err))
	}
	return u, nil
}

// NewID returns a fresh identifier with the given prefix.
func NewID(prefix string) string {
	return prefix + uuid.NewString()
}
