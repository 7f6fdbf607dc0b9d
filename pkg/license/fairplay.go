package license

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/opentdf/drmpolicy/internal/crypto"
	"github.com/opentdf/drmpolicy/pkg/media"
)

const askLength = 16

// KeyMinter stores a content key with a caller supplied payload.
type KeyMinter interface {
	CreateKeyWithPayload(ctx context.Context, kind media.KeyKind, name string, payload []byte) (media.ContentKey, error)
}

// FairPlayConfiguration is the option payload read by the key delivery
// service. The ASK and the pfx password are not embedded; they live in
// content keys referenced by id.
type FairPlayConfiguration struct {
	ASkID                 uuid.UUID `json:"ASkId"`
	FairPlayPfxPasswordID uuid.UUID `json:"FairPlayPfxPasswordId"`
	FairPlayPfx           string    `json:"FairPlayPfx"`
	ContentEncryptionIV   string    `json:"ContentEncryptionIV"`
}

func (c FairPlayConfiguration) AppSecretKeyID() string {
	return media.KeyIDFromUUID(c.ASkID)
}

func (c FairPlayConfiguration) PfxPasswordKeyID() string {
	return media.KeyIDFromUUID(c.FairPlayPfxPasswordID)
}

// IV returns the hex encoded content encryption IV, as expected by HLS
// delivery policies.
func (c FairPlayConfiguration) IV() string {
	return c.ContentEncryptionIV
}

// ParseFairPlayConfiguration decodes an option configuration.
func ParseFairPlayConfiguration(s string) (FairPlayConfiguration, error) {
	var c FairPlayConfiguration
	dec := json.NewDecoder(strings.NewReader(s))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return FairPlayConfiguration{}, fmt.Errorf("could not decode fairplay configuration: %w", err)
	}
	if c.ASkID == uuid.Nil || c.FairPlayPfxPasswordID == uuid.Nil {
		return FairPlayConfiguration{}, errors.New("fairplay configuration is missing key ids")
	}
	if iv, err := hex.DecodeString(c.ContentEncryptionIV); err != nil || len(iv) != crypto.IVLength {
		return FairPlayConfiguration{}, fmt.Errorf("fairplay configuration has invalid iv %q", c.ContentEncryptionIV)
	}
	return c, nil
}

// FairPlayBuilder turns an application secret key and certificate into a
// FairPlay option configuration.
type FairPlayBuilder struct {
	Keys KeyMinter
	// ASK is the application secret key as 32 hex characters.
	ASK         string
	Certificate []byte // pfx
	Password    string
}

// Validate checks the ASK and certificate without minting anything.
func (b FairPlayBuilder) Validate() ([]byte, error) {
	ask, err := crypto.DecodeHexKey(b.ASK, askLength)
	if err != nil {
		return nil, errors.Join(media.ErrConfiguration, fmt.Errorf("bad fairplay ASK: %w", err))
	}
	if _, err := crypto.LoadPKCS12(b.Certificate, b.Password); err != nil {
		return nil, errors.Join(media.ErrConfiguration, fmt.Errorf("bad fairplay app certificate: %w", err))
	}
	return ask, nil
}

// Build mints the ASK and pfx password keys and returns the serialized
// configuration together with its typed form.
func (b FairPlayBuilder) Build(ctx context.Context) (string, FairPlayConfiguration, error) {
	ask, err := b.Validate()
	if err != nil {
		return "", FairPlayConfiguration{}, err
	}
	iv, err := crypto.GenerateIV()
	if err != nil {
		return "", FairPlayConfiguration{}, err
	}

	askKey, err := b.Keys.CreateKeyWithPayload(ctx, media.FairPlayAppSecret, "FairPlay AppSecret (ASK)", ask)
	if err != nil {
		return "", FairPlayConfiguration{}, fmt.Errorf("could not create ASK key: %w", err)
	}
	pfxKey, err := b.Keys.CreateKeyWithPayload(ctx, media.FairPlayPfxPassword, "FairPlay AppCert PfxPasswordKey", []byte(b.Password))
	if err != nil {
		return "", FairPlayConfiguration{}, fmt.Errorf("could not create pfx password key: %w", err)
	}

	askID, err := media.UUIDFromKeyID(askKey.ID)
	if err != nil {
		return "", FairPlayConfiguration{}, err
	}
	pfxID, err := media.UUIDFromKeyID(pfxKey.ID)
	if err != nil {
		return "", FairPlayConfiguration{}, err
	}
	cfg := FairPlayConfiguration{
		ASkID:                 askID,
		FairPlayPfxPasswordID: pfxID,
		FairPlayPfx:           base64.StdEncoding.EncodeToString(b.Certificate),
		ContentEncryptionIV:   strings.ToUpper(hex.EncodeToString(iv)),
	}
	out, err := json.Marshal(cfg)
	if err != nil {
		return "", FairPlayConfiguration{}, err
	}
	return string(out), cfg, nil
}
