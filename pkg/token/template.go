// Package token builds token restriction templates that gate key delivery on
// a signed bearer token, and issues or checks tokens matching a template.
package token

import (
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/opentdf/drmpolicy/pkg/media"
)

// Type is the token format accepted by the key delivery service.
type Type string

const (
	SWT Type = "SWT"
	JWT Type = "JWT"
)

// KeyIDClaim is the claim carrying the content key identifier a token is
// bound to.
const KeyIDClaim = "urn:microsoft:azure:mediaservices:contentkeyidentifier"

const (
	templateNamespace = "http://schemas.microsoft.com/Azure/MediaServices/KeyDelivery/TokenRestrictionTemplate/v1"
	xsiNamespace      = "http://www.w3.org/2001/XMLSchema-instance"
)

// Requirements describes what a token must satisfy.
type Requirements struct {
	Type              Type
	VerificationKey   string // base64
	Issuer            string
	Audience          string
	RequireKeyIDClaim bool
}

// ParseType accepts "jwt" or "swt" in any case.
func ParseType(s string) (Type, error) {
	switch strings.ToUpper(s) {
	case string(JWT):
		return JWT, nil
	case string(SWT), "":
		return SWT, nil
	}
	return "", errors.Join(media.ErrConfiguration, fmt.Errorf("unknown token type %q", s))
}

// Key decodes the symmetric verification key.
func (r Requirements) Key() ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(r.VerificationKey)
	if err != nil {
		return nil, errors.Join(media.ErrConfiguration, fmt.Errorf("verification key is not valid base64: %w", err))
	}
	if len(key) == 0 {
		return nil, errors.Join(media.ErrConfiguration, errors.New("verification key is empty"))
	}
	return key, nil
}

func (r Requirements) validate() error {
	if _, err := r.Key(); err != nil {
		return err
	}
	if r.Type != SWT && r.Type != JWT {
		return errors.Join(media.ErrConfiguration, fmt.Errorf("unknown token type %q", r.Type))
	}
	for name, v := range map[string]string{"issuer": r.Issuer, "audience": r.Audience} {
		u, err := url.Parse(v)
		if err != nil || !u.IsAbs() {
			return errors.Join(media.ErrConfiguration, fmt.Errorf("token %s %q is not an absolute uri", name, v))
		}
	}
	return nil
}

type restrictionTemplate struct {
	XMLName                   xml.Name       `xml:"TokenRestrictionTemplate"`
	XSI                       string         `xml:"xmlns:i,attr"`
	Namespace                 string         `xml:"xmlns,attr"`
	AlternateVerificationKeys struct{}       `xml:"AlternateVerificationKeys"`
	Audience                  string         `xml:"Audience"`
	Issuer                    string         `xml:"Issuer"`
	PrimaryVerificationKey    verificationKy `xml:"PrimaryVerificationKey"`
	RequiredClaims            []tokenClaim   `xml:"RequiredClaims>TokenClaim"`
	TokenType                 Type           `xml:"TokenType"`
}

type verificationKy struct {
	Type     string `xml:"i:type,attr"`
	KeyValue string `xml:"KeyValue"`
}

type tokenClaim struct {
	ClaimType  string     `xml:"ClaimType"`
	ClaimValue claimValue `xml:"ClaimValue"`
}

type claimValue struct {
	Nil   string `xml:"i:nil,attr,omitempty"`
	Value string `xml:",chardata"`
}

// Build serializes the token restriction template for r.
func Build(r Requirements) (string, error) {
	if err := r.validate(); err != nil {
		return "", err
	}
	t := restrictionTemplate{
		XSI:       xsiNamespace,
		Namespace: templateNamespace,
		Audience:  r.Audience,
		Issuer:    r.Issuer,
		PrimaryVerificationKey: verificationKy{
			Type:     "SymmetricVerificationKey",
			KeyValue: r.VerificationKey,
		},
		TokenType: r.Type,
	}
	if r.RequireKeyIDClaim {
		t.RequiredClaims = append(t.RequiredClaims, tokenClaim{
			ClaimType:  KeyIDClaim,
			ClaimValue: claimValue{Nil: "true"},
		})
	}
	out, err := xml.Marshal(t)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// parsedTemplate mirrors restrictionTemplate without namespace prefixes,
// which encoding/xml resolves while decoding.
type parsedTemplate struct {
	Audience   string   `xml:"Audience"`
	Issuer     string   `xml:"Issuer"`
	KeyValue   string   `xml:"PrimaryVerificationKey>KeyValue"`
	ClaimTypes []string `xml:"RequiredClaims>TokenClaim>ClaimType"`
	TokenType  string   `xml:"TokenType"`
}

// Parse reads back a serialized template.
func Parse(template string) (Requirements, error) {
	var p parsedTemplate
	if err := xml.Unmarshal([]byte(template), &p); err != nil {
		return Requirements{}, errors.Join(media.ErrConfiguration, fmt.Errorf("could not parse token restriction template: %w", err))
	}
	typ, err := ParseType(p.TokenType)
	if err != nil {
		return Requirements{}, err
	}
	r := Requirements{
		Type:            typ,
		VerificationKey: p.KeyValue,
		Issuer:          p.Issuer,
		Audience:        p.Audience,
	}
	for _, c := range p.ClaimTypes {
		if c == KeyIDClaim {
			r.RequireKeyIDClaim = true
		}
	}
	return r, r.validate()
}
