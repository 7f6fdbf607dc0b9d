// Package license builds the per-DRM-system payloads carried by policy
// options: PlayReady license response templates, Widevine policies and
// FairPlay option configurations.
package license

import (
	"encoding/xml"
)

const playReadyNamespace = "http://schemas.microsoft.com/Azure/MediaServices/KeyDelivery/PlayReadyTemplate/v1"

// nonpersistent licenses are held in memory by the client only.
const nonpersistent = "Nonpersistent"

type playReadyResponseTemplate struct {
	XMLName          xml.Name                   `xml:"PlayReadyLicenseResponseTemplate"`
	XSI              string                     `xml:"xmlns:i,attr"`
	Namespace        string                     `xml:"xmlns,attr"`
	LicenseTemplates []playReadyLicenseTemplate `xml:"LicenseTemplates>PlayReadyLicenseTemplate"`
	ResponseCustom   *string                    `xml:"ResponseCustomData,omitempty"`
}

type playReadyLicenseTemplate struct {
	AllowTestDevices bool                `xml:"AllowTestDevices"`
	ContentKey       playReadyContentKey `xml:"ContentKey"`
	LicenseType      string              `xml:"LicenseType"`
	PlayRight        playReadyPlayRight  `xml:"PlayRight"`
}

type playReadyContentKey struct {
	Type string `xml:"i:type,attr"`
}

// playReadyPlayRight carries no output restrictions; the DRM runtime then
// applies its compliance defaults.
type playReadyPlayRight struct {
	AgcAndColorStripeRestriction *int `xml:"AgcAndColorStripeRestriction,omitempty"`
}

// BuildPlayReadyTemplate returns a license response template for a
// non-persistent license at production security level with no explicit
// output protection.
func BuildPlayReadyTemplate() (string, error) {
	t := playReadyResponseTemplate{
		XSI:       "http://www.w3.org/2001/XMLSchema-instance",
		Namespace: playReadyNamespace,
		LicenseTemplates: []playReadyLicenseTemplate{{
			AllowTestDevices: false,
			ContentKey:       playReadyContentKey{Type: "ContentEncryptionKeyFromHeader"},
			LicenseType:      nonpersistent,
		}},
	}
	out, err := xml.Marshal(t)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
