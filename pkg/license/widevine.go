package license

import (
	"github.com/goccy/go-json"
)

type WidevineMessage struct {
	AllowedTrackTypes string            `json:"allowed_track_types"`
	ContentKeySpecs   []ContentKeySpec  `json:"content_key_specs"`
	PolicyOverrides   WidevineOverrides `json:"policy_overrides"`
}

type ContentKeySpec struct {
	TrackType                string                   `json:"track_type"`
	KeyID                    *string                  `json:"key_id"`
	SecurityLevel            int                      `json:"security_level"`
	RequiredOutputProtection RequiredOutputProtection `json:"required_output_protection"`
}

type RequiredOutputProtection struct {
	HDCP string `json:"hdcp"`
}

type WidevineOverrides struct {
	CanPlay          bool   `json:"can_play"`
	CanPersist       bool   `json:"can_persist"`
	CanRenew         bool   `json:"can_renew"`
	RenewalServerURL string `json:"renewal_server_url,omitempty"`
}

const (
	TracksSDHD = "SD_HD"
	HDCPNone   = "HDCP_NONE"
)

// BuildWidevineTemplate returns the Widevine policy: SD and HD tracks, one
// SD key spec at security level 1 without HDCP, playable and persistable
// but not renewable.
func BuildWidevineTemplate() (string, error) {
	m := WidevineMessage{
		AllowedTrackTypes: TracksSDHD,
		ContentKeySpecs: []ContentKeySpec{{
			TrackType:                "SD",
			SecurityLevel:            1,
			RequiredOutputProtection: RequiredOutputProtection{HDCP: HDCPNone},
		}},
		PolicyOverrides: WidevineOverrides{
			CanPlay:    true,
			CanPersist: true,
			CanRenew:   false,
		},
	}
	out, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
