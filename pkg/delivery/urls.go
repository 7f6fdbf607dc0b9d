package delivery

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/opentdf/drmpolicy/pkg/media"
)

// StreamingKeyScheme is the device local scheme FairPlay clients expect in
// HLS key URIs.
const StreamingKeyScheme = "skd"

// URLResolver derives license acquisition URLs from the key delivery
// service base URL.
type URLResolver struct {
	Base *url.URL
}

func NewURLResolver(base string) (*URLResolver, error) {
	u, err := url.Parse(base)
	if err != nil || !u.IsAbs() {
		return nil, errors.Join(media.ErrConfiguration, fmt.Errorf("key delivery base url %q is not absolute", base))
	}
	return &URLResolver{Base: u}, nil
}

// KeyDeliveryURL returns <base>/PlayReady/ for PlayReady and
// <base>/<system>/?KID=<uuid> for Widevine and FairPlay.
func (r *URLResolver) KeyDeliveryURL(_ context.Context, key media.ContentKey, kind media.DeliveryKind) (*url.URL, error) {
	if r == nil || r.Base == nil {
		return nil, errors.Join(media.ErrConfiguration, errors.New("no key delivery base url"))
	}
	u := *r.Base
	u.RawQuery = ""
	base := strings.TrimSuffix(u.Path, "/")
	switch kind {
	case media.PlayReadyLicense:
		u.Path = base + "/PlayReady/"
		return &u, nil
	case media.Widevine, media.FairPlay:
		kid, err := media.UUIDFromKeyID(key.ID)
		if err != nil {
			return nil, err
		}
		u.Path = base + "/" + kind.String() + "/"
		u.RawQuery = url.Values{"KID": []string{kid.String()}}.Encode()
		return &u, nil
	}
	return nil, errors.Join(media.ErrConfiguration, fmt.Errorf("no key delivery url for %s", kind))
}

// StripQuery drops the query string. The origin appends the key id itself
// when it writes the manifest.
func StripQuery(u *url.URL) *url.URL {
	out := *u
	out.RawQuery = ""
	out.ForceQuery = false
	return &out
}

func ToStreamingKeyScheme(u *url.URL) *url.URL {
	out := *u
	out.Scheme = StreamingKeyScheme
	return &out
}

const (
	smoothSuffix = "/manifest"
	dashSuffix   = "/manifest(format=mpd-time-csf)"
	hlsSuffix    = "/manifest(format=m3u8-aapl)"
)
