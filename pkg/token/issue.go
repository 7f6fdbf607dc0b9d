package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/opentdf/drmpolicy/pkg/media"
	josejwt "gopkg.in/square/go-jose.v2/jwt"
)

var (
	ErrInvalidToken = errors.New("token does not satisfy restriction")
)

const swtSignatureField = "HMACSHA256"

// Issue mints a token accepted by the template built from r. keyID is the
// content key the token is bound to; it may be empty unless r requires the
// key identifier claim.
func Issue(r Requirements, keyID string, ttl time.Duration, now time.Time) (string, error) {
	if err := r.validate(); err != nil {
		return "", err
	}
	key, _ := r.Key()
	kid, err := claimKeyID(r, keyID)
	if err != nil {
		return "", err
	}
	if r.Type == SWT {
		return issueSWT(r, key, kid, now.Add(ttl)), nil
	}

	b := jwt.NewBuilder().
		Issuer(r.Issuer).
		Audience([]string{r.Audience}).
		IssuedAt(now).
		NotBefore(now).
		Expiration(now.Add(ttl))
	if kid != "" {
		b = b.Claim(KeyIDClaim, kid)
	}
	tok, err := b.Build()
	if err != nil {
		return "", err
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, key))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}

func claimKeyID(r Requirements, keyID string) (string, error) {
	if keyID == "" {
		if r.RequireKeyIDClaim {
			return "", errors.Join(media.ErrConfiguration, errors.New("a content key id is required by the token restriction"))
		}
		return "", nil
	}
	u, err := media.UUIDFromKeyID(keyID)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func issueSWT(r Requirements, key []byte, kid string, expires time.Time) string {
	v := url.Values{}
	v.Set("Audience", r.Audience)
	v.Set("ExpiresOn", strconv.FormatInt(expires.Unix(), 10))
	v.Set("Issuer", r.Issuer)
	if kid != "" {
		v.Set(KeyIDClaim, kid)
	}
	body := v.Encode()
	return body + "&" + swtSignatureField + "=" + url.QueryEscape(swtSign(body, key))
}

func swtSign(body string, key []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify checks raw against r. When r requires the key identifier claim the
// token must be bound to keyID.
func Verify(r Requirements, raw string, keyID string, now time.Time) error {
	if err := r.validate(); err != nil {
		return err
	}
	key, _ := r.Key()
	kid, err := claimKeyID(r, keyID)
	if err != nil {
		return err
	}
	if r.Type == SWT {
		return verifySWT(r, key, raw, kid, now)
	}

	tok, err := josejwt.ParseSigned(raw)
	if err != nil {
		return errors.Join(ErrInvalidToken, err)
	}
	var (
		claims josejwt.Claims
		custom = map[string]interface{}{}
	)
	if err := tok.Claims(key, &claims, &custom); err != nil {
		return errors.Join(ErrInvalidToken, err)
	}
	err = claims.ValidateWithLeeway(josejwt.Expected{
		Issuer:   r.Issuer,
		Audience: josejwt.Audience{r.Audience},
		Time:     now,
	}, time.Minute)
	if err != nil {
		return errors.Join(ErrInvalidToken, err)
	}
	if r.RequireKeyIDClaim {
		got, _ := custom[KeyIDClaim].(string)
		if !strings.EqualFold(got, kid) {
			return fmt.Errorf("%w: key id claim %q does not match %q", ErrInvalidToken, got, kid)
		}
	}
	return nil
}

func verifySWT(r Requirements, key []byte, raw, kid string, now time.Time) error {
	i := strings.LastIndex(raw, "&"+swtSignatureField+"=")
	if i < 0 {
		return fmt.Errorf("%w: missing signature", ErrInvalidToken)
	}
	body := raw[:i]
	sig, err := url.QueryUnescape(raw[i+len(swtSignatureField)+2:])
	if err != nil {
		return errors.Join(ErrInvalidToken, err)
	}
	if !hmac.Equal([]byte(sig), []byte(swtSign(body, key))) {
		return fmt.Errorf("%w: bad signature", ErrInvalidToken)
	}
	v, err := url.ParseQuery(body)
	if err != nil {
		return errors.Join(ErrInvalidToken, err)
	}
	if v.Get("Issuer") != r.Issuer || v.Get("Audience") != r.Audience {
		return fmt.Errorf("%w: issuer or audience mismatch", ErrInvalidToken)
	}
	exp, err := strconv.ParseInt(v.Get("ExpiresOn"), 10, 64)
	if err != nil || now.After(time.Unix(exp, 0)) {
		return fmt.Errorf("%w: expired", ErrInvalidToken)
	}
	if r.RequireKeyIDClaim && !strings.EqualFold(v.Get(KeyIDClaim), kid) {
		return fmt.Errorf("%w: key id claim mismatch", ErrInvalidToken)
	}
	return nil
}
