// Package auth authenticates the store client against an OpenID provider.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/opentdf/drmpolicy/internal/version"
	"github.com/opentdf/drmpolicy/pkg/media"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

type ClientCredentials struct {
	Config *clientcredentials.Config
	// Base is the transport under the oauth2 one. Defaults to
	// http.DefaultTransport.
	Base http.RoundTripper
}

// Discover builds client credentials from the token endpoint advertised
// by issuer.
func Discover(ctx context.Context, issuer, clientID, clientSecret string) (*ClientCredentials, error) {
	if issuer == "" || clientID == "" || clientSecret == "" {
		return nil, errors.Join(media.ErrConfiguration, errors.New("store.issuer, store.clientid and store.clientsecret are required"))
	}
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("could not discover %s: %w", issuer, err)
	}
	return &ClientCredentials{
		Config: &clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Scopes:       []string{oidc.ScopeOpenID},
			TokenURL:     provider.Endpoint().TokenURL,
		},
	}, nil
}

func (cc *ClientCredentials) context(ctx context.Context) context.Context {
	hc := &http.Client{Transport: &userAgentTransport{base: cc.Base, agent: version.UserAgent()}}
	return context.WithValue(ctx, oauth2.HTTPClient, hc)
}

func (cc *ClientCredentials) Login(ctx context.Context) (*oauth2.Token, error) {
	tokens, err := cc.Config.Token(cc.context(ctx))
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

// Client fetches a first token so bad credentials fail early, then returns
// a client that refreshes it as needed.
func (cc *ClientCredentials) Client(ctx context.Context) (*http.Client, error) {
	ctx = cc.context(ctx)
	tok, err := cc.Config.Token(ctx)
	if err != nil {
		return nil, err
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(tok, cc.Config.TokenSource(ctx))), nil
}

type userAgentTransport struct {
	base  http.RoundTripper
	agent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.agent)
	return base.RoundTrip(req)
}

// NewHTTPClient returns an unauthenticated client that still identifies
// itself, for stores without an issuer.
func NewHTTPClient(base http.RoundTripper) *http.Client {
	return &http.Client{Transport: &userAgentTransport{base: base, agent: version.UserAgent()}}
}
