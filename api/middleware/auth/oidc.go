package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"go.uber.org/zap"
)

const bearerPrefix = "Bearer "

type Verifier struct {
	cache  *jwk.Cache
	jwks   string
	issuer string
	logger *zap.Logger
}

// DiscoverJWKS reads the jwks_uri of an OpenID provider.
func DiscoverJWKS(ctx context.Context, issuer string) (string, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return "", fmt.Errorf("could not discover %s: %w", issuer, err)
	}
	var claims struct {
		JWKSURL string `json:"jwks_uri"`
	}
	if err := provider.Claims(&claims); err != nil {
		return "", err
	}
	if claims.JWKSURL == "" {
		return "", fmt.Errorf("%s does not advertise a jwks_uri", issuer)
	}
	return claims.JWKSURL, nil
}

// NewVerifier starts a key cache on jwks. When issuer is set, tokens must
// carry it in their iss claim.
func NewVerifier(ctx context.Context, jwks, issuer string, logger *zap.Logger) (*Verifier, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := jwk.NewCache(ctx)
	if err := c.Register(jwks, jwk.WithMinRefreshInterval(15*time.Minute)); err != nil {
		return nil, err
	}
	if _, err := c.Refresh(ctx, jwks); err != nil {
		return nil, fmt.Errorf("could not fetch %s: %w", jwks, err)
	}
	logger.Info("jwk cache started", zap.String("jwks", jwks))
	return &Verifier{cache: c, jwks: jwks, issuer: issuer, logger: logger}, nil
}

// Middleware rejects requests without a valid bearer token.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keyset, err := v.cache.Get(r.Context(), v.jwks)
		if err != nil {
			v.logger.Error("could not retrieve keyset", zap.Error(err))
			http.Error(w, "internal server error validating authorization header", http.StatusInternalServerError)
			return
		}
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), bearerPrefix)
		if !ok || raw == "" {
			http.Error(w, "missing authorization header", http.StatusUnauthorized)
			return
		}
		opts := []jwt.ParseOption{jwt.WithKeySet(keyset), jwt.WithValidate(true)}
		if v.issuer != "" {
			opts = append(opts, jwt.WithIssuer(v.issuer))
		}
		_, err = jwt.ParseString(raw, opts...)
		if err == nil {
			next.ServeHTTP(w, r)
			return
		}
		if errors.Is(err, context.Canceled) {
			return
		}
		if jwt.IsValidationError(err) {
			v.logger.Debug("jwt could not be validated", zap.Error(err))
		} else {
			v.logger.Debug("jwt could not be parsed", zap.Error(err))
		}
		http.Error(w, err.Error(), http.StatusUnauthorized)
	})
}
