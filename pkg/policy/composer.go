// Package policy composes restriction rules and license payloads into named
// authorization policies.
package policy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/opentdf/drmpolicy/pkg/license"
	"github.com/opentdf/drmpolicy/pkg/media"
	"github.com/opentdf/drmpolicy/pkg/token"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"
)

const (
	OpenRuleName  = "Open"
	TokenRuleName = "Token Authorization Policy"

	DefaultCommonName     = "Open CENC Authorization Policy"
	DefaultCommonCbcsName = "Open CENC cbcs Authorization Policy"
)

var tracer = otel.Tracer("github.com/opentdf/drmpolicy/pkg/policy")

// Names are the configured names of the two policies applied to assets.
type Names struct {
	Common     string
	CommonCbcs string
}

// OptionBuilder produces the license payload for one delivery kind.
type OptionBuilder struct {
	Kind  media.DeliveryKind
	Build func(ctx context.Context) (string, error)
}

type Composer struct {
	Store media.PolicyStore
	// Token gates key delivery when set; otherwise options are open.
	Token    *token.Requirements
	FairPlay license.FairPlayBuilder
	Names    Names
	Logger   *zap.Logger
}

func (c *Composer) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

func (c *Composer) names() Names {
	n := c.Names
	if n.Common == "" {
		n.Common = DefaultCommonName
	}
	if n.CommonCbcs == "" {
		n.CommonCbcs = DefaultCommonCbcsName
	}
	return n
}

// Restrictions returns the rule set shared by every option the composer
// builds.
func (c *Composer) Restrictions() ([]media.RestrictionRule, error) {
	if c.Token == nil {
		return []media.RestrictionRule{{Name: OpenRuleName, Kind: media.Open}}, nil
	}
	tmpl, err := token.Build(*c.Token)
	if err != nil {
		return nil, err
	}
	return []media.RestrictionRule{{
		Name:         TokenRuleName,
		Kind:         media.TokenRestricted,
		Requirements: tmpl,
	}}, nil
}

func (c *Composer) PlayReadyOption() OptionBuilder {
	return OptionBuilder{Kind: media.PlayReadyLicense, Build: func(context.Context) (string, error) {
		return license.BuildPlayReadyTemplate()
	}}
}

func (c *Composer) WidevineOption() OptionBuilder {
	return OptionBuilder{Kind: media.Widevine, Build: func(context.Context) (string, error) {
		return license.BuildWidevineTemplate()
	}}
}

// FairPlayOption mints the ASK and pfx password keys when built.
func (c *Composer) FairPlayOption() OptionBuilder {
	return OptionBuilder{Kind: media.FairPlay, Build: func(ctx context.Context) (string, error) {
		cfg, _, err := c.FairPlay.Build(ctx)
		return cfg, err
	}}
}

// Find returns every policy named exactly name.
func (c *Composer) Find(ctx context.Context, name string) ([]media.AuthorizationPolicy, error) {
	all, err := c.Store.ListAuthorizationPolicies(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not list authorization policies: %w", err)
	}
	var found []media.AuthorizationPolicy
	for _, p := range all {
		if p.Name == name {
			found = append(found, p)
		}
	}
	return found, nil
}

// EnsurePolicy returns the policy named name, creating it from builders if
// it does not exist. An existing policy is returned as is.
func (c *Composer) EnsurePolicy(ctx context.Context, name string, builders ...OptionBuilder) (media.AuthorizationPolicy, error) {
	ctx, span := tracer.Start(ctx, "EnsurePolicy")
	defer span.End()
	span.SetAttributes(attribute.String("policy.name", name))

	p, err := c.ensure(ctx, name, builders)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return media.AuthorizationPolicy{}, err
	}
	span.SetAttributes(attribute.String("policy.id", p.ID))
	return p, nil
}

func (c *Composer) ensure(ctx context.Context, name string, builders []OptionBuilder) (media.AuthorizationPolicy, error) {
	if name == "" {
		return media.AuthorizationPolicy{}, errors.Join(media.ErrConfiguration, errors.New("policy name is empty"))
	}
	existing, err := c.Find(ctx, name)
	if err != nil {
		return media.AuthorizationPolicy{}, err
	}
	switch len(existing) {
	case 0:
	case 1:
		c.logger().Debug("reusing authorization policy", zap.String("name", name), zap.String("id", existing[0].ID))
		return existing[0], nil
	default:
		first := signature(existing[0])
		for _, p := range existing[1:] {
			if signature(p) != first {
				return media.AuthorizationPolicy{}, errors.Join(media.ErrConflict,
					fmt.Errorf("%d authorization policies named %q with different options", len(existing), name))
			}
		}
		c.logger().Warn("duplicate authorization policies", zap.String("name", name), zap.Int("count", len(existing)))
		return existing[0], nil
	}

	rules, err := c.Restrictions()
	if err != nil {
		return media.AuthorizationPolicy{}, err
	}
	// build every payload before touching the store
	payloads := make([]string, len(builders))
	for i, b := range builders {
		if payloads[i], err = b.Build(ctx); err != nil {
			return media.AuthorizationPolicy{}, fmt.Errorf("could not build %s option: %w", b.Kind, err)
		}
	}

	options := make([]media.PolicyOption, 0, len(builders))
	for i, b := range builders {
		o, err := c.Store.CreatePolicyOption(ctx, media.PolicyOption{
			Name:          OptionName(rules[0].Kind, b.Kind),
			DeliveryKind:  b.Kind,
			Restrictions:  rules,
			Configuration: payloads[i],
		})
		if err != nil {
			return media.AuthorizationPolicy{}, fmt.Errorf("could not create %s option: %w", b.Kind, err)
		}
		c.logger().Info("created policy option", zap.String("id", o.ID), zap.String("name", o.Name))
		options = append(options, o)
	}

	p, err := c.Store.CreateAuthorizationPolicy(ctx, media.AuthorizationPolicy{Name: name, Options: options})
	if err != nil {
		return media.AuthorizationPolicy{}, fmt.Errorf("could not create authorization policy %q: %w", name, err)
	}
	c.logger().Info("created authorization policy", zap.String("id", p.ID), zap.String("name", p.Name))
	return p, nil
}

// EnsureCommonPolicy bundles the PlayReady and Widevine options.
func (c *Composer) EnsureCommonPolicy(ctx context.Context) (media.AuthorizationPolicy, error) {
	return c.EnsurePolicy(ctx, c.names().Common, c.PlayReadyOption(), c.WidevineOption())
}

// EnsureCommonCbcsPolicy bundles the FairPlay option.
func (c *Composer) EnsureCommonCbcsPolicy(ctx context.Context) (media.AuthorizationPolicy, error) {
	return c.EnsurePolicy(ctx, c.names().CommonCbcs, c.FairPlayOption())
}

// PolicyNames returns the configured common and common cbcs names.
func (c *Composer) PolicyNames() []string {
	n := c.names()
	return []string{n.Common, n.CommonCbcs}
}

// OptionName is the display name given to a freshly built option, for
// example "TokenRestricted PlayReady Option 1".
func OptionName(r media.RestrictionKind, d media.DeliveryKind) string {
	label := d.String()
	if d == media.PlayReadyLicense {
		label = "PlayReady"
	}
	return fmt.Sprintf("%s %s Option 1", r, label)
}

// signature summarizes what a policy grants: delivery kinds, restriction
// rules with their token templates, and license payloads. FairPlay payloads
// are compared without their key ids and IV, which are minted per build.
func signature(p media.AuthorizationPolicy) string {
	parts := make([]string, 0, len(p.Options))
	for _, o := range p.Options {
		rules := make([]string, 0, len(o.Restrictions))
		for _, r := range o.Restrictions {
			rules = append(rules, r.Kind.String()+"="+r.Requirements)
		}
		slices.Sort(rules)
		parts = append(parts, o.DeliveryKind.String()+"|"+strings.Join(rules, "+")+"|"+payload(o))
	}
	slices.Sort(parts)
	return strings.Join(parts, "\n")
}

func payload(o media.PolicyOption) string {
	if o.DeliveryKind != media.FairPlay {
		return o.Configuration
	}
	cfg, err := license.ParseFairPlayConfiguration(o.Configuration)
	if err != nil {
		return o.Configuration
	}
	return cfg.FairPlayPfx
}
