// Package drm dispatches the named provisioning operations to the policy,
// delivery and teardown components.
package drm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opentdf/drmpolicy/pkg/delivery"
	"github.com/opentdf/drmpolicy/pkg/media"
	"github.com/opentdf/drmpolicy/pkg/policy"
	"github.com/opentdf/drmpolicy/pkg/teardown"
	"go.uber.org/zap"
)

// ItemResult is the outcome of one operation on one id.
type ItemResult struct {
	ID      string
	Message string
	Err     error
}

type Engine struct {
	Store    media.Store
	Policies *policy.Composer
	Binder   *delivery.Binder
	Teardown *teardown.Coordinator
	Reporter Reporter
	Logger   *zap.Logger
}

func (e *Engine) reporter() Reporter {
	if e.Reporter == nil {
		return nopReporter{}
	}
	return e.Reporter
}

func (e *Engine) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// Run executes op. Batch operations process every id even when some fail;
// the per-id outcomes are returned. The error is reserved for failures that
// abort the whole operation, such as bad configuration.
func (e *Engine) Run(ctx context.Context, op Operation, ids []string) ([]ItemResult, error) {
	if op.RequiresIDs() && len(ids) == 0 {
		return nil, errors.Join(media.ErrConfiguration, fmt.Errorf("%s requires at least one id", op))
	}
	e.logger().Debug("running operation", zap.Stringer("operation", op), zap.Strings("ids", ids))

	switch op {
	case ListAll:
		if err := e.listKeys(ctx); err != nil {
			return nil, err
		}
		if err := e.listPolicies(ctx); err != nil {
			return nil, err
		}
		return nil, e.listOptions(ctx)
	case ListKeys:
		return nil, e.listKeys(ctx)
	case ListPolicies:
		return nil, e.listPolicies(ctx)
	case ListOptions:
		return nil, e.listOptions(ctx)
	case RemoveKey:
		return e.each(ctx, ids, func(ctx context.Context, id string) (string, error) {
			return "deleted content key", e.Teardown.RemoveKey(ctx, id)
		})
	case RemovePolicy:
		return e.each(ctx, ids, func(ctx context.Context, id string) (string, error) {
			return "deleted authorization policy", e.Teardown.RemovePolicy(ctx, id)
		})
	case RemoveOption:
		return e.each(ctx, ids, func(ctx context.Context, id string) (string, error) {
			return "deleted authorization policy option", e.Teardown.RemoveOption(ctx, id)
		})
	case CreateDRMPolicy:
		return e.createPolicies(ctx)
	case DeleteDRMPolicy:
		names := e.Policies.PolicyNames()
		if err := e.Teardown.RemovePolicies(ctx, names...); err != nil {
			e.reporter().Failure("delete-drm-policy", err)
			return []ItemResult{{ID: "delete-drm-policy", Err: err}}, fatal(err)
		}
		e.reporter().Success("delete-drm-policy", fmt.Sprintf("removed %v", names))
		return nil, nil
	case ApplyDRMPolicyToAsset:
		return e.each(ctx, ids, func(ctx context.Context, id string) (string, error) {
			res, err := e.Binder.ApplyPolicy(ctx, id)
			if err != nil {
				return "", err
			}
			e.reporter().Line("Smooth Streaming URL: %s", res.SmoothStreamingURL())
			e.reporter().Line("MPEG DASH URL: %s", res.DashURL())
			e.reporter().Line("HLS URL: %s", res.HLSURL())
			return "applied DRM policy", nil
		})
	case RemoveDRMPolicyFromAsset:
		return e.each(ctx, ids, func(ctx context.Context, id string) (string, error) {
			u, err := e.Teardown.UnbindAssetPolicies(ctx, id)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("removed %d locator(s), %d delivery policy(ies), %d key(s)",
				len(u.Locators), len(u.DeliveryPolicies), len(u.ContentKeys)), nil
		})
	}
	return nil, errors.Join(media.ErrConfiguration, fmt.Errorf("unsupported operation %s", op))
}

// Failed counts the failed items.
func Failed(results []ItemResult) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

func fatal(err error) error {
	if errors.Is(err, media.ErrConfiguration) {
		return err
	}
	return nil
}

// each runs fn once per id. Only configuration errors and context
// cancellation stop the batch.
func (e *Engine) each(ctx context.Context, ids []string, fn func(context.Context, string) (string, error)) ([]ItemResult, error) {
	results := make([]ItemResult, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		msg, err := fn(ctx, id)
		results = append(results, ItemResult{ID: id, Message: msg, Err: err})
		if err != nil {
			e.logger().Error("operation failed", zap.String("id", id), zap.Error(err))
			e.reporter().Failure(id, err)
			if f := fatal(err); f != nil {
				return results, f
			}
			continue
		}
		e.reporter().Success(id, msg)
	}
	return results, nil
}

func (e *Engine) createPolicies(ctx context.Context) ([]ItemResult, error) {
	var results []ItemResult
	for _, ensure := range []func(context.Context) (media.AuthorizationPolicy, error){
		e.Policies.EnsureCommonPolicy,
		e.Policies.EnsureCommonCbcsPolicy,
	} {
		p, err := ensure(ctx)
		if err != nil {
			e.reporter().Failure("create-drm-policy", err)
			results = append(results, ItemResult{ID: "create-drm-policy", Err: err})
			if f := fatal(err); f != nil {
				return results, f
			}
			continue
		}
		e.reporter().Success(p.ID, p.Name)
		results = append(results, ItemResult{ID: p.ID, Message: p.Name})
	}
	return results, nil
}

func (e *Engine) listKeys(ctx context.Context) error {
	keys, err := e.Store.ListContentKeys(ctx)
	if err != nil {
		return err
	}
	e.reporter().Section("ContentKey List:")
	for _, k := range keys {
		e.reporter().Line("%s = %s [%s] - [%s]", k.ID, k.Name, k.Kind, k.Created.Format(time.RFC3339))
	}
	return nil
}

func (e *Engine) listPolicies(ctx context.Context) error {
	policies, err := e.Store.ListAuthorizationPolicies(ctx)
	if err != nil {
		return err
	}
	e.reporter().Section("ContentKeyAuthorizationPolicy List:")
	for _, p := range policies {
		e.reporter().Line("%s = %s", p.ID, p.Name)
	}
	return nil
}

func (e *Engine) listOptions(ctx context.Context) error {
	options, err := e.Store.ListPolicyOptions(ctx)
	if err != nil {
		return err
	}
	e.reporter().Section("ContentKeyAuthorizationPolicyOptions List:")
	for _, o := range options {
		e.reporter().Line("%s = %s", o.ID, o.Name)
	}
	return nil
}
