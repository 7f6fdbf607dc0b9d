// Package mediaservice implements media.Store against the store service
// served by `drmpolicy serve`.
package mediaservice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
	"github.com/opentdf/drmpolicy/pkg/media"
)

const apiPrefix = "api"

type Client struct {
	*http.Client
	Endpoint *url.URL
}

type ClientOptions struct {
	// HTTPClient carries authentication, usually an oauth2 client.
	HTTPClient *http.Client
	Endpoint   *url.URL
}

type errorBody struct {
	Error string `json:"error"`
}

func NewClient(ops ClientOptions) (*Client, error) {
	if ops.HTTPClient == nil {
		return nil, errors.Join(media.ErrConfiguration, errors.New("http client cannot be nil. use golang oauth2 package to create an http client"))
	}
	if ops.Endpoint == nil || !ops.Endpoint.IsAbs() {
		return nil, errors.Join(media.ErrConfiguration, errors.New("store endpoint must be an absolute url"))
	}
	return &Client{
		Client:   ops.HTTPClient,
		Endpoint: ops.Endpoint,
	}, nil
}

func (c *Client) url(segments ...string) string {
	escaped := make([]string, 0, len(segments)+1)
	escaped = append(escaped, apiPrefix)
	for _, s := range segments {
		escaped = append(escaped, url.PathEscape(s))
	}
	return strings.TrimSuffix(c.Endpoint.String(), "/") + "/" + strings.Join(escaped, "/")
}

// do sends in as JSON and decodes the response into out. Either may be nil.
func (c *Client) do(ctx context.Context, method, endpoint string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(method, endpoint, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("could not decode %s %s: %w", method, endpoint, err)
	}
	return nil
}

func statusError(method, endpoint string, resp *http.Response) error {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	msg := strings.TrimSpace(string(raw))
	var e errorBody
	if json.Unmarshal(raw, &e) == nil && e.Error != "" {
		msg = e.Error
	}
	cause := fmt.Errorf("%s %s failed with status code: %d body: %s", method, endpoint, resp.StatusCode, msg)
	switch resp.StatusCode {
	case http.StatusNotFound:
		return errors.Join(media.ErrNotFound, cause)
	case http.StatusConflict:
		return errors.Join(media.ErrConflict, cause)
	case http.StatusBadRequest:
		return errors.Join(media.ErrConfiguration, cause)
	}
	return cause
}

func (c *Client) CreateContentKey(ctx context.Context, key media.ContentKey) (media.ContentKey, error) {
	var out media.ContentKey
	err := c.do(ctx, http.MethodPost, c.url("contentkeys"), key, &out)
	return out, err
}

func (c *Client) GetContentKey(ctx context.Context, id string) (media.ContentKey, error) {
	var out media.ContentKey
	err := c.do(ctx, http.MethodGet, c.url("contentkeys", id), nil, &out)
	return out, err
}

func (c *Client) ListContentKeys(ctx context.Context) ([]media.ContentKey, error) {
	var out []media.ContentKey
	err := c.do(ctx, http.MethodGet, c.url("contentkeys"), nil, &out)
	return out, err
}

func (c *Client) UpdateContentKey(ctx context.Context, key media.ContentKey) (media.ContentKey, error) {
	var out media.ContentKey
	err := c.do(ctx, http.MethodPut, c.url("contentkeys", key.ID), key, &out)
	return out, err
}

func (c *Client) DeleteContentKey(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, c.url("contentkeys", id), nil, nil)
}

func (c *Client) CreatePolicyOption(ctx context.Context, option media.PolicyOption) (media.PolicyOption, error) {
	var out media.PolicyOption
	err := c.do(ctx, http.MethodPost, c.url("options"), option, &out)
	return out, err
}

func (c *Client) GetPolicyOption(ctx context.Context, id string) (media.PolicyOption, error) {
	var out media.PolicyOption
	err := c.do(ctx, http.MethodGet, c.url("options", id), nil, &out)
	return out, err
}

func (c *Client) ListPolicyOptions(ctx context.Context) ([]media.PolicyOption, error) {
	var out []media.PolicyOption
	err := c.do(ctx, http.MethodGet, c.url("options"), nil, &out)
	return out, err
}

func (c *Client) DeletePolicyOption(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, c.url("options", id), nil, nil)
}

func (c *Client) CreateAuthorizationPolicy(ctx context.Context, policy media.AuthorizationPolicy) (media.AuthorizationPolicy, error) {
	var out media.AuthorizationPolicy
	err := c.do(ctx, http.MethodPost, c.url("policies"), policy, &out)
	return out, err
}

func (c *Client) GetAuthorizationPolicy(ctx context.Context, id string) (media.AuthorizationPolicy, error) {
	var out media.AuthorizationPolicy
	err := c.do(ctx, http.MethodGet, c.url("policies", id), nil, &out)
	return out, err
}

func (c *Client) ListAuthorizationPolicies(ctx context.Context) ([]media.AuthorizationPolicy, error) {
	var out []media.AuthorizationPolicy
	err := c.do(ctx, http.MethodGet, c.url("policies"), nil, &out)
	return out, err
}

func (c *Client) DeleteAuthorizationPolicy(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, c.url("policies", id), nil, nil)
}

func (c *Client) CreateAsset(ctx context.Context, asset media.Asset) (media.Asset, error) {
	var out media.Asset
	err := c.do(ctx, http.MethodPost, c.url("assets"), asset, &out)
	return out, err
}

func (c *Client) GetAsset(ctx context.Context, id string) (media.Asset, error) {
	var out media.Asset
	err := c.do(ctx, http.MethodGet, c.url("assets", id), nil, &out)
	return out, err
}

func (c *Client) ListAssets(ctx context.Context) ([]media.Asset, error) {
	var out []media.Asset
	err := c.do(ctx, http.MethodGet, c.url("assets"), nil, &out)
	return out, err
}

func (c *Client) AddAssetFile(ctx context.Context, assetID string, file media.AssetFile) error {
	return c.do(ctx, http.MethodPost, c.url("assets", assetID, "files"), file, nil)
}

func (c *Client) AddAssetContentKey(ctx context.Context, assetID, keyID string) error {
	return c.do(ctx, http.MethodPut, c.url("assets", assetID, "contentkeys", keyID), nil, nil)
}

func (c *Client) RemoveAssetContentKey(ctx context.Context, assetID, keyID string) error {
	return c.do(ctx, http.MethodDelete, c.url("assets", assetID, "contentkeys", keyID), nil, nil)
}

func (c *Client) CreateAssetDeliveryPolicy(ctx context.Context, policy media.AssetDeliveryPolicy) (media.AssetDeliveryPolicy, error) {
	var out media.AssetDeliveryPolicy
	err := c.do(ctx, http.MethodPost, c.url("deliverypolicies"), policy, &out)
	return out, err
}

func (c *Client) ListAssetDeliveryPolicies(ctx context.Context) ([]media.AssetDeliveryPolicy, error) {
	var out []media.AssetDeliveryPolicy
	err := c.do(ctx, http.MethodGet, c.url("deliverypolicies"), nil, &out)
	return out, err
}

func (c *Client) DeleteAssetDeliveryPolicy(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, c.url("deliverypolicies", id), nil, nil)
}

func (c *Client) AddAssetDeliveryPolicy(ctx context.Context, assetID, policyID string) error {
	return c.do(ctx, http.MethodPut, c.url("assets", assetID, "deliverypolicies", policyID), nil, nil)
}

func (c *Client) RemoveAssetDeliveryPolicy(ctx context.Context, assetID, policyID string) error {
	return c.do(ctx, http.MethodDelete, c.url("assets", assetID, "deliverypolicies", policyID), nil, nil)
}

func (c *Client) CreateAccessPolicy(ctx context.Context, policy media.AccessPolicy) (media.AccessPolicy, error) {
	var out media.AccessPolicy
	err := c.do(ctx, http.MethodPost, c.url("accesspolicies"), policy, &out)
	return out, err
}

func (c *Client) ListAccessPolicies(ctx context.Context) ([]media.AccessPolicy, error) {
	var out []media.AccessPolicy
	err := c.do(ctx, http.MethodGet, c.url("accesspolicies"), nil, &out)
	return out, err
}

func (c *Client) CreateLocator(ctx context.Context, locator media.Locator) (media.Locator, error) {
	var out media.Locator
	err := c.do(ctx, http.MethodPost, c.url("locators"), locator, &out)
	return out, err
}

func (c *Client) DeleteLocator(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, c.url("locators", id), nil, nil)
}

var _ media.Store = (*Client)(nil)
