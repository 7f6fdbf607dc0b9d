package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/opentdf/drmpolicy/pkg/media"
)

// execer is satisfied by both the pool and a transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (s *Store) CreateAsset(ctx context.Context, a media.Asset) (media.Asset, error) {
	if a.ID == "" {
		a.ID = media.NewID(media.AssetIDPrefix)
	}
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO drm.asset (id, name) VALUES (@id, @name)`,
			pgx.NamedArgs{"id": a.ID, "name": a.Name})
		if err != nil {
			return storeError(err, media.ErrNotFound, "asset %s", a.ID)
		}
		for _, f := range a.Files {
			if err := addFile(ctx, tx, a.ID, f); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return media.Asset{}, err
	}
	return s.GetAsset(ctx, a.ID)
}

func addFile(ctx context.Context, db execer, assetID string, f media.AssetFile) error {
	_, err := db.Exec(ctx, `
		INSERT INTO drm.asset_file (asset_id, name, size) VALUES (@asset, @name, @size)
	`, pgx.NamedArgs{"asset": assetID, "name": f.Name, "size": f.Size})
	return storeError(err, media.ErrNotFound, "asset %s", assetID)
}

func (s *Store) AddAssetFile(ctx context.Context, assetID string, file media.AssetFile) error {
	return addFile(ctx, s.db, assetID, file)
}

func (s *Store) GetAsset(ctx context.Context, id string) (media.Asset, error) {
	a := media.Asset{ID: id}
	err := s.db.QueryRow(ctx, `SELECT name FROM drm.asset WHERE id = @id`, pgx.NamedArgs{"id": id}).Scan(&a.Name)
	if err != nil {
		return media.Asset{}, storeError(err, media.ErrNotFound, "asset %s", id)
	}
	if err := s.fillAsset(ctx, &a); err != nil {
		return media.Asset{}, err
	}
	return a, nil
}

func (s *Store) ListAssets(ctx context.Context) ([]media.Asset, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name FROM drm.asset ORDER BY created, id`)
	if err != nil {
		return nil, storeError(err, media.ErrNotFound, "list assets")
	}
	assets, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (media.Asset, error) {
		var a media.Asset
		err := row.Scan(&a.ID, &a.Name)
		return a, err
	})
	if err != nil {
		return nil, err
	}
	for i := range assets {
		if err := s.fillAsset(ctx, &assets[i]); err != nil {
			return nil, err
		}
	}
	return assets, nil
}

// fillAsset loads everything associated with a.
func (s *Store) fillAsset(ctx context.Context, a *media.Asset) error {
	args := pgx.NamedArgs{"asset": a.ID}

	rows, err := s.db.Query(ctx, `
		SELECT name, size FROM drm.asset_file WHERE asset_id = @asset ORDER BY id
	`, args)
	if err != nil {
		return storeError(err, media.ErrNotFound, "files of asset %s", a.ID)
	}
	if a.Files, err = pgx.CollectRows(rows, pgx.RowToStructByPos[media.AssetFile]); err != nil {
		return err
	}

	rows, err = s.db.Query(ctx, `
		SELECT k.id, k.key, k.name, k.kind, COALESCE(k.authorization_policy_id, '') AS authorization_policy_id, k.created
		FROM drm.asset_content_key ak
		INNER JOIN drm.content_key k ON k.id = ak.key_id
		WHERE ak.asset_id = @asset
		ORDER BY ak.id
	`, args)
	if err != nil {
		return storeError(err, media.ErrNotFound, "content keys of asset %s", a.ID)
	}
	if a.ContentKeys, err = collectKeys(rows); err != nil {
		return err
	}

	rows, err = s.db.Query(ctx, `
		SELECT `+deliveryColumns+`
		FROM drm.asset_delivery_policy_link l
		INNER JOIN drm.asset_delivery_policy p ON p.id = l.policy_id
		WHERE l.asset_id = @asset
		ORDER BY l.id
	`, args)
	if err != nil {
		return storeError(err, media.ErrNotFound, "delivery policies of asset %s", a.ID)
	}
	if a.DeliveryPolicies, err = collectDeliveryPolicies(rows); err != nil {
		return err
	}

	rows, err = s.db.Query(ctx, `
		SELECT id, name, type, asset_id, access_policy_id, start_time, path
		FROM drm.locator WHERE asset_id = @asset ORDER BY created, id
	`, args)
	if err != nil {
		return storeError(err, media.ErrNotFound, "locators of asset %s", a.ID)
	}
	found, err := pgx.CollectRows(rows, pgx.RowToStructByName[locatorRow])
	if err != nil {
		return err
	}
	a.Locators = make([]media.Locator, 0, len(found))
	for _, l := range found {
		a.Locators = append(a.Locators, l.locator())
	}
	return nil
}

func (s *Store) AddAssetContentKey(ctx context.Context, assetID, keyID string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO drm.asset_content_key (asset_id, key_id) VALUES (@asset, @key)
	`, pgx.NamedArgs{"asset": assetID, "key": keyID})
	return storeError(err, media.ErrNotFound, "content key %s on asset %s", keyID, assetID)
}

func (s *Store) RemoveAssetContentKey(ctx context.Context, assetID, keyID string) error {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM drm.asset_content_key WHERE asset_id = @asset AND key_id = @key
	`, pgx.NamedArgs{"asset": assetID, "key": keyID})
	if err != nil {
		return storeError(err, media.ErrConflict, "content key %s on asset %s", keyID, assetID)
	}
	return affected(tag, "content key %s on asset %s", keyID, assetID)
}

type deliveryRow struct {
	ID            string                             `db:"id"`
	Name          string                             `db:"name"`
	Scheme        int                                `db:"scheme"`
	Protocols     int                                `db:"protocols"`
	Configuration map[media.DeliveryConfigKey]string `db:"configuration"`
}

const deliveryColumns = `p.id, p.name, p.scheme, p.protocols, p.configuration`

func collectDeliveryPolicies(rows pgx.Rows) ([]media.AssetDeliveryPolicy, error) {
	found, err := pgx.CollectRows(rows, pgx.RowToStructByName[deliveryRow])
	if err != nil {
		return nil, err
	}
	policies := make([]media.AssetDeliveryPolicy, 0, len(found))
	for _, r := range found {
		cfg := r.Configuration
		if cfg == nil {
			cfg = map[media.DeliveryConfigKey]string{}
		}
		policies = append(policies, media.AssetDeliveryPolicy{
			ID:            r.ID,
			Name:          r.Name,
			Scheme:        media.DeliveryScheme(r.Scheme),
			Protocols:     media.Protocol(r.Protocols),
			Configuration: cfg,
		})
	}
	return policies, nil
}

func (s *Store) CreateAssetDeliveryPolicy(ctx context.Context, p media.AssetDeliveryPolicy) (media.AssetDeliveryPolicy, error) {
	if p.ID == "" {
		p.ID = media.NewID(media.DeliveryPolicyIDPrefix)
	}
	if p.Configuration == nil {
		p.Configuration = map[media.DeliveryConfigKey]string{}
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO drm.asset_delivery_policy (id, name, scheme, protocols, configuration)
		VALUES (@id, @name, @scheme, @protocols, @configuration)
	`, pgx.NamedArgs{
		"id":            p.ID,
		"name":          p.Name,
		"scheme":        int(p.Scheme),
		"protocols":     int(p.Protocols),
		"configuration": p.Configuration,
	})
	if err != nil {
		return media.AssetDeliveryPolicy{}, storeError(err, media.ErrNotFound, "asset delivery policy %s", p.ID)
	}
	return p, nil
}

func (s *Store) ListAssetDeliveryPolicies(ctx context.Context) ([]media.AssetDeliveryPolicy, error) {
	rows, err := s.db.Query(ctx, `SELECT `+deliveryColumns+` FROM drm.asset_delivery_policy p ORDER BY p.created, p.id`)
	if err != nil {
		return nil, storeError(err, media.ErrNotFound, "list asset delivery policies")
	}
	return collectDeliveryPolicies(rows)
}

// DeleteAssetDeliveryPolicy fails with media.ErrConflict while an asset
// still links the policy.
func (s *Store) DeleteAssetDeliveryPolicy(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM drm.asset_delivery_policy WHERE id = @id`, pgx.NamedArgs{"id": id})
	if err != nil {
		return storeError(err, media.ErrConflict, "asset delivery policy %s", id)
	}
	return affected(tag, "asset delivery policy %s", id)
}

func (s *Store) AddAssetDeliveryPolicy(ctx context.Context, assetID, policyID string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO drm.asset_delivery_policy_link (asset_id, policy_id) VALUES (@asset, @policy)
	`, pgx.NamedArgs{"asset": assetID, "policy": policyID})
	return storeError(err, media.ErrNotFound, "asset delivery policy %s on asset %s", policyID, assetID)
}

func (s *Store) RemoveAssetDeliveryPolicy(ctx context.Context, assetID, policyID string) error {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM drm.asset_delivery_policy_link WHERE asset_id = @asset AND policy_id = @policy
	`, pgx.NamedArgs{"asset": assetID, "policy": policyID})
	if err != nil {
		return storeError(err, media.ErrConflict, "asset delivery policy %s on asset %s", policyID, assetID)
	}
	return affected(tag, "asset delivery policy %s on asset %s", policyID, assetID)
}

func (s *Store) CreateAccessPolicy(ctx context.Context, p media.AccessPolicy) (media.AccessPolicy, error) {
	if p.ID == "" {
		p.ID = media.NewID(media.AccessPolicyIDPrefix)
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO drm.access_policy (id, name, duration_ms, permissions)
		VALUES (@id, @name, @duration, @permissions)
	`, pgx.NamedArgs{
		"id":          p.ID,
		"name":        p.Name,
		"duration":    p.Duration.Milliseconds(),
		"permissions": int(p.Permissions),
	})
	if err != nil {
		return media.AccessPolicy{}, storeError(err, media.ErrNotFound, "access policy %s", p.ID)
	}
	return p, nil
}

func (s *Store) ListAccessPolicies(ctx context.Context) ([]media.AccessPolicy, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, duration_ms, permissions FROM drm.access_policy ORDER BY created, id
	`)
	if err != nil {
		return nil, storeError(err, media.ErrNotFound, "list access policies")
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (media.AccessPolicy, error) {
		var (
			p           media.AccessPolicy
			ms          int64
			permissions int
		)
		err := row.Scan(&p.ID, &p.Name, &ms, &permissions)
		p.Duration = time.Duration(ms) * time.Millisecond
		p.Permissions = media.Permission(permissions)
		return p, err
	})
}

type locatorRow struct {
	ID             string    `db:"id"`
	Name           string    `db:"name"`
	Type           int       `db:"type"`
	AssetID        string    `db:"asset_id"`
	AccessPolicyID string    `db:"access_policy_id"`
	StartTime      time.Time `db:"start_time"`
	Path           string    `db:"path"`
}

func (r locatorRow) locator() media.Locator {
	return media.Locator{
		ID:             r.ID,
		Name:           r.Name,
		Type:           media.LocatorType(r.Type),
		AssetID:        r.AssetID,
		AccessPolicyID: r.AccessPolicyID,
		StartTime:      r.StartTime.UTC(),
		Path:           r.Path,
	}
}

func (s *Store) CreateLocator(ctx context.Context, l media.Locator) (media.Locator, error) {
	l.ID = media.NewID(media.LocatorIDPrefix)
	l.Path = s.origin + l.ID[len(media.LocatorIDPrefix):] + "/"
	_, err := s.db.Exec(ctx, `
		INSERT INTO drm.locator (id, name, type, asset_id, access_policy_id, start_time, path)
		VALUES (@id, @name, @type, @asset, @access, @start, @path)
	`, pgx.NamedArgs{
		"id":     l.ID,
		"name":   l.Name,
		"type":   int(l.Type),
		"asset":  l.AssetID,
		"access": l.AccessPolicyID,
		"start":  l.StartTime,
		"path":   l.Path,
	})
	if err != nil {
		return media.Locator{}, storeError(err, media.ErrNotFound, "locator on asset %s", l.AssetID)
	}
	return l, nil
}

func (s *Store) DeleteLocator(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM drm.locator WHERE id = @id`, pgx.NamedArgs{"id": id})
	if err != nil {
		return storeError(err, media.ErrConflict, "locator %s", id)
	}
	return affected(tag, "locator %s", id)
}
