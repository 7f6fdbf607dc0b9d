// Package postgres is a media.Store on top of the drm schema created by the
// migrations in internal/db.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/opentdf/drmpolicy/internal/db"
	"github.com/opentdf/drmpolicy/pkg/media"
)

// Postgres error codes.
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

type Store struct {
	db     *db.Client
	origin string
}

// New returns a store. Locator paths are built under origin.
func New(db *db.Client, origin string) *Store {
	if !strings.HasSuffix(origin, "/") {
		origin += "/"
	}
	return &Store{
		db:     db,
		origin: origin,
	}
}

// storeError maps pgx errors onto the media sentinels. fk is the sentinel
// used for foreign key violations, which mean a missing parent on insert and
// a remaining reference on delete.
func storeError(err error, fk media.Error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	msg := fmt.Errorf(format, args...)
	if errors.Is(err, pgx.ErrNoRows) {
		return errors.Join(media.ErrNotFound, msg)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return errors.Join(media.ErrConflict, msg, err)
		case foreignKeyViolation:
			return errors.Join(fk, msg, err)
		}
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func affected(tag pgconn.CommandTag, format string, args ...any) error {
	if tag.RowsAffected() == 0 {
		return errors.Join(media.ErrNotFound, fmt.Errorf(format, args...))
	}
	return nil
}

type keyRow struct {
	ID       string    `db:"id"`
	Key      []byte    `db:"key"`
	Name     string    `db:"name"`
	Kind     string    `db:"kind"`
	PolicyID string    `db:"authorization_policy_id"`
	Created  time.Time `db:"created"`
}

func (r keyRow) contentKey() (media.ContentKey, error) {
	kind, err := media.ParseKeyKind(r.Kind)
	if err != nil {
		return media.ContentKey{}, err
	}
	return media.ContentKey{
		ID:                    r.ID,
		Key:                   r.Key,
		Name:                  r.Name,
		Kind:                  kind,
		AuthorizationPolicyID: r.PolicyID,
		Created:               r.Created.UTC(),
	}, nil
}

const keyColumns = `id, key, name, kind, COALESCE(authorization_policy_id, '') AS authorization_policy_id, created`

func (s *Store) CreateContentKey(ctx context.Context, key media.ContentKey) (media.ContentKey, error) {
	if key.ID == "" {
		key.ID = media.NewID(media.KeyIDPrefix)
	}
	args := pgx.NamedArgs{
		"id":     key.ID,
		"key":    key.Key,
		"name":   key.Name,
		"kind":   key.Kind.String(),
		"policy": key.AuthorizationPolicyID,
	}
	rows, err := s.db.Query(ctx, `
		INSERT INTO drm.content_key (id, key, name, kind, authorization_policy_id)
		VALUES (@id, @key, @name, @kind, NULLIF(@policy, ''))
		RETURNING `+keyColumns, args)
	if err != nil {
		return media.ContentKey{}, storeError(err, media.ErrNotFound, "content key %s", key.ID)
	}
	row, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[keyRow])
	if err != nil {
		return media.ContentKey{}, storeError(err, media.ErrNotFound, "content key %s", key.ID)
	}
	return row.contentKey()
}

func (s *Store) GetContentKey(ctx context.Context, id string) (media.ContentKey, error) {
	rows, err := s.db.Query(ctx, `SELECT `+keyColumns+` FROM drm.content_key WHERE id = @id`, pgx.NamedArgs{"id": id})
	if err != nil {
		return media.ContentKey{}, storeError(err, media.ErrNotFound, "content key %s", id)
	}
	row, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[keyRow])
	if err != nil {
		return media.ContentKey{}, storeError(err, media.ErrNotFound, "content key %s", id)
	}
	return row.contentKey()
}

func (s *Store) ListContentKeys(ctx context.Context) ([]media.ContentKey, error) {
	rows, err := s.db.Query(ctx, `SELECT `+keyColumns+` FROM drm.content_key ORDER BY created, id`)
	if err != nil {
		return nil, storeError(err, media.ErrNotFound, "list content keys")
	}
	return collectKeys(rows)
}

func collectKeys(rows pgx.Rows) ([]media.ContentKey, error) {
	found, err := pgx.CollectRows(rows, pgx.RowToStructByName[keyRow])
	if err != nil {
		return nil, err
	}
	keys := make([]media.ContentKey, 0, len(found))
	for _, r := range found {
		k, err := r.contentKey()
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *Store) UpdateContentKey(ctx context.Context, key media.ContentKey) (media.ContentKey, error) {
	args := pgx.NamedArgs{
		"id":     key.ID,
		"name":   key.Name,
		"policy": key.AuthorizationPolicyID,
	}
	rows, err := s.db.Query(ctx, `
		UPDATE drm.content_key
		SET name = @name, authorization_policy_id = NULLIF(@policy, '')
		WHERE id = @id
		RETURNING `+keyColumns, args)
	if err != nil {
		return media.ContentKey{}, storeError(err, media.ErrNotFound, "content key %s", key.ID)
	}
	row, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[keyRow])
	if err != nil {
		return media.ContentKey{}, storeError(err, media.ErrNotFound, "content key %s", key.ID)
	}
	return row.contentKey()
}

func (s *Store) DeleteContentKey(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM drm.content_key WHERE id = @id`, pgx.NamedArgs{"id": id})
	if err != nil {
		return storeError(err, media.ErrConflict, "content key %s", id)
	}
	return affected(tag, "content key %s", id)
}

type optionRow struct {
	ID            string                  `db:"id"`
	Name          string                  `db:"name"`
	DeliveryKind  int                     `db:"delivery_kind"`
	Restrictions  []media.RestrictionRule `db:"restrictions"`
	Configuration string                  `db:"configuration"`
}

func (r optionRow) option() media.PolicyOption {
	restrictions := r.Restrictions
	if restrictions == nil {
		restrictions = []media.RestrictionRule{}
	}
	return media.PolicyOption{
		ID:            r.ID,
		Name:          r.Name,
		DeliveryKind:  media.DeliveryKind(r.DeliveryKind),
		Restrictions:  restrictions,
		Configuration: r.Configuration,
	}
}

const optionColumns = `o.id, o.name, o.delivery_kind, o.restrictions, o.configuration`

func (s *Store) CreatePolicyOption(ctx context.Context, option media.PolicyOption) (media.PolicyOption, error) {
	if option.ID == "" {
		option.ID = media.NewID(media.OptionIDPrefix)
	}
	restrictions := option.Restrictions
	if restrictions == nil {
		restrictions = []media.RestrictionRule{}
	}
	args := pgx.NamedArgs{
		"id":            option.ID,
		"name":          option.Name,
		"kind":          int(option.DeliveryKind),
		"restrictions":  restrictions,
		"configuration": option.Configuration,
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO drm.policy_option (id, name, delivery_kind, restrictions, configuration)
		VALUES (@id, @name, @kind, @restrictions, @configuration)
	`, args)
	if err != nil {
		return media.PolicyOption{}, storeError(err, media.ErrNotFound, "policy option %s", option.ID)
	}
	option.Restrictions = restrictions
	return option, nil
}

func (s *Store) GetPolicyOption(ctx context.Context, id string) (media.PolicyOption, error) {
	rows, err := s.db.Query(ctx, `SELECT `+optionColumns+` FROM drm.policy_option o WHERE o.id = @id`, pgx.NamedArgs{"id": id})
	if err != nil {
		return media.PolicyOption{}, storeError(err, media.ErrNotFound, "policy option %s", id)
	}
	row, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[optionRow])
	if err != nil {
		return media.PolicyOption{}, storeError(err, media.ErrNotFound, "policy option %s", id)
	}
	return row.option(), nil
}

func (s *Store) ListPolicyOptions(ctx context.Context) ([]media.PolicyOption, error) {
	rows, err := s.db.Query(ctx, `SELECT `+optionColumns+` FROM drm.policy_option o ORDER BY o.created, o.id`)
	if err != nil {
		return nil, storeError(err, media.ErrNotFound, "list policy options")
	}
	return collectOptions(rows)
}

func collectOptions(rows pgx.Rows) ([]media.PolicyOption, error) {
	found, err := pgx.CollectRows(rows, pgx.RowToStructByName[optionRow])
	if err != nil {
		return nil, err
	}
	options := make([]media.PolicyOption, 0, len(found))
	for _, r := range found {
		options = append(options, r.option())
	}
	return options, nil
}

// DeletePolicyOption also drops the option's policy links through the
// cascading foreign key.
func (s *Store) DeletePolicyOption(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM drm.policy_option WHERE id = @id`, pgx.NamedArgs{"id": id})
	if err != nil {
		return storeError(err, media.ErrConflict, "policy option %s", id)
	}
	return affected(tag, "policy option %s", id)
}

func (s *Store) CreateAuthorizationPolicy(ctx context.Context, policy media.AuthorizationPolicy) (media.AuthorizationPolicy, error) {
	if policy.ID == "" {
		policy.ID = media.NewID(media.PolicyIDPrefix)
	}
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO drm.authorization_policy (id, name) VALUES (@id, @name)
		`, pgx.NamedArgs{"id": policy.ID, "name": policy.Name})
		if err != nil {
			return storeError(err, media.ErrNotFound, "authorization policy %s", policy.ID)
		}
		for i, o := range policy.Options {
			_, err := tx.Exec(ctx, `
				INSERT INTO drm.authorization_policy_option (policy_id, option_id, position)
				VALUES (@policy, @option, @position)
			`, pgx.NamedArgs{"policy": policy.ID, "option": o.ID, "position": i})
			if err != nil {
				return storeError(err, media.ErrNotFound, "policy option %s", o.ID)
			}
		}
		return nil
	})
	if err != nil {
		return media.AuthorizationPolicy{}, err
	}
	return s.GetAuthorizationPolicy(ctx, policy.ID)
}

func (s *Store) policyOptions(ctx context.Context, id string) ([]media.PolicyOption, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+optionColumns+`
		FROM drm.authorization_policy_option po
		INNER JOIN drm.policy_option o ON o.id = po.option_id
		WHERE po.policy_id = @id
		ORDER BY po.position
	`, pgx.NamedArgs{"id": id})
	if err != nil {
		return nil, storeError(err, media.ErrNotFound, "options of authorization policy %s", id)
	}
	return collectOptions(rows)
}

func (s *Store) GetAuthorizationPolicy(ctx context.Context, id string) (media.AuthorizationPolicy, error) {
	var p media.AuthorizationPolicy
	err := s.db.QueryRow(ctx, `SELECT id, name FROM drm.authorization_policy WHERE id = @id`, pgx.NamedArgs{"id": id}).
		Scan(&p.ID, &p.Name)
	if err != nil {
		return media.AuthorizationPolicy{}, storeError(err, media.ErrNotFound, "authorization policy %s", id)
	}
	if p.Options, err = s.policyOptions(ctx, id); err != nil {
		return media.AuthorizationPolicy{}, err
	}
	return p, nil
}

func (s *Store) ListAuthorizationPolicies(ctx context.Context) ([]media.AuthorizationPolicy, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name FROM drm.authorization_policy ORDER BY created, id`)
	if err != nil {
		return nil, storeError(err, media.ErrNotFound, "list authorization policies")
	}
	policies, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (media.AuthorizationPolicy, error) {
		var p media.AuthorizationPolicy
		err := row.Scan(&p.ID, &p.Name)
		return p, err
	})
	if err != nil {
		return nil, err
	}
	for i := range policies {
		if policies[i].Options, err = s.policyOptions(ctx, policies[i].ID); err != nil {
			return nil, err
		}
	}
	return policies, nil
}

// DeleteAuthorizationPolicy removes the policy and its option links. The
// options themselves survive.
func (s *Store) DeleteAuthorizationPolicy(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM drm.authorization_policy WHERE id = @id`, pgx.NamedArgs{"id": id})
	if err != nil {
		return storeError(err, media.ErrConflict, "authorization policy %s", id)
	}
	return affected(tag, "authorization policy %s", id)
}

var _ media.Store = (*Store)(nil)
