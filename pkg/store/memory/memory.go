// Package memory is an in-process media.Store. It backs the test suites and
// the `--store memory` dry-run mode, and can be served over HTTP by the store
// service.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/opentdf/drmpolicy/pkg/media"
	"golang.org/x/exp/slices"
)

type asset struct {
	id       string
	name     string
	keys     []string
	policies []string
	files    []media.AssetFile
	created  time.Time
}

// Store keeps every entity in maps guarded by one lock.
type Store struct {
	mu sync.RWMutex

	origin string
	now    func() time.Time

	keys            map[string]media.ContentKey
	options         map[string]media.PolicyOption
	policies        map[string]policyRecord
	assets          map[string]*asset
	deliveryRecords map[string]media.AssetDeliveryPolicy
	accessPolicies  map[string]media.AccessPolicy
	locators        map[string]media.Locator

	// insertion order, so listings are stable
	seq map[string]int
	n   int
}

type policyRecord struct {
	id      string
	name    string
	options []string
}

// New returns an empty store. Locator paths are built under origin.
func New(origin string) *Store {
	if !strings.HasSuffix(origin, "/") {
		origin += "/"
	}
	return &Store{
		origin:          origin,
		now:             time.Now,
		keys:            map[string]media.ContentKey{},
		options:         map[string]media.PolicyOption{},
		policies:        map[string]policyRecord{},
		assets:          map[string]*asset{},
		deliveryRecords: map[string]media.AssetDeliveryPolicy{},
		accessPolicies:  map[string]media.AccessPolicy{},
		locators:        map[string]media.Locator{},
		seq:             map[string]int{},
	}
}

func notFound(kind, id string) error {
	return errors.Join(media.ErrNotFound, fmt.Errorf("%s %s", kind, id))
}

func (s *Store) track(id string) {
	s.n++
	s.seq[id] = s.n
}

func sortedIDs[T any](s *Store, m map[string]T) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return s.seq[ids[i]] < s.seq[ids[j]] })
	return ids
}

func (s *Store) CreateContentKey(_ context.Context, key media.ContentKey) (media.ContentKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key.ID == "" {
		key.ID = media.NewID(media.KeyIDPrefix)
	}
	if _, ok := s.keys[key.ID]; ok {
		return media.ContentKey{}, errors.Join(media.ErrConflict, fmt.Errorf("content key %s already exists", key.ID))
	}
	if key.Created.IsZero() {
		key.Created = s.now().UTC()
	}
	key.Key = slices.Clone(key.Key)
	s.keys[key.ID] = key
	s.track(key.ID)
	return key, nil
}

func (s *Store) GetContentKey(_ context.Context, id string) (media.ContentKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.keys[id]
	if !ok {
		return media.ContentKey{}, notFound("content key", id)
	}
	return k, nil
}

func (s *Store) ListContentKeys(_ context.Context) ([]media.ContentKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := []media.ContentKey{}
	for _, id := range sortedIDs(s, s.keys) {
		keys = append(keys, s.keys[id])
	}
	return keys, nil
}

func (s *Store) UpdateContentKey(_ context.Context, key media.ContentKey) (media.ContentKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.keys[key.ID]
	if !ok {
		return media.ContentKey{}, notFound("content key", key.ID)
	}
	// only the name and the policy reference are mutable
	cur.Name = key.Name
	cur.AuthorizationPolicyID = key.AuthorizationPolicyID
	s.keys[key.ID] = cur
	return cur, nil
}

func (s *Store) DeleteContentKey(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[id]; !ok {
		return notFound("content key", id)
	}
	delete(s.keys, id)
	for _, a := range s.assets {
		a.keys = slices.DeleteFunc(a.keys, func(k string) bool { return k == id })
	}
	return nil
}

func (s *Store) CreatePolicyOption(_ context.Context, option media.PolicyOption) (media.PolicyOption, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if option.ID == "" {
		option.ID = media.NewID(media.OptionIDPrefix)
	}
	option.Restrictions = slices.Clone(option.Restrictions)
	s.options[option.ID] = option
	s.track(option.ID)
	return option, nil
}

func (s *Store) GetPolicyOption(_ context.Context, id string) (media.PolicyOption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.options[id]
	if !ok {
		return media.PolicyOption{}, notFound("policy option", id)
	}
	return o, nil
}

func (s *Store) ListPolicyOptions(_ context.Context) ([]media.PolicyOption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	options := []media.PolicyOption{}
	for _, id := range sortedIDs(s, s.options) {
		options = append(options, s.options[id])
	}
	return options, nil
}

func (s *Store) DeletePolicyOption(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.options[id]; !ok {
		return notFound("policy option", id)
	}
	delete(s.options, id)
	for pid, p := range s.policies {
		p.options = slices.DeleteFunc(p.options, func(o string) bool { return o == id })
		s.policies[pid] = p
	}
	return nil
}

func (s *Store) CreateAuthorizationPolicy(_ context.Context, policy media.AuthorizationPolicy) (media.AuthorizationPolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := policyRecord{id: policy.ID, name: policy.Name}
	if rec.id == "" {
		rec.id = media.NewID(media.PolicyIDPrefix)
	}
	for _, o := range policy.Options {
		if _, ok := s.options[o.ID]; !ok {
			return media.AuthorizationPolicy{}, notFound("policy option", o.ID)
		}
		rec.options = append(rec.options, o.ID)
	}
	s.policies[rec.id] = rec
	s.track(rec.id)
	return s.policy(rec), nil
}

func (s *Store) policy(rec policyRecord) media.AuthorizationPolicy {
	p := media.AuthorizationPolicy{ID: rec.id, Name: rec.name, Options: []media.PolicyOption{}}
	for _, id := range rec.options {
		if o, ok := s.options[id]; ok {
			p.Options = append(p.Options, o)
		}
	}
	return p
}

func (s *Store) GetAuthorizationPolicy(_ context.Context, id string) (media.AuthorizationPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.policies[id]
	if !ok {
		return media.AuthorizationPolicy{}, notFound("authorization policy", id)
	}
	return s.policy(rec), nil
}

func (s *Store) ListAuthorizationPolicies(_ context.Context) ([]media.AuthorizationPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	policies := []media.AuthorizationPolicy{}
	for _, id := range sortedIDs(s, s.policies) {
		policies = append(policies, s.policy(s.policies[id]))
	}
	return policies, nil
}

func (s *Store) DeleteAuthorizationPolicy(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.policies[id]; !ok {
		return notFound("authorization policy", id)
	}
	delete(s.policies, id)
	return nil
}

func (s *Store) CreateAsset(_ context.Context, a media.Asset) (media.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = media.NewID(media.AssetIDPrefix)
	}
	if _, ok := s.assets[a.ID]; ok {
		return media.Asset{}, errors.Join(media.ErrConflict, fmt.Errorf("asset %s already exists", a.ID))
	}
	rec := &asset{id: a.ID, name: a.Name, files: slices.Clone(a.Files), created: s.now()}
	s.assets[a.ID] = rec
	s.track(a.ID)
	return s.asset(rec), nil
}

func (s *Store) asset(rec *asset) media.Asset {
	a := media.Asset{
		ID:               rec.id,
		Name:             rec.name,
		ContentKeys:      []media.ContentKey{},
		DeliveryPolicies: []media.AssetDeliveryPolicy{},
		Locators:         []media.Locator{},
		Files:            slices.Clone(rec.files),
	}
	for _, id := range rec.keys {
		if k, ok := s.keys[id]; ok {
			a.ContentKeys = append(a.ContentKeys, k)
		}
	}
	for _, id := range rec.policies {
		if p, ok := s.deliveryRecords[id]; ok {
			a.DeliveryPolicies = append(a.DeliveryPolicies, p)
		}
	}
	for _, id := range sortedIDs(s, s.locators) {
		if l := s.locators[id]; l.AssetID == rec.id {
			a.Locators = append(a.Locators, l)
		}
	}
	return a
}

func (s *Store) GetAsset(_ context.Context, id string) (media.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.assets[id]
	if !ok {
		return media.Asset{}, notFound("asset", id)
	}
	return s.asset(rec), nil
}

func (s *Store) ListAssets(_ context.Context) ([]media.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	assets := []media.Asset{}
	for _, id := range sortedIDs(s, s.assets) {
		assets = append(assets, s.asset(s.assets[id]))
	}
	return assets, nil
}

func (s *Store) AddAssetFile(_ context.Context, assetID string, file media.AssetFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.assets[assetID]
	if !ok {
		return notFound("asset", assetID)
	}
	rec.files = append(rec.files, file)
	return nil
}

func (s *Store) AddAssetContentKey(_ context.Context, assetID, keyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.assets[assetID]
	if !ok {
		return notFound("asset", assetID)
	}
	if _, ok := s.keys[keyID]; !ok {
		return notFound("content key", keyID)
	}
	if slices.Contains(rec.keys, keyID) {
		return errors.Join(media.ErrConflict, fmt.Errorf("content key %s already attached to asset %s", keyID, assetID))
	}
	rec.keys = append(rec.keys, keyID)
	return nil
}

func (s *Store) RemoveAssetContentKey(_ context.Context, assetID, keyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.assets[assetID]
	if !ok {
		return notFound("asset", assetID)
	}
	i := slices.Index(rec.keys, keyID)
	if i < 0 {
		return notFound("asset content key", keyID)
	}
	rec.keys = slices.Delete(rec.keys, i, i+1)
	return nil
}

func (s *Store) CreateAssetDeliveryPolicy(_ context.Context, p media.AssetDeliveryPolicy) (media.AssetDeliveryPolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = media.NewID(media.DeliveryPolicyIDPrefix)
	}
	cfg := make(map[media.DeliveryConfigKey]string, len(p.Configuration))
	for k, v := range p.Configuration {
		cfg[k] = v
	}
	p.Configuration = cfg
	s.deliveryRecords[p.ID] = p
	s.track(p.ID)
	return p, nil
}

func (s *Store) ListAssetDeliveryPolicies(_ context.Context) ([]media.AssetDeliveryPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	policies := []media.AssetDeliveryPolicy{}
	for _, id := range sortedIDs(s, s.deliveryRecords) {
		policies = append(policies, s.deliveryRecords[id])
	}
	return policies, nil
}

func (s *Store) DeleteAssetDeliveryPolicy(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.deliveryRecords[id]; !ok {
		return notFound("asset delivery policy", id)
	}
	for _, a := range s.assets {
		if slices.Contains(a.policies, id) {
			return errors.Join(media.ErrConflict, fmt.Errorf("asset delivery policy %s is attached to asset %s", id, a.id))
		}
	}
	delete(s.deliveryRecords, id)
	return nil
}

func (s *Store) AddAssetDeliveryPolicy(_ context.Context, assetID, policyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.assets[assetID]
	if !ok {
		return notFound("asset", assetID)
	}
	if _, ok := s.deliveryRecords[policyID]; !ok {
		return notFound("asset delivery policy", policyID)
	}
	if slices.Contains(rec.policies, policyID) {
		return errors.Join(media.ErrConflict, fmt.Errorf("asset delivery policy %s already attached to asset %s", policyID, assetID))
	}
	rec.policies = append(rec.policies, policyID)
	return nil
}

func (s *Store) RemoveAssetDeliveryPolicy(_ context.Context, assetID, policyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.assets[assetID]
	if !ok {
		return notFound("asset", assetID)
	}
	i := slices.Index(rec.policies, policyID)
	if i < 0 {
		return notFound("asset delivery policy", policyID)
	}
	rec.policies = slices.Delete(rec.policies, i, i+1)
	return nil
}

func (s *Store) CreateAccessPolicy(_ context.Context, p media.AccessPolicy) (media.AccessPolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = media.NewID(media.AccessPolicyIDPrefix)
	}
	s.accessPolicies[p.ID] = p
	s.track(p.ID)
	return p, nil
}

func (s *Store) ListAccessPolicies(_ context.Context) ([]media.AccessPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	policies := []media.AccessPolicy{}
	for _, id := range sortedIDs(s, s.accessPolicies) {
		policies = append(policies, s.accessPolicies[id])
	}
	return policies, nil
}

func (s *Store) CreateLocator(_ context.Context, l media.Locator) (media.Locator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assets[l.AssetID]; !ok {
		return media.Locator{}, notFound("asset", l.AssetID)
	}
	if _, ok := s.accessPolicies[l.AccessPolicyID]; !ok {
		return media.Locator{}, notFound("access policy", l.AccessPolicyID)
	}
	l.ID = media.NewID(media.LocatorIDPrefix)
	l.Path = s.origin + strings.TrimPrefix(l.ID, media.LocatorIDPrefix) + "/"
	s.locators[l.ID] = l
	s.track(l.ID)
	return l, nil
}

func (s *Store) DeleteLocator(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.locators[id]; !ok {
		return notFound("locator", id)
	}
	delete(s.locators, id)
	return nil
}

var _ media.Store = (*Store)(nil)
