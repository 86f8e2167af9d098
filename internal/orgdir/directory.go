// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package orgdir

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/cardinalhq/credrunner/holderdb"
	"github.com/cardinalhq/credrunner/internal/logctx"
)

var ErrNotFound = errors.New("organization not found")

// Directory resolves organization configuration.
type Directory interface {
	GetOrganization(ctx context.Context, orgID string) (Organization, error)
	GetAllOrganizations(ctx context.Context) ([]Organization, error)
}

// DB is the subset of holderdb.StoreFull the directory reads.
type DB interface {
	OrganizationGet(ctx context.Context, orgID string) (holderdb.Organization, error)
	OrganizationList(ctx context.Context) ([]holderdb.Organization, error)
}

type orgCacheValue struct {
	Organization
	error
}

const allOrgsKey = "*"

// StoreDirectory reads organizations from holderdb behind a TTL cache.
// Lookups that fail with anything other than not-found are not cached.
type StoreDirectory struct {
	db        DB
	orgCache  *ttlcache.Cache[string, orgCacheValue]
	listCache *ttlcache.Cache[string, []Organization]
}

var _ Directory = (*StoreDirectory)(nil)

func NewStoreDirectory(db DB, ttl time.Duration) *StoreDirectory {
	d := &StoreDirectory{
		db:        db,
		orgCache:  ttlcache.New(ttlcache.WithTTL[string, orgCacheValue](ttl)),
		listCache: ttlcache.New(ttlcache.WithTTL[string, []Organization](ttl)),
	}
	go d.orgCache.Start()
	go d.listCache.Start()
	return d
}

func (d *StoreDirectory) Stop() {
	d.orgCache.Stop()
	d.listCache.Stop()
}

func (d *StoreDirectory) GetOrganization(ctx context.Context, orgID string) (Organization, error) {
	var loadErr error
	loader := ttlcache.LoaderFunc[string, orgCacheValue](
		func(cache *ttlcache.Cache[string, orgCacheValue], key string) *ttlcache.Item[string, orgCacheValue] {
			row, err := d.db.OrganizationGet(ctx, key)
			if holderdb.IsNotFound(err) {
				return cache.Set(key, orgCacheValue{error: fmt.Errorf("%w: %s", ErrNotFound, key)}, ttlcache.DefaultTTL)
			}
			if err != nil {
				loadErr = err
				return nil
			}
			org, err := toOrganization(row)
			return cache.Set(key, orgCacheValue{Organization: org, error: err}, ttlcache.DefaultTTL)
		},
	)
	item := d.orgCache.Get(orgID, ttlcache.WithLoader(loader))
	if item == nil {
		if loadErr == nil {
			loadErr = errors.New("failed to load organization")
		}
		return Organization{}, fmt.Errorf("get organization %s: %w", orgID, loadErr)
	}
	return item.Value().Organization, item.Value().error
}

// GetAllOrganizations returns every organization whose config parses.
// Organizations with invalid config are logged and left out.
func (d *StoreDirectory) GetAllOrganizations(ctx context.Context) ([]Organization, error) {
	if item := d.listCache.Get(allOrgsKey); item != nil {
		return item.Value(), nil
	}

	rows, err := d.db.OrganizationList(ctx)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	ll := logctx.FromContext(ctx)
	orgs := make([]Organization, 0, len(rows))
	for _, row := range rows {
		org, err := toOrganization(row)
		if err != nil {
			ll.Error("Skipping organization with invalid config", slog.String("orgID", row.OrgID), slog.Any("error", err))
			continue
		}
		orgs = append(orgs, org)
	}
	d.listCache.Set(allOrgsKey, orgs, ttlcache.DefaultTTL)
	return orgs, nil
}

func toOrganization(row holderdb.Organization) (Organization, error) {
	cfg, err := ParseConfig(row.Config)
	if err != nil {
		return Organization{}, fmt.Errorf("organization %s: %w", row.OrgID, err)
	}
	return Organization{ID: row.OrgID, Config: cfg}, nil
}
