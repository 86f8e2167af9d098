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

package holderdb

import (
	"context"
	"encoding/json"
)

const organizationGet = `
SELECT org_id, config, created_at, updated_at FROM organizations WHERE org_id = $1
`

func (q *Queries) OrganizationGet(ctx context.Context, orgID string) (Organization, error) {
	row := q.db.QueryRow(ctx, organizationGet, orgID)
	var i Organization
	err := row.Scan(&i.OrgID, &i.Config, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

const organizationList = `
SELECT org_id, config, created_at, updated_at FROM organizations ORDER BY org_id
`

func (q *Queries) OrganizationList(ctx context.Context) ([]Organization, error) {
	rows, err := q.db.Query(ctx, organizationList)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Organization
	for rows.Next() {
		var i Organization
		if err := rows.Scan(&i.OrgID, &i.Config, &i.CreatedAt, &i.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

type OrganizationUpsertParams struct {
	OrgID  string
	Config json.RawMessage
}

const organizationUpsert = `
INSERT INTO organizations (org_id, config) VALUES ($1, $2)
ON CONFLICT (org_id) DO UPDATE SET config = EXCLUDED.config, updated_at = now()
`

func (q *Queries) OrganizationUpsert(ctx context.Context, arg OrganizationUpsertParams) error {
	_, err := q.db.Exec(ctx, organizationUpsert, arg.OrgID, arg.Config)
	return err
}
