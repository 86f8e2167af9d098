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

package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/credrunner/internal/orgdir"
)

type oneOrgDir struct {
	org orgdir.Organization
}

func (d oneOrgDir) GetOrganization(_ context.Context, orgID string) (orgdir.Organization, error) {
	if orgID != d.org.ID {
		return orgdir.Organization{}, orgdir.ErrNotFound
	}
	return d.org, nil
}

func (d oneOrgDir) GetAllOrganizations(context.Context) ([]orgdir.Organization, error) {
	return []orgdir.Organization{d.org}, nil
}

func TestPrintOrganization(t *testing.T) {
	cfg, err := orgdir.ParseConfig([]byte(`{"process":true,"employeeType":"employee","partners":[{"id":"cleared4","key":"c4key"}]}`))
	require.NoError(t, err)
	dir := oneOrgDir{org: orgdir.Organization{ID: "acme", Config: cfg}}

	var buf bytes.Buffer
	require.NoError(t, printOrganization(context.Background(), &buf, dir, "acme"))
	assert.JSONEq(t, `{
		"orgId": "acme",
		"cleanupDays": 30,
		"config": {"process": true, "employeeType": "employee", "partners": [{"id": "cleared4", "key": "c4key"}]}
	}`, buf.String())

	buf.Reset()
	assert.ErrorIs(t, printOrganization(context.Background(), &buf, dir, "globex"), orgdir.ErrNotFound)
	assert.Empty(t, buf.String())
}

func TestOrgsSubcommands(t *testing.T) {
	var names []string
	for _, c := range orgsCmd.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"list", "get", "put"}, names)
}
