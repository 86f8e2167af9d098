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

package initialize

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/credrunner/holderdb"
	"github.com/cardinalhq/credrunner/internal/orgdir"
)

// MockFileReader for testing
type MockFileReader struct {
	mock.Mock
}

func (m *MockFileReader) ReadFile(filename string) ([]byte, error) {
	args := m.Called(filename)
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockFileReader) Getenv(key string) string {
	args := m.Called(key)
	return args.String(0)
}

type MockOrganizationWriter struct {
	mock.Mock
}

func (m *MockOrganizationWriter) OrganizationUpsert(ctx context.Context, arg holderdb.OrganizationUpsertParams) error {
	return m.Called(ctx, arg).Error(0)
}

const acmeYAML = `
- orgId: acme
  config:
    process: true
    employeeType: employee
    mappers:
      IDHPUS:
        lastName: .credentialSubject.family
        email: .credentialSubject.email
        firstName: .credentialSubject.given
    manufacturer:
      "207": ModernaTX, Inc.
    partners:
      - id: cleared4
        key: apiKey
    cleanup: 14
- orgId: globex
  config: {}
`

func TestLoadFileContentsWithReader_RegularFile(t *testing.T) {
	mockReader := new(MockFileReader)
	mockReader.On("ReadFile", "orgs.yaml").Return([]byte("x"), nil)

	result, err := loadFileContentsWithReader("orgs.yaml", mockReader)
	assert.NoError(t, err)
	assert.Equal(t, []byte("x"), result)
	mockReader.AssertExpectations(t)
}

func TestLoadFileContentsWithReader_EnvironmentVariable(t *testing.T) {
	mockReader := new(MockFileReader)
	mockReader.On("Getenv", "ORGS").Return("env content")

	result, err := loadFileContentsWithReader("env:ORGS", mockReader)
	assert.NoError(t, err)
	assert.Equal(t, []byte("env content"), result)

	mockReader.On("Getenv", "EMPTY_VAR").Return("")
	_, err = loadFileContentsWithReader("env:EMPTY_VAR", mockReader)
	assert.ErrorContains(t, err, "environment variable EMPTY_VAR is not set")
}

func TestLoadFileContentsWithReader_FileReadError(t *testing.T) {
	mockReader := new(MockFileReader)
	mockReader.On("ReadFile", "nonexistent.yaml").Return([]byte(nil), fmt.Errorf("file not found"))

	_, err := loadFileContentsWithReader("nonexistent.yaml", mockReader)
	assert.ErrorContains(t, err, "failed to read file nonexistent.yaml")
}

func TestParseOrganizations_KeepsMapperOrder(t *testing.T) {
	orgs, err := ParseOrganizations([]byte(acmeYAML))
	require.NoError(t, err)
	require.Len(t, orgs, 2)
	assert.Equal(t, "acme", orgs[0].OrgID)

	cfg, err := orgdir.ParseConfig(orgs[0].Config)
	require.NoError(t, err)
	assert.True(t, cfg.Process)
	assert.Equal(t, 14, cfg.CleanupDays())
	assert.Equal(t, "ModernaTX, Inc.", cfg.Manufacturer["207"])
	assert.Equal(t, []orgdir.Partner{{ID: "cleared4", Key: "apiKey"}}, cfg.Partners)

	tmpl := cfg.Mappers["IDHPUS"]
	require.Len(t, tmpl, 3)
	assert.Equal(t, "lastName", tmpl[0].Field)
	assert.Equal(t, "email", tmpl[1].Field)
	assert.Equal(t, "firstName", tmpl[2].Field)

	assert.JSONEq(t, `{}`, string(orgs[1].Config))
}

func TestParseOrganizations_SingleJSONObject(t *testing.T) {
	orgs, err := ParseOrganizations([]byte(`{"orgId":"acme","config":{"process":false,"cleanup":3}}`))
	require.NoError(t, err)
	require.Len(t, orgs, 1)
	assert.JSONEq(t, `{"process":false,"cleanup":3}`, string(orgs[0].Config))
}

func TestParseOrganizations_Errors(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"missing org id", `[{"config":{}}]`, "orgId is required"},
		{"missing config", `[{"orgId":"acme"}]`, "config is required"},
		{"duplicate", `[{"orgId":"a","config":{}},{"orgId":"a","config":{}}]`, "duplicate orgId"},
		{"invalid partner", `[{"orgId":"a","config":{"partners":[{"id":"p"}]}}]`, "config for a"},
		{"scalar root", `"acme"`, "expected an organization"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseOrganizations([]byte(tt.in))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestImportOrganizations(t *testing.T) {
	reader := new(MockFileReader)
	reader.On("ReadFile", "orgs.yaml").Return([]byte(acmeYAML), nil)
	db := new(MockOrganizationWriter)
	db.On("OrganizationUpsert", mock.Anything, mock.MatchedBy(func(p holderdb.OrganizationUpsertParams) bool {
		return p.OrgID == "acme" || p.OrgID == "globex"
	})).Return(nil).Twice()

	ids, err := ImportOrganizations(context.Background(), "orgs.yaml", db, reader)
	require.NoError(t, err)
	assert.Equal(t, []string{"acme", "globex"}, ids)
	db.AssertExpectations(t)
}
