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

package credentials

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/credrunner/internal/orgdir"
)

func TestMapperID(t *testing.T) {
	tests := []struct {
		name     string
		schemaID string
		credType CredType
		want     string
		wantErr  error
	}{
		{"idhp", "x;param=IDHP;region=US", CredTypeIDHP, "IDHPUS", nil},
		{"idhp extra params", "did:hpass:abc;id=ghp-vaccination-credential;version=0.3;extra=1", CredTypeIDHP, "ghp-vaccination-credential0.3", nil},
		{"idhp one param", "x;param=IDHP", CredTypeIDHP, "", ErrMalformedSchemaID},
		{"idhp no params", "x", CredTypeIDHP, "", ErrMalformedSchemaID},
		{"idhp segment without value", "x;IDHP;region=US", CredTypeIDHP, "", ErrMalformedSchemaID},
		{"shc ignores schema", "", CredTypeSHC, "shcmapper", nil},
		{"metadata", "anything", CredTypeMetadata, "metadatamapper", nil},
		{"unknown type", "x;a=b;c=d", CredType("OA"), "", ErrMapperNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MapperID(tt.schemaID, tt.credType)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveMapper(t *testing.T) {
	cfg, err := orgdir.ParseConfig([]byte(`{"mappers": {
		"IDHPUS": {"email": ".credentialSubject.email"},
		"shcmapper": {"cvxCode": ".cvx"}
	}}`))
	require.NoError(t, err)

	tmpl, err := ResolveMapper("x;param=IDHP;region=US", CredTypeIDHP, cfg)
	require.NoError(t, err)
	require.Len(t, tmpl, 1)
	assert.Equal(t, "email", tmpl[0].Field)

	_, err = ResolveMapper("", CredTypeSHC, cfg)
	require.NoError(t, err)

	_, err = ResolveMapper("x;param=IDHP;region=EU", CredTypeIDHP, cfg)
	var mnf *MapperNotFoundError
	require.ErrorAs(t, err, &mnf)
	assert.Equal(t, "IDHPEU", mnf.Key)
	assert.ErrorIs(t, err, ErrMapperNotFound)

	_, err = ResolveMapper("", CredTypeMetadata, cfg)
	assert.ErrorIs(t, err, ErrMapperNotFound)

	_, err = ResolveMapper("x", CredTypeIDHP, cfg)
	assert.ErrorIs(t, err, ErrMalformedSchemaID)
	assert.NotErrorIs(t, err, ErrMapperNotFound)
}
