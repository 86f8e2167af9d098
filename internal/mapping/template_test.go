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

package mapping

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct{ in, want string }{
		{".credentialSubject.email", "credentialSubject.email"},
		{"$.credentialSubject.email", "credentialSubject.email"},
		{"credentialSubject.email", "credentialSubject.email"},
		{".vc.credentialSubject[0].cvx", "vc.credentialSubject.0.cvx"},
		{" .a[10].b[2] ", "a.10.b.2"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizePath(tt.in), tt.in)
	}
}

func TestParseKeepsOrder(t *testing.T) {
	tmpl, err := Parse([]byte(`{"z": ".a", "firstName": ".b", "m": 3, "k": {"const": "fixed"}, "skip": null}`))
	require.NoError(t, err)
	require.Len(t, tmpl, 4)

	var fields []string
	for _, p := range tmpl {
		fields = append(fields, p.Field)
	}
	assert.Equal(t, []string{"z", "firstName", "m", "k"}, fields)
	assert.Equal(t, "a", tmpl[0].Path)
	require.NotNil(t, tmpl[2].Literal)
	assert.Equal(t, "3", *tmpl[2].Literal)
	require.NotNil(t, tmpl[3].Literal)
	assert.Equal(t, "fixed", *tmpl[3].Literal)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"invalid json", `{"a":`},
		{"not an object", `["a"]`},
		{"empty path", `{"a": ""}`},
		{"nested object without const", `{"a": {"x": 1}}`},
		{"array value", `{"a": [1]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw))
			assert.Error(t, err)
		})
	}
}

func TestApply(t *testing.T) {
	tmpl, err := Parse([]byte(`{
		"email": ".credentialSubject.email",
		"fullName": ".credentialSubject.name",
		"cvxCode": ".credentialSubject.doses[1].cvx",
		"missing": ".credentialSubject.nope",
		"nulled": ".credentialSubject.nothing",
		"vaccineStatus": {"const": "valid"}
	}`))
	require.NoError(t, err)

	doc := []byte(`{"credentialSubject": {
		"email": "Pat@Example.com",
		"name": "Pat Q Public",
		"nothing": null,
		"doses": [{"cvx": "207"}, {"cvx": "208"}]
	}}`)

	got := tmpl.Apply(doc)
	assert.Equal(t, []Value{
		{Field: "email", Value: "Pat@Example.com"},
		{Field: "fullName", Value: "Pat Q Public"},
		{Field: "cvxCode", Value: "208"},
		{Field: "vaccineStatus", Value: "valid"},
	}, got)
}

func TestTemplateJSONRoundTripPreservesOrder(t *testing.T) {
	var tmpl Template
	require.NoError(t, json.Unmarshal([]byte(`{"b": ".x", "a": {"const": "1"}}`), &tmpl))

	out, err := json.Marshal(tmpl)
	require.NoError(t, err)
	assert.JSONEq(t, `{"b": "x", "a": {"const": "1"}}`, string(out))
	assert.Less(t, strings.Index(string(out), `"b"`), strings.Index(string(out), `"a"`))
}

