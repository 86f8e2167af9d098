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
	"fmt"
	"strings"

	"github.com/cardinalhq/credrunner/internal/mapping"
	"github.com/cardinalhq/credrunner/internal/orgdir"
)

// CredType is the credential family reported by extraction, plus the
// metadata pseudo-type used by metadata-described bundles.
type CredType string

const (
	CredTypeIDHP     CredType = "IDHP"
	CredTypeSHC      CredType = "SHC"
	CredTypeMetadata CredType = "metadata"
)

const (
	shcMapperID      = "shcmapper"
	metadataMapperID = "metadatamapper"
)

// schemaParams returns the values of the key=value segments of a
// ";"-separated schema id, skipping the leading token.
func schemaParams(schemaID string) []string {
	segs := strings.Split(schemaID, ";")
	if len(segs) < 2 {
		return nil
	}
	vals := make([]string, 0, len(segs)-1)
	for _, seg := range segs[1:] {
		_, v, ok := strings.Cut(seg, "=")
		if !ok {
			break
		}
		vals = append(vals, v)
	}
	return vals
}

// MapperID derives the mapper table key for a credential.
// IDHP keys concatenate the values of the first two schema parameters, so
// "x;param=IDHP;region=US" yields "IDHPUS".
func MapperID(schemaID string, credType CredType) (string, error) {
	switch credType {
	case CredTypeIDHP:
		vals := schemaParams(schemaID)
		if len(vals) < 2 {
			return "", fmt.Errorf("%w: %q", ErrMalformedSchemaID, schemaID)
		}
		return vals[0] + vals[1], nil
	case CredTypeSHC:
		return shcMapperID, nil
	case CredTypeMetadata:
		return metadataMapperID, nil
	default:
		return "", &MapperNotFoundError{Key: string(credType)}
	}
}

// ResolveMapper looks up the template for a credential in cfg.
func ResolveMapper(schemaID string, credType CredType, cfg orgdir.Config) (mapping.Template, error) {
	id, err := MapperID(schemaID, credType)
	if err != nil {
		return nil, err
	}
	tmpl, ok := cfg.Mapper(id)
	if !ok {
		return nil, &MapperNotFoundError{Key: id}
	}
	return tmpl, nil
}
