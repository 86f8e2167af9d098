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

// Package mapping evaluates organization-supplied field projection templates.
//
// A template is a JSON object whose keys are record field names and whose
// values are JSON paths into a credential payload:
//
//	{"email": ".credentialSubject.email", "cvxCode": "credentialSubject.vaccine[0].cvx"}
//
// Paths may start with "$." or "." and may index arrays as [n]. Number and
// boolean values, and objects of the form {"const": "x"}, are literals.
// Key order is kept, and later projections win when two write the same field.
package mapping

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

type Projection struct {
	Field   string
	Path    string
	Literal *string
}

type Template []Projection

// Value is one projected (field, value) pair.
type Value struct {
	Field string
	Value string
}

var arrayIndex = regexp.MustCompile(`\[(\d+)\]`)

// NormalizePath converts "$.a.b[0].c" and ".a.b[0].c" to gjson's "a.b.0.c".
func NormalizePath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.TrimPrefix(p, "$")
	p = strings.TrimPrefix(p, ".")
	return arrayIndex.ReplaceAllString(p, ".$1")
}

func Parse(raw []byte) (Template, error) {
	if !gjson.ValidBytes(raw) {
		return nil, errors.New("mapping template is not valid JSON")
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return nil, fmt.Errorf("mapping template must be a JSON object, got %s", root.Type)
	}

	var (
		t   Template
		err error
	)
	root.ForEach(func(k, v gjson.Result) bool {
		field := k.String()
		switch {
		case v.Type == gjson.String:
			path := NormalizePath(v.Str)
			if path == "" {
				err = fmt.Errorf("field %q has an empty path", field)
				return false
			}
			t = append(t, Projection{Field: field, Path: path})
		case v.Type == gjson.Number, v.Type == gjson.True, v.Type == gjson.False:
			lit := v.String()
			t = append(t, Projection{Field: field, Literal: &lit})
		case v.Type == gjson.Null:
		case v.IsObject() && v.Get("const").Exists():
			lit := v.Get("const").String()
			t = append(t, Projection{Field: field, Literal: &lit})
		default:
			err = fmt.Errorf("field %q has unsupported projection %s", field, v.Raw)
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Template) UnmarshalJSON(b []byte) error {
	parsed, err := Parse(b)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t Template) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range t {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, _ := json.Marshal(p.Field)
		buf.Write(k)
		buf.WriteByte(':')
		var v []byte
		if p.Literal != nil {
			v, _ = json.Marshal(map[string]string{"const": *p.Literal})
		} else {
			v, _ = json.Marshal(p.Path)
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Apply evaluates every projection against doc, in template order.
// Paths that are missing or null produce no value.
func (t Template) Apply(doc []byte) []Value {
	out := make([]Value, 0, len(t))
	for _, p := range t {
		if p.Literal != nil {
			out = append(out, Value{Field: p.Field, Value: *p.Literal})
			continue
		}
		r := gjson.GetBytes(doc, p.Path)
		if !r.Exists() || r.Type == gjson.Null {
			continue
		}
		out = append(out, Value{Field: p.Field, Value: r.String()})
	}
	return out
}
