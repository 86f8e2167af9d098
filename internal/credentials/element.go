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
	"encoding/json"
	"time"

	"github.com/tidwall/gjson"
)

// ElementKind is the decoded variant of one bundle element.
type ElementKind int

const (
	KindUnrecognized ElementKind = iota
	KindConsent
	KindIdentity
	KindEncoded
)

func (k ElementKind) String() string {
	switch k {
	case KindConsent:
		return "consent"
	case KindIdentity:
		return "identity"
	case KindEncoded:
		return "encoded"
	default:
		return "unrecognized"
	}
}

// DecodeElement assigns a bundle element to the first variant it matches:
// consent, identity, encoded credential, or unrecognized.
func DecodeElement(raw json.RawMessage) ElementKind {
	r := gjson.ParseBytes(raw)
	switch {
	case r.IsObject() && r.Get("consentType").Exists():
		return KindConsent
	case r.IsObject() && subjectType(r) == "id":
		return KindIdentity
	case r.IsObject(), r.Type == gjson.String:
		return KindEncoded
	default:
		return KindUnrecognized
	}
}

func subjectType(r gjson.Result) string {
	t := r.Get("credentialSubject.type")
	if !t.Exists() || t.String() == "" {
		return "unknown"
	}
	return t.String()
}

// metadataEntries returns the entries of a trailing metadata descriptor.
// ok is false when raw is not an object carrying a "metadata" key.
func metadataEntries(raw json.RawMessage) (entries []gjson.Result, ok bool) {
	r := gjson.ParseBytes(raw)
	if !r.IsObject() {
		return nil, false
	}
	md := r.Get("metadata")
	if !md.Exists() {
		return nil, false
	}
	if !md.IsArray() {
		return nil, true
	}
	return md.Array(), true
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseTime reads a date or timestamp; numbers are epoch milliseconds.
// Unparseable input yields the zero time, which never wins a recency check.
func parseTime(r gjson.Result) time.Time {
	switch r.Type {
	case gjson.Number:
		return time.UnixMilli(r.Int()).UTC()
	case gjson.String:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, r.Str); err == nil {
				return t.UTC()
			}
		}
	}
	return time.Time{}
}
