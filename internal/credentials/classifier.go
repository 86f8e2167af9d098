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
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"time"

	"github.com/tidwall/gjson"

	"github.com/cardinalhq/credrunner/internal/extractor"
	"github.com/cardinalhq/credrunner/internal/logctx"
)

// DefaultVaccineSchemaIDs are the IDHP schema names accepted as vaccinations.
var DefaultVaccineSchemaIDs = []string{"ghp-vaccination-credential", "clx-vaccination-credential"}

// Extractor decodes and verifies an encoded credential.
type Extractor interface {
	Extract(ctx context.Context, credential json.RawMessage) (*extractor.Response, error)
}

// Variant records how a bundle was classified.
type Variant int

const (
	VariantContent Variant = iota
	VariantMetadata
)

// VaccinationSlot is the winning vaccination-equivalent credential.
type VaccinationSlot struct {
	// Source is the element as it appeared in the bundle, possibly encoded.
	Source json.RawMessage
	// Decoded is the extracted payload, or Source when nothing was extracted.
	Decoded json.RawMessage
	Type    CredType
	Created time.Time
}

// ClassifiedSet holds one bundle's four slots. Metadata is the descriptor
// entry paired with the vaccination element, or the decoded vaccination
// payload when the bundle had no descriptor.
type ClassifiedSet struct {
	Variant     Variant
	Consent     json.RawMessage
	Identity    json.RawMessage
	Vaccination *VaccinationSlot
	Metadata    json.RawMessage
}

// Classification is the outcome of Classify. When Set is nil, ExtractOK
// tells the caller whether the source is worth retrying (false) or should be
// deleted (true).
type Classification struct {
	Set       *ClassifiedSet
	ExtractOK bool
	Reason    error
}

type Classifier struct {
	extractor        Extractor
	vaccineSchemaIDs []string
}

func NewClassifier(ex Extractor, vaccineSchemaIDs []string) *Classifier {
	if len(vaccineSchemaIDs) == 0 {
		vaccineSchemaIDs = DefaultVaccineSchemaIDs
	}
	return &Classifier{extractor: ex, vaccineSchemaIDs: vaccineSchemaIDs}
}

func (c *Classifier) Classify(ctx context.Context, bundle []json.RawMessage) Classification {
	if len(bundle) < 3 {
		return Classification{ExtractOK: true, Reason: ErrBundleTooShort}
	}
	last := len(bundle) - 1
	if entries, ok := metadataEntries(bundle[last]); ok {
		return c.classifyByMetadata(ctx, bundle[:last], entries)
	}
	return c.classifyByContent(ctx, bundle)
}

func (c *Classifier) classifyByMetadata(ctx context.Context, elems []json.RawMessage, entries []gjson.Result) Classification {
	if len(entries) < 3 {
		return Classification{ExtractOK: true, Reason: ErrBundleTooShort}
	}
	ll := logctx.FromContext(ctx)
	set := &ClassifiedSet{Variant: VariantMetadata}

	for i, meta := range entries {
		if i >= len(elems) {
			ll.Warn("Metadata entry has no matching credential", slog.Int("index", i))
			continue
		}
		switch t := meta.Get("type").String(); {
		case meta.Get("consentId").Exists():
			set.Consent = elems[i]
		case t == "ID":
			set.Identity = elems[i]
		case t == "VACCINATION", t == "OA":
			created := parseTime(meta.Get("lastVaccination.date"))
			if set.Vaccination != nil && !created.After(set.Vaccination.Created) {
				continue
			}
			set.Vaccination = &VaccinationSlot{
				Source:  elems[i],
				Decoded: elems[i],
				Type:    CredTypeMetadata,
				Created: created,
			}
			set.Metadata = json.RawMessage(meta.Raw)
		}
	}
	return complete(set, true)
}

func (c *Classifier) classifyByContent(ctx context.Context, bundle []json.RawMessage) Classification {
	ll := logctx.FromContext(ctx)
	set := &ClassifiedSet{Variant: VariantContent}
	extractOK := true

	for i, raw := range bundle {
		switch kind := DecodeElement(raw); kind {
		case KindConsent:
			set.Consent = raw
		case KindIdentity:
			set.Identity = raw
		case KindEncoded:
			cand, ok := c.extract(ctx, raw)
			if !ok {
				extractOK = false
			}
			if cand != nil && (set.Vaccination == nil || cand.Created.After(set.Vaccination.Created)) {
				set.Vaccination = cand
			}
		default:
			ll.Warn("Skipping unrecognized credential element", slog.Int("index", i), slog.String("kind", kind.String()))
		}
	}
	if set.Vaccination != nil {
		set.Metadata = set.Vaccination.Decoded
	}
	return complete(set, extractOK)
}

// extract returns the vaccination candidate for an encoded element, or nil
// when it is not one. ok is false when extraction itself failed.
func (c *Classifier) extract(ctx context.Context, raw json.RawMessage) (cand *VaccinationSlot, ok bool) {
	ll := logctx.FromContext(ctx)

	resp, err := c.extractor.Extract(ctx, raw)
	if err != nil {
		ll.Error("Unable to extract credential", slog.Any("error", err))
		return nil, false
	}
	if !resp.Success {
		if resp.Error != "" {
			ll.Error("Unable to extract credential", slog.String("error", resp.Error))
		} else {
			ll.Warn("Unable to extract credential", slog.String("message", resp.Message))
		}
		return nil, false
	}

	source := raw
	if p := gjson.GetBytes(raw, "payload"); p.Exists() && p.Type != gjson.Null {
		source = json.RawMessage(p.Raw)
	}
	decoded := gjson.ParseBytes(resp.Credential)
	slot := &VaccinationSlot{Source: source, Decoded: resp.Credential, Type: CredType(resp.CredType)}

	switch slot.Type {
	case CredTypeIDHP:
		schemaID := decoded.Get("credentialSchema.id").String()
		if schemaID == "" {
			schemaID = gjson.GetBytes(raw, "credentialSchema.id").String()
		}
		if !c.isVaccineSchema(schemaID) {
			ll.Warn("Skipping non-vaccination IDHP credential", slog.String("schemaID", schemaID))
			return nil, true
		}
		slot.Created = parseTime(decoded.Get("proof.created"))
	case CredTypeSHC:
		slot.Created = time.UnixMilli(decoded.Get("nbf").Int() * 1000).UTC()
	default:
		ll.Warn("Unsupported credential type", slog.String("credType", resp.CredType))
		return nil, true
	}
	return slot, true
}

func (c *Classifier) isVaccineSchema(schemaID string) bool {
	vals := schemaParams(schemaID)
	return len(vals) > 0 && slices.Contains(c.vaccineSchemaIDs, vals[0])
}

// complete checks every slot is filled, in slot order.
func complete(set *ClassifiedSet, extractOK bool) Classification {
	missing := Slot("")
	switch {
	case set.Consent == nil:
		missing = SlotConsent
	case set.Identity == nil:
		missing = SlotIdentity
	case set.Vaccination == nil:
		missing = SlotVaccination
	case set.Metadata == nil:
		missing = SlotMetadata
	}
	if missing != "" {
		return Classification{ExtractOK: extractOK, Reason: &MissingSlotError{Slot: missing}}
	}
	return Classification{Set: set, ExtractOK: extractOK}
}
