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
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/tidwall/gjson"

	"github.com/cardinalhq/credrunner/holderdb"
	"github.com/cardinalhq/credrunner/internal/logctx"
	"github.com/cardinalhq/credrunner/internal/mapping"
	"github.com/cardinalhq/credrunner/internal/orgdir"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// draft collects projected values before they become a record. The numbered
// cvx and date fields and fullName are scratch inputs to reconciliation.
type draft struct {
	email, firstName, lastName, fullName string
	cvxCode, cvxCode1, cvxCode2          string
	date, date1, date2                   string
	manufacturer                         string
	vaccineStatus, employeeType          string
}

// set stores value under field and reports whether field is one a record
// carries.
func (d *draft) set(field, value string) bool {
	switch field {
	case "email":
		d.email = value
	case "firstName":
		d.firstName = value
	case "lastName":
		d.lastName = value
	case "fullName":
		d.fullName = value
	case "cvxCode":
		d.cvxCode = value
	case "cvxCode1":
		d.cvxCode1 = value
	case "cvxCode2":
		d.cvxCode2 = value
	case "dateOfVaccination":
		d.date = value
	case "dateOfVaccination1":
		d.date1 = value
	case "dateOfVaccination2":
		d.date2 = value
	case "marketingAuthorizationHolder":
		d.manufacturer = value
	case "vaccineStatus":
		d.vaccineStatus = value
	case "employeeType":
		d.employeeType = value
	default:
		return false
	}
	return true
}

// apply stores every projected value, logging fields a record has no place for.
func (d *draft) apply(ctx context.Context, mapperID string, values []mapping.Value) {
	for _, v := range values {
		if !d.set(v.Field, v.Value) {
			logctx.FromContext(ctx).Warn("Ignoring unknown mapper field",
				slog.String("mapper", mapperID),
				slog.String("field", v.Field))
		}
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func vaccinationMapper(set *ClassifiedSet, cfg orgdir.Config) (mapping.Template, error) {
	v := set.Vaccination
	schemaID := ""
	if v.Type == CredTypeIDHP {
		schemaID = gjson.GetBytes(v.Decoded, "credentialSchema.id").String()
	}
	return ResolveMapper(schemaID, v.Type, cfg)
}

// Assemble projects a classified set through the organization's mappers
// into one holder record. The identity template is applied first, then the
// vaccination or metadata template, so later fields win.
func Assemble(ctx context.Context, set *ClassifiedSet, orgID string, cfg orgdir.Config, fileName string) (holderdb.HolderCredential, error) {
	idSchema := gjson.GetBytes(set.Identity, "credentialSchema.id").String()
	idTmpl, err := ResolveMapper(idSchema, CredTypeIDHP, cfg)
	if err != nil {
		return holderdb.HolderCredential{}, fmt.Errorf("identity mapper: %w", err)
	}
	vaccTmpl, err := vaccinationMapper(set, cfg)
	if err != nil {
		return holderdb.HolderCredential{}, fmt.Errorf("vaccination mapper: %w", err)
	}

	d := draft{
		employeeType:  cfg.EmployeeType,
		vaccineStatus: holderdb.VaccineStatusValid,
	}
	d.apply(ctx, "identity", idTmpl.Apply(set.Identity))
	d.apply(ctx, "vaccination", vaccTmpl.Apply(set.Metadata))

	cvx := firstNonEmpty(d.cvxCode, d.cvxCode2, d.cvxCode1)
	manufacturer := d.manufacturer
	if manufacturer == "" {
		manufacturer = cfg.Manufacturer[cvx]
	}
	dateOfVaccination, err := parseDate(firstNonEmpty(d.date, d.date2, d.date1))
	if err != nil {
		return holderdb.HolderCredential{}, &InvalidRecordError{Err: err}
	}

	rec := holderdb.HolderCredential{
		Email:                        strings.TrimSpace(d.email),
		OrgID:                        orgID,
		FileName:                     fileName,
		FirstName:                    firstNonEmpty(d.firstName, d.fullName),
		LastName:                     d.lastName,
		CvxCode:                      cvx,
		MarketingAuthorizationHolder: manufacturer,
		EmployeeType:                 d.employeeType,
		DateOfVaccination:            dateOfVaccination,
		VaccineStatus:                d.vaccineStatus,
		ConsentReceipt:               set.Consent,
		IDCredentials:                set.Identity,
		VaccinationCredentials:       set.Vaccination.Source,
		SentStatusChs:                holderdb.SentStatusNo,
		SentStatusTririga:            holderdb.SentStatusNo,
	}
	if err := validate.Struct(rec); err != nil {
		return holderdb.HolderCredential{}, &InvalidRecordError{Err: err}
	}
	return rec, nil
}

// parseDate reads a vaccination date; empty input is a NULL date.
func parseDate(s string) (pgtype.Date, error) {
	if s == "" {
		return pgtype.Date{}, nil
	}
	t := parseTime(gjson.Result{Type: gjson.String, Str: s})
	if t.IsZero() {
		return pgtype.Date{}, fmt.Errorf("unparseable dateOfVaccination %q", s)
	}
	return pgtype.Date{Time: t, Valid: true}, nil
}
