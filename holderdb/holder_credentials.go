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
	"time"
)

const holderCredentialGet = `
SELECT holder_credentials_id, email, org_id, file_name, first_name, last_name,
       cvx_code, marketing_authorization_holder, employee_type, date_of_vaccination,
       vaccine_status, id_credentials, consent_receipt, vaccination_credentials,
       sent_status_chs, sent_status_tririga, created_at, updated_at
FROM holder_credentials
WHERE org_id = $1 AND email = $2
`

func (q *Queries) HolderCredentialGet(ctx context.Context, key HolderKey) (HolderCredential, error) {
	row := q.db.QueryRow(ctx, holderCredentialGet, key.OrgID, key.Email)
	var i HolderCredential
	err := row.Scan(
		&i.HolderCredentialsID,
		&i.Email,
		&i.OrgID,
		&i.FileName,
		&i.FirstName,
		&i.LastName,
		&i.CvxCode,
		&i.MarketingAuthorizationHolder,
		&i.EmployeeType,
		&i.DateOfVaccination,
		&i.VaccineStatus,
		&i.IDCredentials,
		&i.ConsentReceipt,
		&i.VaccinationCredentials,
		&i.SentStatusChs,
		&i.SentStatusTririga,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const holderCredentialInsert = `
INSERT INTO holder_credentials (
  holder_credentials_id, email, org_id, file_name, first_name, last_name,
  cvx_code, marketing_authorization_holder, employee_type, date_of_vaccination,
  vaccine_status, id_credentials, consent_receipt, vaccination_credentials,
  sent_status_chs, sent_status_tririga
) VALUES (
  $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
)
`

func (q *Queries) HolderCredentialInsert(ctx context.Context, rec HolderCredential) error {
	_, err := q.db.Exec(ctx, holderCredentialInsert,
		rec.HolderCredentialsID,
		rec.Email,
		rec.OrgID,
		rec.FileName,
		rec.FirstName,
		rec.LastName,
		rec.CvxCode,
		rec.MarketingAuthorizationHolder,
		rec.EmployeeType,
		rec.DateOfVaccination,
		rec.VaccineStatus,
		rec.IDCredentials,
		rec.ConsentReceipt,
		rec.VaccinationCredentials,
		rec.SentStatusChs,
		rec.SentStatusTririga,
	)
	return err
}

// Full-row overwrite; the row id and created_at are kept.
const holderCredentialUpdate = `
UPDATE holder_credentials SET
  file_name = $3,
  first_name = $4,
  last_name = $5,
  cvx_code = $6,
  marketing_authorization_holder = $7,
  employee_type = $8,
  date_of_vaccination = $9,
  vaccine_status = $10,
  id_credentials = $11,
  consent_receipt = $12,
  vaccination_credentials = $13,
  sent_status_chs = $14,
  sent_status_tririga = $15,
  updated_at = now()
WHERE org_id = $1 AND email = $2
`

func (q *Queries) HolderCredentialUpdate(ctx context.Context, rec HolderCredential) (int64, error) {
	tag, err := q.db.Exec(ctx, holderCredentialUpdate,
		rec.OrgID,
		rec.Email,
		rec.FileName,
		rec.FirstName,
		rec.LastName,
		rec.CvxCode,
		rec.MarketingAuthorizationHolder,
		rec.EmployeeType,
		rec.DateOfVaccination,
		rec.VaccineStatus,
		rec.IDCredentials,
		rec.ConsentReceipt,
		rec.VaccinationCredentials,
		rec.SentStatusChs,
		rec.SentStatusTririga,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type DeleteOlderThanParams struct {
	OrgID  string
	Cutoff time.Time
}

const holderCredentialsDeleteOlderThan = `
DELETE FROM holder_credentials
WHERE org_id = $1 AND updated_at <= $2
`

func (q *Queries) HolderCredentialsDeleteOlderThan(ctx context.Context, arg DeleteOlderThanParams) (int64, error) {
	tag, err := q.db.Exec(ctx, holderCredentialsDeleteOlderThan, arg.OrgID, arg.Cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
