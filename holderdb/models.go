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
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type JobStatus string

const (
	JobStatusStart   JobStatus = "start"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
)

// SentStatus records whether a holder record was delivered downstream.
type SentStatus string

const (
	SentStatusYes SentStatus = "yes"
	SentStatusNo  SentStatus = "no"
)

// VaccineStatusValid is written for records assembled from verified credentials.
const VaccineStatusValid = "valid"

type Job struct {
	OrgID     string    `json:"org_id"`
	JobID     string    `json:"job_id"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type JobKey struct {
	OrgID string `json:"org_id"`
	JobID string `json:"job_id"`
}

// HolderCredential is one normalized holder row, keyed by (Email, OrgID).
type HolderCredential struct {
	HolderCredentialsID          uuid.UUID       `json:"holder_credentials_id"`
	Email                        string          `json:"email" validate:"required,max=64"`
	OrgID                        string          `json:"org_id" validate:"required,max=30"`
	FileName                     string          `json:"file_name" validate:"max=64"`
	FirstName                    string          `json:"first_name" validate:"required,max=100"`
	LastName                     string          `json:"last_name" validate:"max=100"`
	CvxCode                      string          `json:"cvx_code" validate:"max=32"`
	MarketingAuthorizationHolder string          `json:"marketing_authorization_holder" validate:"max=100"`
	EmployeeType                 string          `json:"employee_type" validate:"max=15"`
	DateOfVaccination            pgtype.Date     `json:"date_of_vaccination"`
	VaccineStatus                string          `json:"vaccine_status" validate:"required,max=30"`
	IDCredentials                json.RawMessage `json:"id_credentials"`
	ConsentReceipt               json.RawMessage `json:"consent_receipt"`
	VaccinationCredentials       json.RawMessage `json:"vaccination_credentials"`
	SentStatusChs                SentStatus      `json:"sent_status_chs" validate:"oneof=yes no"`
	SentStatusTririga            SentStatus      `json:"sent_status_tririga" validate:"oneof=yes no"`
	CreatedAt                    time.Time       `json:"created_at"`
	UpdatedAt                    time.Time       `json:"updated_at"`
}

type HolderKey struct {
	OrgID string
	Email string
}

type Organization struct {
	OrgID     string          `json:"org_id"`
	Config    json.RawMessage `json:"config"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
