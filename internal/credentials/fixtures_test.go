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
	"errors"
	"sync/atomic"

	"github.com/cardinalhq/credrunner/internal/extractor"
)

const (
	consentJSON  = `{"consentType":"employer-share","consentId":"c-1"}`
	identityJSON = `{
		"credentialSchema": {"id": "did:hpass:issuer;param=IDHP;region=US"},
		"credentialSubject": {"type": "id", "email": "pat@example.com", "given": "Pat", "family": "Public"}
	}`
	acmeConfigJSON = `{
		"mappers": {
			"IDHPUS": {
				"email": ".credentialSubject.email",
				"firstName": ".credentialSubject.given",
				"lastName": ".credentialSubject.family"
			},
			"metadatamapper": {
				"cvxCode": ".lastVaccination.cvx",
				"dateOfVaccination": ".lastVaccination.date"
			},
			"shcmapper": {
				"cvxCode2": ".vc.cvx",
				"dateOfVaccination1": ".vc.date"
			},
			"ghp-vaccination-credential0.1": {
				"cvxCode": ".credentialSubject.cvx",
				"marketingAuthorizationHolder": ".credentialSubject.mah",
				"dateOfVaccination": ".credentialSubject.date"
			}
		},
		"manufacturer": {"207": "ModernaTX, Inc.", "208": "Pfizer, Inc."},
		"employeeType": "employee",
		"process": true
	}`
)

func raws(elems ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(elems))
	for i, e := range elems {
		out[i] = json.RawMessage(e)
	}
	return out
}

// fakeExtractor answers by the raw element text.
type fakeExtractor struct {
	responses map[string]*extractor.Response
	calls     atomic.Int32
}

func (f *fakeExtractor) Extract(_ context.Context, credential json.RawMessage) (*extractor.Response, error) {
	f.calls.Add(1)
	resp, ok := f.responses[string(credential)]
	if !ok {
		return nil, errors.New("extraction service unavailable")
	}
	return resp, nil
}

func shcResponse(nbf int64, cvx string) *extractor.Response {
	cred, _ := json.Marshal(map[string]any{"nbf": nbf, "vc": map[string]string{"cvx": cvx, "date": "2022-01-01"}})
	return &extractor.Response{Success: true, CredType: "SHC", Credential: cred}
}
