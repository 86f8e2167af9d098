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

// Package extractor calls the credential extraction service, which decodes
// and verifies signed credentials.
package extractor

import (
	"context"
	"encoding/json"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/cardinalhq/credrunner/internal/apiclient"
)

const extractPath = "/credentials/extract"

// Response is the extraction outcome. Credential holds the decoded payload
// when Success is true.
type Response struct {
	Success    bool            `json:"success"`
	CredType   string          `json:"credType,omitempty"`
	Credential json.RawMessage `json:"credential,omitempty"`
	Error      string          `json:"error,omitempty"`
	Message    string          `json:"message,omitempty"`
}

type request struct {
	Credential json.RawMessage `json:"credential"`
}

type Client struct {
	api  *apiclient.Client
	auth apiclient.Authorizer
}

func New(cfg apiclient.Config, tokens oauth2.TokenSource, opts ...apiclient.Option) *Client {
	return &Client{
		api:  apiclient.New("extractor", cfg, opts...),
		auth: apiclient.BearerToken(tokens),
	}
}

// Extract submits one encoded credential. A non-nil error means the service
// could not be reached or rejected the call; a decoded-but-unverified
// credential comes back as a Response with Success false.
func (c *Client) Extract(ctx context.Context, credential json.RawMessage) (*Response, error) {
	var resp Response
	if err := c.api.Do(ctx, http.MethodPost, extractPath, request{Credential: credential}, c.auth, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
