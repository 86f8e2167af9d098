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

// Package desapi calls the data-submission API, which holds partner API keys
// on behalf of each organization.
package desapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"

	"github.com/cardinalhq/credrunner/internal/apiclient"
)

var ErrKeyNotDefined = errors.New("partner key is not defined")

type keyResponse struct {
	Payload map[string]map[string]string `json:"payload"`
}

type Client struct {
	api  *apiclient.Client
	auth apiclient.Authorizer
}

func New(cfg apiclient.Config, tokens oauth2.TokenSource, opts ...apiclient.Option) *Client {
	return &Client{
		api:  apiclient.New("desapi", cfg, opts...),
		auth: apiclient.BearerToken(tokens),
	}
}

// PartnerKey returns the value of keyName registered for partnerID in orgID.
// An empty or absent value is ErrKeyNotDefined.
func (c *Client) PartnerKey(ctx context.Context, orgID, partnerID, keyName string) (string, error) {
	path := fmt.Sprintf("/organization/%s/partners/%s/keys/%s",
		url.PathEscape(orgID), url.PathEscape(partnerID), url.PathEscape(keyName))

	var resp keyResponse
	if err := c.api.Do(ctx, http.MethodGet, path, nil, c.auth, &resp); err != nil {
		return "", fmt.Errorf("unable to fetch partner key: %w", err)
	}
	key := resp.Payload[partnerID][keyName]
	if key == "" {
		return "", fmt.Errorf("%w: %s/%s", ErrKeyNotDefined, partnerID, keyName)
	}
	return key, nil
}
