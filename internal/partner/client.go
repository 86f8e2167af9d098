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

// Package partner reads user vaccination status from a partner's status
// service.
package partner

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/cardinalhq/credrunner/internal/apiclient"
)

const (
	usersPath      = "/users"
	userStatusPath = "/list_user_status"
)

var ErrNoStatus = errors.New("partner returned no status for user")

// User is one entry of the partner's user list. UserID is the user's email.
type User struct {
	UserID   string `json:"userId"`
	FullName string `json:"fullName"`
}

// UserStatus is a user's vaccination status as the partner reports it.
type UserStatus struct {
	UserID    string `json:"userId"`
	VaxStatus string `json:"vaxStatus"`
}

type Client struct {
	api *apiclient.Client
}

func New(cfg apiclient.Config, opts ...apiclient.Option) *Client {
	return &Client{api: apiclient.New("partner", cfg, opts...)}
}

// GetUsersList returns every user the partner knows about.
func (c *Client) GetUsersList(ctx context.Context, key string) ([]User, error) {
	var users []User
	if err := c.api.Do(ctx, http.MethodGet, usersPath, nil, apiclient.BasicToken(key), &users); err != nil {
		return nil, err
	}
	return users, nil
}

// GetUsersStatus returns the statuses for userIDs, in the partner's order.
func (c *Client) GetUsersStatus(ctx context.Context, key string, userIDs []string) ([]UserStatus, error) {
	body := struct {
		UserIDs []string `json:"userIds"`
	}{UserIDs: userIDs}

	var statuses []UserStatus
	if err := c.api.Do(ctx, http.MethodPost, userStatusPath, body, apiclient.BasicToken(key), &statuses); err != nil {
		return nil, err
	}
	return statuses, nil
}

// GetUserStatus is GetUsersStatus for one user.
func (c *Client) GetUserStatus(ctx context.Context, key, userID string) (string, error) {
	statuses, err := c.GetUsersStatus(ctx, key, []string{userID})
	if err != nil {
		return "", err
	}
	if len(statuses) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoStatus, userID)
	}
	return statuses[0].VaxStatus, nil
}
