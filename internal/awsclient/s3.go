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

package awsclient

import (
	"context"
	"crypto/tls"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/otel/trace"
)

type S3Client struct {
	Client *s3.Client
	Tracer trace.Tracer
}

// S3Config selects the account, region and endpoint an S3Client talks to.
// Role, when set, is assumed under RoleSessionName.
type S3Config struct {
	Region          string `mapstructure:"region"`
	Role            string `mapstructure:"role"`
	RoleSessionName string `mapstructure:"roleSessionName"`
	Endpoint        string `mapstructure:"endpoint"`
	PathStyle       bool   `mapstructure:"pathStyle"`
	InsecureTLS     bool   `mapstructure:"insecureTLS"`
}

type roleKey struct {
	region  string
	role    string
	session string
}

func (m *Manager) credentials(key roleKey) aws.CredentialsProvider {
	if key.role == "" {
		return m.base.Credentials
	}
	if key.session == "" {
		key.session = defaultSessionName
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.providers[key]; ok {
		return p
	}
	p := aws.NewCredentialsCache(stscreds.NewAssumeRoleProvider(m.sts, key.role, func(o *stscreds.AssumeRoleOptions) {
		o.RoleSessionName = key.session
	}))
	m.providers[key] = p
	return p
}

// GetS3 returns a client for sc. Empty fields fall back to the base config.
func (m *Manager) GetS3(_ context.Context, sc S3Config) (*S3Client, error) {
	region := sc.Region
	if region == "" {
		region = m.base.Region
	}

	cfg := m.base.Copy()
	cfg.Region = region
	cfg.Credentials = m.credentials(roleKey{region: region, role: sc.Role, session: sc.RoleSessionName})
	if sc.InsecureTLS {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		cfg.HTTPClient = &http.Client{Transport: tr}
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if sc.Endpoint != "" {
			o.BaseEndpoint = aws.String(sc.Endpoint)
		}
		o.UsePathStyle = sc.PathStyle
	})
	return &S3Client{Client: client, Tracer: m.tracer}, nil
}
