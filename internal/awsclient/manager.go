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

// Package awsclient builds the S3 clients the object store reads credential
// bundles through. Clients share one base AWS config; assumed-role
// credentials are cached per (region, role, session name).
package awsclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const defaultSessionName = "credrunner"

type Manager struct {
	base   aws.Config
	sts    *sts.Client
	tracer trace.Tracer

	mu        sync.Mutex
	providers map[roleKey]aws.CredentialsProvider
}

// NewManager loads the default AWS config and instruments it with otelaws.
func NewManager(ctx context.Context) (*Manager, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	otelaws.AppendMiddlewares(&cfg.APIOptions)

	return &Manager{
		base:      cfg,
		sts:       sts.NewFromConfig(cfg),
		tracer:    otel.Tracer("github.com/cardinalhq/credrunner/internal/awsclient"),
		providers: map[roleKey]aws.CredentialsProvider{},
	}, nil
}
