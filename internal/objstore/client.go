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

// Package objstore reads credential bundle files from each organization's
// bucket, named "<org>-<suffix>", on S3, Azure Blob Storage or local disk.
package objstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/credrunner/internal/awsclient"
	"github.com/cardinalhq/credrunner/internal/azureclient"
)

var (
	ErrNotFound  = errors.New("object not found")
	ErrNotBundle = errors.New("object is not a JSON array of credentials")
)

// Bundle is one file's credentials, in file order.
type Bundle []json.RawMessage

// Client is the pipeline's view of the object store.
type Client interface {
	ListFiles(ctx context.Context, orgID string) ([]string, error)
	FetchFile(ctx context.Context, orgID, fileID string) (Bundle, error)
	DeleteFile(ctx context.Context, orgID, fileID string) error
}

type Config struct {
	Provider     string                 `mapstructure:"provider" validate:"oneof=s3 azure file"`
	BucketSuffix string                 `mapstructure:"bucketSuffix"`
	MaxFileBytes int64                  `mapstructure:"maxFileBytes" validate:"gte=0"`
	S3           awsclient.S3Config     `mapstructure:"s3"`
	Azure        azureclient.BlobConfig `mapstructure:"azure"`
	FileRoot     string                 `mapstructure:"fileRoot"`
}

func DefaultConfig() Config {
	return Config{
		Provider:     "s3",
		BucketSuffix: "credentials",
		MaxFileBytes: 8 << 20,
	}
}

// backend is one provider's raw object access. get returns ErrNotFound for
// a missing object and reads at most limit bytes when limit > 0.
type backend interface {
	list(ctx context.Context, bucket string) ([]string, error)
	get(ctx context.Context, bucket, key string, limit int64) ([]byte, error)
	remove(ctx context.Context, bucket, key string) error
}

var opCounter metric.Int64Counter

func init() {
	meter := otel.Meter("github.com/cardinalhq/credrunner/internal/objstore")
	var err error
	opCounter, err = meter.Int64Counter(
		"credrunner.objstore.operations",
		metric.WithDescription("Object store operations by kind and outcome"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create objstore.operations counter: %w", err))
	}
}

type store struct {
	provider string
	suffix   string
	limit    int64
	be       backend
}

var _ Client = (*store)(nil)

// New builds the client for cfg.Provider.
func New(ctx context.Context, cfg Config) (Client, error) {
	var be backend
	switch cfg.Provider {
	case "s3", "":
		mgr, err := awsclient.NewManager(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create AWS manager: %w", err)
		}
		c, err := mgr.GetS3(ctx, cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		be = &s3Backend{client: c}
	case "azure":
		mgr, err := azureclient.NewManager(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure manager: %w", err)
		}
		c, err := mgr.GetBlob(ctx, cfg.Azure)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure blob client: %w", err)
		}
		be = &azureBackend{client: c}
	case "file":
		if cfg.FileRoot == "" {
			return nil, errors.New("objstore: fileRoot is required for the file provider")
		}
		be = &fileBackend{base: cfg.FileRoot}
	default:
		return nil, fmt.Errorf("unsupported object store provider: %s", cfg.Provider)
	}
	return newStore(cfg, be), nil
}

func newStore(cfg Config, be backend) *store {
	provider := cfg.Provider
	if provider == "" {
		provider = "s3"
	}
	return &store{provider: provider, suffix: cfg.BucketSuffix, limit: cfg.MaxFileBytes, be: be}
}

// Bucket is the container holding orgID's files.
func (s *store) Bucket(orgID string) string {
	if s.suffix == "" {
		return orgID
	}
	return orgID + "-" + s.suffix
}

func (s *store) record(ctx context.Context, op string, err error) {
	outcome := "ok"
	switch {
	case errors.Is(err, ErrNotFound):
		outcome = "not_found"
	case errors.Is(err, ErrNotBundle):
		outcome = "not_bundle"
	case err != nil:
		outcome = "error"
	}
	opCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", s.provider),
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	))
}

// ListFiles returns the org's file ids in lexical order.
func (s *store) ListFiles(ctx context.Context, orgID string) ([]string, error) {
	bucket := s.Bucket(orgID)
	keys, err := s.be.list(ctx, bucket)
	s.record(ctx, "list", err)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", bucket, err)
	}
	slices.Sort(keys)
	return keys, nil
}

func (s *store) FetchFile(ctx context.Context, orgID, fileID string) (Bundle, error) {
	bucket := s.Bucket(orgID)
	data, err := s.be.get(ctx, bucket, fileID, s.limit)
	if err == nil {
		var b Bundle
		b, err = DecodeBundle(data)
		if err == nil {
			s.record(ctx, "fetch", nil)
			return b, nil
		}
	}
	s.record(ctx, "fetch", err)
	return nil, fmt.Errorf("fetch %s/%s: %w", bucket, fileID, err)
}

// DeleteFile removes a file. Deleting a missing file is not an error.
func (s *store) DeleteFile(ctx context.Context, orgID, fileID string) error {
	bucket := s.Bucket(orgID)
	err := s.be.remove(ctx, bucket, fileID)
	if errors.Is(err, ErrNotFound) {
		err = nil
	}
	s.record(ctx, "delete", err)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", bucket, fileID, err)
	}
	return nil
}

// readLimited reads r, failing with ErrNotBundle past limit bytes.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: larger than %d bytes", ErrNotBundle, limit)
	}
	return data, nil
}

// DecodeBundle parses a file body, which must be a JSON array.
func DecodeBundle(data []byte) (Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotBundle, err)
	}
	if b == nil {
		return nil, ErrNotBundle
	}
	return b, nil
}
