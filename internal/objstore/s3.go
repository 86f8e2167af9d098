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

package objstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cardinalhq/credrunner/internal/awsclient"
)

type s3Backend struct {
	client *awsclient.S3Client
}

func s3NotFound(err error) bool {
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound"
}

func (b *s3Backend) list(ctx context.Context, bucket string) ([]string, error) {
	ctx, span := b.client.Tracer.Start(ctx, "objstore.s3List",
		trace.WithAttributes(attribute.String("bucket", bucket)))
	defer span.End()

	var keys []string
	p := s3.NewListObjectsV2Paginator(b.client.Client, &s3.ListObjectsV2Input{Bucket: aws.String(bucket)})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

func (b *s3Backend) get(ctx context.Context, bucket, key string, limit int64) ([]byte, error) {
	ctx, span := b.client.Tracer.Start(ctx, "objstore.s3Get",
		trace.WithAttributes(attribute.String("bucket", bucket), attribute.String("key", key)))
	defer span.End()

	out, err := b.client.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if s3NotFound(err) {
			return nil, ErrNotFound
		}
		span.RecordError(err)
		return nil, err
	}
	defer func() { _ = out.Body.Close() }()

	data, err := readLimited(out.Body, limit)
	if err != nil {
		return nil, fmt.Errorf("read object body: %w", err)
	}
	return data, nil
}

func (b *s3Backend) remove(ctx context.Context, bucket, key string) error {
	ctx, span := b.client.Tracer.Start(ctx, "objstore.s3Delete",
		trace.WithAttributes(attribute.String("bucket", bucket), attribute.String("key", key)))
	defer span.End()

	_, err := b.client.Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil && s3NotFound(err) {
		return ErrNotFound
	}
	return err
}
