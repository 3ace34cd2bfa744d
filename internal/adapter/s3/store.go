// Package s3 mirrors templates to an S3-compatible bucket.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const contentType = "application/vnd.fdsn.mseed"

// Store implements archive.Store on an S3-compatible bucket.
type Store struct {
	client *minio.Client
	bucket string
	prefix string
	logger *slog.Logger

	bucketOnce sync.Once
	bucketErr  error
}

// NewStore constructs the store. The endpoint may carry a scheme, which
// selects TLS; any path is dropped.
func NewStore(endpoint, accessKey, secretKey, bucket, region, prefix string, logger *slog.Logger) (*Store, error) {
	useSSL := strings.HasPrefix(strings.ToLower(strings.TrimSpace(endpoint)), "https")
	client, err := minio.New(sanitizeEndpoint(endpoint), &minio.Options{
		Creds:        credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure:       useSSL,
		Region:       region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &Store{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: logger.With("component", "s3"),
	}, nil
}

func (s *Store) Name() string { return "s3" }

// Put uploads data under {prefix}/{name} and returns an s3:// location.
func (s *Store) Put(ctx context.Context, name string, data []byte) (string, error) {
	s.bucketOnce.Do(func() { s.bucketErr = s.ensureBucket(ctx) })
	if s.bucketErr != nil {
		return "", fmt.Errorf("s3 bucket %s: %w", s.bucket, s.bucketErr)
	}

	key := s.key(name)
	info, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:      contentType,
		DisableMultipart: len(data) < 5*1024*1024,
	})
	if err != nil {
		return "", fmt.Errorf("s3 put %s: %w", key, err)
	}
	s.logger.Debug("template mirrored", "key", key, "size", info.Size, "etag", info.ETag)
	return "s3://" + s.bucket + "/" + key, nil
}

func (s *Store) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err == nil && exists {
		return nil
	}
	err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
	if err != nil && minio.ToErrorResponse(err).Code != "BucketAlreadyOwnedByYou" {
		return err
	}
	return nil
}

func (s *Store) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

// sanitizeEndpoint strips scheme and path to satisfy minio.New.
func sanitizeEndpoint(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "https://"), "http://")
	if i := strings.Index(raw, "/"); i >= 0 {
		raw = raw[:i]
	}
	return raw
}
