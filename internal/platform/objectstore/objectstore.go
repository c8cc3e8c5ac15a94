package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/docforge/docforge-api/internal/config"
	"github.com/docforge/docforge-api/internal/domain"
)

// Content types of the artifacts we store.
const (
	DocxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	TextContentType = "text/plain; charset=utf-8"
)

// Store uploads document artifacts to a single bucket of an S3 compatible
// object store.
type Store struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

// New creates a Store from the object store configuration and ensures the
// configured bucket exists.
func New(ctx context.Context, cfg config.ObjectStoreConfig, logger *slog.Logger) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	s := &Store{
		client: client,
		bucket: cfg.Bucket,
		logger: logger.With(slog.String("component", "objectstore")),
	}

	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

// ensureBucket creates the bucket if it does not exist yet.
func (s *Store) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %q: %w", s.bucket, err)
	}
	if exists {
		return nil
	}

	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %q: %w", s.bucket, err)
	}
	s.logger.Info("created artifact bucket", "bucket", s.bucket)
	return nil
}

// Upload writes the given bytes under the object key and returns the stored
// artifact descriptor.
func (s *Store) Upload(ctx context.Context, objectKey string, data []byte, contentType string) (domain.Artifact, error) {
	info, err := s.client.PutObject(ctx, s.bucket, objectKey,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return domain.Artifact{}, fmt.Errorf("failed to upload %q: %w", objectKey, err)
	}

	s.logger.Debug("artifact uploaded",
		"object_key", objectKey,
		"size_bytes", info.Size)

	return domain.Artifact{ObjectKey: objectKey, SizeBytes: info.Size}, nil
}

// Download reads the full object stored under the given key.
func (s *Store) Download(ctx context.Context, objectKey string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to open %q: %w", objectKey, err)
	}
	defer func() { _ = obj.Close() }()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", objectKey, err)
	}
	return data, nil
}

// HealthCheck verifies connectivity and credentials against the store.
func (s *Store) HealthCheck(ctx context.Context) error {
	if _, err := s.client.BucketExists(ctx, s.bucket); err != nil {
		return fmt.Errorf("object store health check failed: %w", err)
	}
	return nil
}
