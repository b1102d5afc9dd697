package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/erp/connector/internal/domain/integration"
	infraconfig "github.com/erp/connector/internal/infrastructure/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

var _ integration.AttachmentStore = (*MinIOStore)(nil)

// MinIOStore stores attachment content with the MinIO client
type MinIOStore struct {
	client *minio.Client
	bucket string
	region string
	prefix string
	logger *zap.Logger
}

// NewMinIOStore creates a MinIOStore; the endpoint is host:port without scheme
func NewMinIOStore(cfg *infraconfig.StorageConfig, opts ...Option) (*MinIOStore, error) {
	if cfg == nil {
		return nil, errors.New("storage configuration is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	if cfg.Endpoint == "" {
		return nil, errors.New("storage endpoint is required")
	}
	o := applyOptions(opts)

	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.UseSSL,
		Region:       region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}

	return &MinIOStore{
		client: client,
		bucket: cfg.Bucket,
		region: region,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: o.logger,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (s *MinIOStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if exists {
		return nil
	}
	s.logger.Info("Creating attachment bucket", zap.String("bucket", s.bucket))
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		if minio.ToErrorResponse(err).Code == "BucketAlreadyOwnedByYou" {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Put uploads attachment content under key
func (s *MinIOStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if key == "" {
		return errors.New("storage key is required")
	}
	if contentType == "" {
		contentType = defaultContentType
	}

	_, err := s.client.PutObject(ctx, s.bucket, objectKey(s.prefix, key), bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{
			ContentType:  contentType,
			UserMetadata: map[string]string{metaContentHash: integration.ContentHash(data)},
		})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		return fmt.Errorf("failed to upload object (%s): %w", resp.Code, err)
	}
	s.logger.Debug("attachment stored", zap.String("key", key), zap.Int("size", len(data)))
	return nil
}

// Delete removes the object under key; deleting a missing key is not an error
func (s *MinIOStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return errors.New("storage key is required")
	}
	if err := s.client.RemoveObject(ctx, s.bucket, objectKey(s.prefix, key), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// Exists checks whether an object exists under key
func (s *MinIOStore) Exists(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, errors.New("storage key is required")
	}
	_, err := s.client.StatObject(ctx, s.bucket, objectKey(s.prefix, key), minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, fmt.Errorf("failed to check object existence: %w", err)
	}
	return true, nil
}
