package storage

import (
	"context"
	"fmt"
	"path"

	"github.com/erp/connector/internal/domain/integration"
	infraconfig "github.com/erp/connector/internal/infrastructure/config"
)

const (
	defaultContentType = "application/octet-stream"
	// metaContentHash carries the BLAKE2b-256 digest as object metadata
	metaContentHash = "content-hash"
)

// Store is an attachment store that can prepare its bucket
type Store interface {
	integration.AttachmentStore
	EnsureBucket(ctx context.Context) error
	Exists(ctx context.Context, key string) (bool, error)
}

// New creates the store selected by cfg.Driver
func New(cfg *infraconfig.StorageConfig, opts ...Option) (Store, error) {
	switch cfg.Driver {
	case "s3", "":
		return NewS3Store(cfg, opts...)
	case "minio":
		return NewMinIOStore(cfg, opts...)
	case "memory":
		return NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}

func objectKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return path.Join(prefix, key)
}
