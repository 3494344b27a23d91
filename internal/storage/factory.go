package storage

import (
	"context"
	"fmt"

	"github.com/filevault/filevault/internal/config"
	"github.com/filevault/filevault/internal/storage/local"
	s3backend "github.com/filevault/filevault/internal/storage/s3"
)

// NewBackendFromConfig creates the configured Backend. The local filesystem
// backend rooted at cfg.FolderPath is the default.
func NewBackendFromConfig(ctx context.Context, cfg *config.Config) (Backend, error) {
	switch cfg.StorageBackend {
	case "", "local":
		return local.New(cfg.FolderPath)
	case "s3":
		return s3backend.New(ctx, s3backend.Config{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.StorageBackend)
	}
}
