// Package storage defines the Backend interface for blob storage.
// Blobs are written exactly once under generated keys; the thumbnail worker
// adds derived sibling blobs but never rewrites an original.
package storage

import (
	"context"
	"io"
)

// Backend is the interface for blob storage backends.
// Implementations handle raw object I/O (local filesystem, S3/MinIO).
// Record metadata is handled separately by metadata.Store.
type Backend interface {
	// GetObject retrieves a blob by key, returning its reader and size.
	GetObject(ctx context.Context, key string) (io.ReadCloser, int64, error)

	// PutObject writes content under the given key.
	PutObject(ctx context.Context, key string, body io.Reader) error

	// DeleteObject removes a blob by key. Missing blobs are not an error.
	DeleteObject(ctx context.Context, key string) error

	// ObjectExists checks if a blob exists at the given key.
	ObjectExists(ctx context.Context, key string) (bool, error)

	// Type returns the backend type identifier ("local", "s3").
	Type() string

	// Close releases any resources held by the backend.
	Close() error
}
