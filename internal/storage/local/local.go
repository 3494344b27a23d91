// Package local provides a local filesystem blob storage backend.
package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Backend implements storage.Backend using the local filesystem.
// Keys are opaque blob names resolved under a single root directory.
type Backend struct {
	rootPath string
}

// New creates a local filesystem backend rooted at rootPath, creating the
// directory if it does not exist.
func New(rootPath string) (*Backend, error) {
	if rootPath == "" {
		return nil, fmt.Errorf("root path is required")
	}

	info, err := os.Stat(rootPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat root path %s: %w", rootPath, err)
		}
		if mkErr := os.MkdirAll(rootPath, 0755); mkErr != nil {
			return nil, fmt.Errorf("create root path %s: %w", rootPath, mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("root path %s is not a directory", rootPath)
	}

	return &Backend{rootPath: rootPath}, nil
}

func (b *Backend) fullPath(key string) string {
	return filepath.Join(b.rootPath, filepath.FromSlash(key))
}

// GetObject reads a blob from the local filesystem.
func (b *Backend) GetObject(_ context.Context, key string) (io.ReadCloser, int64, error) {
	f, err := os.Open(b.fullPath(key))
	if err != nil {
		return nil, 0, fmt.Errorf("open %s: %w", key, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat %s: %w", key, err)
	}

	return f, info.Size(), nil
}

// PutObject writes content to the local filesystem atomically.
func (b *Backend) PutObject(_ context.Context, key string, body io.Reader) error {
	path := b.fullPath(key)
	dir := filepath.Dir(path)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create dirs for %s: %w", key, err)
	}

	// Write to temp file then rename for atomicity
	tmp, err := os.CreateTemp(dir, ".filevault-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", key, err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp for %s: %w", key, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp to %s: %w", key, err)
	}

	return nil
}

// DeleteObject removes a blob from the local filesystem.
func (b *Backend) DeleteObject(_ context.Context, key string) error {
	err := os.Remove(b.fullPath(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// ObjectExists checks if a blob exists on the local filesystem.
func (b *Backend) ObjectExists(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(b.fullPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", key, err)
	}
	return true, nil
}

// Type returns "local".
func (b *Backend) Type() string { return "local" }

// Close is a no-op for local backends.
func (b *Backend) Close() error { return nil }
