// Package storage provides transient file handles for media decoding and an
// archive for report media. It defines the Storage port and implementations
// for local disk and S3.
package storage

import (
	"context"
	"io"
)

// Storage defines transient and archival file storage.
type Storage interface {
	// SaveTemp writes data to a new temporary file and returns its path.
	// The name parameter is used as a hint for the filename.
	SaveTemp(ctx context.Context, name string, data io.Reader) (path string, err error)

	// CleanupTemp removes the specified temporary files.
	// It continues cleanup even if some files fail to delete.
	CleanupTemp(ctx context.Context, paths []string) error

	// Archive stores report media under key and returns where it now lives
	// (a file path or an object URL).
	Archive(ctx context.Context, key, contentType string, data io.Reader) (location string, err error)
}
