package storage

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound is returned by Download when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStorage is owned storage for rehosted media binaries.
type ObjectStorage interface {
	// Upload stores an object under key, replacing any existing object.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download opens an object for reading.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// GetURL returns the public URL of an object.
	GetURL(key string) string

	// Delete removes an object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether an object is stored under key.
	Exists(ctx context.Context, key string) (bool, error)
}

// BucketEnsurer is implemented by backends that can create their bucket on startup.
type BucketEnsurer interface {
	EnsureBucket(ctx context.Context) error
}
