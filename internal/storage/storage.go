// Package storage defines the object storage capability used by the gallery.
// The MinIO implementation works with any S3-compatible provider.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrObjectNotFound is returned when a key does not exist in the bucket.
var ErrObjectNotFound = errors.New("object not found")

// Object describes one stored object as returned by List.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Storage is the interface for uploading, signing and removing objects.
type Storage interface {
	// Upload streams data to the store under the given key.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	// SignedURL returns a time-limited read URL for key.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	// Remove deletes the objects identified by keys.
	Remove(ctx context.Context, keys ...string) error
	// List returns every object whose key starts with prefix.
	List(ctx context.Context, prefix string) ([]Object, error)
}
