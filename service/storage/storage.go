package storage

import (
	"context"
	"io"
	"time"
)

// ObjectStore abstracts the object storage backend holding listing content.
// Implementations must be safe for concurrent use.
type ObjectStore interface {
	// Upload writes the object under key, replacing any existing content.
	Upload(ctx context.Context, key, contentType string, r io.Reader) error

	// SignedURL returns a time-limited URL granting read access to the object.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)

	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error
}
