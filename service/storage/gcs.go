package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"cloud.google.com/go/storage"
	"github.com/photopay/photopay/service/metrics"
	"google.golang.org/api/option"
)

// GCSStore is an ObjectStore backed by a Google Cloud Storage bucket.
type GCSStore struct {
	client  *storage.Client
	bucket  string
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewGCSStore creates an ObjectStore for the given bucket. If credentialsFile
// is empty, application default credentials are used. If m is nil, no metrics
// are recorded.
func NewGCSStore(ctx context.Context, bucket, credentialsFile string, m *metrics.Metrics, logger *slog.Logger) (*GCSStore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &GCSStore{
		client:  client,
		bucket:  bucket,
		logger:  logger,
		metrics: m,
	}, nil
}

// Upload writes the object under key, replacing any existing content.
func (g *GCSStore) Upload(ctx context.Context, key, contentType string, r io.Reader) (err error) {
	start := time.Now()
	defer func() { g.record("upload", start, err) }()

	w := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType

	if _, err = io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write object %s: %w", key, err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("failed to finalize object %s: %w", key, err)
	}

	g.logger.DebugContext(ctx, "uploaded object",
		"bucket", g.bucket,
		"key", key,
		"content_type", contentType,
	)
	return nil
}

// SignedURL returns a V4-signed URL granting read access for ttl.
func (g *GCSStore) SignedURL(ctx context.Context, key string, ttl time.Duration) (_ string, err error) {
	start := time.Now()
	defer func() { g.record("signed_url", start, err) }()

	url, err := g.client.Bucket(g.bucket).SignedURL(key, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign url for %s: %w", key, err)
	}
	return url, nil
}

// Delete removes the object. Deleting a missing object is not an error.
func (g *GCSStore) Delete(ctx context.Context, key string) (err error) {
	start := time.Now()
	defer func() { g.record("delete", start, err) }()

	err = g.client.Bucket(g.bucket).Object(key).Delete(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil
		}
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying client.
func (g *GCSStore) Close() error {
	return g.client.Close()
}

func (g *GCSStore) record(operation string, start time.Time, err error) {
	if g.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	g.metrics.RecordStorageOperation(operation, status, time.Since(start).Seconds())
}
