package snapshot

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/ecfr-snapshot/internal/ecfr"
)

// GCSMirror uploads the serialized snapshot to a Google Cloud Storage object
// after each run, for consumers that read from the bucket instead of local
// disk. GCS object writes are already atomic, so no rename dance is needed.
type GCSMirror struct {
	client *storage.Client
	bucket string
	object string
	logger *zap.Logger
}

// NewGCSMirror initializes a GCS client and verifies bucket access.
// Authentication is handled via Application Default Credentials.
func NewGCSMirror(ctx context.Context, bucket, object string, logger *zap.Logger) (*GCSMirror, error) {
	if bucket == "" || object == "" {
		return nil, fmt.Errorf("gcs bucket and object are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}

	// Fail fast on startup if the bucket is misconfigured.
	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("close gcs client after attrs failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("get gcs bucket %q attributes: %w", bucket, err)
	}

	return &GCSMirror{
		client: client,
		bucket: bucket,
		object: object,
		logger: logger,
	}, nil
}

// Upload serializes the snapshot and writes it to the configured object.
func (m *GCSMirror) Upload(ctx context.Context, snap ecfr.Snapshot) error {
	data, err := Marshal(snap)
	if err != nil {
		return err
	}

	wc := m.client.Bucket(m.bucket).Object(m.object).NewWriter(ctx)
	wc.ContentType = "application/json"
	if _, err := wc.Write(data); err != nil {
		if closeErr := wc.Close(); closeErr != nil {
			m.logger.Warn("close gcs writer after write failure", zap.Error(closeErr))
		}
		return fmt.Errorf("write gcs object %s: %w", m.object, err)
	}
	// Close finalizes the upload.
	if err := wc.Close(); err != nil {
		return fmt.Errorf("close gcs writer for %s: %w", m.object, err)
	}

	m.logger.Info("snapshot mirrored to gcs",
		zap.String("bucket", m.bucket),
		zap.String("object", m.object),
	)
	return nil
}

// Close releases the underlying client.
func (m *GCSMirror) Close() error {
	return m.client.Close()
}
