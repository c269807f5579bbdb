package signature

import (
	"context"
	"fmt"
	"path"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// Blob describes where a stored signature lives. Data is set only by the
// database backend.
type Blob struct {
	Backend string
	Key     string
	Data    []byte
}

// Store persists a normalised signature PNG.
type Store interface {
	Put(ctx context.Context, healthCheckID, signatureID string, png []byte) (Blob, error)
}

// DatabaseStore keeps the PNG inline on the signature row.
type DatabaseStore struct{}

// Put returns the PNG unchanged for inline storage.
func (DatabaseStore) Put(_ context.Context, _, _ string, png []byte) (Blob, error) {
	return Blob{Backend: "database", Data: png}, nil
}

// GCSStore writes signatures to a Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSStore creates a storage client. Credentials come from opts or the
// ambient application default credentials.
func NewGCSStore(ctx context.Context, bucket, prefix string, opts ...option.ClientOption) (*GCSStore, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("signature: gcs client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket, prefix: prefix}, nil
}

// ObjectKey returns the object name used for a signature.
func (s *GCSStore) ObjectKey(healthCheckID, signatureID string) string {
	return path.Join(s.prefix, healthCheckID, signatureID+".png")
}

// Put uploads the PNG and returns its object key.
func (s *GCSStore) Put(ctx context.Context, healthCheckID, signatureID string, png []byte) (Blob, error) {
	key := s.ObjectKey(healthCheckID, signatureID)
	wc := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	wc.ContentType = ContentType
	if _, err := wc.Write(png); err != nil {
		_ = wc.Close()
		return Blob{}, fmt.Errorf("signature: write gs://%s/%s: %w", s.bucket, key, err)
	}
	if err := wc.Close(); err != nil {
		return Blob{}, fmt.Errorf("signature: close gs://%s/%s: %w", s.bucket, key, err)
	}
	return Blob{Backend: "gcs", Key: key}, nil
}

// Close releases the storage client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
