package mirror

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
)

// GCSArchiver writes raw aggregator payloads to a Cloud Storage bucket.
type GCSArchiver struct {
	client *storage.Client
	bucket string
}

// NewGCSArchiver creates an archiver writing into bucketName.
func NewGCSArchiver(ctx context.Context, bucketName string) (*GCSArchiver, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSArchiver{client: client, bucket: bucketName}, nil
}

// Archive writes payload under objectName, overwriting any previous object.
func (a *GCSArchiver) Archive(ctx context.Context, objectName string, payload []byte) error {
	w := a.client.Bucket(a.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = "application/json"

	if _, err := w.Write(payload); err != nil {
		w.Close()
		return fmt.Errorf("write GCS object %s: %w", objectName, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close GCS object %s: %w", objectName, err)
	}
	return nil
}

// Close releases the underlying storage client.
func (a *GCSArchiver) Close() error {
	return a.client.Close()
}
