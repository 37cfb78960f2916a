package capability

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"cloud.google.com/go/storage"
)

const gcsPublicHost = "https://storage.googleapis.com"

// GCSStorage keeps media in a Cloud Storage bucket under an optional prefix.
type GCSStorage struct {
	client *storage.Client
	bucket string
	prefix string
}

var _ Storage = (*GCSStorage)(nil)

// NewGCSStorage opens a client with application default credentials.
func NewGCSStorage(ctx context.Context, bucket, prefix string) (*GCSStorage, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs storage: new client: %w", err)
	}
	return NewGCSStorageWithClient(client, bucket, prefix)
}

// NewGCSStorageWithClient wraps an existing client.
func NewGCSStorageWithClient(client *storage.Client, bucket, prefix string) (*GCSStorage, error) {
	if client == nil {
		return nil, fmt.Errorf("gcs storage: client is required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("gcs storage: bucket is required")
	}
	return &GCSStorage{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}, nil
}

// Close releases the underlying client.
func (s *GCSStorage) Close() error {
	return s.client.Close()
}

// Put uploads data to key with its sniffed content type.
func (s *GCSStorage) Put(ctx context.Context, data []byte, key string) (string, error) {
	name, err := s.objectName(key)
	if err != nil {
		return "", err
	}
	w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	w.ContentType, _ = Sniff(data)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("gcs storage: write %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs storage: finalize %s: %w", name, err)
	}
	return gcsPublicHost + "/" + s.bucket + "/" + name, nil
}

// Delete removes key and reports whether it existed.
func (s *GCSStorage) Delete(ctx context.Context, key string) (bool, error) {
	name, err := s.objectName(key)
	if err != nil {
		return false, err
	}
	if err := s.client.Bucket(s.bucket).Object(name).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("gcs storage: delete %s: %w", name, err)
	}
	return true, nil
}

// Exists reports whether key is a non-empty object.
func (s *GCSStorage) Exists(ctx context.Context, key string) (bool, error) {
	name, err := s.objectName(key)
	if err != nil {
		return false, err
	}
	attrs, err := s.client.Bucket(s.bucket).Object(name).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("gcs storage: stat %s: %w", name, err)
	}
	return attrs.Size > 0, nil
}

func (s *GCSStorage) objectName(key string) (string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	if s.prefix == "" {
		return cleaned, nil
	}
	return path.Join(s.prefix, cleaned), nil
}
