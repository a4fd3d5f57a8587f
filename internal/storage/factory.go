package storage

import (
	"fmt"

	"github.com/agjmills/clientvault/internal/config"
)

// NewBackendFromConfig creates a BlobStore based on the configuration.
// Supported backends:
//   - "s3": AWS S3 or compatible storage (e.g., rustfs, MinIO)
//   - "memory": In-memory storage for development and testing
func NewBackendFromConfig(cfg *config.Config) (BlobStore, error) {
	switch cfg.StorageBackend {
	case "s3", "":
		backend, err := NewS3Backend(S3Config{
			Endpoint:     cfg.S3Endpoint,
			Region:       cfg.S3Region,
			Bucket:       cfg.S3Bucket,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			UsePathStyle: cfg.S3UsePathStyle,
		})
		if err != nil {
			return nil, err
		}
		return backend, nil
	case "memory":
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s (supported: memory, s3)", cfg.StorageBackend)
	}
}
