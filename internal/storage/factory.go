package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/timmy/docpipe/internal/config"
)

// NewObjectStorage creates the blob backend named by cfg.Type.
// Parameters:
//   - ctx: used for the bucket existence check of object-store backends.
//   - cfg: storage configuration including type, path, endpoint and credentials.
//
// Returns:
//   - ObjectStorage: initialized backend.
//   - error: non-nil if the backend cannot be created.
func NewObjectStorage(ctx context.Context, cfg *config.StorageConfig) (ObjectStorage, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "disk", "local":
		return NewDiskStorage(cfg.DiskPath)
	case string(StorageTypeS3), string(StorageTypeR2), string(StorageTypeS3Compatible), "minio":
		storeType := StorageType(strings.ToLower(cfg.Type))
		if storeType == "minio" {
			storeType = StorageTypeS3Compatible
		}
		if cfg.Endpoint != "" && storeType == StorageTypeS3Compatible {
			storeType = detectStorageType(cfg.Endpoint)
		}
		s, err := NewS3Storage(&S3Config{
			Type:      storeType,
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			UseSSL:    cfg.UseSSL,
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
		})
		if err != nil {
			return nil, err
		}
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported storage type %q", cfg.Type)
	}
}

// detectStorageType attempts to detect the storage type from the endpoint
func detectStorageType(endpoint string) StorageType {
	endpoint = strings.ToLower(endpoint)

	switch {
	case strings.Contains(endpoint, "r2.cloudflarestorage.com"):
		return StorageTypeR2
	case strings.Contains(endpoint, "amazonaws.com"):
		return StorageTypeS3
	default:
		return StorageTypeS3Compatible
	}
}
