package storage

import (
	"context"
	"io"

	"github.com/timmy/docpipe/internal/domain"
)

// ObjectStorage defines the interface for blob operations. Implementations
// return ErrNotFound (possibly wrapped) for missing objects.
type ObjectStorage interface {
	// Upload uploads an object to storage
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download downloads an object from storage
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete deletes an object from storage. Missing objects are not an error.
	Delete(ctx context.Context, key string) error

	// Exists checks if an object exists
	Exists(ctx context.Context, key string) (bool, error)

	// SetTier moves the object into the backend's class for tier.
	SetTier(ctx context.Context, key string, tier domain.StorageTier) error
}
