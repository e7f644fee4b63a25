package repository

import (
	"context"
	"errors"
	"time"

	"github.com/timmy/docpipe/internal/domain"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// DocumentStore persists document metadata.
type DocumentStore interface {
	Create(ctx context.Context, doc *domain.Document) error
	Save(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	GetByStorageKey(ctx context.Context, key string) (*domain.Document, error)
	Delete(ctx context.Context, id string) error
	// ListForArchive returns documents uploaded strictly before cutoff whose
	// tier is one of tiers.
	ListForArchive(ctx context.Context, cutoff time.Time, tiers []domain.StorageTier) ([]*domain.Document, error)
}

// JobStore persists processing jobs.
type JobStore interface {
	Create(ctx context.Context, job *domain.ProcessingJob) error
	Save(ctx context.Context, job *domain.ProcessingJob) error
	GetByID(ctx context.Context, id string) (*domain.ProcessingJob, error)
	// ListByDocument returns every job for a document, oldest first.
	ListByDocument(ctx context.Context, documentID string) ([]*domain.ProcessingJob, error)
	// ListUnfinished returns queued and processing jobs, oldest first.
	ListUnfinished(ctx context.Context) ([]*domain.ProcessingJob, error)
}
