package repository

import (
	"context"
	"errors"
	"time"

	"github.com/timmy/docpipe/internal/domain"
	"gorm.io/gorm"
)

// DocumentRepository handles document metadata in the relational database.
type DocumentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create inserts a new document record.
func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

// Save writes every column of an existing document.
func (r *DocumentRepository) Save(ctx context.Context, doc *domain.Document) error {
	return r.db.WithContext(ctx).Save(doc).Error
}

// GetByID retrieves a document by its ID.
// Returns:
//   - *domain.Document: document record if found.
//   - error: ErrNotFound if no row matches.
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	var doc domain.Document
	if err := r.db.WithContext(ctx).First(&doc, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &doc, nil
}

// GetByStorageKey retrieves a document by its immutable storage key.
func (r *DocumentRepository) GetByStorageKey(ctx context.Context, key string) (*domain.Document, error) {
	var doc domain.Document
	if err := r.db.WithContext(ctx).First(&doc, "storage_key = ?", key).Error; err != nil {
		return nil, translate(err)
	}
	return &doc, nil
}

// Delete removes a document record. Deleting a missing record is not an error.
func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&domain.Document{}, "id = ?", id).Error
}

// ListForArchive returns archive candidates ordered by upload time.
func (r *DocumentRepository) ListForArchive(ctx context.Context, cutoff time.Time, tiers []domain.StorageTier) ([]*domain.Document, error) {
	var docs []*domain.Document
	err := r.db.WithContext(ctx).
		Where("uploaded_at < ? AND storage_tier IN ?", cutoff, tiers).
		Order("uploaded_at ASC").
		Find(&docs).Error
	return docs, err
}

// JobRepository handles processing job records.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job record.
func (r *JobRepository) Create(ctx context.Context, job *domain.ProcessingJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// Save writes every column of an existing job.
func (r *JobRepository) Save(ctx context.Context, job *domain.ProcessingJob) error {
	return r.db.WithContext(ctx).Save(job).Error
}

// GetByID retrieves a job by its ID.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.ProcessingJob, error) {
	var job domain.ProcessingJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &job, nil
}

// ListByDocument returns the job history of a document.
func (r *JobRepository) ListByDocument(ctx context.Context, documentID string) ([]*domain.ProcessingJob, error) {
	var jobs []*domain.ProcessingJob
	err := r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("created_at ASC").
		Find(&jobs).Error
	return jobs, err
}

// ListUnfinished returns jobs that were queued or running when the process stopped.
func (r *JobRepository) ListUnfinished(ctx context.Context) ([]*domain.ProcessingJob, error) {
	var jobs []*domain.ProcessingJob
	err := r.db.WithContext(ctx).
		Where("status IN ?", []domain.JobStatus{domain.JobStatusQueued, domain.JobStatusProcessing}).
		Order("created_at ASC").
		Find(&jobs).Error
	return jobs, err
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
