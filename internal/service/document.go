package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/timmy/docpipe/internal/domain"
	"github.com/timmy/docpipe/internal/extraction"
	"github.com/timmy/docpipe/internal/logger"
	"github.com/timmy/docpipe/internal/pipeline"
	"github.com/timmy/docpipe/internal/scheduler"
	"github.com/timmy/docpipe/internal/storage"
	"github.com/timmy/docpipe/internal/validation"
)

// JobScheduler is the part of the scheduler the document service drives.
type JobScheduler interface {
	Submit(ctx context.Context, documentID string, priority domain.Priority) (*domain.ProcessingJob, error)
	Status(ctx context.Context, jobID string) (*scheduler.JobView, error)
	JobsForDocument(ctx context.Context, documentID string) ([]*domain.ProcessingJob, error)
}

// DocumentService ties validation, storage and job scheduling together for
// the API and the CLI.
type DocumentService struct {
	provider  storage.Provider
	scheduler JobScheduler
	indexer   pipeline.Indexer
	limits    validation.Limits
}

// NewDocumentService creates a DocumentService. A nil indexer disables
// index cleanup on delete.
func NewDocumentService(provider storage.Provider, sched JobScheduler, indexer pipeline.Indexer, limits validation.Limits) *DocumentService {
	if indexer == nil {
		indexer = pipeline.NopIndexer{}
	}
	return &DocumentService{
		provider:  provider,
		scheduler: sched,
		indexer:   indexer,
		limits:    limits,
	}
}

// UploadRequest is one incoming file.
type UploadRequest struct {
	FileName string
	MimeType string
	OwnerID  string
	Tier     string
	Data     []byte
	Process  bool
	Priority domain.Priority
}

// UploadResult is the stored document and, when processing was requested,
// its first job.
type UploadResult struct {
	Document *domain.Document
	Job      *scheduler.JobView
}

// DocumentView is a document together with its review verdict.
type DocumentView struct {
	*domain.Document
	OverallConfidence float64 `json:"overall_confidence"`
	NeedsReview       bool    `json:"needs_review"`
}

// Upload validates and stores a file. Nothing is written when validation
// fails. If the document is stored but the job cannot be submitted, the
// document is returned together with the submit error.
func (s *DocumentService) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	err := s.limits.Validate(validation.Input{
		FileName: req.FileName,
		MimeType: req.MimeType,
		Size:     int64(len(req.Data)),
		Data:     req.Data,
		Tier:     req.Tier,
	})
	if err != nil {
		return nil, err
	}

	doc, err := s.provider.Upload(ctx, req.Data, req.FileName, storage.UploadMetadata{
		OwnerID:  req.OwnerID,
		MimeType: validation.NormalizeMimeType(req.MimeType),
	})
	if err != nil {
		return nil, err
	}
	result := &UploadResult{Document: doc}
	if !req.Process {
		return result, nil
	}

	view, err := s.Submit(ctx, doc.ID, req.Priority)
	if err != nil {
		return result, err
	}
	result.Job = view
	return result, nil
}

// Submit queues a processing job for an existing document.
func (s *DocumentService) Submit(ctx context.Context, documentID string, priority domain.Priority) (*scheduler.JobView, error) {
	job, err := s.scheduler.Submit(ctx, documentID, priority)
	if err != nil {
		return nil, err
	}
	return scheduler.NewJobView(job), nil
}

// JobStatus returns the polling view of a job.
func (s *DocumentService) JobStatus(ctx context.Context, jobID string) (*scheduler.JobView, error) {
	return s.scheduler.Status(ctx, jobID)
}

// JobsForDocument returns the job history of a document, oldest first.
func (s *DocumentService) JobsForDocument(ctx context.Context, documentID string) ([]*scheduler.JobView, error) {
	if _, err := s.provider.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	jobs, err := s.scheduler.JobsForDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	views := make([]*scheduler.JobView, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, scheduler.NewJobView(j))
	}
	return views, nil
}

// GetDocument returns a document with its review verdict. Documents that
// have not been processed yet never need review.
func (s *DocumentService) GetDocument(ctx context.Context, id string) (*DocumentView, error) {
	doc, err := s.provider.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	view := &DocumentView{Document: doc}
	if doc.Status == domain.DocumentStatusProcessed {
		in := extraction.ReviewInputFromDocument(doc)
		view.OverallConfidence = in.OverallConfidence()
		view.NeedsReview = extraction.NeedsManualReview(in)
	}
	return view, nil
}

// SignedURL issues a download link for a document.
func (s *DocumentService) SignedURL(ctx context.Context, id string, opts storage.SignedURLOptions) (*storage.SignedURL, error) {
	doc, err := s.provider.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.provider.GenerateSignedURL(ctx, doc.StorageKey, opts)
}

// Download is the payload served for a verified signed URL.
type Download struct {
	Document  *domain.Document
	Data      []byte
	Watermark string
}

// DownloadByToken verifies token and returns the document bytes.
func (s *DocumentService) DownloadByToken(ctx context.Context, token string) (*Download, error) {
	access, err := s.provider.VerifySignedURL(ctx, token)
	if err != nil {
		return nil, err
	}
	doc, err := s.provider.GetMetadata(ctx, access.Key)
	if err != nil {
		return nil, err
	}
	data, err := s.provider.Download(ctx, access.Key)
	if err != nil {
		return nil, err
	}
	return &Download{Document: doc, Data: data, Watermark: access.Watermark}, nil
}

// Delete removes a document, its blobs and its index entry. Deleting an
// unknown document succeeds.
func (s *DocumentService) Delete(ctx context.Context, id string) error {
	ctx = logger.SetDocumentID(ctx, id)
	doc, err := s.provider.GetDocument(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.provider.Delete(ctx, doc.StorageKey); err != nil {
		return err
	}
	if doc.IndexedAt != nil {
		if err := s.indexer.Remove(ctx, doc.ID); err != nil {
			logger.CtxWarn(ctx, "Failed to remove index entry: %v", err)
		}
	}
	return nil
}

// Archive moves documents older than maxAgeDays to cold storage.
func (s *DocumentService) Archive(ctx context.Context, maxAgeDays int) (int, error) {
	start := time.Now()
	moved, err := s.provider.ArchiveOldDocuments(ctx, maxAgeDays)
	if err != nil {
		return moved, fmt.Errorf("archive sweep: %w", err)
	}
	logger.With(logger.Fields{logger.FieldCount: moved}).
		WithDuration(time.Since(start)).
		Debug(ctx, "Archive requested with max age %d days", maxAgeDays)
	return moved, nil
}
