package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/timmy/docpipe/internal/domain"
	"github.com/timmy/docpipe/internal/logger"
	"github.com/timmy/docpipe/internal/scheduler"
	"github.com/timmy/docpipe/internal/source"
	"github.com/timmy/docpipe/internal/validation"
)

// ImportStats holds statistics for an import run
type ImportStats struct {
	TotalItems    int64
	ImportedItems int64
	RejectedItems int64
	FailedItems   int64
	StartTime     time.Time
	EndTime       time.Time

	mu     sync.Mutex
	jobIDs []string
}

// JobIDs returns the jobs submitted during the run.
func (s *ImportStats) JobIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.jobIDs...)
}

func (s *ImportStats) addJob(id string) {
	s.mu.Lock()
	s.jobIDs = append(s.jobIDs, id)
	s.mu.Unlock()
}

// ImportOptions holds options for an import run
type ImportOptions struct {
	Limit     int // 0 imports everything
	Workers   int
	BatchSize int
	Tier      string
	Priority  domain.Priority
}

// ImportService uploads files offered by a source and queues them for processing.
type ImportService struct {
	docs *DocumentService
}

// NewImportService creates an ImportService.
func NewImportService(docs *DocumentService) *ImportService {
	return &ImportService{docs: docs}
}

type importResult struct {
	sourceID string
	jobID    string
	err      error
}

// ImportFromSource uploads every item of src. Items that fail validation
// are counted as rejected; the run continues past them.
func (s *ImportService) ImportFromSource(ctx context.Context, src source.Source, opts ImportOptions) (*ImportStats, error) {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	ctx = logger.SetComponent(ctx, "import")

	stats := &ImportStats{StartTime: time.Now()}
	logger.FromContext(ctx).WithFields(logger.Fields{
		"source": src.GetSourceID(),
		"limit":  opts.Limit,
	}).Info("Starting import")

	itemsChan := make(chan source.Item, opts.Workers*2)
	resultsChan := make(chan importResult, opts.Workers*2)

	var wg sync.WaitGroup
	for i := 0; i < opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range itemsChan {
				jobID, err := s.importItem(ctx, item, opts)
				resultsChan <- importResult{sourceID: item.SourceID, jobID: jobID, err: err}
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		for result := range resultsChan {
			switch {
			case result.err == nil:
				atomic.AddInt64(&stats.ImportedItems, 1)
				if result.jobID != "" {
					stats.addJob(result.jobID)
				}
			case isValidationError(result.err):
				atomic.AddInt64(&stats.RejectedItems, 1)
				logger.FromContext(ctx).WithField("source_id", result.sourceID).
					Warnf("Rejected: %v", result.err)
			default:
				atomic.AddInt64(&stats.FailedItems, 1)
				logger.FromContext(ctx).WithField("source_id", result.sourceID).
					WithError(result.err).Error("Failed to import item")
			}
		}
		close(done)
	}()

	var fetchErr error
	cursor := ""
	fetched := 0
fetch:
	for ctx.Err() == nil {
		batchLimit := opts.BatchSize
		if opts.Limit > 0 {
			remaining := opts.Limit - fetched
			if remaining <= 0 {
				break
			}
			batchLimit = min(batchLimit, remaining)
		}

		items, nextCursor, err := src.FetchBatch(ctx, cursor, batchLimit)
		if err != nil {
			fetchErr = fmt.Errorf("failed to fetch batch: %w", err)
			break
		}
		if len(items) == 0 {
			break
		}
		atomic.AddInt64(&stats.TotalItems, int64(len(items)))
		fetched += len(items)

		for _, item := range items {
			select {
			case itemsChan <- item:
			case <-ctx.Done():
				break fetch
			}
		}

		if nextCursor == "" {
			break
		}
		cursor = nextCursor
	}

	close(itemsChan)
	wg.Wait()
	close(resultsChan)
	<-done

	stats.EndTime = time.Now()
	logger.With(logger.Fields{
		"total":    stats.TotalItems,
		"imported": stats.ImportedItems,
		"rejected": stats.RejectedItems,
		"failed":   stats.FailedItems,
	}).WithDuration(stats.EndTime.Sub(stats.StartTime)).Info(ctx, "Import completed")

	if fetchErr == nil {
		fetchErr = ctx.Err()
	}
	return stats, fetchErr
}

func (s *ImportService) importItem(ctx context.Context, item source.Item, opts ImportOptions) (string, error) {
	data, err := os.ReadFile(item.LocalPath)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", item.LocalPath, err)
	}

	mime := item.MimeType
	if mime == "" {
		mime = mimetype.Detect(data).String()
	}
	priority := opts.Priority
	if item.Priority != "" {
		if p, err := domain.ParsePriority(item.Priority); err == nil {
			priority = p
		}
	}

	res, err := s.docs.Upload(ctx, UploadRequest{
		FileName: item.FileName,
		MimeType: mime,
		OwnerID:  item.OwnerID,
		Tier:     opts.Tier,
		Data:     data,
		Process:  true,
		Priority: priority,
	})
	if err != nil {
		return "", err
	}
	return res.Job.ID, nil
}

// WaitForJobs polls every job until it reaches a terminal status and
// returns the final records. It stops early when ctx ends.
func (s *ImportService) WaitForJobs(ctx context.Context, sched *scheduler.Scheduler, jobIDs []string, interval time.Duration) ([]*domain.ProcessingJob, error) {
	out := make([]*domain.ProcessingJob, 0, len(jobIDs))
	for _, id := range jobIDs {
		job, err := sched.Wait(ctx, id, interval)
		if err != nil {
			return out, err
		}
		out = append(out, job)
	}
	return out, nil
}

func isValidationError(err error) bool {
	var verr *validation.Error
	return errors.As(err, &verr)
}
