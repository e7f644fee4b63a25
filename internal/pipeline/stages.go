// Package pipeline holds the stage handlers a processing job walks through.
// Each handler reloads the document, does its work and writes its result
// back through the storage provider, so running a stage twice leaves the
// same record behind.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/timmy/docpipe/internal/domain"
	"github.com/timmy/docpipe/internal/extraction"
	"github.com/timmy/docpipe/internal/logger"
	"github.com/timmy/docpipe/internal/recognition"
	"github.com/timmy/docpipe/internal/scheduler"
	"github.com/timmy/docpipe/internal/storage"
	"github.com/timmy/docpipe/internal/validation"
)

// DefaultThumbnailSize is the longest edge of a generated thumbnail in pixels.
const DefaultThumbnailSize = 256

// Dependencies are the collaborators the stage handlers share.
type Dependencies struct {
	Provider      storage.Provider
	Recognizer    recognition.Recognizer
	Indexer       Indexer
	Limits        validation.Limits
	ThumbnailSize int
	Now           func() time.Time
}

// Handlers returns one handler per stage.
func Handlers(deps Dependencies) map[domain.StageName]scheduler.StageFunc {
	if deps.Recognizer == nil {
		deps.Recognizer = recognition.Echo{}
	}
	if deps.Indexer == nil {
		deps.Indexer = NopIndexer{}
	}
	if deps.ThumbnailSize <= 0 {
		deps.ThumbnailSize = DefaultThumbnailSize
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	s := &stages{deps: deps}

	return map[domain.StageName]scheduler.StageFunc{
		domain.StageValidation:     s.validate,
		domain.StageStorage:        s.verifyIntegrity,
		domain.StageThumbnail:      s.thumbnail,
		domain.StageRecognition:    s.recognize,
		domain.StageExtraction:     s.extract,
		domain.StageClassification: s.classify,
		domain.StageIndexing:       s.index,
	}
}

type stages struct {
	deps Dependencies
}

// load fetches the document a job works on. A vanished document cannot be
// processed by any retry.
func (s *stages) load(ctx context.Context, job *domain.ProcessingJob) (*domain.Document, error) {
	doc, err := s.deps.Provider.GetDocument(ctx, job.DocumentID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, scheduler.Permanentf("document %s: %w", job.DocumentID, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	return doc, nil
}

func (s *stages) download(ctx context.Context, doc *domain.Document) ([]byte, error) {
	data, err := s.deps.Provider.Download(ctx, doc.StorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, scheduler.Permanentf("blob %s: %w", doc.StorageKey, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to download blob: %w", err)
	}
	return data, nil
}

func (s *stages) update(ctx context.Context, doc *domain.Document, fn func(d *domain.Document) error) error {
	_, err := s.deps.Provider.UpdateMetadata(ctx, doc.StorageKey, fn)
	if errors.Is(err, storage.ErrNotFound) {
		return scheduler.Permanent(err)
	}
	return err
}

// validate re-runs the upload checks against the stored bytes. The
// account tier is not kept on the document, so the premium ceiling applies.
func (s *stages) validate(ctx context.Context, job *domain.ProcessingJob) error {
	doc, err := s.load(ctx, job)
	if err != nil {
		return err
	}
	data, err := s.download(ctx, doc)
	if err != nil {
		return err
	}

	err = s.deps.Limits.Validate(validation.Input{
		FileName: doc.FileName,
		MimeType: doc.MimeType,
		Size:     int64(len(data)),
		Data:     data,
		Tier:     validation.TierPremium,
	})
	if err != nil {
		return scheduler.Permanent(err)
	}
	return nil
}

// verifyIntegrity checks the stored blob against the hash and size
// recorded at upload.
func (s *stages) verifyIntegrity(ctx context.Context, job *domain.ProcessingJob) error {
	doc, err := s.load(ctx, job)
	if err != nil {
		return err
	}
	data, err := s.download(ctx, doc)
	if err != nil {
		return err
	}

	if int64(len(data)) != doc.Size {
		return scheduler.Permanentf("stored blob is %d bytes, expected %d", len(data), doc.Size)
	}
	sum := sha256.Sum256(data)
	if got := hex.EncodeToString(sum[:]); got != doc.ContentHash {
		return scheduler.Permanentf("stored blob hash %s does not match %s", got, doc.ContentHash)
	}
	return nil
}

func (s *stages) recognize(ctx context.Context, job *domain.ProcessingJob) error {
	doc, err := s.load(ctx, job)
	if err != nil {
		return err
	}
	data, err := s.download(ctx, doc)
	if err != nil {
		return err
	}

	start := time.Now()
	res, err := s.deps.Recognizer.Recognize(ctx, data, doc.MimeType)
	if err != nil {
		return fmt.Errorf("recognition failed: %w", err)
	}
	if res == nil {
		res = &recognition.Result{Method: "none"}
	}
	logger.With(logger.Fields{logger.FieldCount: len(res.Text)}).
		WithDuration(time.Since(start)).
		Debug(ctx, "Recognized text with %s, confidence %.2f", res.Method, res.Confidence)

	return s.update(ctx, doc, func(d *domain.Document) error {
		d.RecognizedText = res.Text
		d.RecognitionConfidence = res.Confidence
		d.RecognitionRegions = append(domain.RegionList(nil), res.Regions...)
		return nil
	})
}

// extract classifies the text to pick the field rules. The classification
// stage stores the type itself.
func (s *stages) extract(ctx context.Context, job *domain.ProcessingJob) error {
	doc, err := s.load(ctx, job)
	if err != nil {
		return err
	}
	cls := extraction.Classify(doc.RecognizedText, doc.FileName)
	fields := extraction.ExtractFields(doc.RecognizedText, cls.Type)

	return s.update(ctx, doc, func(d *domain.Document) error {
		d.ExtractedFields = domain.FieldMap(fields)
		return nil
	})
}

func (s *stages) classify(ctx context.Context, job *domain.ProcessingJob) error {
	doc, err := s.load(ctx, job)
	if err != nil {
		return err
	}
	cls := extraction.Classify(doc.RecognizedText, doc.FileName)

	return s.update(ctx, doc, func(d *domain.Document) error {
		d.DocumentType = cls.Type
		d.TypeConfidence = cls.Confidence
		return nil
	})
}

func (s *stages) index(ctx context.Context, job *domain.ProcessingJob) error {
	doc, err := s.load(ctx, job)
	if err != nil {
		return err
	}
	indexed, err := s.deps.Indexer.Index(ctx, doc)
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}
	if !indexed {
		return nil
	}

	at := domain.Timestamp(s.deps.Now())
	return s.update(ctx, doc, func(d *domain.Document) error {
		d.IndexedAt = &at
		return nil
	})
}
