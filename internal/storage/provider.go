package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/docpipe/internal/domain"
	"github.com/timmy/docpipe/internal/logger"
	"github.com/timmy/docpipe/internal/repository"
)

// Provider is the document store used by the pipeline and the API: blobs,
// their metadata, tiering and signed access.
type Provider interface {
	Upload(ctx context.Context, data []byte, fileName string, meta UploadMetadata) (*domain.Document, error)
	Download(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	GetMetadata(ctx context.Context, key string) (*domain.Document, error)
	GetDocument(ctx context.Context, id string) (*domain.Document, error)
	UpdateMetadata(ctx context.Context, key string, fn func(doc *domain.Document) error) (*domain.Document, error)
	UpdateDocument(ctx context.Context, id string, fn func(doc *domain.Document) error) (*domain.Document, error)
	SaveArtifact(ctx context.Context, key string, data []byte, contentType string) error
	GenerateSignedURL(ctx context.Context, key string, opts SignedURLOptions) (*SignedURL, error)
	VerifySignedURL(ctx context.Context, token string) (*SignedAccess, error)
	MoveToTier(ctx context.Context, key string, tier domain.StorageTier) error
	ArchiveOldDocuments(ctx context.Context, maxAgeDays int) (int, error)
}

// UploadMetadata is what the caller declares about an upload.
type UploadMetadata struct {
	OwnerID  string
	MimeType string
}

// SignedURLOptions controls a generated download link.
type SignedURLOptions struct {
	ExpiresIn time.Duration
	Watermark string
}

// SignedURL is a time-limited capability URL for one document.
type SignedURL struct {
	URL       string    `json:"url"`
	Token     string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SignedAccess is what a verified token grants.
type SignedAccess struct {
	Key       string
	Watermark string
	ExpiresAt time.Time
}

// ProviderConfig configures a TieredProvider.
type ProviderConfig struct {
	Secret             string
	BaseURL            string
	DefaultTTL         time.Duration
	MaxTTL             time.Duration
	ArchiveConcurrency int
	Now                func() time.Time
}

// TieredProvider implements Provider over an ObjectStorage backend and a
// DocumentStore for metadata. Metadata writes for one key are serialized.
type TieredProvider struct {
	blobs  ObjectStorage
	docs   repository.DocumentStore
	signer *Signer
	locks  *keyedMutex
	cfg    ProviderConfig
	now    func() time.Time
}

// NewTieredProvider creates a TieredProvider.
func NewTieredProvider(blobs ObjectStorage, docs repository.DocumentStore, cfg ProviderConfig) (*TieredProvider, error) {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 15 * time.Minute
	}
	if cfg.MaxTTL <= 0 {
		cfg.MaxTTL = 24 * time.Hour
	}
	if cfg.ArchiveConcurrency <= 0 {
		cfg.ArchiveConcurrency = 8
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	signer, err := NewSigner(cfg.Secret, cfg.Now)
	if err != nil {
		return nil, err
	}

	return &TieredProvider{
		blobs:  blobs,
		docs:   docs,
		signer: signer,
		locks:  newKeyedMutex(),
		cfg:    cfg,
		now:    cfg.Now,
	}, nil
}

// ObjectKey builds the storage key of a document blob.
func ObjectKey(contentHash, documentID, fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	return fmt.Sprintf("documents/%s/%s/%s%s", contentHash[:2], contentHash, documentID, ext)
}

// ThumbnailKey builds the storage key of a document thumbnail.
func ThumbnailKey(documentID string) string {
	return fmt.Sprintf("thumbnails/%s.jpg", documentID)
}

// Upload stores data in the hot tier and creates its metadata record.
func (p *TieredProvider) Upload(ctx context.Context, data []byte, fileName string, meta UploadMetadata) (*domain.Document, error) {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	id := uuid.New().String()
	key := ObjectKey(hash, id, fileName)
	now := domain.Timestamp(p.now())

	doc := &domain.Document{
		ID:          id,
		OwnerID:     meta.OwnerID,
		FileName:    fileName,
		MimeType:    meta.MimeType,
		Size:        int64(len(data)),
		ContentHash: hash,
		UploadedAt:  now,
		Status:      domain.DocumentStatusUploaded,
		StorageTier: domain.TierHot,
		StorageKey:  key,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	ctx = logger.WithFields(ctx, logger.Fields{
		logger.FieldDocumentID: id,
		logger.FieldStorageKey: key,
	})
	start := time.Now()

	if err := p.blobs.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), meta.MimeType); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if err := p.docs.Create(ctx, doc); err != nil {
		if delErr := p.blobs.Delete(ctx, key); delErr != nil {
			logger.CtxWarn(ctx, "Failed to remove orphaned blob: %v", delErr)
		}
		return nil, fmt.Errorf("%w: %w", ErrWrite, err)
	}

	logger.With(logger.Fields{logger.FieldSize: doc.Size}).
		WithDuration(time.Since(start)).
		Info(ctx, "Document stored")
	return doc.Clone(), nil
}

// Download returns the blob bytes stored under key.
func (p *TieredProvider) Download(ctx context.Context, key string) ([]byte, error) {
	rc, err := p.blobs.Download(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	return data, nil
}

func (p *TieredProvider) Exists(ctx context.Context, key string) (bool, error) {
	return p.blobs.Exists(ctx, key)
}

// Delete removes metadata first, so outstanding signed URLs stop verifying
// even if the blob removal fails. Deleting an unknown key is a no-op.
func (p *TieredProvider) Delete(ctx context.Context, key string) error {
	unlock := p.locks.Lock(key)
	defer unlock()

	doc, err := p.docs.GetByStorageKey(ctx, key)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return p.blobs.Delete(ctx, key)
	case err != nil:
		return fmt.Errorf("failed to load metadata: %w", err)
	}

	if err := p.docs.Delete(ctx, doc.ID); err != nil {
		return fmt.Errorf("failed to delete metadata: %w", err)
	}
	if doc.ThumbnailKey != "" {
		if err := p.blobs.Delete(ctx, doc.ThumbnailKey); err != nil {
			logger.CtxWarn(ctx, "Failed to delete thumbnail %s: %v", doc.ThumbnailKey, err)
		}
	}
	if err := p.blobs.Delete(ctx, key); err != nil {
		return err
	}

	logger.CtxInfo(logger.SetDocumentID(ctx, doc.ID), "Document deleted")
	return nil
}

// GetMetadata returns the metadata record for a storage key.
func (p *TieredProvider) GetMetadata(ctx context.Context, key string) (*domain.Document, error) {
	doc, err := p.docs.GetByStorageKey(ctx, key)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return doc, nil
}

// GetDocument returns the metadata record for a document ID.
func (p *TieredProvider) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	doc, err := p.docs.GetByID(ctx, id)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return doc, nil
}

// UpdateMetadata applies fn to the current record under the key lock and
// persists the result. The storage key cannot change and tiers only move
// towards colder storage.
func (p *TieredProvider) UpdateMetadata(ctx context.Context, key string, fn func(doc *domain.Document) error) (*domain.Document, error) {
	unlock := p.locks.Lock(key)
	defer unlock()
	return p.updateLocked(ctx, key, fn)
}

// UpdateDocument is UpdateMetadata addressed by document ID.
func (p *TieredProvider) UpdateDocument(ctx context.Context, id string, fn func(doc *domain.Document) error) (*domain.Document, error) {
	doc, err := p.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	return p.UpdateMetadata(ctx, doc.StorageKey, fn)
}

func (p *TieredProvider) updateLocked(ctx context.Context, key string, fn func(doc *domain.Document) error) (*domain.Document, error) {
	current, err := p.docs.GetByStorageKey(ctx, key)
	if err != nil {
		return nil, mapNotFound(err)
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if next.ID != current.ID || next.StorageKey != current.StorageKey {
		return nil, ErrImmutableKey
	}
	if !current.StorageTier.CanMoveTo(next.StorageTier) {
		return nil, fmt.Errorf("%w: %s to %s", ErrTierTransition, current.StorageTier, next.StorageTier)
	}
	next.UpdatedAt = domain.Timestamp(p.now())

	if err := p.docs.Save(ctx, next); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWrite, err)
	}
	return next.Clone(), nil
}

// SaveArtifact stores a derived blob such as a thumbnail.
func (p *TieredProvider) SaveArtifact(ctx context.Context, key string, data []byte, contentType string) error {
	if err := p.blobs.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	return nil
}

// GenerateSignedURL issues a download URL for key. ExpiresIn defaults to the
// configured TTL and is capped at the maximum TTL.
func (p *TieredProvider) GenerateSignedURL(ctx context.Context, key string, opts SignedURLOptions) (*SignedURL, error) {
	ttl := opts.ExpiresIn
	if ttl <= 0 {
		ttl = p.cfg.DefaultTTL
	}
	if ttl > p.cfg.MaxTTL {
		ttl = p.cfg.MaxTTL
	}
	expiresAt := ceilSecond(p.now().Add(ttl).UTC())

	token, err := p.signer.Sign(key, opts.Watermark, expiresAt)
	if err != nil {
		return nil, err
	}

	_, err = p.UpdateMetadata(ctx, key, func(doc *domain.Document) error {
		if doc.SignedURLExpiresAt == nil || expiresAt.After(*doc.SignedURLExpiresAt) {
			doc.SignedURLExpiresAt = &expiresAt
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &SignedURL{
		URL:       p.cfg.BaseURL + "/api/v1/files?token=" + url.QueryEscape(token),
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

// ceilSecond rounds t up to the exp claim's precision so a URL never lives
// shorter than requested.
func ceilSecond(t time.Time) time.Time {
	if down := t.Truncate(time.Second); !down.Equal(t) {
		return down.Add(time.Second)
	}
	return t
}

// VerifySignedURL checks expiry and signature before looking the document
// up, so an expired token is rejected even if the blob is gone.
func (p *TieredProvider) VerifySignedURL(ctx context.Context, token string) (*SignedAccess, error) {
	access, err := p.signer.Verify(token)
	if err != nil {
		return nil, err
	}
	if _, err := p.docs.GetByStorageKey(ctx, access.Key); err != nil {
		return nil, mapNotFound(err)
	}
	return access, nil
}

// MoveToTier moves a document to tier. Moving to the current tier is a no-op.
func (p *TieredProvider) MoveToTier(ctx context.Context, key string, tier domain.StorageTier) error {
	if !tier.Valid() {
		return fmt.Errorf("%w: unknown tier %q", ErrTierTransition, tier)
	}

	unlock := p.locks.Lock(key)
	defer unlock()

	doc, err := p.docs.GetByStorageKey(ctx, key)
	if err != nil {
		return mapNotFound(err)
	}
	if doc.StorageTier == tier {
		return nil
	}
	if !doc.StorageTier.CanMoveTo(tier) {
		return fmt.Errorf("%w: %s to %s", ErrTierTransition, doc.StorageTier, tier)
	}

	if err := p.blobs.SetTier(ctx, key, tier); err != nil {
		return err
	}
	_, err = p.updateLocked(ctx, key, func(d *domain.Document) error {
		d.StorageTier = tier
		return nil
	})
	return err
}

func mapNotFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
