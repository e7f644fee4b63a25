package storage

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/timmy/docpipe/internal/domain"
	"github.com/timmy/docpipe/internal/repository"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestProvider(t *testing.T, clock *fakeClock) (*TieredProvider, *DiskStorage) {
	t.Helper()
	blobs, err := NewDiskStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewDiskStorage() error = %v", err)
	}
	p, err := NewTieredProvider(blobs, repository.NewMemoryDocumentStore(), ProviderConfig{
		Secret:  "test-secret",
		BaseURL: "http://docs.test/",
		Now:     clock.Now,
	})
	if err != nil {
		t.Fatalf("NewTieredProvider() error = %v", err)
	}
	return p, blobs
}

func TestUploadAndDownload(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	p, _ := newTestProvider(t, clock)

	data := []byte("%PDF-1.4 statement")
	doc, err := p.Upload(ctx, data, "Statement.PDF", UploadMetadata{OwnerID: "u1", MimeType: "application/pdf"})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	if doc.StorageTier != domain.TierHot {
		t.Errorf("tier = %s, want hot", doc.StorageTier)
	}
	if doc.Status != domain.DocumentStatusUploaded {
		t.Errorf("status = %s, want uploaded", doc.Status)
	}
	if doc.Size != int64(len(data)) {
		t.Errorf("size = %d, want %d", doc.Size, len(data))
	}
	if !doc.UploadedAt.Equal(clock.Now()) {
		t.Errorf("uploaded at = %v, want %v", doc.UploadedAt, clock.Now())
	}
	wantKey := ObjectKey(doc.ContentHash, doc.ID, "Statement.PDF")
	if doc.StorageKey != wantKey || !strings.HasSuffix(doc.StorageKey, ".pdf") {
		t.Errorf("storage key = %s, want %s", doc.StorageKey, wantKey)
	}

	got, err := p.Download(ctx, doc.StorageKey)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Download() = %q, want %q", got, data)
	}

	meta, err := p.GetMetadata(ctx, doc.StorageKey)
	if err != nil || meta.ID != doc.ID {
		t.Errorf("GetMetadata() = %v, %v", meta, err)
	}
	byID, err := p.GetDocument(ctx, doc.ID)
	if err != nil || byID.StorageKey != doc.StorageKey {
		t.Errorf("GetDocument() = %v, %v", byID, err)
	}
}

func TestSameContentGetsDistinctKeys(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProvider(t, newFakeClock())

	a, err := p.Upload(ctx, []byte("same"), "a.pdf", UploadMetadata{})
	if err != nil {
		t.Fatal(err)
	}
	b, err := p.Upload(ctx, []byte("same"), "a.pdf", UploadMetadata{})
	if err != nil {
		t.Fatal(err)
	}
	if a.StorageKey == b.StorageKey {
		t.Errorf("two uploads share key %s", a.StorageKey)
	}
	if a.ContentHash != b.ContentHash {
		t.Errorf("hashes differ for equal content")
	}
}

func TestNotFound(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProvider(t, newFakeClock())

	if _, err := p.Download(ctx, "documents/aa/missing.pdf"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Download() error = %v, want ErrNotFound", err)
	}
	if _, err := p.GetMetadata(ctx, "documents/aa/missing.pdf"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetMetadata() error = %v, want ErrNotFound", err)
	}
	if _, err := p.GetDocument(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetDocument() error = %v, want ErrNotFound", err)
	}
	if err := p.MoveToTier(ctx, "documents/aa/missing.pdf", domain.TierCold); !errors.Is(err, ErrNotFound) {
		t.Errorf("MoveToTier() error = %v, want ErrNotFound", err)
	}
}

func TestUpdateMetadataGuards(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProvider(t, newFakeClock())
	doc, err := p.Upload(ctx, []byte("x"), "x.png", UploadMetadata{})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		fn      func(d *domain.Document) error
		wantErr error
	}{
		{"change key", func(d *domain.Document) error { d.StorageKey = "other"; return nil }, ErrImmutableKey},
		{"change id", func(d *domain.Document) error { d.ID = "other"; return nil }, ErrImmutableKey},
		{"unknown tier", func(d *domain.Document) error { d.StorageTier = "lukewarm"; return nil }, ErrTierTransition},
		{"callback error", func(d *domain.Document) error { return errBoom }, errBoom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := p.UpdateMetadata(ctx, doc.StorageKey, tt.fn); !errors.Is(err, tt.wantErr) {
				t.Errorf("UpdateMetadata() error = %v, want %v", err, tt.wantErr)
			}
			current, _ := p.GetMetadata(ctx, doc.StorageKey)
			if current.StorageKey != doc.StorageKey || current.StorageTier != domain.TierHot {
				t.Errorf("rejected update was persisted: %+v", current)
			}
		})
	}

	updated, err := p.UpdateMetadata(ctx, doc.StorageKey, func(d *domain.Document) error {
		d.DocumentType = "passport"
		return nil
	})
	if err != nil || updated.DocumentType != "passport" {
		t.Fatalf("UpdateMetadata() = %v, %v", updated, err)
	}
}

var errBoom = errors.New("boom")

func TestMoveToTierForwardOnly(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProvider(t, newFakeClock())
	doc, err := p.Upload(ctx, []byte("x"), "x.pdf", UploadMetadata{})
	if err != nil {
		t.Fatal(err)
	}

	steps := []struct {
		tier    domain.StorageTier
		wantErr error
	}{
		{domain.TierWarm, nil},
		{domain.TierWarm, nil},
		{domain.TierHot, ErrTierTransition},
		{domain.TierCold, nil},
		{domain.TierWarm, ErrTierTransition},
		{"frozen", ErrTierTransition},
	}
	for i, s := range steps {
		err := p.MoveToTier(ctx, doc.StorageKey, s.tier)
		if s.wantErr == nil && err != nil {
			t.Fatalf("step %d: MoveToTier(%s) error = %v", i, s.tier, err)
		}
		if s.wantErr != nil && !errors.Is(err, s.wantErr) {
			t.Fatalf("step %d: MoveToTier(%s) error = %v, want %v", i, s.tier, err, s.wantErr)
		}
	}

	meta, _ := p.GetMetadata(ctx, doc.StorageKey)
	if meta.StorageTier != domain.TierCold {
		t.Errorf("tier = %s, want cold", meta.StorageTier)
	}
}

func TestSignedURLExpiry(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	p, _ := newTestProvider(t, clock)
	doc, err := p.Upload(ctx, []byte("x"), "x.pdf", UploadMetadata{})
	if err != nil {
		t.Fatal(err)
	}

	signed, err := p.GenerateSignedURL(ctx, doc.StorageKey, SignedURLOptions{ExpiresIn: time.Second, Watermark: "for-review"})
	if err != nil {
		t.Fatalf("GenerateSignedURL() error = %v", err)
	}
	if !signed.ExpiresAt.Equal(clock.Now().Add(time.Second)) {
		t.Errorf("ExpiresAt = %v, want now+1s", signed.ExpiresAt)
	}
	u, err := url.Parse(signed.URL)
	if err != nil || u.Host != "docs.test" || u.Path != "/api/v1/files" || u.Query().Get("token") != signed.Token {
		t.Errorf("URL = %s", signed.URL)
	}

	access, err := p.VerifySignedURL(ctx, signed.Token)
	if err != nil {
		t.Fatalf("VerifySignedURL() at issue time error = %v", err)
	}
	if access.Key != doc.StorageKey || access.Watermark != "for-review" {
		t.Errorf("access = %+v", access)
	}

	clock.Advance(2 * time.Second)
	if _, err := p.VerifySignedURL(ctx, signed.Token); !errors.Is(err, ErrSignatureExpired) {
		t.Errorf("VerifySignedURL() after expiry error = %v, want ErrSignatureExpired", err)
	}

	meta, _ := p.GetMetadata(ctx, doc.StorageKey)
	if meta.SignedURLExpiresAt == nil || !meta.SignedURLExpiresAt.Equal(signed.ExpiresAt) {
		t.Errorf("SignedURLExpiresAt = %v, want %v", meta.SignedURLExpiresAt, signed.ExpiresAt)
	}
}

func TestSignedURLBoundary(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	p, _ := newTestProvider(t, clock)
	doc, _ := p.Upload(ctx, []byte("x"), "x.pdf", UploadMetadata{})

	signed, err := p.GenerateSignedURL(ctx, doc.StorageKey, SignedURLOptions{ExpiresIn: 10 * time.Second})
	if err != nil {
		t.Fatal(err)
	}

	clock.Advance(10*time.Second - time.Millisecond)
	if _, err := p.VerifySignedURL(ctx, signed.Token); err != nil {
		t.Errorf("just before expiry: error = %v", err)
	}
	clock.Advance(time.Millisecond)
	if _, err := p.VerifySignedURL(ctx, signed.Token); err != nil {
		t.Errorf("at expiry: error = %v, want accepted", err)
	}
	clock.Advance(time.Millisecond)
	if _, err := p.VerifySignedURL(ctx, signed.Token); !errors.Is(err, ErrSignatureExpired) {
		t.Errorf("past expiry: error = %v, want ErrSignatureExpired", err)
	}
}

func TestSignedURLSubSecondIssue(t *testing.T) {
	tests := []struct {
		name   string
		offset time.Duration
		want   time.Duration
	}{
		{"whole second", 0, time.Second},
		{"just after", time.Millisecond, 2 * time.Second},
		{"just before next", 999 * time.Millisecond, 2 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			clock := newFakeClock()
			base := clock.Now()
			clock.Set(base.Add(tt.offset))
			p, _ := newTestProvider(t, clock)
			doc, _ := p.Upload(ctx, []byte("x"), "x.pdf", UploadMetadata{})

			signed, err := p.GenerateSignedURL(ctx, doc.StorageKey, SignedURLOptions{ExpiresIn: time.Second})
			if err != nil {
				t.Fatal(err)
			}
			if want := base.Add(tt.want); !signed.ExpiresAt.Equal(want) {
				t.Errorf("ExpiresAt = %v, want %v", signed.ExpiresAt, want)
			}
			if ttl := signed.ExpiresAt.Sub(clock.Now()); ttl < time.Second {
				t.Errorf("ttl = %v, want at least 1s", ttl)
			}

			clock.Advance(5 * time.Millisecond)
			if _, err := p.VerifySignedURL(ctx, signed.Token); err != nil {
				t.Errorf("shortly after issue: error = %v", err)
			}
			clock.Set(base.Add(tt.offset + time.Second))
			if _, err := p.VerifySignedURL(ctx, signed.Token); err != nil {
				t.Errorf("1s after issue: error = %v, want accepted", err)
			}
			clock.Set(base.Add(tt.offset + 2*time.Second))
			if _, err := p.VerifySignedURL(ctx, signed.Token); !errors.Is(err, ErrSignatureExpired) {
				t.Errorf("2s after issue: error = %v, want ErrSignatureExpired", err)
			}
		})
	}
}

func TestSignedURLTTLDefaultsAndCap(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	p, _ := newTestProvider(t, clock)
	doc, _ := p.Upload(ctx, []byte("x"), "x.pdf", UploadMetadata{})

	def, err := p.GenerateSignedURL(ctx, doc.StorageKey, SignedURLOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if want := clock.Now().Add(15 * time.Minute); !def.ExpiresAt.Equal(want) {
		t.Errorf("default ExpiresAt = %v, want %v", def.ExpiresAt, want)
	}

	capped, err := p.GenerateSignedURL(ctx, doc.StorageKey, SignedURLOptions{ExpiresIn: 30 * 24 * time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	if want := clock.Now().Add(24 * time.Hour); !capped.ExpiresAt.Equal(want) {
		t.Errorf("capped ExpiresAt = %v, want %v", capped.ExpiresAt, want)
	}
}

func TestSignedURLRejectsTampering(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProvider(t, newFakeClock())
	doc, _ := p.Upload(ctx, []byte("x"), "x.pdf", UploadMetadata{})

	signed, err := p.GenerateSignedURL(ctx, doc.StorageKey, SignedURLOptions{})
	if err != nil {
		t.Fatal(err)
	}

	tampered := signed.Token[:len(signed.Token)-2] + "xx"
	for _, token := range []string{"", "garbage", tampered} {
		if _, err := p.VerifySignedURL(ctx, token); !errors.Is(err, ErrInvalidSignature) {
			t.Errorf("VerifySignedURL(%q) error = %v, want ErrInvalidSignature", token, err)
		}
	}

	other, err := NewSigner("other-secret", nil)
	if err != nil {
		t.Fatal(err)
	}
	forged, _ := other.Sign(doc.StorageKey, "", time.Now().Add(time.Hour).Truncate(time.Second))
	if _, err := p.VerifySignedURL(ctx, forged); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("forged token error = %v, want ErrInvalidSignature", err)
	}
}

func TestDeleteInvalidatesSignedURLs(t *testing.T) {
	ctx := context.Background()
	p, blobs := newTestProvider(t, newFakeClock())
	doc, _ := p.Upload(ctx, []byte("x"), "x.png", UploadMetadata{})
	if err := p.SaveArtifact(ctx, ThumbnailKey(doc.ID), []byte("thumb"), "image/jpeg"); err != nil {
		t.Fatal(err)
	}
	if _, err := p.UpdateMetadata(ctx, doc.StorageKey, func(d *domain.Document) error {
		d.ThumbnailKey = ThumbnailKey(doc.ID)
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	signed, err := p.GenerateSignedURL(ctx, doc.StorageKey, SignedURLOptions{ExpiresIn: time.Hour})
	if err != nil {
		t.Fatal(err)
	}

	if err := p.Delete(ctx, doc.StorageKey); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := p.VerifySignedURL(ctx, signed.Token); !errors.Is(err, ErrNotFound) {
		t.Errorf("VerifySignedURL() after delete error = %v, want ErrNotFound", err)
	}
	if ok, _ := p.Exists(ctx, doc.StorageKey); ok {
		t.Error("blob still exists after delete")
	}
	if ok, _ := blobs.Exists(ctx, ThumbnailKey(doc.ID)); ok {
		t.Error("thumbnail still exists after delete")
	}

	// idempotent
	if err := p.Delete(ctx, doc.StorageKey); err != nil {
		t.Errorf("second Delete() error = %v", err)
	}
}

func TestArchiveOldDocuments(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	p, _ := newTestProvider(t, clock)
	now := clock.Now()

	clock.Set(now.Add(-91 * 24 * time.Hour))
	old, err := p.Upload(ctx, []byte("old"), "old.pdf", UploadMetadata{})
	if err != nil {
		t.Fatal(err)
	}
	clock.Set(now.Add(-10 * 24 * time.Hour))
	recent, err := p.Upload(ctx, []byte("recent"), "recent.pdf", UploadMetadata{})
	if err != nil {
		t.Fatal(err)
	}
	clock.Set(now)

	moved, err := p.ArchiveOldDocuments(ctx, 90)
	if err != nil {
		t.Fatalf("ArchiveOldDocuments() error = %v", err)
	}
	if moved != 1 {
		t.Errorf("moved = %d, want 1", moved)
	}

	oldMeta, _ := p.GetMetadata(ctx, old.StorageKey)
	if oldMeta.StorageTier != domain.TierCold {
		t.Errorf("old document tier = %s, want cold", oldMeta.StorageTier)
	}
	recentMeta, _ := p.GetMetadata(ctx, recent.StorageKey)
	if recentMeta.StorageTier != domain.TierHot {
		t.Errorf("recent document tier = %s, want hot", recentMeta.StorageTier)
	}

	// a second sweep has nothing left to do
	moved, err = p.ArchiveOldDocuments(ctx, 90)
	if err != nil || moved != 0 {
		t.Errorf("second sweep = %d, %v; want 0, nil", moved, err)
	}

	if _, err := p.ArchiveOldDocuments(ctx, -1); err == nil {
		t.Error("negative max age accepted")
	}
}

func TestConcurrentMetadataUpdates(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProvider(t, newFakeClock())
	doc, _ := p.Upload(ctx, []byte("x"), "x.pdf", UploadMetadata{})

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.UpdateMetadata(ctx, doc.StorageKey, func(d *domain.Document) error {
				d.PageCount++
				return nil
			})
			if err != nil {
				t.Errorf("UpdateMetadata() error = %v", err)
			}
		}()
	}
	wg.Wait()

	meta, _ := p.GetMetadata(ctx, doc.StorageKey)
	if meta.PageCount != n {
		t.Errorf("PageCount = %d, want %d (lost updates)", meta.PageCount, n)
	}
}
