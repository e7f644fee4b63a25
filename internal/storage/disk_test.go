package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/timmy/docpipe/internal/domain"
)

func TestDiskStorage(t *testing.T) {
	ctx := context.Background()
	s, err := NewDiskStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	key := "documents/ab/abcdef/1.pdf"

	if err := s.Upload(ctx, key, strings.NewReader("hello"), 5, "application/pdf"); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	ok, err := s.Exists(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Exists() = %v, %v", ok, err)
	}

	rc, err := s.Download(ctx, key)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "hello" {
		t.Errorf("Download() = %q", data)
	}

	if err := s.SetTier(ctx, key, domain.TierCold); err != nil {
		t.Errorf("SetTier() error = %v", err)
	}

	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := s.Delete(ctx, key); err != nil {
		t.Errorf("second Delete() error = %v", err)
	}
	if _, err := s.Download(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Errorf("Download() after delete error = %v, want ErrNotFound", err)
	}
	if err := s.SetTier(ctx, key, domain.TierCold); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetTier() after delete error = %v, want ErrNotFound", err)
	}
}

func TestDiskStorageRejectsBadKeys(t *testing.T) {
	s, err := NewDiskStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"", "/", "../escape.pdf", "documents/../../escape.pdf"} {
		if err := s.Upload(context.Background(), key, strings.NewReader("x"), 1, ""); err == nil {
			t.Errorf("Upload(%q) accepted", key)
		}
	}
}

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	km := newKeyedMutex()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("k")
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Errorf("%d holders at once, want 1", maxSeen)
	}
	if len(km.locks) != 0 {
		t.Errorf("%d lock entries left behind", len(km.locks))
	}
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	km := newKeyedMutex()
	unlockA := km.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := km.Lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
}

func TestSignerRequiresSecret(t *testing.T) {
	if _, err := NewSigner("", nil); err == nil {
		t.Error("NewSigner(\"\") succeeded")
	}
}

func TestStorageClass(t *testing.T) {
	tests := map[domain.StorageTier]string{
		domain.TierHot:  "STANDARD",
		domain.TierWarm: "STANDARD_IA",
		domain.TierCold: "GLACIER_IR",
	}
	for tier, want := range tests {
		got, err := storageClass(tier)
		if err != nil || string(got) != want {
			t.Errorf("storageClass(%s) = %s, %v; want %s", tier, got, err, want)
		}
	}
	if _, err := storageClass("lukewarm"); err == nil {
		t.Error("storageClass accepted an unknown tier")
	}
}

func TestDetectStorageType(t *testing.T) {
	tests := map[string]StorageType{
		"https://abc.r2.cloudflarestorage.com": StorageTypeR2,
		"https://s3.us-east-1.amazonaws.com":   StorageTypeS3,
		"http://localhost:9000":                StorageTypeS3Compatible,
	}
	for endpoint, want := range tests {
		if got := detectStorageType(endpoint); got != want {
			t.Errorf("detectStorageType(%s) = %s, want %s", endpoint, got, want)
		}
	}
}
