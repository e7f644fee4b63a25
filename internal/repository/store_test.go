package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/timmy/docpipe/internal/config"
	"github.com/timmy/docpipe/internal/domain"
)

type stores struct {
	docs DocumentStore
	jobs JobStore
}

func storeImplementations() map[string]func(t *testing.T) stores {
	return map[string]func(t *testing.T) stores{
		"memory": func(t *testing.T) stores {
			return stores{docs: NewMemoryDocumentStore(), jobs: NewMemoryJobStore()}
		},
		"sqlite": func(t *testing.T) stores {
			db, err := InitDB(&config.DatabaseConfig{
				Driver:      "sqlite",
				Path:        filepath.Join(t.TempDir(), "docpipe.db"),
				AutoMigrate: true,
			})
			if err != nil {
				t.Skipf("sqlite unavailable: %v", err)
			}
			sqlDB, err := db.DB()
			if err == nil {
				t.Cleanup(func() { sqlDB.Close() })
			}
			return stores{docs: NewDocumentRepository(db), jobs: NewJobRepository(db)}
		},
	}
}

func testDocument(id string, uploaded time.Time, tier domain.StorageTier) *domain.Document {
	return &domain.Document{
		ID:          id,
		OwnerID:     "owner-1",
		FileName:    id + ".pdf",
		MimeType:    "application/pdf",
		Size:        42,
		UploadedAt:  uploaded,
		Status:      domain.DocumentStatusUploaded,
		StorageTier: tier,
		StorageKey:  "documents/" + id,
		CreatedAt:   uploaded,
		UpdatedAt:   uploaded,
	}
}

func TestDocumentStore(t *testing.T) {
	for name, open := range storeImplementations() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t).docs
			now := domain.Timestamp(time.Now())

			doc := testDocument("doc-1", now, domain.TierHot)
			if err := s.Create(ctx, doc); err != nil {
				t.Fatalf("Create: %v", err)
			}
			if err := s.Create(ctx, testDocument("doc-1", now, domain.TierHot)); err == nil {
				t.Error("duplicate Create should fail")
			}

			got, err := s.GetByID(ctx, "doc-1")
			if err != nil {
				t.Fatalf("GetByID: %v", err)
			}
			if got.StorageKey != doc.StorageKey || got.Size != 42 {
				t.Errorf("GetByID = %+v", got)
			}

			got.ExtractedFields = domain.FieldMap{
				"passport_number": {Value: "AB123456", Confidence: 0.9},
			}
			got.RecognitionRegions = domain.RegionList{{Text: "PASSPORT", Confidence: 0.8}}
			got.Status = domain.DocumentStatusProcessed
			if err := s.Save(ctx, got); err != nil {
				t.Fatalf("Save: %v", err)
			}

			byKey, err := s.GetByStorageKey(ctx, doc.StorageKey)
			if err != nil {
				t.Fatalf("GetByStorageKey: %v", err)
			}
			if byKey.Status != domain.DocumentStatusProcessed {
				t.Errorf("status = %s, want processed", byKey.Status)
			}
			if f := byKey.ExtractedFields["passport_number"]; f.Value != "AB123456" {
				t.Errorf("extracted fields = %+v", byKey.ExtractedFields)
			}
			if len(byKey.RecognitionRegions) != 1 {
				t.Errorf("regions = %+v", byKey.RecognitionRegions)
			}

			if err := s.Delete(ctx, "doc-1"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := s.GetByID(ctx, "doc-1"); !errors.Is(err, ErrNotFound) {
				t.Errorf("GetByID after delete = %v, want ErrNotFound", err)
			}
			if _, err := s.GetByStorageKey(ctx, doc.StorageKey); !errors.Is(err, ErrNotFound) {
				t.Errorf("GetByStorageKey after delete = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestDocumentStoreListForArchive(t *testing.T) {
	for name, open := range storeImplementations() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t).docs
			now := domain.Timestamp(time.Now())
			day := 24 * time.Hour

			fixtures := []*domain.Document{
				testDocument("old-hot", now.Add(-91*day), domain.TierHot),
				testDocument("old-warm", now.Add(-120*day), domain.TierWarm),
				testDocument("old-cold", now.Add(-200*day), domain.TierCold),
				testDocument("recent", now.Add(-10*day), domain.TierHot),
			}
			for _, d := range fixtures {
				if err := s.Create(ctx, d); err != nil {
					t.Fatalf("Create(%s): %v", d.ID, err)
				}
			}

			cutoff := now.Add(-90 * day)
			got, err := s.ListForArchive(ctx, cutoff, []domain.StorageTier{domain.TierHot, domain.TierWarm})
			if err != nil {
				t.Fatalf("ListForArchive: %v", err)
			}
			want := []string{"old-warm", "old-hot"}
			if len(got) != len(want) {
				t.Fatalf("got %d documents, want %d", len(got), len(want))
			}
			for i, d := range got {
				if d.ID != want[i] {
					t.Errorf("result %d = %s, want %s", i, d.ID, want[i])
				}
			}
		})
	}
}

func TestJobStore(t *testing.T) {
	for name, open := range storeImplementations() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t).jobs
			base := domain.Timestamp(time.Now())

			first := domain.NewProcessingJob("job-1", "doc-1", domain.PriorityNormal, domain.DefaultStages, 3, base)
			second := domain.NewProcessingJob("job-2", "doc-1", domain.PriorityHigh, domain.DefaultStages, 3, base.Add(time.Second))
			other := domain.NewProcessingJob("job-3", "doc-2", domain.PriorityLow, domain.DefaultStages, 3, base.Add(2*time.Second))
			for _, j := range []*domain.ProcessingJob{first, second, other} {
				if err := s.Create(ctx, j); err != nil {
					t.Fatalf("Create(%s): %v", j.ID, err)
				}
			}

			first.Status = domain.JobStatusCompleted
			first.CurrentStage = len(first.Stages)
			for i := range first.Stages {
				first.Stages[i].Status = domain.StageStatusCompleted
			}
			if err := s.Save(ctx, first); err != nil {
				t.Fatalf("Save: %v", err)
			}

			got, err := s.GetByID(ctx, "job-1")
			if err != nil {
				t.Fatalf("GetByID: %v", err)
			}
			if got.Status != domain.JobStatusCompleted || got.ProgressPercent() != 100 {
				t.Errorf("job-1 = %s at %d%%", got.Status, got.ProgressPercent())
			}
			if len(got.Stages) != len(domain.DefaultStages) || got.Stages[0].Status != domain.StageStatusCompleted {
				t.Errorf("stages = %+v", got.Stages)
			}

			byDoc, err := s.ListByDocument(ctx, "doc-1")
			if err != nil {
				t.Fatalf("ListByDocument: %v", err)
			}
			if len(byDoc) != 2 || byDoc[0].ID != "job-1" || byDoc[1].ID != "job-2" {
				t.Errorf("ListByDocument = %v", jobIDs(byDoc))
			}

			unfinished, err := s.ListUnfinished(ctx)
			if err != nil {
				t.Fatalf("ListUnfinished: %v", err)
			}
			if ids := jobIDs(unfinished); len(ids) != 2 || ids[0] != "job-2" || ids[1] != "job-3" {
				t.Errorf("ListUnfinished = %v, want [job-2 job-3]", ids)
			}

			if _, err := s.GetByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("GetByID(missing) = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestMemoryStoresCopyRecords(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryDocumentStore()
	doc := testDocument("doc-1", time.Now(), domain.TierHot)
	if err := s.Create(ctx, doc); err != nil {
		t.Fatalf("Create: %v", err)
	}
	doc.FileName = "changed.pdf"

	got, _ := s.GetByID(ctx, "doc-1")
	if got.FileName != "doc-1.pdf" {
		t.Errorf("store shares state with caller: %s", got.FileName)
	}
	got.FileName = "again.pdf"
	again, _ := s.GetByID(ctx, "doc-1")
	if again.FileName != "doc-1.pdf" {
		t.Errorf("store shares state with reader: %s", again.FileName)
	}

	dup := testDocument("doc-2", time.Now(), domain.TierHot)
	dup.StorageKey = "documents/doc-1"
	if err := s.Create(ctx, dup); err == nil {
		t.Error("storage key reuse should fail")
	}
}

func jobIDs(jobs []*domain.ProcessingJob) []string {
	ids := make([]string, len(jobs))
	for i, j := range jobs {
		ids[i] = j.ID
	}
	return ids
}
