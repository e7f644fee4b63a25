package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/timmy/docpipe/internal/domain"
)

// MemoryDocumentStore keeps documents in process memory. Records are copied
// on the way in and out so callers never share state with the store.
type MemoryDocumentStore struct {
	mu   sync.RWMutex
	docs map[string]*domain.Document
}

// NewMemoryDocumentStore creates an empty MemoryDocumentStore.
func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{docs: make(map[string]*domain.Document)}
}

func (s *MemoryDocumentStore) Create(_ context.Context, doc *domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[doc.ID]; ok {
		return fmt.Errorf("document %s already exists", doc.ID)
	}
	for _, d := range s.docs {
		if d.StorageKey == doc.StorageKey {
			return fmt.Errorf("storage key %s already in use", doc.StorageKey)
		}
	}
	s.docs[doc.ID] = doc.Clone()
	return nil
}

func (s *MemoryDocumentStore) Save(_ context.Context, doc *domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = doc.Clone()
	return nil
}

func (s *MemoryDocumentStore) GetByID(_ context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return d.Clone(), nil
}

func (s *MemoryDocumentStore) GetByStorageKey(_ context.Context, key string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, d := range s.docs {
		if d.StorageKey == key {
			return d.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryDocumentStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
	return nil
}

func (s *MemoryDocumentStore) ListForArchive(_ context.Context, cutoff time.Time, tiers []domain.StorageTier) ([]*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Document
	for _, d := range s.docs {
		if !d.UploadedAt.Before(cutoff) || !containsTier(tiers, d.StorageTier) {
			continue
		}
		out = append(out, d.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.Before(out[j].UploadedAt) })
	return out, nil
}

func containsTier(tiers []domain.StorageTier, t domain.StorageTier) bool {
	for _, x := range tiers {
		if x == t {
			return true
		}
	}
	return false
}

// MemoryJobStore keeps processing jobs in process memory.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]*domain.ProcessingJob
}

// NewMemoryJobStore creates an empty MemoryJobStore.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]*domain.ProcessingJob)}
}

func (s *MemoryJobStore) Create(_ context.Context, job *domain.ProcessingJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *MemoryJobStore) Save(_ context.Context, job *domain.ProcessingJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *MemoryJobStore) GetByID(_ context.Context, id string) (*domain.ProcessingJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return j.Clone(), nil
}

func (s *MemoryJobStore) ListByDocument(_ context.Context, documentID string) ([]*domain.ProcessingJob, error) {
	return s.filter(func(j *domain.ProcessingJob) bool { return j.DocumentID == documentID }), nil
}

func (s *MemoryJobStore) ListUnfinished(_ context.Context) ([]*domain.ProcessingJob, error) {
	return s.filter(func(j *domain.ProcessingJob) bool { return !j.Status.Terminal() }), nil
}

func (s *MemoryJobStore) filter(keep func(*domain.ProcessingJob) bool) []*domain.ProcessingJob {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.ProcessingJob
	for _, j := range s.jobs {
		if keep(j) {
			out = append(out, j.Clone())
		}
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].ID < out[k].ID
		}
		return out[i].CreatedAt.Before(out[k].CreatedAt)
	})
	return out
}
