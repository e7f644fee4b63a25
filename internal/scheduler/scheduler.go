// Package scheduler runs processing jobs through their stages. A job is a
// persisted state machine: queued, processing, then completed or failed.
// Its CurrentStage index only moves forward, so a retried or resumed job
// continues where it stopped.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/docpipe/internal/domain"
	"github.com/timmy/docpipe/internal/logger"
	"github.com/timmy/docpipe/internal/repository"
	"github.com/timmy/docpipe/internal/storage"
)

// StageFunc executes one stage for a job. It receives a snapshot of the job
// and must be idempotent: a retried job runs the failed stage again.
type StageFunc func(ctx context.Context, job *domain.ProcessingJob) error

// DocumentUpdater is the part of the storage provider the scheduler needs
// to check documents and write their status back.
type DocumentUpdater interface {
	GetDocument(ctx context.Context, id string) (*domain.Document, error)
	UpdateDocument(ctx context.Context, id string, fn func(doc *domain.Document) error) (*domain.Document, error)
}

// Config tunes the scheduler.
type Config struct {
	Workers      int
	MaxRetries   int
	StageTimeout time.Duration
	BackoffBase  time.Duration
	BackoffMax   time.Duration
	Stages       []domain.StageName
	Now          func() time.Time
}

// DefaultConfig returns one worker, three retries and a two minute stage timeout.
func DefaultConfig() Config {
	return Config{
		Workers:      1,
		MaxRetries:   3,
		StageTimeout: 2 * time.Minute,
		BackoffBase:  2 * time.Second,
		BackoffMax:   time.Minute,
		Stages:       domain.DefaultStages,
	}
}

// JobView is the polling view of a job.
type JobView struct {
	ID               string           `json:"id"`
	DocumentID       string           `json:"document_id"`
	Status           domain.JobStatus `json:"status"`
	Priority         domain.Priority  `json:"priority"`
	CurrentStage     int              `json:"current_stage"`
	CurrentStageName domain.StageName `json:"current_stage_name,omitempty"`
	Stages           []domain.Stage   `json:"stages"`
	ProgressPercent  int              `json:"progress_percent"`
	RetryCount       int              `json:"retry_count"`
	MaxRetries       int              `json:"max_retries"`
	Attempts         int              `json:"attempts"`
	LastError        string           `json:"last_error,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// NewJobView builds the polling view of job.
func NewJobView(job *domain.ProcessingJob) *JobView {
	return &JobView{
		ID:               job.ID,
		DocumentID:       job.DocumentID,
		Status:           job.Status,
		Priority:         job.Priority,
		CurrentStage:     job.CurrentStage,
		CurrentStageName: job.CurrentStageName(),
		Stages:           job.Stages,
		ProgressPercent:  job.ProgressPercent(),
		RetryCount:       job.RetryCount,
		MaxRetries:       job.MaxRetries,
		Attempts:         job.Attempts,
		LastError:        job.LastError,
		CreatedAt:        job.CreatedAt,
		UpdatedAt:        job.UpdatedAt,
	}
}

// Scheduler owns the queue and the in-flight job records. Every mutation
// of a live job happens under mu and is persisted right after, so readers
// always see a consistent snapshot.
type Scheduler struct {
	jobs     repository.JobStore
	docs     DocumentUpdater
	handlers map[domain.StageName]StageFunc
	sink     EventSink
	cfg      Config

	mu      sync.Mutex
	queue   priorityQueue
	live    map[string]*domain.ProcessingJob // unfinished jobs by ID
	active  map[string]string                // document ID -> unfinished job ID
	timers  map[string]*time.Timer
	started bool
	stopped bool

	wake   chan struct{}
	stop   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Scheduler. A nil sink logs transitions.
func New(jobs repository.JobStore, docs DocumentUpdater, handlers map[domain.StageName]StageFunc, cfg Config, sink EventSink) *Scheduler {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if len(cfg.Stages) == 0 {
		cfg.Stages = domain.DefaultStages
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if sink == nil {
		sink = LogSink{}
	}

	return &Scheduler{
		jobs:     jobs,
		docs:     docs,
		handlers: handlers,
		sink:     sink,
		cfg:      cfg,
		live:     make(map[string]*domain.ProcessingJob),
		active:   make(map[string]string),
		timers:   make(map[string]*time.Timer),
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}
}

func (s *Scheduler) now() time.Time {
	return domain.Timestamp(s.cfg.Now())
}

// Submit queues a new job for documentID. Jobs may be submitted before
// Start; they run once workers are up.
func (s *Scheduler) Submit(ctx context.Context, documentID string, priority domain.Priority) (*domain.ProcessingJob, error) {
	if _, err := s.docs.GetDocument(ctx, documentID); err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
		}
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	if priority == "" {
		priority = domain.PriorityNormal
	}

	job := domain.NewProcessingJob(uuid.New().String(), documentID, priority, s.cfg.Stages, s.cfg.MaxRetries, s.now())

	s.mu.Lock()
	if id, ok := s.active[documentID]; ok {
		// a job that just turned terminal may linger until it is released
		if prev, live := s.live[id]; !live || !prev.Status.Terminal() {
			s.mu.Unlock()
			return nil, fmt.Errorf("%w: job %s", ErrJobActive, id)
		}
	}
	s.active[documentID] = job.ID
	s.mu.Unlock()

	release := func() {
		s.mu.Lock()
		if s.active[documentID] == job.ID {
			delete(s.active, documentID)
		}
		s.mu.Unlock()
	}

	// Unfinished jobs persisted by an earlier process are not live until Start.
	history, err := s.jobs.ListByDocument(ctx, documentID)
	if err != nil {
		release()
		return nil, fmt.Errorf("failed to load job history: %w", err)
	}
	for _, h := range history {
		if !h.Status.Terminal() {
			release()
			return nil, fmt.Errorf("%w: job %s", ErrJobActive, h.ID)
		}
	}

	if err := s.jobs.Create(ctx, job); err != nil {
		release()
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}

	s.mu.Lock()
	s.live[job.ID] = job
	s.queue.push(job.ID, job.Priority)
	snap := job.Clone()
	s.mu.Unlock()
	s.signal()

	s.sink.Emit(ctx, Event{JobID: snap.ID, DocumentID: documentID, JobState: snap.Status, At: snap.CreatedAt})
	logger.With(logger.Fields{
		logger.FieldJobID:      snap.ID,
		logger.FieldDocumentID: documentID,
		"priority":             string(priority),
	}).Info(ctx, "Job submitted")
	return snap, nil
}

// JobStatus returns a snapshot of the job.
func (s *Scheduler) JobStatus(ctx context.Context, jobID string) (*domain.ProcessingJob, error) {
	s.mu.Lock()
	if job, ok := s.live[jobID]; ok {
		snap := job.Clone()
		s.mu.Unlock()
		return snap, nil
	}
	s.mu.Unlock()

	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return nil, err
	}
	return job, nil
}

// Status returns the polling view of the job.
func (s *Scheduler) Status(ctx context.Context, jobID string) (*JobView, error) {
	job, err := s.JobStatus(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return NewJobView(job), nil
}

// JobsForDocument returns every job of a document, oldest first.
func (s *Scheduler) JobsForDocument(ctx context.Context, documentID string) ([]*domain.ProcessingJob, error) {
	jobs, err := s.jobs.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, j := range jobs {
		if l, ok := s.live[j.ID]; ok {
			jobs[i] = l.Clone()
		}
	}
	return jobs, nil
}

// Wait polls until the job is terminal or ctx is done.
func (s *Scheduler) Wait(ctx context.Context, jobID string, interval time.Duration) (*domain.ProcessingJob, error) {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := s.JobStatus(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job.Status.Terminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Start resumes unfinished jobs from the store and launches the workers.
// Stages a crashed process left in processing are re-entered from pending.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Unlock()

	unfinished, err := s.jobs.ListUnfinished(ctx)
	if err != nil {
		return fmt.Errorf("failed to load unfinished jobs: %w", err)
	}

	resumed := 0
	for _, job := range unfinished {
		s.mu.Lock()
		if _, ok := s.live[job.ID]; ok {
			s.mu.Unlock()
			continue
		}
		for i := range job.Stages {
			if job.Stages[i].Status == domain.StageStatusProcessing {
				job.Stages[i].Status = domain.StageStatusPending
				job.Stages[i].StartedAt = nil
			}
		}
		job.Status = domain.JobStatusQueued
		job.UpdatedAt = s.now()
		s.live[job.ID] = job
		s.active[job.DocumentID] = job.ID
		s.queue.push(job.ID, job.Priority)
		snap := job.Clone()
		s.mu.Unlock()

		s.persist(ctx, snap)
		resumed++
	}

	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(i + 1)
	}
	s.signal()

	logger.With(logger.Fields{"workers": s.cfg.Workers, logger.FieldCount: resumed}).
		Info(ctx, "Scheduler started")
	return nil
}

// Stop stops taking work and waits for running stages to finish. A job
// interrupted between stages goes back to queued and resumes on the next
// Start. If ctx expires first, running stages are cancelled.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrNotStarted
	}
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	close(s.stop)
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		logger.CtxInfo(ctx, "Scheduler stopped")
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		logger.CtxWarn(ctx, "Scheduler stop interrupted, running stages cancelled")
		return ctx.Err()
	}
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) stopping() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

// next blocks until a job is available or the scheduler stops.
func (s *Scheduler) next() (string, bool) {
	for {
		if s.stopping() {
			return "", false
		}
		s.mu.Lock()
		id, ok := s.queue.pop()
		more := s.queue.len() > 0
		s.mu.Unlock()
		if ok {
			if more {
				s.signal()
			}
			return id, true
		}

		select {
		case <-s.wake:
		case <-s.stop:
			return "", false
		}
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()
	ctx := logger.WithField(s.ctx, "worker_id", id)

	for {
		jobID, ok := s.next()
		if !ok {
			return
		}
		s.execute(ctx, jobID)
	}
}

// execute walks the job from CurrentStage to the end or the first failure.
func (s *Scheduler) execute(ctx context.Context, jobID string) {
	s.mu.Lock()
	job, ok := s.live[jobID]
	if !ok || job.Status.Terminal() {
		s.mu.Unlock()
		return
	}
	job.Status = domain.JobStatusProcessing
	job.Attempts++
	job.UpdatedAt = s.now()
	snap := job.Clone()
	s.mu.Unlock()

	ctx = logger.SetDocumentID(logger.SetJobID(ctx, jobID), snap.DocumentID)
	s.persist(ctx, snap)
	s.emit(ctx, snap, nil, "")

	if _, err := s.docs.UpdateDocument(ctx, snap.DocumentID, func(doc *domain.Document) error {
		doc.Status = domain.DocumentStatusProcessing
		return nil
	}); err != nil {
		if isNotFound(err) {
			s.fail(ctx, jobID, Permanentf("document %s no longer exists", snap.DocumentID))
			return
		}
		logger.CtxWarn(ctx, "Failed to mark document processing: %v", err)
	}

	for {
		s.mu.Lock()
		idx := job.CurrentStage
		if idx >= len(job.Stages) {
			s.mu.Unlock()
			s.complete(ctx, jobID)
			return
		}
		stage := &job.Stages[idx]
		startedAt := s.now()
		stage.Status = domain.StageStatusProcessing
		stage.Attempts++
		stage.StartedAt = &startedAt
		stage.CompletedAt = nil
		stage.Error = ""
		job.UpdatedAt = startedAt
		name := stage.Name
		snap = job.Clone()
		s.mu.Unlock()

		stageCtx := logger.SetStage(ctx, string(name))
		s.persist(stageCtx, snap)
		s.emit(stageCtx, snap, &snap.Stages[idx], "")

		start := time.Now()
		err := s.runStage(stageCtx, name, snap)
		elapsed := time.Since(start)

		if err != nil && s.ctx.Err() != nil {
			s.park(stageCtx, jobID)
			return
		}

		s.mu.Lock()
		finishedAt := s.now()
		if err == nil {
			stage.Status = domain.StageStatusCompleted
			stage.CompletedAt = &finishedAt
			job.CurrentStage++
		} else {
			stage.Status = domain.StageStatusFailed
			stage.Error = err.Error()
			job.LastError = fmt.Sprintf("%s: %s", name, err.Error())
		}
		job.UpdatedAt = finishedAt
		snap = job.Clone()
		s.mu.Unlock()

		s.persist(stageCtx, snap)
		s.emit(stageCtx, snap, &snap.Stages[idx], errString(err))
		logger.With(logger.Fields{logger.FieldStatus: string(snap.Stages[idx].Status)}).
			WithDuration(elapsed).
			Info(stageCtx, "Stage finished")

		if err != nil {
			s.fail(ctx, jobID, err)
			return
		}
		if s.stopping() {
			s.park(ctx, jobID)
			return
		}
	}
}

// runStage calls the stage handler with the stage timeout and turns
// panics and timeouts into errors.
func (s *Scheduler) runStage(ctx context.Context, name domain.StageName, job *domain.ProcessingJob) error {
	fn, ok := s.handlers[name]
	if !ok || fn == nil {
		return Permanent(fmt.Errorf("%w: %s", ErrNoHandler, name))
	}

	if s.cfg.StageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.StageTimeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("%w: %v", ErrStagePanic, r)
			}
		}()
		done <- fn(ctx, job.Clone())
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%w after %s: %v", ErrStageTimeout, s.cfg.StageTimeout, ctx.Err())
	}
}

// complete marks the document processed before the job turns terminal, so
// a caller that sees a completed job also sees the processed document.
func (s *Scheduler) complete(ctx context.Context, jobID string) {
	s.markDocument(ctx, s.documentOf(jobID), domain.DocumentStatusProcessed)
	s.finish(ctx, jobID, domain.JobStatusCompleted, "")
	logger.CtxInfo(ctx, "Job completed")
}

// fail requeues the job with backoff, or fails it terminally once the
// retry budget is spent or the error is permanent.
func (s *Scheduler) fail(ctx context.Context, jobID string, cause error) {
	s.mu.Lock()
	job := s.live[jobID]
	job.LastError = cause.Error()
	terminal := IsPermanent(cause) || job.RetryCount >= job.MaxRetries
	retries := job.RetryCount
	if !terminal {
		job.RetryCount++
		retries = job.RetryCount
		job.Status = domain.JobStatusQueued
		job.UpdatedAt = s.now()
	}
	snap := job.Clone()
	s.mu.Unlock()

	if terminal {
		s.markDocument(ctx, snap.DocumentID, domain.DocumentStatusFailed)
		s.finish(ctx, jobID, domain.JobStatusFailed, cause.Error())
		logger.With(logger.Fields{"retry_count": retries, "permanent": IsPermanent(cause)}).
			Error(ctx, "Job failed: %v", cause)
		return
	}

	delay := s.backoff(retries)
	s.persist(ctx, snap)
	s.emit(ctx, snap, nil, cause.Error())

	s.mu.Lock()
	s.scheduleRetry(snap.ID, snap.Priority, delay)
	s.mu.Unlock()

	logger.With(logger.Fields{"retry_count": retries, "delay_ms": delay.Milliseconds()}).
		Warn(ctx, "Job will be retried: %v", cause)
}

// finish moves the job to a terminal status, persists it and only then
// drops it from the in-memory tables.
func (s *Scheduler) finish(ctx context.Context, jobID string, status domain.JobStatus, errMsg string) {
	s.mu.Lock()
	job := s.live[jobID]
	job.Status = status
	job.UpdatedAt = s.now()
	snap := job.Clone()
	s.mu.Unlock()

	s.persist(ctx, snap)
	s.emit(ctx, snap, nil, errMsg)

	s.mu.Lock()
	s.release(job)
	s.mu.Unlock()
}

func (s *Scheduler) documentOf(jobID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live[jobID].DocumentID
}

// scheduleRetry must be called with mu held.
func (s *Scheduler) scheduleRetry(id string, priority domain.Priority, delay time.Duration) {
	if s.stopped {
		return
	}
	if delay <= 0 {
		s.queue.push(id, priority)
		s.signal()
		return
	}
	s.timers[id] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, id)
		if s.stopped {
			s.mu.Unlock()
			return
		}
		s.queue.push(id, priority)
		s.mu.Unlock()
		s.signal()
	})
}

// backoff is BackoffBase doubled per retry, capped at BackoffMax.
func (s *Scheduler) backoff(retry int) time.Duration {
	d := s.cfg.BackoffBase
	if d <= 0 {
		return 0
	}
	for i := 1; i < retry; i++ {
		d *= 2
		if s.cfg.BackoffMax > 0 && d >= s.cfg.BackoffMax {
			return s.cfg.BackoffMax
		}
	}
	if s.cfg.BackoffMax > 0 && d > s.cfg.BackoffMax {
		return s.cfg.BackoffMax
	}
	return d
}

// park returns an interrupted job to queued without touching its retry
// budget. The interrupted stage goes back to pending.
func (s *Scheduler) park(ctx context.Context, jobID string) {
	s.mu.Lock()
	job := s.live[jobID]
	if job.CurrentStage < len(job.Stages) {
		st := &job.Stages[job.CurrentStage]
		if st.Status != domain.StageStatusCompleted {
			st.Status = domain.StageStatusPending
			st.StartedAt = nil
			st.Error = ""
		}
	}
	job.Status = domain.JobStatusQueued
	job.UpdatedAt = s.now()
	snap := job.Clone()
	s.mu.Unlock()

	s.persist(ctx, snap)
	logger.CtxInfo(ctx, "Job parked for shutdown at stage %d", snap.CurrentStage)
}

// release drops a terminal job from the in-memory tables. mu must be held.
func (s *Scheduler) release(job *domain.ProcessingJob) {
	delete(s.live, job.ID)
	if s.active[job.DocumentID] == job.ID {
		delete(s.active, job.DocumentID)
	}
}

func (s *Scheduler) markDocument(ctx context.Context, documentID string, status domain.DocumentStatus) {
	_, err := s.docs.UpdateDocument(ctx, documentID, func(doc *domain.Document) error {
		doc.Status = status
		return nil
	})
	if err != nil {
		logger.CtxWarn(ctx, "Failed to mark document %s: %v", status, err)
	}
}

func (s *Scheduler) persist(ctx context.Context, job *domain.ProcessingJob) {
	if err := s.jobs.Save(context.WithoutCancel(ctx), job); err != nil {
		logger.CtxError(ctx, "Failed to persist job %s: %v", job.ID, err)
	}
}

func (s *Scheduler) emit(ctx context.Context, job *domain.ProcessingJob, stage *domain.Stage, errMsg string) {
	ev := Event{
		JobID:      job.ID,
		DocumentID: job.DocumentID,
		JobState:   job.Status,
		Attempt:    job.Attempts,
		Error:      errMsg,
		At:         job.UpdatedAt,
	}
	if stage != nil {
		ev.Stage = stage.Name
		ev.StageState = stage.Status
	}
	s.sink.Emit(ctx, ev)
}

func isNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound) || errors.Is(err, repository.ErrNotFound)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
