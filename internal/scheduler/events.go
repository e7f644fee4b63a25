package scheduler

import (
	"context"
	"time"

	"github.com/timmy/docpipe/internal/domain"
	"github.com/timmy/docpipe/internal/logger"
)

// Event is one state transition of a job or of one of its stages. Stage is
// empty for job-level transitions.
type Event struct {
	JobID      string             `json:"job_id"`
	DocumentID string             `json:"document_id"`
	Stage      domain.StageName   `json:"stage,omitempty"`
	StageState domain.StageStatus `json:"stage_status,omitempty"`
	JobState   domain.JobStatus   `json:"job_status"`
	Attempt    int                `json:"attempt"`
	Error      string             `json:"error,omitempty"`
	At         time.Time          `json:"at"`
}

// EventSink receives every transition, e.g. for an audit trail. Emit must
// not block for long; it runs on the worker goroutine.
type EventSink interface {
	Emit(ctx context.Context, ev Event)
}

// LogSink writes transitions to the structured log.
type LogSink struct{}

func (LogSink) Emit(ctx context.Context, ev Event) {
	fields := logger.Fields{
		logger.FieldJobID:      ev.JobID,
		logger.FieldDocumentID: ev.DocumentID,
		logger.FieldStatus:     string(ev.JobState),
		logger.FieldAttempt:    ev.Attempt,
	}
	if ev.Stage != "" {
		fields[logger.FieldStage] = string(ev.Stage)
		fields["stage_status"] = string(ev.StageState)
	}
	if ev.Error != "" {
		logger.With(fields).Warn(ctx, "Job transition: %s", ev.Error)
		return
	}
	logger.With(fields).Info(ctx, "Job transition")
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, ev Event)

func (f EventSinkFunc) Emit(ctx context.Context, ev Event) { f(ctx, ev) }
