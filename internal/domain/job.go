package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"math"
	"time"
)

// JobStatus represents the status of a processing job.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transitions can happen.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Priority orders queued jobs. Higher priority always runs first.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Rank returns a comparable weight for the priority; unknown values rank as normal.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 2
	case PriorityLow:
		return 0
	default:
		return 1
	}
}

// ParsePriority converts a string into a Priority, defaulting to normal.
func ParsePriority(s string) (Priority, error) {
	switch Priority(s) {
	case "":
		return PriorityNormal, nil
	case PriorityLow, PriorityNormal, PriorityHigh:
		return Priority(s), nil
	default:
		return "", errors.New("priority must be one of low, normal, high")
	}
}

// StageName identifies one step of the pipeline.
type StageName string

const (
	StageValidation     StageName = "validation"
	StageStorage        StageName = "storage"
	StageThumbnail      StageName = "thumbnail"
	StageRecognition    StageName = "recognition"
	StageExtraction     StageName = "extraction"
	StageClassification StageName = "classification"
	StageIndexing       StageName = "indexing"
)

// DefaultStages is the declaration order every job walks through.
var DefaultStages = []StageName{
	StageValidation,
	StageStorage,
	StageThumbnail,
	StageRecognition,
	StageExtraction,
	StageClassification,
	StageIndexing,
}

// StageStatus is the status of a single stage within a job.
type StageStatus string

const (
	StageStatusPending    StageStatus = "pending"
	StageStatusProcessing StageStatus = "processing"
	StageStatusCompleted  StageStatus = "completed"
	StageStatusFailed     StageStatus = "failed"
)

// Stage is one pipeline step within a job.
type Stage struct {
	Name        StageName   `json:"name"`
	Status      StageStatus `json:"status"`
	Attempts    int         `json:"attempts"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// StageList stores the ordered stage records of a job as JSON.
type StageList []Stage

// Value implements the driver.Valuer interface for database serialization.
func (l StageList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (l *StageList) Scan(value interface{}) error {
	if value == nil {
		*l = StageList{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan StageList")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, l)
}

// ProcessingJob is one pipeline run for one document.
type ProcessingJob struct {
	ID           string    `gorm:"type:text;primaryKey" json:"id"`
	DocumentID   string    `gorm:"type:text;not null;index:idx_jobs_document" json:"document_id"`
	Stages       StageList `gorm:"type:text" json:"stages"`
	CurrentStage int       `json:"current_stage"`
	Status       JobStatus `gorm:"type:text;index:idx_jobs_status;default:queued" json:"status"`
	Priority     Priority  `gorm:"type:text;default:normal" json:"priority"`
	RetryCount   int       `json:"retry_count"`
	MaxRetries   int       `json:"max_retries"`
	Attempts     int       `json:"attempts"`
	LastError    string    `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for ProcessingJob.
func (ProcessingJob) TableName() string {
	return "processing_jobs"
}

// NewProcessingJob builds a queued job with every stage pending.
func NewProcessingJob(id, documentID string, priority Priority, stages []StageName, maxRetries int, now time.Time) *ProcessingJob {
	list := make(StageList, len(stages))
	for i, name := range stages {
		list[i] = Stage{Name: name, Status: StageStatusPending}
	}
	now = Timestamp(now)
	return &ProcessingJob{
		ID:         id,
		DocumentID: documentID,
		Stages:     list,
		Status:     JobStatusQueued,
		Priority:   priority,
		MaxRetries: maxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Clone returns a deep copy of the job.
func (j *ProcessingJob) Clone() *ProcessingJob {
	if j == nil {
		return nil
	}
	c := *j
	c.Stages = make(StageList, len(j.Stages))
	for i, s := range j.Stages {
		if s.StartedAt != nil {
			t := *s.StartedAt
			s.StartedAt = &t
		}
		if s.CompletedAt != nil {
			t := *s.CompletedAt
			s.CompletedAt = &t
		}
		c.Stages[i] = s
	}
	return &c
}

// ProgressPercent is round(currentStage / stageCount * 100).
func (j *ProcessingJob) ProgressPercent() int {
	if len(j.Stages) == 0 {
		return 0
	}
	return int(math.Round(float64(j.CurrentStage) / float64(len(j.Stages)) * 100))
}

// CurrentStageName returns the stage the job is on, or "" once all stages completed.
func (j *ProcessingJob) CurrentStageName() StageName {
	if j.CurrentStage < 0 || j.CurrentStage >= len(j.Stages) {
		return ""
	}
	return j.Stages[j.CurrentStage].Name
}
