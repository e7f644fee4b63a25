package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// DocumentStatus represents the lifecycle status of an uploaded document.
// Values include DocumentStatusUploaded, DocumentStatusProcessing,
// DocumentStatusProcessed and DocumentStatusFailed.
type DocumentStatus string

const (
	DocumentStatusUploaded   DocumentStatus = "uploaded"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusProcessed  DocumentStatus = "processed"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// StorageTier is the cost/latency class a document blob resides in.
type StorageTier string

const (
	TierHot  StorageTier = "hot"
	TierWarm StorageTier = "warm"
	TierCold StorageTier = "cold"
)

// rank orders tiers so that transitions can only move towards colder storage.
func (t StorageTier) rank() int {
	switch t {
	case TierHot:
		return 0
	case TierWarm:
		return 1
	case TierCold:
		return 2
	default:
		return -1
	}
}

// Valid reports whether t is a known tier.
func (t StorageTier) Valid() bool {
	return t.rank() >= 0
}

// CanMoveTo reports whether a document in tier t may be moved to next.
// Staying in the same tier is allowed; moving back to a warmer tier is not.
func (t StorageTier) CanMoveTo(next StorageTier) bool {
	if !t.Valid() || !next.Valid() {
		return false
	}
	return next.rank() >= t.rank()
}

// ExtractedField is a typed value recovered from recognized text.
type ExtractedField struct {
	Key        string  `json:"key"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// FieldMap stores extracted fields keyed by field key as JSON in the database.
type FieldMap map[string]ExtractedField

// Value implements the driver.Valuer interface for database serialization.
func (m FieldMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (m *FieldMap) Scan(value interface{}) error {
	if value == nil {
		*m = FieldMap{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan FieldMap")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, m)
}

// Region is a positional piece of recognized text with its own confidence.
type Region struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Line       int     `json:"line"`
}

// RegionList stores recognition regions as JSON in the database.
type RegionList []Region

// Value implements the driver.Valuer interface for database serialization.
func (l RegionList) Value() (driver.Value, error) {
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
func (l *RegionList) Scan(value interface{}) error {
	if value == nil {
		*l = RegionList{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan RegionList")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, l)
}

// Document is a persisted upload together with everything the pipeline
// derived from it. StorageKey is assigned once at upload and never changes.
type Document struct {
	ID          string         `gorm:"type:text;primaryKey" json:"id"`
	OwnerID     string         `gorm:"type:text;index:idx_documents_owner" json:"owner_id"`
	FileName    string         `gorm:"type:text;not null" json:"file_name"`
	MimeType    string         `gorm:"type:text;not null" json:"mime_type"`
	Size        int64          `json:"size"`
	ContentHash string         `gorm:"type:text;index:idx_documents_hash" json:"content_hash"`
	UploadedAt  time.Time      `gorm:"index:idx_documents_uploaded" json:"uploaded_at"`
	Status      DocumentStatus `gorm:"type:text;index:idx_documents_status;default:uploaded" json:"status"`
	StorageTier StorageTier    `gorm:"type:text;index:idx_documents_tier;default:hot" json:"storage_tier"`
	StorageKey  string         `gorm:"type:text;not null;uniqueIndex:idx_documents_storage_key" json:"storage_key"`

	ThumbnailKey       string     `gorm:"type:text" json:"thumbnail_key,omitempty"`
	PageCount          int        `json:"page_count,omitempty"`
	SignedURLExpiresAt *time.Time `json:"signed_url_expires_at,omitempty"`

	RecognizedText        string     `gorm:"type:text" json:"recognized_text,omitempty"`
	RecognitionConfidence float64    `json:"recognition_confidence"`
	RecognitionRegions    RegionList `gorm:"type:text" json:"recognition_regions,omitempty"`
	ExtractedFields       FieldMap   `gorm:"type:text" json:"extracted_fields,omitempty"`
	DocumentType          string     `gorm:"type:text" json:"document_type,omitempty"`
	TypeConfidence        float64    `json:"type_confidence"`
	IndexedAt             *time.Time `json:"indexed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Document.
func (Document) TableName() string {
	return "documents"
}

// Clone returns a deep copy of the document so callers can hand out
// snapshots without sharing maps or slices.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	if d.SignedURLExpiresAt != nil {
		t := *d.SignedURLExpiresAt
		c.SignedURLExpiresAt = &t
	}
	if d.IndexedAt != nil {
		t := *d.IndexedAt
		c.IndexedAt = &t
	}
	if d.RecognitionRegions != nil {
		c.RecognitionRegions = append(RegionList(nil), d.RecognitionRegions...)
	}
	if d.ExtractedFields != nil {
		c.ExtractedFields = make(FieldMap, len(d.ExtractedFields))
		for k, v := range d.ExtractedFields {
			c.ExtractedFields[k] = v
		}
	}
	return &c
}

// Timestamp normalises t to UTC with millisecond precision, the precision
// used for every persisted timestamp.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
