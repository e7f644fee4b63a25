package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Tracing fields, propagated through the call chain via context.
const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldJobID is the processing job ID
	FieldJobID = "job_id"

	// FieldDocumentID is the document ID a log line refers to
	FieldDocumentID = "document_id"

	// FieldStage is the pipeline stage name
	FieldStage = "stage"

	// FieldStorageKey is the blob locator inside the storage provider
	FieldStorageKey = "storage_key"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldOwnerID is the opaque caller identity attached to uploads
	FieldOwnerID = "owner_id"
)

// Metric fields, used on Entry for aggregation and alerting.
const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldSize is the data size in bytes
	FieldSize = "size"

	// FieldStatus is the operation status
	FieldStatus = "status"

	// FieldAttempt is the 1-based attempt number of a job run
	FieldAttempt = "attempt"
)
