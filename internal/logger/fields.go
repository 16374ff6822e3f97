package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// ============================================
// Tracing fields (context level)
// Propagated through the call chain of one pipeline invocation.
// ============================================

const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldJobID is the ingestion job ID
	FieldJobID = "job_id"

	// FieldItineraryID is the draft itinerary document ID
	FieldItineraryID = "itinerary_id"

	// FieldPhase is the pipeline phase currently executing
	FieldPhase = "phase"

	// FieldChunkIndex is the media chunk index supplied by the step driver
	FieldChunkIndex = "chunk_index"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldSource is the upstream source identifier (portal URL, staging dir)
	FieldSource = "source"

	// FieldSourceReference is the origin media reference being processed
	FieldSourceReference = "source_reference"
)

// ============================================
// Metric fields (entry level)
// Used for aggregation and alerting.
// ============================================

const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldSize is the data size in bytes
	FieldSize = "size"

	// FieldStatus is the operation status
	FieldStatus = "status"

	// FieldAttempt is the retry attempt number
	FieldAttempt = "attempt"
)
