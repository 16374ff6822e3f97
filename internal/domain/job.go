package domain

import "time"

// JobStatus is the pipeline lifecycle state of an ingestion job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// JobMode selects whether intake creates a new itinerary or re-scrapes an existing one.
type JobMode string

const (
	JobModeCreate JobMode = "create"
	JobModeUpdate JobMode = "update"
)

// Phase names, in pipeline order.
const (
	PhaseIntake    = "intake"
	PhaseScrape    = "scrape"
	PhaseTransform = "transform"
	PhaseDraft     = "draft"
	PhaseImages    = "images"
	PhaseVideos    = "videos"
	PhaseFinalize  = "finalize"
	PhaseCompleted = "completed"
)

// Review outcomes written to Job.Notes by the finalizer.
const (
	OutcomeReadyForReview = "ready_for_review"
	OutcomeNeedsAttention = "needs_attention"
)

// MaxProvisionalProgress is the highest progress any phase other than finalize may report.
const MaxProvisionalProgress = 99

// Job tracks one itinerary ingestion run.
type Job struct {
	ID           string    `gorm:"type:text;primaryKey" json:"id"`
	SourceURL    string    `gorm:"type:text;not null" json:"source_url"`
	Mode         JobMode   `gorm:"type:text;default:create" json:"mode"`
	ItineraryID  string    `gorm:"type:text;index:idx_jobs_itinerary" json:"itinerary_id,omitempty"`
	Phase        string    `gorm:"type:text" json:"phase"`
	Status       JobStatus `gorm:"type:text;index:idx_jobs_status;default:pending" json:"status"`
	Progress     int       `gorm:"default:0" json:"progress"`
	Notes        string    `gorm:"type:text" json:"notes,omitempty"`
	ErrorMessage string    `gorm:"type:text" json:"error_message,omitempty"`
	ErrorPhase   string    `gorm:"type:text" json:"error_phase,omitempty"`

	JobCounters

	PhaseTimestamps map[string]time.Time `gorm:"serializer:json" json:"phase_timestamps,omitempty"`
	StartedAt       *time.Time           `json:"started_at,omitempty"`
	CompletedAt     *time.Time           `json:"completed_at,omitempty"`
	DurationMs      int64                `json:"duration_ms,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// TableName returns the database table name for Job.
func (Job) TableName() string {
	return "jobs"
}

// JobCounters are the per-job aggregates derivable from ImageStatus rows.
// Values on a Job are a cache; ReconcileCounters recomputes them from the log.
type JobCounters struct {
	TotalImages     int `gorm:"default:0" json:"total_images"`
	ProcessedImages int `gorm:"default:0" json:"processed_images"`
	SkippedImages   int `gorm:"default:0" json:"skipped_images"`
	FailedImages    int `gorm:"default:0" json:"failed_images"`
	TotalVideos     int `gorm:"default:0" json:"total_videos"`
}

// Done is the number of images with usable media.
func (c JobCounters) Done() int {
	return c.ProcessedImages + c.SkippedImages
}

// CapProgress clamps a provisional progress value to [0, MaxProvisionalProgress].
func CapProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > MaxProvisionalProgress {
		return MaxProvisionalProgress
	}
	return p
}
