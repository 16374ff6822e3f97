package domain

import "time"

// ImageState is the processing state of one discovered media reference.
type ImageState string

const (
	ImageStatePending    ImageState = "pending"
	ImageStateProcessing ImageState = "processing"
	ImageStateComplete   ImageState = "complete"
	ImageStateSkipped    ImageState = "skipped"
	ImageStateFailed     ImageState = "failed"
)

// Resolved reports whether the state means usable media exists.
func (s ImageState) Resolved() bool {
	return s == ImageStateComplete || s == ImageStateSkipped
}

// ImageStatus is the per-reference status log row. Exactly one row exists per
// (job_id, source_reference).
type ImageStatus struct {
	ID              string     `gorm:"type:text;primaryKey" json:"id"`
	JobID           string     `gorm:"type:text;not null;uniqueIndex:idx_image_statuses_job_ref" json:"job_id"`
	SourceReference string     `gorm:"type:text;not null;uniqueIndex:idx_image_statuses_job_ref" json:"source_reference"`
	Status          ImageState `gorm:"type:text;index:idx_image_statuses_status;default:pending" json:"status"`
	MediaID         string     `gorm:"type:text" json:"media_id,omitempty"`
	MediaType       MediaType  `gorm:"type:text;default:image" json:"media_type"`

	// Contextual tags used for segment linking and Media metadata.
	SegmentType  string `gorm:"type:text" json:"segment_type,omitempty"`
	PropertyName string `gorm:"type:text" json:"property_name,omitempty"`
	SegmentTitle string `gorm:"type:text" json:"segment_title,omitempty"`
	DayIndex     int    `json:"day_index,omitempty"`
	Country      string `gorm:"type:text" json:"country,omitempty"`
	VideoContext string `gorm:"type:text" json:"video_context,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `gorm:"type:text" json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName returns the database table name for ImageStatus.
func (ImageStatus) TableName() string {
	return "image_statuses"
}
