package domain

// IntakeRequest starts the pipeline for one portal URL.
type IntakeRequest struct {
	JobID     string  `json:"job_id,omitempty"`
	SourceURL string  `json:"source_url" validate:"required,url"`
	Mode      JobMode `json:"mode" validate:"omitempty,oneof=create update"`
}

// IntakeResult is returned after intake seeds the job.
type IntakeResult struct {
	JobID       string `json:"job_id"`
	ItineraryID string `json:"itinerary_id"`
	TotalImages int    `json:"total_images"`
	TotalVideos int    `json:"total_videos"`
}

// ChunkRequest asks the media processor to handle one chunk of pending rows.
type ChunkRequest struct {
	JobID             string `json:"job_id" validate:"required"`
	ItineraryID       string `json:"itinerary_id,omitempty"`
	ChunkIndex        int    `json:"chunk_index" validate:"gte=0"`
	ProcessVideosOnly bool   `json:"process_videos_only,omitempty"`
}

// ChunkResult reports one chunk invocation. The driver re-invokes while Remaining > 0.
type ChunkResult struct {
	JobID       string `json:"job_id"`
	ItineraryID string `json:"itinerary_id"`
	Remaining   int    `json:"remaining"`
	ChunkIndex  int    `json:"chunk_index"`
	Processed   int    `json:"processed"`
	Skipped     int    `json:"skipped"`
	Failed      int    `json:"failed"`
}

// FinalizeRequest asks the finalizer to complete a job.
type FinalizeRequest struct {
	JobID string `json:"job_id" validate:"required"`
}

// FinalizeResult summarizes the finalized itinerary.
type FinalizeResult struct {
	JobID        string    `json:"job_id"`
	ItineraryID  string    `json:"itinerary_id"`
	Outcome      string    `json:"outcome"`
	SchemaStatus string    `json:"schema_status"`
	HeroImageID  string    `json:"hero_image_id,omitempty"`
	HeroVideoID  string    `json:"hero_video_id,omitempty"`
	Checklist    Checklist `json:"checklist"`
	Blockers     []Blocker `json:"blockers"`
}
