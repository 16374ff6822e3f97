package domain

import (
	"time"

	"gorm.io/datatypes"
)

// MaxPreviousVersions bounds Itinerary.PreviousVersions.
const MaxPreviousVersions = 10

// ItineraryStatusDraft is the only status the pipeline writes.
const ItineraryStatusDraft = "draft"

// Schema validation statuses.
const (
	SchemaStatusPass = "pass"
	SchemaStatusWarn = "warn"
	SchemaStatusFail = "fail"
)

// Blocker severities.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Segment is one stay, activity or transfer block within a day.
type Segment struct {
	BlockType         BlockType `json:"block_type"`
	Title             string    `json:"title,omitempty"`
	Description       string    `json:"description,omitempty"`
	AccommodationName string    `json:"accommodation_name,omitempty"`
	ActivityName      string    `json:"activity_name,omitempty"`
	Location          string    `json:"location,omitempty"`
	Country           string    `json:"country,omitempty"`
	StartDate         string    `json:"start_date,omitempty"`
	EndDate           string    `json:"end_date,omitempty"`
	Nights            int       `json:"nights,omitempty"`
	TransferType      string    `json:"transfer_type,omitempty"`
	Media             []string  `json:"media"`
}

// Day groups the segments that start on the same trip day.
type Day struct {
	DayNumber int       `json:"day_number"`
	Title     string    `json:"title"`
	Location  string    `json:"location,omitempty"`
	Segments  []Segment `json:"segments"`
}

// FAQ is a generated question/answer pair.
type FAQ struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Checklist is the publish-readiness checklist computed at finalization.
type Checklist struct {
	AllImagesProcessed bool `json:"all_images_processed"`
	NoFailedImages     bool `json:"no_failed_images"`
	HeroImageSelected  bool `json:"hero_image_selected"`
	SchemaGenerated    bool `json:"schema_generated"`
	SchemaValid        bool `json:"schema_valid"`
	MetaFieldsFilled   bool `json:"meta_fields_filled"`
	ContentEnhanced    bool `json:"content_enhanced"`
}

// Blocker is one reason an itinerary is not ready to publish.
type Blocker struct {
	Reason   string `json:"reason"`
	Severity string `json:"severity"`
}

// ItinerarySnapshot preserves the previous content of an itinerary on re-scrape.
type ItinerarySnapshot struct {
	Version     int       `json:"version"`
	JobID       string    `json:"job_id,omitempty"`
	Title       string    `json:"title"`
	Days        []Day     `json:"days"`
	PriceMinor  int64     `json:"price_minor"`
	HeroImageID string    `json:"hero_image_id,omitempty"`
	HeroVideoID string    `json:"hero_video_id,omitempty"`
	CapturedAt  time.Time `json:"captured_at"`
}

// Itinerary is the draft document the pipeline builds.
type Itinerary struct {
	ID                string      `gorm:"type:text;primaryKey" json:"id"`
	Slug              string      `gorm:"type:text;index:idx_itineraries_slug" json:"slug"`
	Title             string      `gorm:"type:text" json:"title"`
	SourceURL         string      `gorm:"type:text" json:"source_url"`
	SourceItineraryID string      `gorm:"type:text;index:idx_itineraries_source" json:"source_itinerary_id"`
	JobID             string      `gorm:"type:text;index:idx_itineraries_job" json:"job_id"`
	Status            string      `gorm:"type:text;default:draft" json:"status"`
	StartDate         string      `gorm:"type:text" json:"start_date,omitempty"`
	EndDate           string      `gorm:"type:text" json:"end_date,omitempty"`
	Nights            int         `json:"nights"`
	PriceMinor        int64       `json:"price_minor"`
	Currency          string      `gorm:"type:text" json:"currency,omitempty"`
	Countries         StringArray `gorm:"type:text" json:"countries"`
	Highlights        StringArray `gorm:"type:text" json:"highlights"`
	Days              []Day       `gorm:"serializer:json" json:"days"`

	MetaTitle       string `gorm:"type:text" json:"meta_title,omitempty"`
	MetaDescription string `gorm:"type:text" json:"meta_description,omitempty"`
	FAQs            []FAQ  `gorm:"serializer:json" json:"faqs"`

	HeroImageID string `gorm:"type:text" json:"hero_image_id,omitempty"`
	HeroVideoID string `gorm:"type:text" json:"hero_video_id,omitempty"`
	HeroLocked  bool   `json:"hero_locked"`

	Schema       datatypes.JSON `json:"schema,omitempty"`
	SchemaStatus string         `gorm:"type:text" json:"schema_status,omitempty"`
	Checklist    Checklist      `gorm:"serializer:json" json:"checklist"`
	Blockers     []Blocker      `gorm:"serializer:json" json:"blockers"`

	Version          int                 `gorm:"default:1" json:"version"`
	PreviousVersions []ItinerarySnapshot `gorm:"serializer:json" json:"previous_versions"`
	RawPayload       datatypes.JSON      `json:"raw_payload,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Itinerary.
func (Itinerary) TableName() string {
	return "itineraries"
}

// Snapshot captures the current content for PreviousVersions.
func (it *Itinerary) Snapshot(now time.Time) ItinerarySnapshot {
	return ItinerarySnapshot{
		Version:     it.Version,
		JobID:       it.JobID,
		Title:       it.Title,
		Days:        it.Days,
		PriceMinor:  it.PriceMinor,
		HeroImageID: it.HeroImageID,
		HeroVideoID: it.HeroVideoID,
		CapturedAt:  now,
	}
}

// PushVersion appends a snapshot of the current content, keeps the newest
// MaxPreviousVersions, and bumps Version.
func (it *Itinerary) PushVersion(now time.Time) {
	versions := append(it.PreviousVersions, it.Snapshot(now))
	if len(versions) > MaxPreviousVersions {
		versions = versions[len(versions)-MaxPreviousVersions:]
	}
	it.PreviousVersions = versions
	if it.Version < 1 {
		it.Version = 1
	}
	it.Version++
}
