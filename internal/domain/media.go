package domain

import "time"

// Quality tiers assigned by the classifier.
const (
	QualityHigh   = "high"
	QualityMedium = "medium"
	QualityLow    = "low"
)

// Image types assigned by the classifier.
const (
	ImageTypeWildlife      = "wildlife"
	ImageTypeLandscape     = "landscape"
	ImageTypeAccommodation = "accommodation"
	ImageTypeActivity      = "activity"
	ImageTypeOther         = "other"
)

// Video context tags.
const (
	VideoContextHero     = "hero"
	VideoContextProperty = "property"
)

// Media is a rehosted binary. SourceReference is globally unique and is the dedup key.
type Media struct {
	ID              string    `gorm:"type:text;primaryKey" json:"id"`
	SourceReference string    `gorm:"type:text;not null;uniqueIndex:idx_media_source_reference" json:"source_reference"`
	StorageKey      string    `gorm:"type:text" json:"storage_key"`
	URL             string    `gorm:"type:text" json:"url"`
	ContentType     string    `gorm:"type:text" json:"content_type"`
	FileSize        int64     `json:"file_size"`
	Width           int       `json:"width"`
	Height          int       `json:"height"`
	MD5Hash         string    `gorm:"type:text;index:idx_media_md5" json:"md5_hash"`
	MediaType       MediaType `gorm:"type:text;default:image" json:"media_type"`

	UsedInItineraries StringArray `gorm:"type:text" json:"used_in_itineraries"`
	SourceItinerary   string      `gorm:"type:text;index:idx_media_source_itinerary" json:"source_itinerary"`
	SourceProperty    string      `gorm:"type:text" json:"source_property,omitempty"`
	SegmentType       string      `gorm:"type:text" json:"segment_type,omitempty"`
	Country           string      `gorm:"type:text" json:"country,omitempty"`
	ImageType         string      `gorm:"type:text" json:"image_type,omitempty"`
	Quality           string      `gorm:"type:text" json:"quality,omitempty"`
	IsHero            bool        `json:"is_hero"`
	VideoContext      string      `gorm:"type:text" json:"video_context,omitempty"`
	Alt               string      `gorm:"type:text" json:"alt,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Media.
func (Media) TableName() string {
	return "media"
}
