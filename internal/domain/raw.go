package domain

import "encoding/json"

// RawSegment is one segment as captured from the partner portal, before transform.
type RawSegment struct {
	Index             int      `json:"index"`
	Type              string   `json:"type"`
	Title             string   `json:"title,omitempty"`
	Description       string   `json:"description,omitempty"`
	AccommodationName string   `json:"accommodation_name,omitempty"`
	ActivityName      string   `json:"activity_name,omitempty"`
	Location          string   `json:"location,omitempty"`
	Country           string   `json:"country,omitempty"`
	StartDate         string   `json:"start_date,omitempty"`
	EndDate           string   `json:"end_date,omitempty"`
	Nights            int      `json:"nights,omitempty"`
	Highlights        []string `json:"highlights,omitempty"`
}

// RawItinerary is the portal's itinerary payload, normalized to a flat shape.
type RawItinerary struct {
	ID        string       `json:"id"`
	Title     string       `json:"title"`
	StartDate string       `json:"start_date,omitempty"`
	EndDate   string       `json:"end_date,omitempty"`
	Nights    int          `json:"nights,omitempty"`
	Currency  string       `json:"currency,omitempty"`
	Segments  []RawSegment `json:"segments"`
}

// MediaReference is an origin media key discovered in the captured content.
// SegmentIndex is -1 when the reference is not under a segment.
type MediaReference struct {
	SourceReference string `json:"source_reference"`
	SegmentIndex    int    `json:"segment_index"`
}

// ScrapeResult is the output of one successful scrape.
type ScrapeResult struct {
	SourceURL       string           `json:"source_url"`
	Itinerary       RawItinerary     `json:"itinerary"`
	MediaReferences []MediaReference `json:"media_references"`
	PriceMinor      int64            `json:"price_minor"`
	PageTitle       string           `json:"page_title,omitempty"`
	PageDescription string           `json:"page_description,omitempty"`

	// Captured JSON bodies, kept for audit on the itinerary.
	Metadata json.RawMessage `json:"metadata,omitempty"`
	Content  json.RawMessage `json:"content,omitempty"`
}
