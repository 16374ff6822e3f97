package service

import (
	"context"
	"strings"

	"github.com/timmy/itinerary-ingest/internal/domain"
)

// Quality thresholds on the longest image edge, in pixels.
const (
	highQualityEdge   = 1600
	mediumQualityEdge = 800
)

// MediaInput is a downloaded asset plus the status row that discovered it.
type MediaInput struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
	Row         *domain.ImageStatus
}

// Classification is the metadata attached to a new Media record.
type Classification struct {
	ImageType string
	Quality   string
	IsHero    bool
	Alt       string
}

// Classifier labels downloaded media.
type Classifier interface {
	Classify(ctx context.Context, in *MediaInput) (*Classification, error)
}

// keyword lists checked against the source reference and contextual tags
var (
	wildlifeWords = []string{
		"wildlife", "animal", "lion", "leopard", "cheetah", "elephant", "giraffe", "zebra",
		"rhino", "buffalo", "hippo", "gorilla", "chimp", "wildebeest", "migration", "bird",
		"flamingo", "antelope", "hyena", "wild-dog", "predator",
	}
	landscapeWords = []string{
		"landscape", "scenery", "view", "vista", "sunset", "sunrise", "horizon", "aerial",
		"mountain", "hill", "plain", "savanna", "savannah", "desert", "dune", "delta",
		"river", "lake", "beach", "ocean", "sky", "valley", "crater",
	}
	accommodationWords = []string{
		"room", "suite", "tent", "lodge", "villa", "cottage", "bedroom", "bathroom", "bed",
		"pool", "lounge", "deck", "dining", "exterior", "interior", "camp", "spa",
	}
	activityWords = []string{
		"activity", "game-drive", "gamedrive", "drive", "walk", "walking", "balloon",
		"boat", "canoe", "mokoro", "hike", "trek", "fishing", "horse", "cycling", "bush-dinner",
	}
	heroWords = []string{"hero", "header", "cover", "banner"}
)

// RuleClassifier labels media from dimensions and naming conventions only.
type RuleClassifier struct{}

// NewRuleClassifier creates the deterministic classifier.
func NewRuleClassifier() *RuleClassifier {
	return &RuleClassifier{}
}

// Classify never fails.
func (c *RuleClassifier) Classify(ctx context.Context, in *MediaInput) (*Classification, error) {
	row := in.Row
	if row == nil {
		row = &domain.ImageStatus{}
	}

	ref := strings.ToLower(row.SourceReference)
	return &Classification{
		ImageType: imageTypeFor(ref, row),
		Quality:   QualityFor(in.Width, in.Height, row.MediaType),
		IsHero:    containsAny(ref, heroWords) || row.VideoContext == domain.VideoContextHero,
		Alt:       altText(row),
	}, nil
}

// QualityFor maps dimensions to a quality tier. Unknown dimensions are medium;
// videos are rated high.
func QualityFor(width, height int, mediaType domain.MediaType) string {
	if mediaType == domain.MediaTypeVideo {
		return domain.QualityHigh
	}
	edge := width
	if height > edge {
		edge = height
	}
	switch {
	case edge == 0:
		return domain.QualityMedium
	case edge >= highQualityEdge:
		return domain.QualityHigh
	case edge >= mediumQualityEdge:
		return domain.QualityMedium
	default:
		return domain.QualityLow
	}
}

func imageTypeFor(ref string, row *domain.ImageStatus) string {
	switch {
	case containsAny(ref, wildlifeWords):
		return domain.ImageTypeWildlife
	case containsAny(ref, landscapeWords):
		return domain.ImageTypeLandscape
	case containsAny(ref, activityWords):
		return domain.ImageTypeActivity
	case containsAny(ref, accommodationWords):
		return domain.ImageTypeAccommodation
	}

	switch domain.BlockType(row.SegmentType) {
	case domain.BlockStay:
		return domain.ImageTypeAccommodation
	case domain.BlockActivity:
		return domain.ImageTypeActivity
	}
	return domain.ImageTypeOther
}

func altText(row *domain.ImageStatus) string {
	subject := row.PropertyName
	if subject == "" {
		subject = row.SegmentTitle
	}
	var parts []string
	if subject != "" {
		parts = append(parts, subject)
	}
	if row.Country != "" && !strings.EqualFold(row.Country, subject) {
		parts = append(parts, row.Country)
	}
	return strings.Join(parts, ", ")
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
