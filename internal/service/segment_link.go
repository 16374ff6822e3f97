package service

import (
	"strings"

	"github.com/timmy/itinerary-ingest/internal/domain"
)

// SegmentKey is the join key between an itinerary segment and status rows.
func SegmentKey(s *domain.Segment) string {
	if s.BlockType == domain.BlockStay {
		name := s.AccommodationName
		if name == "" {
			name = s.Title
		}
		return normalizeKey("stay-" + name)
	}
	return normalizeKey(string(s.BlockType) + "-" + s.Title)
}

// RowSegmentKey derives the same key from a status row's contextual tags.
func RowSegmentKey(row *domain.ImageStatus) string {
	if row.SegmentType == string(domain.BlockStay) {
		name := row.PropertyName
		if name == "" {
			name = row.SegmentTitle
		}
		return normalizeKey("stay-" + name)
	}
	return normalizeKey(row.SegmentType + "-" + row.SegmentTitle)
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// LinkSegments sets each segment's media list to the resolved media of the
// rows sharing its key. Lists are deduplicated and keep row order; segments
// without matching rows get an empty list. Video rows are not linked.
func LinkSegments(days []domain.Day, rows []domain.ImageStatus) []domain.Day {
	byKey := make(map[string][]string)
	seen := make(map[string]map[string]bool)
	for i := range rows {
		row := &rows[i]
		if row.MediaType == domain.MediaTypeVideo || !row.Status.Resolved() || row.MediaID == "" {
			continue
		}
		key := RowSegmentKey(row)
		if seen[key] == nil {
			seen[key] = make(map[string]bool)
		}
		if seen[key][row.MediaID] {
			continue
		}
		seen[key][row.MediaID] = true
		byKey[key] = append(byKey[key], row.MediaID)
	}

	out := make([]domain.Day, len(days))
	for i, day := range days {
		segments := make([]domain.Segment, len(day.Segments))
		for j, seg := range day.Segments {
			media := byKey[SegmentKey(&seg)]
			seg.Media = append([]string{}, media...)
			segments[j] = seg
		}
		day.Segments = segments
		out[i] = day
	}
	return out
}
