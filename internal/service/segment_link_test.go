package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/timmy/itinerary-ingest/internal/domain"
)

func TestSegmentKeySymmetry(t *testing.T) {
	seg := domain.Segment{BlockType: domain.BlockStay, AccommodationName: " Ol Donyo Lodge "}
	row := domain.ImageStatus{SegmentType: "stay", PropertyName: "Ol Donyo Lodge"}

	assert.Equal(t, "stay-ol donyo lodge", SegmentKey(&seg))
	assert.Equal(t, SegmentKey(&seg), RowSegmentKey(&row))

	titled := domain.Segment{BlockType: domain.BlockStay, Title: "Camp"}
	assert.Equal(t, "stay-camp", SegmentKey(&titled))

	activity := domain.Segment{BlockType: domain.BlockActivity, Title: "Game Drive"}
	activityRow := domain.ImageStatus{SegmentType: "activity", SegmentTitle: "Game Drive"}
	assert.Equal(t, "activity-game drive", SegmentKey(&activity))
	assert.Equal(t, SegmentKey(&activity), RowSegmentKey(&activityRow))
}

func TestLinkSegments(t *testing.T) {
	days := []domain.Day{
		{DayNumber: 1, Segments: []domain.Segment{
			{BlockType: domain.BlockStay, AccommodationName: "Ol Donyo Lodge"},
			{BlockType: domain.BlockActivity, Title: "Game drive", Media: []string{"stale"}},
		}},
		{DayNumber: 2, Segments: []domain.Segment{
			{BlockType: domain.BlockStay, AccommodationName: "ol donyo lodge"},
		}},
	}
	stay := func(status domain.ImageState, mediaID string) domain.ImageStatus {
		return domain.ImageStatus{SegmentType: "stay", PropertyName: "Ol Donyo Lodge", Status: status, MediaID: mediaID}
	}
	rows := []domain.ImageStatus{
		stay(domain.ImageStateComplete, "m1"),
		stay(domain.ImageStateSkipped, "m2"),
		stay(domain.ImageStateComplete, "m1"),
		stay(domain.ImageStateFailed, ""),
		stay(domain.ImageStatePending, ""),
		{SegmentType: "stay", PropertyName: "Ol Donyo Lodge", Status: domain.ImageStateComplete, MediaID: "v1", MediaType: domain.MediaTypeVideo},
	}

	linked := LinkSegments(days, rows)

	assert.Equal(t, []string{"m1", "m2"}, linked[0].Segments[0].Media)
	assert.Equal(t, []string{}, linked[0].Segments[1].Media)
	assert.Equal(t, []string{"m1", "m2"}, linked[1].Segments[0].Media)
	assert.Equal(t, []string{"stale"}, days[0].Segments[1].Media, "input must not be modified")
}
