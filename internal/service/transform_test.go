package service

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/itinerary-ingest/internal/domain"
)

func date(s string) time.Time {
	t, _ := time.Parse(dateLayout, s)
	return t
}

func TestDayIndex(t *testing.T) {
	tests := []struct {
		name      string
		start     time.Time
		tripStart time.Time
		want      int
	}{
		{"same day", date("2026-06-14"), date("2026-06-14"), 1},
		{"next day", date("2026-06-15"), date("2026-06-14"), 2},
		{"a week in", date("2026-06-21"), date("2026-06-14"), 8},
		{"missing segment start", time.Time{}, date("2026-06-14"), 1},
		{"missing trip start", date("2026-06-15"), time.Time{}, 1},
		{"before trip start", date("2026-06-10"), date("2026-06-14"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DayIndex(tt.start, tt.tripStart))
		})
	}
}

func TestDayTitle(t *testing.T) {
	tests := []struct {
		name     string
		segments []domain.Segment
		want     string
	}{
		{
			name: "stay wins",
			segments: []domain.Segment{
				{BlockType: domain.BlockActivity, ActivityName: "Game drive", Location: "Chyulu Hills"},
				{BlockType: domain.BlockStay, AccommodationName: "Ol Donyo Lodge"},
			},
			want: "Ol Donyo Lodge",
		},
		{
			name:     "activity with location",
			segments: []domain.Segment{{BlockType: domain.BlockActivity, ActivityName: "Balloon safari", Location: "Masai Mara"}},
			want:     "Masai Mara - Balloon safari",
		},
		{
			name:     "named transfer",
			segments: []domain.Segment{{BlockType: domain.BlockTransfer, Title: "Scenic flight to Wilson"}},
			want:     "Scenic flight to Wilson",
		},
		{
			name:     "generic transfer falls back to location",
			segments: []domain.Segment{{BlockType: domain.BlockTransfer, Title: "Road transfer", Location: "Nairobi"}},
			want:     "Day 3 - Nairobi",
		},
		{
			name:     "nothing known",
			segments: []domain.Segment{{BlockType: domain.BlockTransfer, Title: "Flight", Location: "Unknown"}},
			want:     "Day 3",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DayTitle(3, tt.segments))
		})
	}
}

func sampleScrape() *domain.ScrapeResult {
	return &domain.ScrapeResult{
		SourceURL:  "https://portal.example.com/itineraries/kenya-1",
		PriceMinor: 540000,
		Itinerary: domain.RawItinerary{
			ID:        "kenya-1",
			Title:     "Kenya Highlights",
			StartDate: "2026-06-14",
			Segments: []domain.RawSegment{
				{Index: 0, Type: "flight", Title: "Flight", StartDate: "2026-06-14"},
				{Index: 1, Type: "stay", AccommodationName: "Ol Donyo Lodge", Location: "Chyulu Hills", Country: "Kenya",
					StartDate: "2026-06-14", EndDate: "2026-06-15", Nights: 1, Highlights: []string{"Elephants", "unknown"}},
				{Index: 2, Type: "service", Title: "Game drive", Location: "Masai Mara", Country: "Kenya",
					StartDate: "2026-06-15T08:00:00Z", Highlights: []string{"Big cats", "elephants"}},
				{Index: 3, Type: "accommodation", AccommodationName: "Angama Mara", Location: "Masai Mara", Country: "Kenya",
					StartDate: "2026-06-15", EndDate: "2026-06-18", Nights: 3},
				{Index: 4, Type: "note", Title: "Visa info"},
				{Index: 5, Type: "exit", Title: "Depart", Country: "Tanzania", StartDate: "2026-06-18"},
			},
		},
	}
}

func TestTransformGroupsDays(t *testing.T) {
	d := Transform(context.Background(), sampleScrape())

	require.Len(t, d.Days, 3)
	assert.Equal(t, 1, d.Days[0].DayNumber)
	assert.Equal(t, "Ol Donyo Lodge", d.Days[0].Title)
	assert.Len(t, d.Days[0].Segments, 2)
	assert.Equal(t, domain.BlockTransfer, d.Days[0].Segments[0].BlockType)
	assert.Equal(t, "flight", d.Days[0].Segments[0].TransferType)

	assert.Equal(t, 2, d.Days[1].DayNumber)
	assert.Equal(t, "Angama Mara", d.Days[1].Title)
	assert.Equal(t, "2026-06-15", d.Days[1].Segments[0].StartDate)

	assert.Equal(t, 5, d.Days[2].DayNumber)
	assert.Equal(t, "Depart", d.Days[2].Title)

	assert.Equal(t, "kenya-highlights", d.Slug)
	assert.Equal(t, "2026-06-14", d.StartDate)
	assert.Equal(t, "2026-06-18", d.EndDate)
	assert.Equal(t, 4, d.Nights)
	assert.Equal(t, []string{"Kenya", "Tanzania"}, d.Countries)
	assert.Equal(t, []string{"Elephants", "Big cats"}, d.Highlights)

	_, dropped := d.Contexts[4]
	assert.False(t, dropped)
	assert.Equal(t, SegmentContext{
		SegmentType:  "stay",
		PropertyName: "Ol Donyo Lodge",
		DayIndex:     1,
		Country:      "Kenya",
	}, d.Contexts[1])
}

func TestTransformMissingTripStartUsesEarliestSegment(t *testing.T) {
	res := sampleScrape()
	res.Itinerary.StartDate = ""
	res.Itinerary.Segments[0].StartDate = ""

	d := Transform(context.Background(), res)
	assert.Equal(t, "2026-06-14", d.StartDate)
	assert.Equal(t, 1, d.Contexts[0].DayIndex)
	assert.Equal(t, 2, d.Contexts[2].DayIndex)
}

func TestTransformCapsHighlights(t *testing.T) {
	res := sampleScrape()
	for i := 0; i < 12; i++ {
		res.Itinerary.Segments[1].Highlights = append(res.Itinerary.Segments[1].Highlights, strings.Repeat("h", i+1))
	}
	d := Transform(context.Background(), res)
	assert.Len(t, d.Highlights, maxHighlights)
}

func TestTransformSEOScaffolding(t *testing.T) {
	res := sampleScrape()
	res.Itinerary.Title = "An Extraordinarily Long Kenya And Tanzania Safari Itinerary Across The Great Rift Valley"

	d := Transform(context.Background(), res)
	assert.LessOrEqual(t, len(d.MetaTitle), maxMetaTitleLength)
	assert.True(t, strings.HasPrefix(res.Itinerary.Title, d.MetaTitle))
	assert.Equal(t, "4-night itinerary through Kenya and Tanzania, staying at Ol Donyo Lodge and Angama Mara.", d.MetaDescription)
	require.Len(t, d.FAQs, 3)
	assert.Equal(t, "The itinerary spans 4 nights over 5 days.", d.FAQs[0].Answer)

	res.PageDescription = strings.Repeat("word ", 60)
	d = Transform(context.Background(), res)
	assert.LessOrEqual(t, len(d.MetaDescription), maxMetaDescriptionLen)
}

func TestTruncateWords(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		limit int
		want  string
	}{
		{"short", "Kenya Highlights", 60, "Kenya Highlights"},
		{"word boundary", "Kenya Highlights Safari", 20, "Kenya Highlights"},
		{"trailing punctuation", "Mara, Amboseli, Tsavo", 16, "Mara, Amboseli"},
		{"no space keeps whole runes", strings.Repeat("é", 40), 61, strings.Repeat("é", 30)},
		{"cut lands inside rune", "ab" + strings.Repeat("ü", 10), 5, "abü"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateWords(tt.in, tt.limit)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
			assert.LessOrEqual(t, len(got), tt.limit)
		})
	}
}
