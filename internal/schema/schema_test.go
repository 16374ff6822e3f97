package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/itinerary-ingest/internal/domain"
)

func sampleItinerary() *domain.Itinerary {
	return &domain.Itinerary{
		Title:           "Kenya Migration Safari",
		SourceURL:       "https://portal.example.com/itineraries/abc",
		MetaDescription: "Seven nights following the migration across the Masai Mara.",
		PriceMinor:      540000,
		Currency:        "usd",
		Countries:       domain.StringArray{"Kenya"},
		Days: []domain.Day{
			{DayNumber: 1, Title: "Ol Donyo Lodge", Segments: []domain.Segment{
				{BlockType: domain.BlockStay, AccommodationName: "Ol Donyo Lodge"},
			}},
			{DayNumber: 2, Segments: []domain.Segment{
				{BlockType: domain.BlockActivity, ActivityName: "Game drive"},
			}},
		},
	}
}

func TestGenerateTouristTrip(t *testing.T) {
	hero := &domain.Media{URL: "https://cdn.example.com/hero.jpg"}
	media := []domain.Media{
		{URL: "https://cdn.example.com/hero.jpg"},
		{URL: "https://cdn.example.com/room.jpg"},
		{URL: "https://cdn.example.com/clip.mp4", MediaType: domain.MediaTypeVideo},
	}

	doc := Generate(sampleItinerary(), media, hero)

	assert.Equal(t, "TouristTrip", doc["@type"])
	assert.Equal(t, []interface{}{"https://cdn.example.com/hero.jpg", "https://cdn.example.com/room.jpg"}, doc["image"])

	offers := doc["offers"].(map[string]interface{})
	assert.Equal(t, "5400.00", offers["price"])
	assert.Equal(t, "USD", offers["priceCurrency"])

	list := doc["itinerary"].(map[string]interface{})
	elements := list["itemListElement"].([]interface{})
	require.Len(t, elements, 2)
	second := elements[1].(map[string]interface{})["item"].(map[string]interface{})
	assert.Equal(t, "Day 2", second["name"])
	assert.Equal(t, "Game drive", second["description"])
}

func TestValidatePass(t *testing.T) {
	doc := Generate(sampleItinerary(), nil, &domain.Media{URL: "https://cdn.example.com/hero.jpg"})

	result, err := Validate(doc)
	require.NoError(t, err)
	assert.Equal(t, domain.SchemaStatusPass, result.Status)
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Warnings)
}

func TestValidateWarnsOnMissingContent(t *testing.T) {
	it := sampleItinerary()
	it.MetaDescription = ""
	it.PriceMinor = 0

	result, err := Validate(Generate(it, nil, nil))
	require.NoError(t, err)
	assert.Equal(t, domain.SchemaStatusWarn, result.Status)
	assert.Equal(t, []string{"description missing", "image missing", "offers missing"}, result.Warnings)
}

func TestValidateFailsStructurally(t *testing.T) {
	it := sampleItinerary()
	it.Title = ""
	it.Days = nil

	result, err := Validate(Generate(it, nil, nil))
	require.NoError(t, err)
	assert.Equal(t, domain.SchemaStatusFail, result.Status)
	assert.NotEmpty(t, result.Errors)
}
