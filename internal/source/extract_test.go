package source

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/itinerary-ingest/internal/domain"
)

const contentFixture = `{
  "itinerary": {
    "id": "itn-42",
    "title": "Kenya Wildlife Escape",
    "startDate": "2026-06-14",
    "headerImage": "hero/mara-sunrise.jpg",
    "agency": {
      "name": "Partner Travel",
      "logo": {"s3Key": "agency/logo.png"},
      "images": ["agency/banner.jpg"]
    },
    "segments": [
      {
        "type": "stay",
        "accommodation": {"name": "Ol Donyo Lodge"},
        "location": {"name": "Chyulu Hills", "country": "Kenya"},
        "startDate": "2026-06-14",
        "nights": 2,
        "images": [
          {"s3Key": "props/ol-donyo/pool.jpg"},
          "props/ol-donyo/room.jpg"
        ]
      },
      {
        "type": "service",
        "title": "Game drive",
        "activity": {"name": "Morning game drive"},
        "location": "Chyulu Hills",
        "startDate": "2026-06-15",
        "images": ["props/ol-donyo/pool.jpg", "activities/drive.jpg"]
      }
    ]
  }
}`

func TestExtractMediaReferences(t *testing.T) {
	refs, err := ExtractMediaReferences([]byte(contentFixture))
	require.NoError(t, err)

	got := make(map[string]int, len(refs))
	for _, r := range refs {
		got[r.SourceReference] = r.SegmentIndex
	}

	assert.Len(t, refs, 4)
	assert.Equal(t, -1, got["hero/mara-sunrise.jpg"])
	assert.Equal(t, 0, got["props/ol-donyo/pool.jpg"], "duplicates keep their first occurrence")
	assert.Equal(t, 0, got["props/ol-donyo/room.jpg"])
	assert.Equal(t, 1, got["activities/drive.jpg"])

	for ref := range got {
		assert.NotContains(t, ref, "agency/", "agency branding must never be collected")
	}
}

func TestExtractMediaReferencesInvalidJSON(t *testing.T) {
	_, err := ExtractMediaReferences([]byte("<html>"))
	assert.Error(t, err)
}

func TestParseItinerary(t *testing.T) {
	raw, err := ParseItinerary([]byte(contentFixture))
	require.NoError(t, err)

	assert.Equal(t, "itn-42", raw.ID)
	assert.Equal(t, "Kenya Wildlife Escape", raw.Title)
	assert.Equal(t, "2026-06-14", raw.StartDate)
	require.Len(t, raw.Segments, 2)

	stay := raw.Segments[0]
	assert.Equal(t, 0, stay.Index)
	assert.Equal(t, "stay", stay.Type)
	assert.Equal(t, "Ol Donyo Lodge", stay.AccommodationName)
	assert.Equal(t, "Chyulu Hills", stay.Location)
	assert.Equal(t, "Kenya", stay.Country)
	assert.Equal(t, 2, stay.Nights)

	activity := raw.Segments[1]
	assert.Equal(t, "service", activity.Type)
	assert.Equal(t, "Morning game drive", activity.ActivityName)
	assert.Equal(t, "Chyulu Hills", activity.Location)
}

func TestParseItineraryWithoutSegments(t *testing.T) {
	_, err := ParseItinerary([]byte(`{"itinerary":{"id":"x"}}`))
	assert.ErrorIs(t, err, ErrNoSegments)
}

func TestExtractPrice(t *testing.T) {
	tests := []struct {
		name     string
		metadata string
		id       string
		want     float64
		wantErr  error
	}{
		{
			name:     "list matched by id",
			metadata: `[{"id":"a","price":100},{"id":"itn-42","price":{"amount":4250.5}}]`,
			id:       "itn-42",
			want:     4250.5,
		},
		{
			name:     "docs envelope with total price",
			metadata: `{"docs":[{"itineraryId":"itn-42","totalPrice":"12,500"}]}`,
			id:       "itn-42",
			want:     12500,
		},
		{
			name:     "single entry without id",
			metadata: `{"id":"itn-42","price":990}`,
			want:     990,
		},
		{
			name:     "unknown id",
			metadata: `[{"id":"a","price":100}]`,
			id:       "itn-42",
			wantErr:  ErrPriceNotFound,
		},
		{
			name:     "entry without price",
			metadata: `[{"id":"itn-42"}]`,
			id:       "itn-42",
			wantErr:  ErrPriceNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractPrice([]byte(tt.metadata), tt.id)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 0.001)
		})
	}
}

func TestNormalizePrice(t *testing.T) {
	tests := []struct {
		value        float64
		unit         PriceUnit
		want         int64
		wantInferred bool
	}{
		{4250.5, PriceUnitAuto, 425050, true},
		{99999, PriceUnitAuto, 9999900, true},
		{100000, PriceUnitAuto, 100000, true},
		{4250, PriceUnitDollars, 425000, false},
		{4250, PriceUnitCents, 4250, false},
		{250000, PriceUnitDollars, 25000000, false},
	}
	for _, tt := range tests {
		got, inferred := NormalizePrice(tt.value, tt.unit)
		assert.Equal(t, tt.want, got, "%v %s", tt.value, tt.unit)
		assert.Equal(t, tt.wantInferred, inferred)
	}
}

func TestParsePageMeta(t *testing.T) {
	html := `<html><head>
<title> Kenya Wildlife Escape | Partner </title>
<meta property="og:description" content="Eight nights in Kenya">
</head><body></body></html>`

	title, desc := ParsePageMeta(html)
	assert.Equal(t, "Kenya Wildlife Escape | Partner", title)
	assert.Equal(t, "Eight nights in Kenya", desc)
}

func TestAssemble(t *testing.T) {
	c := &Capture{
		SourceURL: "https://portal.example.com/itineraries/itn-42",
		Metadata:  []byte(`{"itineraries":[{"id":"itn-42","price":{"amount":3200}}]}`),
		Content:   []byte(contentFixture),
		HTML:      `<html><head><title>Kenya</title><meta name="description" content="Safari"></head></html>`,
	}

	result, err := Assemble(context.Background(), c, PriceUnitDollars)
	require.NoError(t, err)

	assert.Equal(t, "itn-42", result.Itinerary.ID)
	assert.Equal(t, int64(320000), result.PriceMinor)
	assert.Len(t, result.MediaReferences, 4)
	assert.Equal(t, "Kenya", result.PageTitle)
	assert.Equal(t, "Safari", result.PageDescription)
	assert.JSONEq(t, contentFixture, string(result.Content))
}

func TestAssembleFallsBackToURLForID(t *testing.T) {
	c := &Capture{
		SourceURL: "https://portal.example.com/itineraries/itn-77/",
		Content:   []byte(`{"segments":[{"type":"stay","title":"Camp"}]}`),
	}

	result, err := Assemble(context.Background(), c, PriceUnitAuto)
	require.NoError(t, err)
	assert.Equal(t, "itn-77", result.Itinerary.ID)
	assert.Equal(t, int64(0), result.PriceMinor)
	assert.Equal(t, []domain.MediaReference(nil), result.MediaReferences)
}
