// Package schema generates and validates the JSON-LD TouristTrip document
// published alongside an itinerary.
package schema

import (
	"fmt"
	"strings"

	"github.com/timmy/itinerary-ingest/internal/domain"
)

const (
	contextURL = "https://schema.org"
	tripType   = "TouristTrip"

	// maxSchemaImages bounds the image list after the hero.
	maxSchemaImages = 6
)

// Document is a JSON-LD object.
type Document map[string]interface{}

// Generate builds the TouristTrip document for an itinerary. It has no side
// effects; hero may be nil and media may be empty.
func Generate(it *domain.Itinerary, media []domain.Media, hero *domain.Media) Document {
	doc := Document{
		"@context": contextURL,
		"@type":    tripType,
		"name":     it.Title,
	}
	if it.MetaDescription != "" {
		doc["description"] = it.MetaDescription
	}
	if it.SourceURL != "" {
		doc["url"] = it.SourceURL
	}
	if images := imageList(media, hero); len(images) > 0 {
		doc["image"] = images
	}

	elements := make([]interface{}, 0, len(it.Days))
	for i, day := range it.Days {
		item := map[string]interface{}{
			"@type": "TouristAttraction",
			"name":  dayName(day),
		}
		if desc := dayDescription(day); desc != "" {
			item["description"] = desc
		}
		elements = append(elements, map[string]interface{}{
			"@type":    "ListItem",
			"position": i + 1,
			"item":     item,
		})
	}
	doc["itinerary"] = map[string]interface{}{
		"@type":           "ItemList",
		"numberOfItems":   len(elements),
		"itemListElement": elements,
	}

	if it.PriceMinor > 0 && it.Currency != "" {
		doc["offers"] = map[string]interface{}{
			"@type":         "Offer",
			"price":         fmt.Sprintf("%d.%02d", it.PriceMinor/100, it.PriceMinor%100),
			"priceCurrency": strings.ToUpper(it.Currency),
		}
	}
	return doc
}

func imageList(media []domain.Media, hero *domain.Media) []interface{} {
	seen := make(map[string]bool)
	var out []interface{}
	add := func(m *domain.Media) {
		if m == nil || m.URL == "" || m.MediaType == domain.MediaTypeVideo || seen[m.URL] {
			return
		}
		seen[m.URL] = true
		out = append(out, m.URL)
	}
	add(hero)
	for i := range media {
		if len(out) >= maxSchemaImages {
			break
		}
		add(&media[i])
	}
	return out
}

func dayName(day domain.Day) string {
	if day.Title != "" {
		return day.Title
	}
	return fmt.Sprintf("Day %d", day.DayNumber)
}

func dayDescription(day domain.Day) string {
	var parts []string
	for _, seg := range day.Segments {
		switch {
		case seg.AccommodationName != "":
			parts = append(parts, "Stay at "+seg.AccommodationName)
		case seg.ActivityName != "":
			parts = append(parts, seg.ActivityName)
		case seg.Title != "":
			parts = append(parts, seg.Title)
		}
	}
	return strings.Join(parts, ". ")
}
