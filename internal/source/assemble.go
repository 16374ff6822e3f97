package source

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/timmy/itinerary-ingest/internal/domain"
	"github.com/timmy/itinerary-ingest/internal/logger"
)

// Capture holds the bodies captured for one itinerary, from the browser or
// from a staging directory.
type Capture struct {
	SourceURL string
	Metadata  []byte
	Content   []byte
	HTML      string
}

// Assemble turns captured bodies into a ScrapeResult: it parses the content
// payload, extracts media references and the normalized price, and reads the
// page title and description from the rendered HTML.
func Assemble(ctx context.Context, c *Capture, unit PriceUnit) (*domain.ScrapeResult, error) {
	raw, err := ParseItinerary(c.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse itinerary content: %w", err)
	}
	if raw.ID == "" {
		raw.ID = MetadataItineraryID(c.Metadata)
	}
	if raw.ID == "" {
		raw.ID = IDFromURL(c.SourceURL)
	}

	refs, err := ExtractMediaReferences(c.Content)
	if err != nil {
		return nil, err
	}

	result := &domain.ScrapeResult{
		SourceURL:       c.SourceURL,
		Itinerary:       *raw,
		MediaReferences: refs,
		Metadata:        c.Metadata,
		Content:         c.Content,
	}

	if len(c.Metadata) > 0 {
		value, err := ExtractPrice(c.Metadata, raw.ID)
		switch {
		case err == nil:
			minor, inferred := NormalizePrice(value, unit)
			if inferred {
				logger.With(logger.Fields{
					"raw_price":   value,
					"price_minor": minor,
				}).Warn(ctx, "Price unit inferred from magnitude; set scraper.price_unit to make it explicit")
			}
			result.PriceMinor = minor
		case errors.Is(err, ErrPriceNotFound):
			logger.CtxWarn(ctx, "No price for itinerary %s: %v", raw.ID, err)
		default:
			return nil, err
		}
	}

	if c.HTML != "" {
		result.PageTitle, result.PageDescription = ParsePageMeta(c.HTML)
	}

	logger.With(logger.Fields{
		logger.FieldItineraryID: raw.ID,
		"segments":              len(raw.Segments),
		"media_references":      len(refs),
		"price_minor":           result.PriceMinor,
	}).Info(ctx, "Assembled scrape result")

	return result, nil
}

// ParsePageMeta reads the document title and description from rendered HTML,
// falling back to Open Graph tags.
func ParsePageMeta(html string) (title, description string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", ""
	}

	title = strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = metaContent(doc, `meta[property="og:title"]`)
	}
	description = metaContent(doc, `meta[name="description"]`)
	if description == "" {
		description = metaContent(doc, `meta[property="og:description"]`)
	}
	return title, description
}

func metaContent(doc *goquery.Document, selector string) string {
	v, _ := doc.Find(selector).First().Attr("content")
	return strings.TrimSpace(v)
}
