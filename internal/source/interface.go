package source

import (
	"context"

	"github.com/timmy/itinerary-ingest/internal/domain"
)

// Scraper captures an itinerary from a partner portal URL.
type Scraper interface {
	// Name returns a stable identifier for logs.
	Name() string

	// Scrape returns the raw itinerary payload, the discovered media
	// references and the normalized price.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	//   - sourceURL: partner portal itinerary URL.
	// Returns:
	//   - *domain.ScrapeResult: captured itinerary data.
	//   - error: non-nil when the capture failed after all attempts.
	Scrape(ctx context.Context, sourceURL string) (*domain.ScrapeResult, error)
}

// PriceUnit controls how raw portal prices are converted to minor units.
type PriceUnit string

const (
	PriceUnitAuto    PriceUnit = "auto"
	PriceUnitDollars PriceUnit = "dollars"
	PriceUnitCents   PriceUnit = "cents"
)

// autoDollarThreshold is the boundary below which PriceUnitAuto treats a
// value as major units.
const autoDollarThreshold = 100000
