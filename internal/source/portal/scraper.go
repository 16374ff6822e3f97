package portal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/timmy/itinerary-ingest/internal/config"
	"github.com/timmy/itinerary-ingest/internal/domain"
	"github.com/timmy/itinerary-ingest/internal/logger"
	"github.com/timmy/itinerary-ingest/internal/retry"
	"github.com/timmy/itinerary-ingest/internal/source"
)

// Config holds scraper timing and matching configuration.
type Config struct {
	SettleDelay     time.Duration
	LateSettleDelay time.Duration
	MaxAttempts     int
	BackoffBase     time.Duration
	BackoffMax      time.Duration
	Metadata        config.EndpointPattern
	Content         config.EndpointPattern
	PriceUnit       source.PriceUnit
}

// ConfigFrom maps the scraper section of the application config.
func ConfigFrom(cfg *config.ScraperConfig) Config {
	return Config{
		SettleDelay:     cfg.SettleDelay,
		LateSettleDelay: cfg.LateSettleDelay,
		MaxAttempts:     cfg.MaxAttempts,
		BackoffBase:     cfg.BackoffBase,
		BackoffMax:      cfg.BackoffMax,
		Metadata:        cfg.MetadataPattern,
		Content:         cfg.ContentPattern,
		PriceUnit:       source.PriceUnit(cfg.PriceUnit),
	}
}

// Scraper captures itineraries from the partner portal by intercepting the
// API responses its single-page app fetches.
type Scraper struct {
	browser  Browser
	cfg      Config
	metadata Matcher
	content  Matcher
	backoff  retry.BackoffStrategy
}

// NewScraper creates a portal scraper.
// Parameters:
//   - browser: page loader; ChromeBrowser in production.
//   - cfg: timing, matching and price unit settings.
//
// Returns:
//   - *Scraper: configured scraper.
func NewScraper(browser Browser, cfg Config) *Scraper {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.PriceUnit == "" {
		cfg.PriceUnit = source.PriceUnitAuto
	}
	return &Scraper{
		browser:  browser,
		cfg:      cfg,
		metadata: NewMatcher(TargetMetadata, cfg.Metadata),
		content:  NewMatcher(TargetContent, cfg.Content),
		backoff: &retry.ExponentialBackoff{
			BaseDelay:    cfg.BackoffBase,
			MaxDelay:     cfg.BackoffMax,
			Multiplier:   2.0,
			JitterFactor: 0.2,
		},
	}
}

// Name returns the scraper identifier.
func (s *Scraper) Name() string { return "portal" }

// Scrape loads sourceURL and returns the captured itinerary. Capture misses
// are retried with backoff; a browser launch failure is returned at once.
func (s *Scraper) Scrape(ctx context.Context, sourceURL string) (*domain.ScrapeResult, error) {
	ctx = logger.SetComponent(logger.SetSource(ctx, sourceURL), "scraper")
	start := time.Now()

	result, err := retry.DoWithResult(ctx, retry.Config{
		MaxAttempts: s.cfg.MaxAttempts,
		Backoff:     s.backoff,
	}, func(ctx context.Context, attempt int) (*domain.ScrapeResult, error) {
		return s.attempt(ctx, sourceURL, attempt)
	})
	if err != nil {
		logger.With(logger.Fields{
			"attempts": s.cfg.MaxAttempts,
		}).Since(start).Error(ctx, "Scrape failed: %v", err)
		return nil, err
	}

	logger.With(logger.Fields{
		"media_references": len(result.MediaReferences),
	}).Since(start).Info(ctx, "Scrape completed")
	return result, nil
}

func (s *Scraper) attempt(ctx context.Context, sourceURL string, attempt int) (*domain.ScrapeResult, error) {
	settle := s.cfg.SettleDelay
	if attempt >= 2 && s.cfg.LateSettleDelay > settle {
		settle = s.cfg.LateSettleDelay
	}
	final := attempt >= s.cfg.MaxAttempts

	logger.With(logger.Fields{
		logger.FieldAttempt: attempt,
		"settle_ms":         settle.Milliseconds(),
	}).Debug(ctx, "Loading portal page")

	page, loadErr := s.browser.Load(ctx, sourceURL, settle)
	if loadErr != nil {
		var launch *LaunchError
		if errors.As(loadErr, &launch) {
			return nil, retry.Permanent(loadErr)
		}
		if page == nil {
			return nil, loadErr
		}
	}

	if final {
		for _, r := range page.Responses {
			logger.With(logger.Fields{
				"url":          r.URL,
				"status":       r.Status,
				"content_type": r.ContentType,
				"body_bytes":   len(r.Body),
			}).Info(ctx, "Observed response")
		}
	}

	meta, okMeta := s.metadata.firstJSON(page.Responses)
	content, okContent := s.content.firstJSON(page.Responses)
	if !okMeta || !okContent {
		capErr := &CaptureError{
			URL:         sourceURL,
			Observed:    withoutBodies(page.Responses),
			Suggestions: discover(page.Responses, s.metadata, s.content),
			Err:         loadErr,
		}
		if !okMeta {
			capErr.Missing = append(capErr.Missing, TargetMetadata)
		}
		if !okContent {
			capErr.Missing = append(capErr.Missing, TargetContent)
		}
		for _, sug := range capErr.Suggestions {
			logger.With(logger.Fields{
				"path":     sug.Path,
				"count":    sug.Count,
				"keywords": sug.Keywords,
			}).Warn(ctx, "Possible renamed endpoint")
		}
		return nil, capErr
	}

	result, err := source.Assemble(ctx, &source.Capture{
		SourceURL: sourceURL,
		Metadata:  meta.Body,
		Content:   content.Body,
		HTML:      page.HTML,
	}, s.cfg.PriceUnit)
	if err != nil {
		// the bodies were captured; parsing them again will not help
		return nil, retry.Permanent(fmt.Errorf("captured payload unusable: %w", err))
	}
	return result, nil
}

func withoutBodies(responses []Response) []Response {
	out := make([]Response, len(responses))
	for i, r := range responses {
		r.Body = nil
		out[i] = r
	}
	return out
}
