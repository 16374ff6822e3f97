package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/timmy/itinerary-ingest/internal/config"
	"github.com/timmy/itinerary-ingest/internal/logger"
	"github.com/timmy/itinerary-ingest/internal/service"
	"github.com/timmy/itinerary-ingest/internal/source"
	"github.com/timmy/itinerary-ingest/internal/source/cdn"
	"github.com/timmy/itinerary-ingest/internal/source/portal"
	"github.com/timmy/itinerary-ingest/internal/source/staging"
	"github.com/timmy/itinerary-ingest/internal/storage"
	"github.com/timmy/itinerary-ingest/internal/storeclient"
)

// Scraper modes.
const (
	ScraperModeBrowser = "browser"
	ScraperModeStaging = "staging"
)

// Build wires every phase from configuration: document store client,
// owned storage, scraper, origin CDN client, classifier and notifier.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Pipeline, error) {
	objectStorage, err := storage.NewStorage(ctx, &cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if ensurer, ok := objectStorage.(storage.BucketEnsurer); ok {
		if err := ensurer.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure storage bucket: %w", err)
		}
	}

	scraper, err := NewScraper(&cfg.Scraper)
	if err != nil {
		return nil, err
	}

	stores := service.NewRemoteStores(storeclient.New(storeclient.Config{
		BaseURL:      cfg.StoreClient.BaseURL,
		APIKey:       cfg.StoreClient.APIKey,
		Timeout:      cfg.StoreClient.Timeout,
		RetryCount:   cfg.StoreClient.RetryCount,
		RetryWait:    cfg.StoreClient.RetryWait,
		RetryMaxWait: cfg.StoreClient.RetryMaxWait,
	}))

	origin := cdn.NewClient(cdn.Config{
		BaseURL:         cfg.Origin.BaseURL,
		VideoURLPattern: cfg.Origin.VideoURLPattern,
		Timeout:         cfg.Origin.Timeout,
		MaxBytes:        cfg.Origin.MaxBytes,
	})
	var videos service.VideoProber
	if cfg.Origin.VideoURLPattern != "" {
		videos = origin
	}

	notifier := service.NewNotifier(cfg.Notify.WebhookURL, cfg.Notify.Timeout)

	intake := service.NewIntakeService(stores, scraper, videos, notifier, log, cfg.Scraper.Currency)
	processor := service.NewMediaProcessor(stores, origin, objectStorage, NewClassifier(&cfg.Classifier), notifier, log,
		service.ProcessorConfig{
			ChunkSize:       cfg.Processor.ChunkSize,
			Workers:         cfg.Processor.Workers,
			ProcessingLease: cfg.Processor.ProcessingLease,
		})
	finalizer := service.NewFinalizer(stores, notifier, log)

	log.WithFields(logger.Fields{
		"scraper":    scraper.Name(),
		"storage":    cfg.Storage.Type,
		"store_url":  cfg.StoreClient.BaseURL,
		"classifier": cfg.Classifier.Enabled,
	}).Info("Pipeline initialized")

	return New(Phases{
		Stores:    stores,
		Intake:    intake,
		Processor: processor,
		Finalizer: finalizer,
		Notifier:  notifier,
	}, DriverConfig{
		MaxChunkRounds: cfg.Processor.MaxChunkRounds,
		Concurrency:    cfg.Processor.Concurrency,
	}, log), nil
}

// NewScraper selects the browser scraper or the staging replay by mode.
func NewScraper(cfg *config.ScraperConfig) (source.Scraper, error) {
	switch strings.ToLower(cfg.Mode) {
	case ScraperModeStaging:
		if cfg.StagingPath == "" {
			return nil, fmt.Errorf("scraper mode %q requires staging_path", cfg.Mode)
		}
		return staging.NewAdapter(cfg.StagingPath, source.PriceUnit(cfg.PriceUnit)), nil
	case ScraperModeBrowser, "":
		return portal.NewScraper(portal.NewChromeBrowser(cfg.ChromePath, cfg.Timeout), portal.ConfigFrom(cfg)), nil
	default:
		return nil, fmt.Errorf("unsupported scraper mode %q", cfg.Mode)
	}
}

// NewClassifier returns the vision classifier when enabled, otherwise the rule classifier.
func NewClassifier(cfg *config.ClassifierConfig) service.Classifier {
	if !cfg.Enabled || cfg.APIKey == "" {
		return service.NewRuleClassifier()
	}
	return service.NewVisionClassifier(&service.VLMConfig{
		Model:   cfg.Model,
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout,
	})
}
