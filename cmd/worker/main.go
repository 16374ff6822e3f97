package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/itinerary-ingest/internal/api"
	"github.com/timmy/itinerary-ingest/internal/api/handler"
	"github.com/timmy/itinerary-ingest/internal/config"
	"github.com/timmy/itinerary-ingest/internal/logger"
	"github.com/timmy/itinerary-ingest/internal/pipeline"
)

func main() {
	appLogger := logger.NewDefault("itinerary-worker")
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, err := pipeline.Build(ctx, cfg, appLogger)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to build pipeline")
	}

	storeURL := cfg.StoreClient.BaseURL
	health := handler.NewHealthHandler("itinerary-worker", map[string]handler.Check{
		"document_store": func(ctx context.Context) error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, storeURL+"/health", nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("document store health returned %d", resp.StatusCode)
			}
			return nil
		},
	})
	router := api.SetupWorkerRouter(p, &cfg.Server, health)

	// Chunks can run for minutes; the driver sets its own deadline.
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.WorkerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.WorkerPort,
			"mode": cfg.Server.Mode,
		}).Info("Starting pipeline worker")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down pipeline worker...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}
	appLogger.Info("Pipeline worker exited")
}
