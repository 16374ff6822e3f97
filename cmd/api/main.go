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
	"github.com/timmy/itinerary-ingest/internal/repository"
)

func main() {
	appLogger := logger.NewDefault("itinerary-store")
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// CONFIG_PATH selects the config file in deployed environments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	db, err := repository.InitDB(&cfg.Database, appLogger)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	store, err := repository.NewStore(db)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize collections")
	}

	health := handler.NewHealthHandler("itinerary-store", map[string]handler.Check{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	})
	router := api.SetupStoreRouter(store, &cfg.Server, health)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port":   cfg.Server.Port,
			"mode":   cfg.Server.Mode,
			"driver": cfg.Database.Driver,
		}).Info("Starting document store")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down document store...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	appLogger.Info("Document store exited")
}
