// Command ingest runs the itinerary ingestion pipeline locally, end to end or one phase at a time.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/timmy/itinerary-ingest/internal/config"
	"github.com/timmy/itinerary-ingest/internal/logger"
	"github.com/timmy/itinerary-ingest/internal/pipeline"
)

var (
	configPath string
	logLevel   string
	appLogger  *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Itinerary ingestion pipeline",
	Long: `Scrapes a partner portal itinerary, rehosts its media with global deduplication,
and finalizes a reviewable draft with hero media, JSON-LD and a publish checklist.

Phases talk to the document store configured under store_client.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		envCfg := logger.LoadFromEnv("itinerary-ingest")
		if logLevel != "" {
			envCfg.Level = logLevel
		}
		appLogger = logger.NewFromEnv(envCfg)
		logger.SetDefaultLogger(appLogger)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (defaults to ./configs/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer logger.Sync()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadPipeline loads configuration and wires every phase.
func loadPipeline(ctx context.Context) (*config.Config, *pipeline.Pipeline, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	p, err := pipeline.Build(ctx, cfg, appLogger)
	if err != nil {
		return nil, nil, err
	}
	return cfg, p, nil
}

// printJSON writes a command result to stdout.
func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
