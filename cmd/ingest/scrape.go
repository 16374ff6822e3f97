package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/timmy/itinerary-ingest/internal/config"
	"github.com/timmy/itinerary-ingest/internal/pipeline"
	"github.com/timmy/itinerary-ingest/internal/source/staging"
)

var scrapeSaveStaging bool

var scrapeCmd = &cobra.Command{
	Use:   "scrape <source-url>",
	Short: "Capture a portal itinerary without touching the document store",
	Long: `Runs the configured scraper and prints the captured itinerary. With --save-staging
the capture is written under scraper.staging_path so later runs can replay it
with scraper.mode=staging.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		scraper, err := pipeline.NewScraper(&cfg.Scraper)
		if err != nil {
			return err
		}
		res, err := scraper.Scrape(ctx, args[0])
		if err != nil {
			return err
		}

		if scrapeSaveStaging {
			if cfg.Scraper.StagingPath == "" {
				return fmt.Errorf("--save-staging requires scraper.staging_path")
			}
			dir, err := staging.NewAdapter(cfg.Scraper.StagingPath, "").Save(ctx, res, "")
			if err != nil {
				return err
			}
			appLogger.WithField("dir", dir).Info("Capture saved to staging")
		}

		return printJSON(cmd, map[string]interface{}{
			"itinerary":        res.Itinerary,
			"media_references": len(res.MediaReferences),
			"price_minor":      res.PriceMinor,
			"page_title":       res.PageTitle,
		})
	},
}

func init() {
	scrapeCmd.Flags().BoolVar(&scrapeSaveStaging, "save-staging", false, "Save the capture for staging replay")
	rootCmd.AddCommand(scrapeCmd)
}
