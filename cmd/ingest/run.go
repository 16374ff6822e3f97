package main

import (
	"github.com/spf13/cobra"
	"github.com/timmy/itinerary-ingest/internal/domain"
)

var (
	runJobID string
	runMode  string
)

var runCmd = &cobra.Command{
	Use:   "run <source-url>",
	Short: "Run every phase for one portal URL",
	Long: `Runs intake, drains image chunks in rounds of processor.concurrency parallel
invocations (at most processor.max_chunk_rounds rounds), processes videos and finalizes.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		_, p, err := loadPipeline(ctx)
		if err != nil {
			return err
		}
		res, err := p.Run(ctx, domain.IntakeRequest{
			JobID:     runJobID,
			SourceURL: args[0],
			Mode:      domain.JobMode(runMode),
		})
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

func init() {
	runCmd.Flags().StringVar(&runJobID, "job-id", "", "Job ID to use or resume (generated when empty)")
	runCmd.Flags().StringVar(&runMode, "mode", string(domain.JobModeCreate), "create, or update to re-scrape an existing itinerary")
	rootCmd.AddCommand(runCmd)
}
