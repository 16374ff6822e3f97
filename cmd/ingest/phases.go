package main

import (
	"github.com/spf13/cobra"
	"github.com/timmy/itinerary-ingest/internal/domain"
)

var (
	intakeJobID string
	intakeMode  string

	chunkItineraryID string
	chunkIndex       int
	chunkDrain       bool
)

var intakeCmd = &cobra.Command{
	Use:   "intake <source-url>",
	Short: "Scrape, write the draft and seed the media status log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		_, p, err := loadPipeline(ctx)
		if err != nil {
			return err
		}
		res, err := p.Intake(ctx, domain.IntakeRequest{
			JobID:     intakeJobID,
			SourceURL: args[0],
			Mode:      domain.JobMode(intakeMode),
		})
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

var chunkCmd = &cobra.Command{
	Use:   "chunk <job-id>",
	Short: "Process one chunk of pending images, or all of them with --drain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		_, p, err := loadPipeline(ctx)
		if err != nil {
			return err
		}
		if chunkDrain {
			rounds, chunks, err := p.DrainImages(ctx, args[0], chunkItineraryID)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]int{"rounds": rounds, "chunks": chunks})
		}
		res, err := p.ProcessChunk(ctx, domain.ChunkRequest{
			JobID:       args[0],
			ItineraryID: chunkItineraryID,
			ChunkIndex:  chunkIndex,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

var videosCmd = &cobra.Command{
	Use:   "videos <job-id>",
	Short: "Process every pending video row",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		_, p, err := loadPipeline(ctx)
		if err != nil {
			return err
		}
		res, err := p.ProcessChunk(ctx, domain.ChunkRequest{
			JobID:             args[0],
			ItineraryID:       chunkItineraryID,
			ProcessVideosOnly: true,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

var finalizeCmd = &cobra.Command{
	Use:   "finalize <job-id>",
	Short: "Link media, select heroes, validate JSON-LD and complete the job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		_, p, err := loadPipeline(ctx)
		if err != nil {
			return err
		}
		res, err := p.Finalize(ctx, domain.FinalizeRequest{JobID: args[0]})
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile <job-id>",
	Short: "Recompute job counters from the media status log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		_, p, err := loadPipeline(ctx)
		if err != nil {
			return err
		}
		job, err := p.Reconcile(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, job.JobCounters)
	},
}

func init() {
	intakeCmd.Flags().StringVar(&intakeJobID, "job-id", "", "Job ID to use or resume (generated when empty)")
	intakeCmd.Flags().StringVar(&intakeMode, "mode", string(domain.JobModeCreate), "create or update")

	for _, c := range []*cobra.Command{chunkCmd, videosCmd} {
		c.Flags().StringVar(&chunkItineraryID, "itinerary-id", "", "Itinerary ID (defaults to the job's)")
	}
	chunkCmd.Flags().IntVar(&chunkIndex, "index", 0, "Chunk index, for logs")
	chunkCmd.Flags().BoolVar(&chunkDrain, "drain", false, "Keep invoking chunks until no images remain")

	rootCmd.AddCommand(intakeCmd, chunkCmd, videosCmd, finalizeCmd, reconcileCmd)
}
