// Package pipeline assembles the ingestion phases and drives them locally:
// intake, image chunks until nothing is pending, the video pass, finalize.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/timmy/itinerary-ingest/internal/domain"
	"github.com/timmy/itinerary-ingest/internal/logger"
	"github.com/timmy/itinerary-ingest/internal/service"
	"golang.org/x/sync/errgroup"
)

// ErrRoundsExhausted is returned by DrainImages when images remain after MaxChunkRounds.
var ErrRoundsExhausted = errors.New("chunk rounds exhausted")

// Intaker runs the intake phase.
type Intaker interface {
	Intake(ctx context.Context, req domain.IntakeRequest) (*domain.IntakeResult, error)
}

// ChunkProcessor runs one media processor invocation.
type ChunkProcessor interface {
	ProcessChunk(ctx context.Context, req domain.ChunkRequest) (*domain.ChunkResult, error)
}

// Finalizer runs the finalize phase.
type Finalizer interface {
	Finalize(ctx context.Context, req domain.FinalizeRequest) (*domain.FinalizeResult, error)
}

// Phases are the components a Pipeline drives.
type Phases struct {
	Stores    *service.Stores
	Intake    Intaker
	Processor ChunkProcessor
	Finalizer Finalizer
	Notifier  service.Notifier
}

// DriverConfig bounds the local chunk loop.
type DriverConfig struct {
	MaxChunkRounds int
	Concurrency    int
}

// Pipeline exposes each phase for the trigger API and runs them end to end for the CLI.
type Pipeline struct {
	phases Phases
	cfg    DriverConfig
	logger *logger.Logger
}

// Result summarizes an end-to-end run.
type Result struct {
	Intake   *domain.IntakeResult   `json:"intake"`
	Rounds   int                    `json:"rounds"`
	Chunks   int                    `json:"chunks"`
	Videos   *domain.ChunkResult    `json:"videos"`
	Finalize *domain.FinalizeResult `json:"finalize"`
}

// New creates a pipeline over already built phases.
func New(phases Phases, cfg DriverConfig, log *logger.Logger) *Pipeline {
	if cfg.MaxChunkRounds <= 0 {
		cfg.MaxChunkRounds = 500
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if phases.Notifier == nil {
		phases.Notifier = service.LogNotifier{}
	}
	return &Pipeline{phases: phases, cfg: cfg, logger: log}
}

func (p *Pipeline) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return p.logger
}

// Intake runs the intake phase.
func (p *Pipeline) Intake(ctx context.Context, req domain.IntakeRequest) (*domain.IntakeResult, error) {
	return p.phases.Intake.Intake(ctx, req)
}

// ProcessChunk runs one media processor invocation.
func (p *Pipeline) ProcessChunk(ctx context.Context, req domain.ChunkRequest) (*domain.ChunkResult, error) {
	return p.phases.Processor.ProcessChunk(ctx, req)
}

// Finalize runs the finalize phase.
func (p *Pipeline) Finalize(ctx context.Context, req domain.FinalizeRequest) (*domain.FinalizeResult, error) {
	return p.phases.Finalizer.Finalize(ctx, req)
}

// Reconcile recomputes a job's counters from its status rows.
func (p *Pipeline) Reconcile(ctx context.Context, jobID string) (*domain.Job, error) {
	job, _, err := service.ReconcileCounters(ctx, p.phases.Stores, jobID)
	return job, err
}

// Run executes every phase for one portal URL.
// A job whose images are still pending after MaxChunkRounds is finalized
// anyway so the checklist reports the unprocessed images.
func (p *Pipeline) Run(ctx context.Context, req domain.IntakeRequest) (*Result, error) {
	start := time.Now()
	intake, err := p.phases.Intake.Intake(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("intake failed: %w", err)
	}
	res := &Result{Intake: intake}
	ctx = logger.SetItineraryID(logger.SetJobID(ctx, intake.JobID), intake.ItineraryID)

	rounds, chunks, err := p.DrainImages(ctx, intake.JobID, intake.ItineraryID)
	res.Rounds, res.Chunks = rounds, chunks
	switch {
	case errors.Is(err, ErrRoundsExhausted):
		p.log(ctx).WithError(err).Warn("Finalizing with unprocessed images")
	case err != nil:
		return res, p.fail(ctx, intake, domain.PhaseImages, err)
	}

	res.Videos, err = p.phases.Processor.ProcessChunk(ctx, domain.ChunkRequest{
		JobID:             intake.JobID,
		ItineraryID:       intake.ItineraryID,
		ProcessVideosOnly: true,
	})
	if err != nil {
		return res, p.fail(ctx, intake, domain.PhaseVideos, err)
	}

	res.Finalize, err = p.phases.Finalizer.Finalize(ctx, domain.FinalizeRequest{JobID: intake.JobID})
	if err != nil {
		return res, fmt.Errorf("finalize failed: %w", err)
	}

	logger.With(logger.Fields{
		"rounds":  res.Rounds,
		"chunks":  res.Chunks,
		"outcome": res.Finalize.Outcome,
	}).Since(start).Info(ctx, "Pipeline run completed")
	return res, nil
}

// DrainImages invokes the media processor in rounds of Concurrency parallel
// chunks until no image rows remain open. It returns the rounds and chunk
// invocations used.
func (p *Pipeline) DrainImages(ctx context.Context, jobID, itineraryID string) (int, int, error) {
	chunkIndex := 0
	for round := 1; round <= p.cfg.MaxChunkRounds; round++ {
		results := make([]*domain.ChunkResult, p.cfg.Concurrency)
		g, gctx := errgroup.WithContext(ctx)
		for i := range results {
			i := i
			req := domain.ChunkRequest{JobID: jobID, ItineraryID: itineraryID, ChunkIndex: chunkIndex}
			chunkIndex++
			g.Go(func() error {
				res, err := p.phases.Processor.ProcessChunk(gctx, req)
				if err != nil {
					return fmt.Errorf("chunk %d: %w", req.ChunkIndex, err)
				}
				results[i] = res
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return round, chunkIndex, err
		}

		// Remaining only decreases, so the smallest count is the freshest.
		remaining := results[0].Remaining
		for _, r := range results[1:] {
			remaining = min(remaining, r.Remaining)
		}
		p.log(ctx).WithFields(logger.Fields{"round": round, "remaining": remaining}).Debug("Chunk round completed")
		if remaining == 0 {
			return round, chunkIndex, nil
		}
	}
	return p.cfg.MaxChunkRounds, chunkIndex, fmt.Errorf("%w: job %s after %d rounds", ErrRoundsExhausted, jobID, p.cfg.MaxChunkRounds)
}

// fail marks the job failed for a phase the processor did not fail itself.
func (p *Pipeline) fail(ctx context.Context, intake *domain.IntakeResult, phase string, cause error) error {
	if errors.Is(cause, service.ErrJobFailed) {
		return fmt.Errorf("%s phase failed: %w", phase, cause)
	}
	if err := p.phases.Stores.Jobs.Fail(ctx, intake.JobID, phase, cause); err != nil {
		p.log(ctx).WithError(err).Error("Failed to mark job failed")
	}
	p.phases.Notifier.Notify(ctx, service.Notification{
		Event:       service.EventJobFailed,
		JobID:       intake.JobID,
		ItineraryID: intake.ItineraryID,
		Data:        map[string]interface{}{"phase": phase, "error": cause.Error()},
	})
	return fmt.Errorf("%s phase failed: %w", phase, cause)
}
