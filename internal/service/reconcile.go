package service

import (
	"context"
	"fmt"

	"github.com/timmy/itinerary-ingest/internal/domain"
	"github.com/timmy/itinerary-ingest/internal/logger"
	"github.com/timmy/itinerary-ingest/internal/metrics"
	"github.com/timmy/itinerary-ingest/internal/storeclient"
)

// CountersFromRows derives job counters from the status log. Video rows count
// only toward TotalVideos.
func CountersFromRows(rows []domain.ImageStatus) domain.JobCounters {
	var c domain.JobCounters
	for _, row := range rows {
		if row.MediaType == domain.MediaTypeVideo {
			c.TotalVideos++
			continue
		}
		c.TotalImages++
		switch row.Status {
		case domain.ImageStateComplete:
			c.ProcessedImages++
		case domain.ImageStateSkipped:
			c.SkippedImages++
		case domain.ImageStateFailed:
			c.FailedImages++
		}
	}
	return c
}

// ReconcileCounters recomputes the job's counters from its status rows and
// persists them when the cached values drifted. The returned job carries the
// recomputed counters.
func ReconcileCounters(ctx context.Context, stores *Stores, jobID string) (*domain.Job, []domain.ImageStatus, error) {
	job, err := stores.Jobs.Get(ctx, jobID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load job %s: %w", jobID, err)
	}
	rows, err := stores.ImageStatuses.ListByJob(ctx, jobID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list status rows: %w", err)
	}

	actual := CountersFromRows(rows)
	if actual == job.JobCounters {
		return job, rows, nil
	}

	logger.With(logger.Fields{
		"before": job.JobCounters,
		"after":  actual,
	}).Warn(ctx, "Job counters drifted, reconciling")

	updated, err := stores.Jobs.Update(ctx, jobID, storeclient.Patch{
		"total_images":     actual.TotalImages,
		"processed_images": actual.ProcessedImages,
		"skipped_images":   actual.SkippedImages,
		"failed_images":    actual.FailedImages,
		"total_videos":     actual.TotalVideos,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to persist reconciled counters: %w", err)
	}
	metrics.IncreaseCounterDrift()
	updated.JobCounters = actual
	return updated, rows, nil
}
