package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/timmy/itinerary-ingest/internal/domain"
	"github.com/timmy/itinerary-ingest/internal/logger"
	"github.com/timmy/itinerary-ingest/internal/metrics"
	"github.com/timmy/itinerary-ingest/internal/schema"
	"github.com/timmy/itinerary-ingest/internal/storeclient"
	"gorm.io/datatypes"
)

// Finalizer completes a job: counter reconciliation, segment linking, hero
// selection, schema, checklist and the final document update. It is safe to
// re-run.
type Finalizer struct {
	stores   *Stores
	notifier Notifier
	logger   *logger.Logger
	now      func() time.Time
}

// NewFinalizer creates a new finalizer.
func NewFinalizer(stores *Stores, notifier Notifier, log *logger.Logger) *Finalizer {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &Finalizer{
		stores:   stores,
		notifier: notifier,
		logger:   log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// log returns a logger from context if available, otherwise returns the default logger
func (f *Finalizer) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return f.logger
}

// Finalize runs the finalization steps for req.JobID. Any failure marks the
// job failed in phase finalize; nothing already written is rolled back.
func (f *Finalizer) Finalize(ctx context.Context, req domain.FinalizeRequest) (*domain.FinalizeResult, error) {
	if err := domain.Validate(req); err != nil {
		return nil, err
	}
	ctx = logger.SetJobID(ctx, req.JobID)
	ctx = logger.SetPhase(ctx, domain.PhaseFinalize)
	start := time.Now()

	result, err := f.finalize(ctx, req.JobID)
	metrics.ObservePhase(domain.PhaseFinalize, time.Since(start).Seconds(), err)
	if err != nil {
		if failErr := f.stores.Jobs.Fail(ctx, req.JobID, domain.PhaseFinalize, err); failErr != nil {
			f.log(ctx).WithError(failErr).Error("Failed to mark job failed")
		}
		f.notifier.Notify(ctx, Notification{
			Event: EventJobFailed,
			JobID: req.JobID,
			Data:  map[string]interface{}{"phase": domain.PhaseFinalize, "error": err.Error()},
		})
		return nil, err
	}

	metrics.IncreaseJobOutcome(result.Outcome)
	logger.With(logger.Fields{
		"outcome":       result.Outcome,
		"schema_status": result.SchemaStatus,
		"blockers":      len(result.Blockers),
	}).Since(start).Info(ctx, "Job finalized")
	return result, nil
}

func (f *Finalizer) finalize(ctx context.Context, jobID string) (*domain.FinalizeResult, error) {
	job, rows, err := ReconcileCounters(ctx, f.stores, jobID)
	if err != nil {
		return nil, err
	}

	it, err := f.loadItinerary(ctx, job)
	if err != nil {
		return nil, err
	}
	ctx = logger.SetItineraryID(ctx, it.ID)

	it.Days = LinkSegments(it.Days, rows)

	ids := resolvedMediaIDs(rows)
	media, err := f.stores.Media.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load media: %w", err)
	}
	media = orderByIDs(media, ids)

	heroImage, err := f.selectHero(ctx, it, media)
	if err != nil {
		return nil, err
	}

	doc := schema.Generate(it, media, heroImage)
	encoded, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode schema: %w", err)
	}
	validation, err := schema.Validate(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to validate schema: %w", err)
	}

	in := ChecklistInput{
		Counters:        job.JobCounters,
		HeroImageID:     it.HeroImageID,
		SchemaGenerated: true,
		Validation:      validation,
		MetaTitle:       it.MetaTitle,
		MetaDescription: it.MetaDescription,
	}
	checklist := BuildChecklist(in)
	blockers := BuildBlockers(checklist, in)
	outcome := OutcomeFor(blockers)

	if _, err := f.stores.Itineraries.Update(ctx, it.ID, storeclient.Patch{
		"days":          it.Days,
		"hero_image_id": it.HeroImageID,
		"hero_video_id": it.HeroVideoID,
		"schema":        datatypes.JSON(encoded),
		"schema_status": validation.Status,
		"checklist":     checklist,
		"blockers":      blockers,
	}); err != nil {
		return nil, fmt.Errorf("failed to update itinerary: %w", err)
	}

	now := f.now()
	timestamps := copyTimestamps(job.PhaseTimestamps)
	timestamps[domain.PhaseFinalize] = now
	patch := storeclient.Patch{
		"status":           domain.JobStatusCompleted,
		"phase":            domain.PhaseCompleted,
		"progress":         100,
		"completed_at":     now,
		"phase_timestamps": timestamps,
		"notes":            outcome,
	}
	if job.StartedAt != nil {
		patch["duration_ms"] = now.Sub(*job.StartedAt).Milliseconds()
	}
	if _, err := f.stores.Jobs.Update(ctx, jobID, patch); err != nil {
		return nil, fmt.Errorf("failed to complete job: %w", err)
	}

	f.notifier.Notify(ctx, Notification{
		Event:       EventJobCompleted,
		JobID:       jobID,
		ItineraryID: it.ID,
		Data: map[string]interface{}{
			"outcome":          outcome,
			"processed_images": job.ProcessedImages,
			"skipped_images":   job.SkippedImages,
			"failed_images":    job.FailedImages,
			"total_videos":     job.TotalVideos,
		},
	})

	return &domain.FinalizeResult{
		JobID:        jobID,
		ItineraryID:  it.ID,
		Outcome:      outcome,
		SchemaStatus: validation.Status,
		HeroImageID:  it.HeroImageID,
		HeroVideoID:  it.HeroVideoID,
		Checklist:    checklist,
		Blockers:     blockers,
	}, nil
}

func (f *Finalizer) loadItinerary(ctx context.Context, job *domain.Job) (*domain.Itinerary, error) {
	if job.ItineraryID != "" {
		it, err := f.stores.Itineraries.Get(ctx, job.ItineraryID)
		if err != nil {
			return nil, fmt.Errorf("failed to load itinerary %s: %w", job.ItineraryID, err)
		}
		return it, nil
	}
	it, err := f.stores.Itineraries.FindByJobID(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to find itinerary for job %s: %w", job.ID, err)
	}
	return it, nil
}

// selectHero sets the hero ids on it unless the selection is locked, and
// returns the hero image record, if any.
func (f *Finalizer) selectHero(ctx context.Context, it *domain.Itinerary, media []domain.Media) (*domain.Media, error) {
	if it.HeroLocked {
		f.log(ctx).Info("Hero selection locked, keeping existing")
		if it.HeroImageID == "" {
			return nil, nil
		}
		for i := range media {
			if media[i].ID == it.HeroImageID {
				return &media[i], nil
			}
		}
		hero, err := f.stores.Media.Get(ctx, it.HeroImageID)
		if err != nil {
			if storeclient.IsNotFound(err) {
				return nil, nil
			}
			return nil, fmt.Errorf("failed to load locked hero: %w", err)
		}
		return hero, nil
	}

	it.HeroImageID, it.HeroVideoID = "", ""
	hero := SelectHeroImage(media)
	if hero != nil {
		it.HeroImageID = hero.ID
	}
	if video := SelectHeroVideo(media, it.ID); video != nil {
		it.HeroVideoID = video.ID
	}
	return hero, nil
}

// resolvedMediaIDs lists the distinct media ids of resolved rows, in row order.
func resolvedMediaIDs(rows []domain.ImageStatus) []string {
	seen := make(map[string]bool)
	ids := []string{}
	for _, row := range rows {
		if !row.Status.Resolved() || row.MediaID == "" || seen[row.MediaID] {
			continue
		}
		seen[row.MediaID] = true
		ids = append(ids, row.MediaID)
	}
	return ids
}

// orderByIDs returns media in the order of ids, dropping unknown records.
func orderByIDs(media []domain.Media, ids []string) []domain.Media {
	byID := make(map[string]domain.Media, len(media))
	for _, m := range media {
		byID[m.ID] = m
	}
	out := make([]domain.Media, 0, len(ids))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			out = append(out, m)
		}
	}
	return out
}
