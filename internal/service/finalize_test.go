package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/itinerary-ingest/internal/domain"
)

// runToFinalize drives intake, image chunks and the video pass for job-1.
func runToFinalize(t *testing.T, f *intakeFixture) (*MediaProcessor, *domain.IntakeResult) {
	t.Helper()
	ctx := context.Background()
	res, err := f.svc.Intake(ctx, domain.IntakeRequest{JobID: "job-1", SourceURL: "https://portal.example.com/itineraries/kenya-1"})
	require.NoError(t, err)

	proc := NewMediaProcessor(f.backend.stores(), newFakeOrigin(1600, 900), newMemStorage(), NewRuleClassifier(), f.notifier, testLogger(),
		ProcessorConfig{ChunkSize: 2, Workers: 2, ProcessingLease: time.Minute})
	drain(t, proc, "job-1")
	_, err = proc.ProcessChunk(ctx, domain.ChunkRequest{JobID: "job-1", ProcessVideosOnly: true})
	require.NoError(t, err)
	return proc, res
}

func TestFinalizeCompletesJob(t *testing.T) {
	f := newIntakeFixture()
	_, intake := runToFinalize(t, f)
	ctx := context.Background()

	fin := NewFinalizer(f.backend.stores(), f.notifier, testLogger())
	res, err := fin.Finalize(ctx, domain.FinalizeRequest{JobID: "job-1"})
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeReadyForReview, res.Outcome)
	assert.Equal(t, domain.SchemaStatusPass, res.SchemaStatus)
	assert.Equal(t, []domain.Blocker{{Reason: "Content not enhanced", Severity: domain.SeverityWarning}}, res.Blockers)

	rows := statusByRef(t, f.backend, "job-1")
	assert.Equal(t, rows["lodge/1.jpg"].MediaID, res.HeroImageID)
	assert.Equal(t, rows[heroVideoURL].MediaID, res.HeroVideoID)

	job, _ := f.backend.jobs.Get(ctx, "job-1")
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Equal(t, domain.PhaseCompleted, job.Phase)
	assert.Equal(t, 100, job.Progress)
	assert.Equal(t, domain.OutcomeReadyForReview, job.Notes)
	assert.NotNil(t, job.CompletedAt)
	assert.Contains(t, job.PhaseTimestamps, domain.PhaseFinalize)

	it, _ := f.backend.itineraries.Get(ctx, intake.ItineraryID)
	assert.Equal(t, res.HeroImageID, it.HeroImageID)
	assert.Equal(t, domain.SchemaStatusPass, it.SchemaStatus)
	assert.True(t, it.Checklist.AllImagesProcessed)
	assert.True(t, it.Checklist.SchemaGenerated)
	assert.Equal(t, []string{rows["lodge/1.jpg"].MediaID}, it.Days[0].Segments[1].Media)
	assert.Equal(t, []string{rows["mara/2.jpg"].MediaID}, it.Days[1].Segments[1].Media)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(it.Schema, &doc))
	assert.Equal(t, "TouristTrip", doc["@type"])

	names := f.notifier.names()
	assert.Equal(t, EventJobCompleted, names[len(names)-1])
}

func TestFinalizeReconcilesDriftedCounters(t *testing.T) {
	f := newIntakeFixture()
	runToFinalize(t, f)
	ctx := context.Background()
	_, err := f.backend.jobs.Update(ctx, "job-1", map[string]interface{}{
		"processed_images": 1,
		"failed_images":    4,
		"total_videos":     0,
	})
	require.NoError(t, err)

	job, _, err := ReconcileCounters(ctx, f.backend.stores(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobCounters{TotalImages: 3, ProcessedImages: 3, TotalVideos: 2}, job.JobCounters)

	stored, _ := f.backend.jobs.Get(ctx, "job-1")
	assert.Equal(t, job.JobCounters, stored.JobCounters)

	res, err := NewFinalizer(f.backend.stores(), f.notifier, testLogger()).Finalize(ctx, domain.FinalizeRequest{JobID: "job-1"})
	require.NoError(t, err)
	assert.True(t, res.Checklist.NoFailedImages)
}

func TestFinalizeKeepsLockedHero(t *testing.T) {
	f := newIntakeFixture()
	_, intake := runToFinalize(t, f)
	ctx := context.Background()
	rows := statusByRef(t, f.backend, "job-1")
	locked := rows["general.jpg"].MediaID
	_, err := f.backend.itineraries.Update(ctx, intake.ItineraryID, map[string]interface{}{
		"hero_image_id": locked,
		"hero_locked":   true,
	})
	require.NoError(t, err)

	res, err := NewFinalizer(f.backend.stores(), f.notifier, testLogger()).Finalize(ctx, domain.FinalizeRequest{JobID: "job-1"})
	require.NoError(t, err)
	assert.Equal(t, locked, res.HeroImageID)
	assert.Empty(t, res.HeroVideoID)
}

func TestFinalizeIsRerunnable(t *testing.T) {
	f := newIntakeFixture()
	runToFinalize(t, f)
	fin := NewFinalizer(f.backend.stores(), f.notifier, testLogger())

	first, err := fin.Finalize(context.Background(), domain.FinalizeRequest{JobID: "job-1"})
	require.NoError(t, err)
	second, err := fin.Finalize(context.Background(), domain.FinalizeRequest{JobID: "job-1"})
	require.NoError(t, err)
	assert.Equal(t, first.HeroImageID, second.HeroImageID)
	assert.Equal(t, first.Checklist, second.Checklist)
}

func TestFinalizeFailureMarksJobFailed(t *testing.T) {
	b := newMemBackend()
	seedJob(b, "job-1", "missing-itinerary", "a.jpg")
	delete(b.itineraries.items, "missing-itinerary")
	notifier := &recordingNotifier{}

	_, err := NewFinalizer(b.stores(), notifier, testLogger()).Finalize(context.Background(), domain.FinalizeRequest{JobID: "job-1"})
	require.ErrorIs(t, err, domain.ErrNotFound)

	job, _ := b.jobs.Get(context.Background(), "job-1")
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Equal(t, domain.PhaseFinalize, job.ErrorPhase)
	assert.Equal(t, []string{EventJobFailed}, notifier.names())
}

func TestCountersFromRows(t *testing.T) {
	rows := []domain.ImageStatus{
		{Status: domain.ImageStateComplete, MediaType: domain.MediaTypeImage},
		{Status: domain.ImageStateSkipped, MediaType: domain.MediaTypeImage},
		{Status: domain.ImageStateFailed, MediaType: domain.MediaTypeImage},
		{Status: domain.ImageStatePending, MediaType: domain.MediaTypeImage},
		{Status: domain.ImageStateComplete, MediaType: domain.MediaTypeVideo},
	}
	assert.Equal(t, domain.JobCounters{
		TotalImages:     4,
		ProcessedImages: 1,
		SkippedImages:   1,
		FailedImages:    1,
		TotalVideos:     1,
	}, CountersFromRows(rows))
}
