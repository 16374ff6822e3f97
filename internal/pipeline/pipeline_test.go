package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/itinerary-ingest/internal/config"
	"github.com/timmy/itinerary-ingest/internal/domain"
	"github.com/timmy/itinerary-ingest/internal/logger"
	"github.com/timmy/itinerary-ingest/internal/service"
	"github.com/timmy/itinerary-ingest/internal/source/portal"
	"github.com/timmy/itinerary-ingest/internal/source/staging"
	"github.com/timmy/itinerary-ingest/internal/storeclient"
)

func testLogger() *logger.Logger {
	return logger.New(&logger.Config{Level: "error", Output: &bytes.Buffer{}})
}

type stubIntake struct{ err error }

func (s stubIntake) Intake(_ context.Context, req domain.IntakeRequest) (*domain.IntakeResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &domain.IntakeResult{JobID: "job-1", ItineraryID: "itin-1", TotalImages: 5}, nil
}

// queueProcessor drains a fixed number of pending images, perChunk at a time.
type queueProcessor struct {
	mu       sync.Mutex
	pending  int
	perChunk int
	err      error
	images   []domain.ChunkRequest
	videos   int
}

func (q *queueProcessor) ProcessChunk(_ context.Context, req domain.ChunkRequest) (*domain.ChunkResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return nil, q.err
	}
	if req.ProcessVideosOnly {
		q.videos++
		return &domain.ChunkResult{JobID: req.JobID}, nil
	}
	q.images = append(q.images, req)
	n := min(q.perChunk, q.pending)
	q.pending -= n
	return &domain.ChunkResult{JobID: req.JobID, ChunkIndex: req.ChunkIndex, Processed: n, Remaining: q.pending}, nil
}

type stubFinalizer struct{ calls int }

func (s *stubFinalizer) Finalize(_ context.Context, req domain.FinalizeRequest) (*domain.FinalizeResult, error) {
	s.calls++
	return &domain.FinalizeResult{JobID: req.JobID, Outcome: domain.OutcomeReadyForReview}, nil
}

type failedJob struct {
	id, phase string
	cause     error
}

type recordingJobs struct {
	service.JobRepository
	failed []failedJob
}

func (r *recordingJobs) Fail(_ context.Context, id, phase string, cause error) error {
	r.failed = append(r.failed, failedJob{id, phase, cause})
	return nil
}

type recordingNotifier struct{ events []string }

func (r *recordingNotifier) Notify(_ context.Context, n service.Notification) {
	r.events = append(r.events, n.Event)
}

type fixture struct {
	processor *queueProcessor
	finalizer *stubFinalizer
	jobs      *recordingJobs
	notifier  *recordingNotifier
	pipeline  *Pipeline
}

func newFixture(pending, perChunk int, cfg DriverConfig) *fixture {
	f := &fixture{
		processor: &queueProcessor{pending: pending, perChunk: perChunk},
		finalizer: &stubFinalizer{},
		jobs:      &recordingJobs{},
		notifier:  &recordingNotifier{},
	}
	f.pipeline = New(Phases{
		Stores:    &service.Stores{Jobs: f.jobs},
		Intake:    stubIntake{},
		Processor: f.processor,
		Finalizer: f.finalizer,
		Notifier:  f.notifier,
	}, cfg, testLogger())
	return f
}

func TestRunDrivesEveryPhase(t *testing.T) {
	f := newFixture(5, 2, DriverConfig{MaxChunkRounds: 10, Concurrency: 1})

	res, err := f.pipeline.Run(context.Background(), domain.IntakeRequest{SourceURL: "https://portal.example.com/itineraries/1"})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Rounds)
	assert.Equal(t, 3, res.Chunks)
	assert.Equal(t, 1, f.processor.videos)
	assert.Equal(t, 1, f.finalizer.calls)
	assert.Equal(t, domain.OutcomeReadyForReview, res.Finalize.Outcome)
	for i, req := range f.processor.images {
		assert.Equal(t, i, req.ChunkIndex)
		assert.Equal(t, "itin-1", req.ItineraryID)
	}
	assert.Empty(t, f.jobs.failed)
}

func TestDrainImagesRunsConcurrentRounds(t *testing.T) {
	f := newFixture(7, 2, DriverConfig{MaxChunkRounds: 10, Concurrency: 3})

	rounds, chunks, err := f.pipeline.DrainImages(context.Background(), "job-1", "itin-1")
	require.NoError(t, err)
	assert.Equal(t, 2, rounds)
	assert.Equal(t, 6, chunks)
	assert.Equal(t, 0, f.processor.pending)
}

func TestDrainImagesStopsAtMaxRounds(t *testing.T) {
	f := newFixture(100, 1, DriverConfig{MaxChunkRounds: 3, Concurrency: 1})

	rounds, _, err := f.pipeline.DrainImages(context.Background(), "job-1", "itin-1")
	assert.ErrorIs(t, err, ErrRoundsExhausted)
	assert.Equal(t, 3, rounds)
}

func TestRunFinalizesAfterRoundsExhausted(t *testing.T) {
	f := newFixture(100, 1, DriverConfig{MaxChunkRounds: 2, Concurrency: 1})

	res, err := f.pipeline.Run(context.Background(), domain.IntakeRequest{SourceURL: "https://portal.example.com/itineraries/1"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rounds)
	assert.Equal(t, 1, f.finalizer.calls)
}

func TestRunFailsJobOnChunkError(t *testing.T) {
	f := newFixture(5, 2, DriverConfig{MaxChunkRounds: 10, Concurrency: 2})
	f.processor.err = errors.New("store unavailable")

	_, err := f.pipeline.Run(context.Background(), domain.IntakeRequest{SourceURL: "https://portal.example.com/itineraries/1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store unavailable")

	require.Len(t, f.jobs.failed, 1)
	assert.Equal(t, "job-1", f.jobs.failed[0].id)
	assert.Equal(t, domain.PhaseImages, f.jobs.failed[0].phase)
	assert.Equal(t, []string{service.EventJobFailed}, f.notifier.events)
	assert.Equal(t, 0, f.finalizer.calls)
}

func TestRunDoesNotFailJobTwice(t *testing.T) {
	f := newFixture(5, 2, DriverConfig{MaxChunkRounds: 10, Concurrency: 1})
	f.processor.err = fmt.Errorf("%w: itinerary itin-1: %w", service.ErrJobFailed, domain.ErrNotFound)

	_, err := f.pipeline.Run(context.Background(), domain.IntakeRequest{SourceURL: "https://portal.example.com/itineraries/1"})
	require.ErrorIs(t, err, service.ErrJobFailed)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, f.jobs.failed)
	assert.Empty(t, f.notifier.events)
	assert.Equal(t, 0, f.finalizer.calls)
}

func TestRunStopsWhenIntakeFails(t *testing.T) {
	f := newFixture(5, 2, DriverConfig{})
	f.pipeline.phases.Intake = stubIntake{err: domain.ErrInvalidInput}

	_, err := f.pipeline.Run(context.Background(), domain.IntakeRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Empty(t, f.processor.images)
	assert.Empty(t, f.jobs.failed)
}

func TestNewScraperSelectsMode(t *testing.T) {
	s, err := NewScraper(&config.ScraperConfig{Mode: "staging", StagingPath: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &staging.Adapter{}, s)

	s, err = NewScraper(&config.ScraperConfig{Mode: "browser"})
	require.NoError(t, err)
	assert.IsType(t, &portal.Scraper{}, s)

	_, err = NewScraper(&config.ScraperConfig{Mode: "staging"})
	assert.Error(t, err)
	_, err = NewScraper(&config.ScraperConfig{Mode: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestNewClassifierFallsBackToRules(t *testing.T) {
	assert.IsType(t, &service.RuleClassifier{}, NewClassifier(&config.ClassifierConfig{}))
	assert.IsType(t, &service.RuleClassifier{}, NewClassifier(&config.ClassifierConfig{Enabled: true}))
	assert.IsType(t, &service.VisionClassifier{}, NewClassifier(&config.ClassifierConfig{Enabled: true, APIKey: "k", Model: "m"}))
}

func TestBuildWithLocalStorageAndStaging(t *testing.T) {
	cfg := &config.Config{
		Storage:     config.StorageConfig{Type: "local", LocalPath: t.TempDir()},
		StoreClient: config.StoreClientConfig{BaseURL: "http://127.0.0.1:1"},
		Scraper:     config.ScraperConfig{Mode: "staging", StagingPath: t.TempDir()},
		Processor:   config.ProcessorConfig{Concurrency: 3},
	}
	p, err := Build(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	assert.Equal(t, 3, p.cfg.Concurrency)
	assert.Equal(t, 500, p.cfg.MaxChunkRounds)
	assert.NotNil(t, p.phases.Stores.Jobs)

	_, ok := p.phases.Stores.Jobs.(*storeclient.JobStore)
	assert.True(t, ok)
}
