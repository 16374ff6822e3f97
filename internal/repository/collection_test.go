package repository

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/itinerary-ingest/internal/config"
	"github.com/timmy/itinerary-ingest/internal/domain"
	"github.com/timmy/itinerary-ingest/internal/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	log := logger.New(&logger.Config{Level: "error", Output: &bytes.Buffer{}})
	db, err := InitDB(&config.DatabaseConfig{
		Driver:       "sqlite",
		Path:         fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
		MaxOpenConns: 1,
		AutoMigrate:  true,
		LogLevel:     "silent",
	}, log)
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})

	store, err := NewStore(db)
	require.NoError(t, err)
	return store
}

func TestMediaSourceReferenceIsUnique(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := &domain.Media{SourceReference: "images/lion.jpg", SourceItinerary: "it-1"}
	require.NoError(t, store.Media.Create(ctx, first))
	assert.NotEmpty(t, first.ID)

	dup := &domain.Media{SourceReference: "images/lion.jpg", SourceItinerary: "it-2"}
	err := store.Media.Create(ctx, dup)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConflict)

	page, err := store.Media.Find(ctx, Query{Filters: []Filter{{Field: "source_reference", Op: OpEq, Values: []string{"images/lion.jpg"}}}})
	require.NoError(t, err)
	require.Len(t, page.Docs, 1)
	assert.Equal(t, first.ID, page.Docs[0].ID)
}

func TestImageStatusUniquePerJobAndReference(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.ImageStatuses.Create(ctx, &domain.ImageStatus{JobID: "job-1", SourceReference: "a.jpg"}))
	err := store.ImageStatuses.Create(ctx, &domain.ImageStatus{JobID: "job-1", SourceReference: "a.jpg"})
	assert.ErrorIs(t, err, domain.ErrConflict)

	// same reference under another job is a separate row
	require.NoError(t, store.ImageStatuses.Create(ctx, &domain.ImageStatus{JobID: "job-2", SourceReference: "a.jpg"}))
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Jobs.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateWritesOnlyPatchedFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := &domain.Job{SourceURL: "https://portal.example.com/trips/1", Status: domain.JobStatusProcessing, Progress: 10}
	job.TotalImages = 5
	require.NoError(t, store.Jobs.Create(ctx, job))

	updated, err := store.Jobs.Update(ctx, job.ID, []byte(`{"processed_images": 3, "progress": 0, "phase_timestamps": {"scrape": "2026-06-14T10:00:00Z"}}`))
	require.NoError(t, err)
	assert.Equal(t, 3, updated.ProcessedImages)
	assert.Equal(t, 0, updated.Progress)

	got, err := store.Jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.ProcessedImages)
	assert.Equal(t, 0, got.Progress, "zero values in a patch are written")
	assert.Equal(t, 5, got.TotalImages)
	assert.Equal(t, domain.JobStatusProcessing, got.Status)
	assert.Equal(t, time.Date(2026, 6, 14, 10, 0, 0, 0, time.UTC), got.PhaseTimestamps["scrape"].UTC())

	_, err = store.Jobs.Update(ctx, job.ID, []byte(`{"bogus": 1}`))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestUpdateWithPreconditions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	row := &domain.ImageStatus{JobID: "job-1", SourceReference: "a.jpg", Status: domain.ImageStatePending}
	require.NoError(t, store.ImageStatuses.Create(ctx, row))
	pending := Filter{Field: "status", Op: OpEq, Values: []string{string(domain.ImageStatePending)}}

	claimed, err := store.ImageStatuses.Update(ctx, row.ID, []byte(`{"status": "processing"}`), pending)
	require.NoError(t, err)
	assert.Equal(t, domain.ImageStateProcessing, claimed.Status)

	_, err = store.ImageStatuses.Update(ctx, row.ID, []byte(`{"status": "processing"}`), pending)
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = store.ImageStatuses.Update(ctx, row.ID, []byte(`{"status": "complete"}`),
		Filter{Field: "status", Op: OpEq, Values: []string{string(domain.ImageStateProcessing)}})
	require.NoError(t, err)

	// a late claim must not reopen the resolved row
	_, err = store.ImageStatuses.Update(ctx, row.ID, []byte(`{"status": "processing"}`), pending)
	assert.ErrorIs(t, err, domain.ErrConflict)
	got, err := store.ImageStatuses.Get(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ImageStateComplete, got.Status)

	_, err = store.ImageStatuses.Update(ctx, row.ID, []byte(`{"status": "processing"}`),
		Filter{Field: "bogus", Op: OpEq, Values: []string{"x"}})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestFindFiltersSortAndPaging(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	states := []domain.ImageState{
		domain.ImageStatePending, domain.ImageStateProcessing, domain.ImageStateComplete,
		domain.ImageStatePending, domain.ImageStateFailed,
	}
	for i, s := range states {
		require.NoError(t, store.ImageStatuses.Create(ctx, &domain.ImageStatus{
			JobID:           "job-1",
			SourceReference: fmt.Sprintf("ref-%d", i),
			Status:          s,
			DayIndex:        i,
		}))
	}

	q, err := ParseQuery(url.Values{
		"job_id":      {"job-1"},
		"status__in":  {"pending,processing"},
		"sort":        {"-day_index"},
		"limit":       {"2"},
	})
	require.NoError(t, err)

	page, err := store.ImageStatuses.Find(ctx, q)
	require.NoError(t, err)
	assert.EqualValues(t, 3, page.TotalDocs)
	assert.True(t, page.HasNextPage)
	require.Len(t, page.Docs, 2)
	assert.Equal(t, "ref-3", page.Docs[0].SourceReference)
	assert.Equal(t, "ref-1", page.Docs[1].SourceReference)

	q.Page = 2
	page, err = store.ImageStatuses.Find(ctx, q)
	require.NoError(t, err)
	require.Len(t, page.Docs, 1)
	assert.Equal(t, "ref-0", page.Docs[0].SourceReference)
	assert.False(t, page.HasNextPage)
}

func TestFindByTimeCutoff(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	old := time.Now().UTC().Add(-time.Hour)
	fresh := time.Now().UTC()
	require.NoError(t, store.ImageStatuses.Create(ctx, &domain.ImageStatus{JobID: "j", SourceReference: "old", Status: domain.ImageStateProcessing, StartedAt: &old}))
	require.NoError(t, store.ImageStatuses.Create(ctx, &domain.ImageStatus{JobID: "j", SourceReference: "fresh", Status: domain.ImageStateProcessing, StartedAt: &fresh}))

	cutoff := time.Now().UTC().Add(-10 * time.Minute).Format(time.RFC3339Nano)
	q, err := ParseQuery(url.Values{"status": {"processing"}, "started_at__lt": {cutoff}})
	require.NoError(t, err)

	page, err := store.ImageStatuses.Find(ctx, q)
	require.NoError(t, err)
	require.Len(t, page.Docs, 1)
	assert.Equal(t, "old", page.Docs[0].SourceReference)
}

func TestParseQueryRejectsBadInput(t *testing.T) {
	tests := []struct {
		name   string
		values url.Values
	}{
		{"negative limit", url.Values{"limit": {"-1"}}},
		{"zero page", url.Values{"page": {"0"}}},
		{"unknown operator", url.Values{"status__like": {"x"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseQuery(tt.values)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}
