package storeclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/timmy/itinerary-ingest/internal/domain"
)

// JobStore accesses the jobs collection.
type JobStore struct {
	c *Client
}

// NewJobStore creates a JobStore.
func NewJobStore(c *Client) *JobStore {
	return &JobStore{c: c}
}

func (s *JobStore) Get(ctx context.Context, id string) (*domain.Job, error) {
	return GetByID[domain.Job](ctx, s.c, domain.CollectionJobs, id)
}

func (s *JobStore) Create(ctx context.Context, job *domain.Job) error {
	return Create(ctx, s.c, domain.CollectionJobs, job)
}

func (s *JobStore) Update(ctx context.Context, id string, patch Patch) (*domain.Job, error) {
	return Update[domain.Job](ctx, s.c, domain.CollectionJobs, id, patch)
}

// Fail moves a job to the failed state with phase attribution.
func (s *JobStore) Fail(ctx context.Context, id, phase string, cause error) error {
	now := time.Now().UTC()
	patch := Patch{
		"status":        domain.JobStatusFailed,
		"error_message": cause.Error(),
		"error_phase":   phase,
		"completed_at":  now,
	}
	if job, err := s.Get(ctx, id); err == nil && job.StartedAt != nil {
		patch["duration_ms"] = now.Sub(*job.StartedAt).Milliseconds()
	}
	if _, err := s.Update(ctx, id, patch); err != nil {
		return fmt.Errorf("failed to mark job %s failed: %w", id, err)
	}
	return nil
}

// ImageStatusStore accesses the image-statuses collection.
type ImageStatusStore struct {
	c *Client
}

// NewImageStatusStore creates an ImageStatusStore.
func NewImageStatusStore(c *Client) *ImageStatusStore {
	return &ImageStatusStore{c: c}
}

func (s *ImageStatusStore) Create(ctx context.Context, row *domain.ImageStatus) error {
	return Create(ctx, s.c, domain.CollectionImageStatuses, row)
}

func (s *ImageStatusStore) Update(ctx context.Context, id string, patch Patch) (*domain.ImageStatus, error) {
	return Update[domain.ImageStatus](ctx, s.c, domain.CollectionImageStatuses, id, patch)
}

// Transition patches a row only while it is still in state from. A row that
// has moved on yields an error satisfying IsConflict.
func (s *ImageStatusStore) Transition(ctx context.Context, id string, from domain.ImageState, patch Patch) (*domain.ImageStatus, error) {
	return UpdateWhere[domain.ImageStatus](ctx, s.c, domain.CollectionImageStatuses, id, patch,
		NewQuery().Eq("status", from))
}

// ListByJob returns every row of a job in creation order.
func (s *ImageStatusStore) ListByJob(ctx context.Context, jobID string) ([]domain.ImageStatus, error) {
	return FindAll[domain.ImageStatus](ctx, s.c, domain.CollectionImageStatuses,
		NewQuery().Eq("job_id", jobID))
}

// ListPending returns up to limit pending rows of the given media type.
// A limit <= 0 returns all of them.
func (s *ImageStatusStore) ListPending(ctx context.Context, jobID string, mediaType domain.MediaType, limit int) ([]domain.ImageStatus, error) {
	q := NewQuery().
		Eq("job_id", jobID).
		Eq("media_type", mediaType).
		Eq("status", domain.ImageStatePending)
	if limit <= 0 {
		return FindAll[domain.ImageStatus](ctx, s.c, domain.CollectionImageStatuses, q)
	}
	page, err := Find[domain.ImageStatus](ctx, s.c, domain.CollectionImageStatuses, q.Limit(limit))
	if err != nil {
		return nil, err
	}
	return page.Docs, nil
}

// ListStale returns processing rows started before cutoff.
func (s *ImageStatusStore) ListStale(ctx context.Context, jobID string, mediaType domain.MediaType, cutoff time.Time) ([]domain.ImageStatus, error) {
	return FindAll[domain.ImageStatus](ctx, s.c, domain.CollectionImageStatuses, NewQuery().
		Eq("job_id", jobID).
		Eq("media_type", mediaType).
		Eq("status", domain.ImageStateProcessing).
		Before("started_at", cutoff))
}

// CountOpen counts pending and in-flight rows of the given media type.
func (s *ImageStatusStore) CountOpen(ctx context.Context, jobID string, mediaType domain.MediaType) (int, error) {
	return Count(ctx, s.c, domain.CollectionImageStatuses, NewQuery().
		Eq("job_id", jobID).
		Eq("media_type", mediaType).
		In("status", string(domain.ImageStatePending), string(domain.ImageStateProcessing)))
}

// MediaStore accesses the media collection.
type MediaStore struct {
	c *Client
}

// NewMediaStore creates a MediaStore.
func NewMediaStore(c *Client) *MediaStore {
	return &MediaStore{c: c}
}

func (s *MediaStore) Get(ctx context.Context, id string) (*domain.Media, error) {
	return GetByID[domain.Media](ctx, s.c, domain.CollectionMedia, id)
}

// Create inserts a Media record. A concurrent insert of the same source
// reference returns an error matching domain.ErrConflict.
func (s *MediaStore) Create(ctx context.Context, m *domain.Media) error {
	return Create(ctx, s.c, domain.CollectionMedia, m)
}

func (s *MediaStore) Update(ctx context.Context, id string, patch Patch) (*domain.Media, error) {
	return Update[domain.Media](ctx, s.c, domain.CollectionMedia, id, patch)
}

// FindBySourceReference is the dedup lookup. It returns domain.ErrNotFound on a miss.
func (s *MediaStore) FindBySourceReference(ctx context.Context, ref string) (*domain.Media, error) {
	page, err := Find[domain.Media](ctx, s.c, domain.CollectionMedia,
		NewQuery().Eq("source_reference", ref).Limit(1))
	if err != nil {
		return nil, err
	}
	if len(page.Docs) == 0 {
		return nil, fmt.Errorf("media with source reference %q: %w", ref, domain.ErrNotFound)
	}
	return &page.Docs[0], nil
}

const idBatchSize = 100

// ListByIDs returns the Media records for ids, in no particular order.
func (s *MediaStore) ListByIDs(ctx context.Context, ids []string) ([]domain.Media, error) {
	var out []domain.Media
	for start := 0; start < len(ids); start += idBatchSize {
		end := start + idBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		docs, err := FindAll[domain.Media](ctx, s.c, domain.CollectionMedia,
			NewQuery().In("id", ids[start:end]...))
		if err != nil {
			return nil, err
		}
		out = append(out, docs...)
	}
	return out, nil
}

// ItineraryStore accesses the itineraries collection.
type ItineraryStore struct {
	c *Client
}

// NewItineraryStore creates an ItineraryStore.
func NewItineraryStore(c *Client) *ItineraryStore {
	return &ItineraryStore{c: c}
}

func (s *ItineraryStore) Get(ctx context.Context, id string) (*domain.Itinerary, error) {
	return GetByID[domain.Itinerary](ctx, s.c, domain.CollectionItineraries, id)
}

func (s *ItineraryStore) Create(ctx context.Context, it *domain.Itinerary) error {
	return Create(ctx, s.c, domain.CollectionItineraries, it)
}

func (s *ItineraryStore) Update(ctx context.Context, id string, patch Patch) (*domain.Itinerary, error) {
	return Update[domain.Itinerary](ctx, s.c, domain.CollectionItineraries, id, patch)
}

// FindBySourceItineraryID returns the newest itinerary for an upstream id, or domain.ErrNotFound.
func (s *ItineraryStore) FindBySourceItineraryID(ctx context.Context, sourceID string) (*domain.Itinerary, error) {
	return s.findOne(ctx, NewQuery().Eq("source_itinerary_id", sourceID))
}

// FindByJobID returns the itinerary created by a job, or domain.ErrNotFound.
func (s *ItineraryStore) FindByJobID(ctx context.Context, jobID string) (*domain.Itinerary, error) {
	return s.findOne(ctx, NewQuery().Eq("job_id", jobID))
}

func (s *ItineraryStore) findOne(ctx context.Context, q *Query) (*domain.Itinerary, error) {
	page, err := Find[domain.Itinerary](ctx, s.c, domain.CollectionItineraries, q.Sort("-created_at").Limit(1))
	if err != nil {
		return nil, err
	}
	if len(page.Docs) == 0 {
		return nil, fmt.Errorf("itinerary: %w", domain.ErrNotFound)
	}
	return &page.Docs[0], nil
}

// IsNotFound reports whether err means the document does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}

// IsConflict reports whether err is a uniqueness violation or a failed
// update precondition.
func IsConflict(err error) bool {
	return errors.Is(err, domain.ErrConflict)
}
