package service

import (
	"context"
	"time"

	"github.com/timmy/itinerary-ingest/internal/domain"
	"github.com/timmy/itinerary-ingest/internal/storeclient"
)

// JobRepository is the job access the pipeline phases need.
type JobRepository interface {
	Get(ctx context.Context, id string) (*domain.Job, error)
	Create(ctx context.Context, job *domain.Job) error
	Update(ctx context.Context, id string, patch storeclient.Patch) (*domain.Job, error)
	Fail(ctx context.Context, id, phase string, cause error) error
}

// ImageStatusRepository is the status-log access the pipeline phases need.
type ImageStatusRepository interface {
	Create(ctx context.Context, row *domain.ImageStatus) error
	Update(ctx context.Context, id string, patch storeclient.Patch) (*domain.ImageStatus, error)
	// Transition applies patch only while the row is still in state from,
	// returning a conflict error otherwise.
	Transition(ctx context.Context, id string, from domain.ImageState, patch storeclient.Patch) (*domain.ImageStatus, error)
	ListByJob(ctx context.Context, jobID string) ([]domain.ImageStatus, error)
	ListPending(ctx context.Context, jobID string, mediaType domain.MediaType, limit int) ([]domain.ImageStatus, error)
	ListStale(ctx context.Context, jobID string, mediaType domain.MediaType, cutoff time.Time) ([]domain.ImageStatus, error)
	CountOpen(ctx context.Context, jobID string, mediaType domain.MediaType) (int, error)
}

// MediaRepository is the global media index.
type MediaRepository interface {
	Get(ctx context.Context, id string) (*domain.Media, error)
	Create(ctx context.Context, m *domain.Media) error
	Update(ctx context.Context, id string, patch storeclient.Patch) (*domain.Media, error)
	FindBySourceReference(ctx context.Context, ref string) (*domain.Media, error)
	ListByIDs(ctx context.Context, ids []string) ([]domain.Media, error)
}

// ItineraryRepository is the draft document access the pipeline phases need.
type ItineraryRepository interface {
	Get(ctx context.Context, id string) (*domain.Itinerary, error)
	Create(ctx context.Context, it *domain.Itinerary) error
	Update(ctx context.Context, id string, patch storeclient.Patch) (*domain.Itinerary, error)
	FindBySourceItineraryID(ctx context.Context, sourceID string) (*domain.Itinerary, error)
	FindByJobID(ctx context.Context, jobID string) (*domain.Itinerary, error)
}

// Stores bundles the repositories every phase is built from.
type Stores struct {
	Jobs          JobRepository
	ImageStatuses ImageStatusRepository
	Media         MediaRepository
	Itineraries   ItineraryRepository
}

// NewRemoteStores builds Stores backed by the document store REST API.
func NewRemoteStores(c *storeclient.Client) *Stores {
	return &Stores{
		Jobs:          storeclient.NewJobStore(c),
		ImageStatuses: storeclient.NewImageStatusStore(c),
		Media:         storeclient.NewMediaStore(c),
		Itineraries:   storeclient.NewItineraryStore(c),
	}
}
