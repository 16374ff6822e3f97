package repository

import (
	"github.com/timmy/itinerary-ingest/internal/domain"
	"gorm.io/gorm"
)

// Store groups the pipeline's collections.
type Store struct {
	Jobs          *Collection[domain.Job, *domain.Job]
	ImageStatuses *Collection[domain.ImageStatus, *domain.ImageStatus]
	Media         *Collection[domain.Media, *domain.Media]
	Itineraries   *Collection[domain.Itinerary, *domain.Itinerary]
}

// NewStore creates the collections over db.
func NewStore(db *gorm.DB) (*Store, error) {
	jobs, err := NewCollection[domain.Job](db, domain.CollectionJobs)
	if err != nil {
		return nil, err
	}
	statuses, err := NewCollection[domain.ImageStatus](db, domain.CollectionImageStatuses)
	if err != nil {
		return nil, err
	}
	media, err := NewCollection[domain.Media](db, domain.CollectionMedia)
	if err != nil {
		return nil, err
	}
	itineraries, err := NewCollection[domain.Itinerary](db, domain.CollectionItineraries)
	if err != nil {
		return nil, err
	}
	return &Store{
		Jobs:          jobs,
		ImageStatuses: statuses,
		Media:         media,
		Itineraries:   itineraries,
	}, nil
}

// Resources returns every collection for route registration.
func (s *Store) Resources() []Resource {
	return []Resource{s.Jobs, s.ImageStatuses, s.Media, s.Itineraries}
}
