package domain

// Collection names on the document store.
const (
	CollectionJobs          = "jobs"
	CollectionImageStatuses = "image-statuses"
	CollectionMedia         = "media"
	CollectionItineraries   = "itineraries"
)

// Document is implemented by every type stored in a collection.
type Document interface {
	DocumentID() string
	SetDocumentID(id string)
}

// Page is one page of a collection query.
type Page[T any] struct {
	Docs        []T   `json:"docs"`
	TotalDocs   int64 `json:"total_docs"`
	Limit       int   `json:"limit"`
	Page        int   `json:"page"`
	HasNextPage bool  `json:"has_next_page"`
}

func (j *Job) DocumentID() string { return j.ID }
func (j *Job) SetDocumentID(id string) { j.ID = id }
func (s *ImageStatus) DocumentID() string { return s.ID }
func (s *ImageStatus) SetDocumentID(id string) { s.ID = id }
func (m *Media) DocumentID() string { return m.ID }
func (m *Media) SetDocumentID(id string) { m.ID = id }
func (it *Itinerary) DocumentID() string { return it.ID }
func (it *Itinerary) SetDocumentID(id string) { it.ID = id }
