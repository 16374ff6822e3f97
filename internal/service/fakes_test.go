package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/itinerary-ingest/internal/domain"
	"github.com/timmy/itinerary-ingest/internal/source/cdn"
	"github.com/timmy/itinerary-ingest/internal/storage"
	"github.com/timmy/itinerary-ingest/internal/storeclient"
)

// applyPatch merges patch into doc the way the document store does: through
// the JSON representation.
func applyPatch[T any](doc *T, patch storeclient.Patch) (*T, error) {
	current, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	merged := map[string]json.RawMessage{}
	if err := json.Unmarshal(current, &merged); err != nil {
		return nil, err
	}
	for k, v := range patch {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		merged[k] = b
	}
	b, err := json.Marshal(merged)
	if err != nil {
		return nil, err
	}
	out := new(T)
	if err := json.Unmarshal(b, out); err != nil {
		return nil, err
	}
	return out, nil
}

// memJobs is an in-memory JobRepository.
type memJobs struct {
	mu   sync.Mutex
	jobs map[string]domain.Job
}

func (m *memJobs) Get(_ context.Context, id string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}
	return &job, nil
}

func (m *memJobs) Create(_ context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if _, ok := m.jobs[job.ID]; ok {
		return fmt.Errorf("job %s: %w", job.ID, domain.ErrConflict)
	}
	m.jobs[job.ID] = *job
	return nil
}

func (m *memJobs) Update(_ context.Context, id string, patch storeclient.Patch) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}
	updated, err := applyPatch(&job, patch)
	if err != nil {
		return nil, err
	}
	m.jobs[id] = *updated
	return updated, nil
}

func (m *memJobs) Fail(ctx context.Context, id, phase string, cause error) error {
	_, err := m.Update(ctx, id, storeclient.Patch{
		"status":        domain.JobStatusFailed,
		"error_message": cause.Error(),
		"error_phase":   phase,
	})
	return err
}

// memStatuses is an in-memory ImageStatusRepository keeping insertion order.
type memStatuses struct {
	mu    sync.Mutex
	rows  map[string]domain.ImageStatus
	order []string
}

func (m *memStatuses) Create(_ context.Context, row *domain.ImageStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.rows {
		if existing.JobID == row.JobID && existing.SourceReference == row.SourceReference {
			return fmt.Errorf("image status: %w", domain.ErrConflict)
		}
	}
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	m.rows[row.ID] = *row
	m.order = append(m.order, row.ID)
	return nil
}

func (m *memStatuses) Update(_ context.Context, id string, patch storeclient.Patch) (*domain.ImageStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, fmt.Errorf("image status %s: %w", id, domain.ErrNotFound)
	}
	updated, err := applyPatch(&row, patch)
	if err != nil {
		return nil, err
	}
	m.rows[id] = *updated
	return updated, nil
}

func (m *memStatuses) Transition(_ context.Context, id string, from domain.ImageState, patch storeclient.Patch) (*domain.ImageStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, fmt.Errorf("image status %s: %w", id, domain.ErrNotFound)
	}
	if row.Status != from {
		return nil, fmt.Errorf("image status %s is %s: %w", id, row.Status, domain.ErrConflict)
	}
	updated, err := applyPatch(&row, patch)
	if err != nil {
		return nil, err
	}
	m.rows[id] = *updated
	return updated, nil
}

func (m *memStatuses) filter(pred func(domain.ImageStatus) bool) []domain.ImageStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.ImageStatus{}
	for _, id := range m.order {
		if row := m.rows[id]; pred(row) {
			out = append(out, row)
		}
	}
	return out
}

func (m *memStatuses) ListByJob(_ context.Context, jobID string) ([]domain.ImageStatus, error) {
	return m.filter(func(r domain.ImageStatus) bool { return r.JobID == jobID }), nil
}

func (m *memStatuses) ListPending(_ context.Context, jobID string, mediaType domain.MediaType, limit int) ([]domain.ImageStatus, error) {
	rows := m.filter(func(r domain.ImageStatus) bool {
		return r.JobID == jobID && r.MediaType == mediaType && r.Status == domain.ImageStatePending
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (m *memStatuses) ListStale(_ context.Context, jobID string, mediaType domain.MediaType, cutoff time.Time) ([]domain.ImageStatus, error) {
	return m.filter(func(r domain.ImageStatus) bool {
		return r.JobID == jobID && r.MediaType == mediaType && r.Status == domain.ImageStateProcessing &&
			r.StartedAt != nil && r.StartedAt.Before(cutoff)
	}), nil
}

func (m *memStatuses) CountOpen(_ context.Context, jobID string, mediaType domain.MediaType) (int, error) {
	return len(m.filter(func(r domain.ImageStatus) bool {
		return r.JobID == jobID && r.MediaType == mediaType &&
			(r.Status == domain.ImageStatePending || r.Status == domain.ImageStateProcessing)
	})), nil
}

// memMedia is an in-memory MediaRepository enforcing source reference uniqueness.
type memMedia struct {
	mu    sync.Mutex
	media map[string]domain.Media

	// beforeCreate runs before the uniqueness check, outside the lock.
	beforeCreate func(m *domain.Media)
}

func (m *memMedia) Get(_ context.Context, id string) (*domain.Media, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	media, ok := m.media[id]
	if !ok {
		return nil, fmt.Errorf("media %s: %w", id, domain.ErrNotFound)
	}
	return &media, nil
}

func (m *memMedia) Create(_ context.Context, media *domain.Media) error {
	if m.beforeCreate != nil {
		m.beforeCreate(media)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.media {
		if existing.SourceReference == media.SourceReference {
			return fmt.Errorf("media: %w", domain.ErrConflict)
		}
	}
	if media.ID == "" {
		media.ID = uuid.NewString()
	}
	m.media[media.ID] = *media
	return nil
}

func (m *memMedia) Update(_ context.Context, id string, patch storeclient.Patch) (*domain.Media, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	media, ok := m.media[id]
	if !ok {
		return nil, fmt.Errorf("media %s: %w", id, domain.ErrNotFound)
	}
	updated, err := applyPatch(&media, patch)
	if err != nil {
		return nil, err
	}
	m.media[id] = *updated
	return updated, nil
}

func (m *memMedia) FindBySourceReference(_ context.Context, ref string) (*domain.Media, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, media := range m.media {
		if media.SourceReference == ref {
			return &media, nil
		}
	}
	return nil, fmt.Errorf("media %q: %w", ref, domain.ErrNotFound)
}

func (m *memMedia) ListByIDs(_ context.Context, ids []string) ([]domain.Media, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Media{}
	for _, id := range ids {
		if media, ok := m.media[id]; ok {
			out = append(out, media)
		}
	}
	// descending ids so callers cannot depend on request order
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memMedia) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.media)
}

// memItineraries is an in-memory ItineraryRepository.
type memItineraries struct {
	mu    sync.Mutex
	items map[string]domain.Itinerary
}

func (m *memItineraries) Get(_ context.Context, id string) (*domain.Itinerary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return nil, fmt.Errorf("itinerary %s: %w", id, domain.ErrNotFound)
	}
	return &it, nil
}

func (m *memItineraries) Create(_ context.Context, it *domain.Itinerary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	m.items[it.ID] = *it
	return nil
}

func (m *memItineraries) Update(_ context.Context, id string, patch storeclient.Patch) (*domain.Itinerary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return nil, fmt.Errorf("itinerary %s: %w", id, domain.ErrNotFound)
	}
	updated, err := applyPatch(&it, patch)
	if err != nil {
		return nil, err
	}
	m.items[id] = *updated
	return updated, nil
}

func (m *memItineraries) find(pred func(domain.Itinerary) bool) (*domain.Itinerary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.items {
		if pred(it) {
			return &it, nil
		}
	}
	return nil, fmt.Errorf("itinerary: %w", domain.ErrNotFound)
}

func (m *memItineraries) FindBySourceItineraryID(_ context.Context, sourceID string) (*domain.Itinerary, error) {
	return m.find(func(it domain.Itinerary) bool { return it.SourceItineraryID == sourceID })
}

func (m *memItineraries) FindByJobID(_ context.Context, jobID string) (*domain.Itinerary, error) {
	return m.find(func(it domain.Itinerary) bool { return it.JobID == jobID })
}

type memBackend struct {
	jobs        *memJobs
	statuses    *memStatuses
	media       *memMedia
	itineraries *memItineraries
}

func newMemBackend() *memBackend {
	return &memBackend{
		jobs:        &memJobs{jobs: map[string]domain.Job{}},
		statuses:    &memStatuses{rows: map[string]domain.ImageStatus{}},
		media:       &memMedia{media: map[string]domain.Media{}},
		itineraries: &memItineraries{items: map[string]domain.Itinerary{}},
	}
}

func (b *memBackend) stores() *Stores {
	return &Stores{
		Jobs:          b.jobs,
		ImageStatuses: b.statuses,
		Media:         b.media,
		Itineraries:   b.itineraries,
	}
}

// memStorage is an in-memory ObjectStorage.
type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	uploads int
	deleted []string
}

func newMemStorage() *memStorage {
	return &memStorage{objects: map[string][]byte{}}
}

func (s *memStorage) Upload(_ context.Context, key string, reader io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	s.uploads++
	return nil
}

func (s *memStorage) Download(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memStorage) GetURL(key string) string {
	return "https://media.example.com/" + key
}

func (s *memStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	s.deleted = append(s.deleted, key)
	return nil
}

func (s *memStorage) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok, nil
}

func (s *memStorage) uploadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploads
}

// fakeOrigin serves a small PNG for every reference except those in fail.
type fakeOrigin struct {
	mu        sync.Mutex
	fail      map[string]bool
	downloads map[string]int
	png       []byte
}

func newFakeOrigin(width, height int) *fakeOrigin {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return &fakeOrigin{fail: map[string]bool{}, downloads: map[string]int{}, png: buf.Bytes()}
}

func (o *fakeOrigin) Download(_ context.Context, ref string) (*cdn.Asset, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.downloads[ref]++
	if o.fail[ref] {
		return nil, &cdn.StatusError{URL: ref, StatusCode: 404}
	}
	return &cdn.Asset{URL: ref, Data: o.png, ContentType: "image/png"}, nil
}

// recordingNotifier keeps every notification.
type recordingNotifier struct {
	mu     sync.Mutex
	events []Notification
}

func (n *recordingNotifier) Notify(_ context.Context, note Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, note)
}

func (n *recordingNotifier) names() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.events))
	for i, e := range n.events {
		out[i] = e.Event
	}
	return out
}

// fakeScraper returns a fixed result.
type fakeScraper struct {
	result *domain.ScrapeResult
	err    error
	calls  int
}

func (s *fakeScraper) Name() string { return "fake" }

func (s *fakeScraper) Scrape(_ context.Context, _ string) (*domain.ScrapeResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

// fakeVideos reports videos for the properties in available.
type fakeVideos struct {
	available map[string]bool
}

func (v *fakeVideos) VideoURL(property string) string {
	return "https://cdn.example.com/videos/" + cdn.Slugify(property) + ".mp4"
}

func (v *fakeVideos) Exists(_ context.Context, rawURL string) (bool, error) {
	return v.available[rawURL], nil
}

// seedJob stores a draft itinerary and a job in the images phase with
// pending rows for refs.
func seedJob(b *memBackend, jobID, itineraryID string, refs ...string) {
	ctx := context.Background()
	_ = b.itineraries.Create(ctx, &domain.Itinerary{ID: itineraryID, JobID: jobID, Version: 1})
	_ = b.jobs.Create(ctx, &domain.Job{
		ID:          jobID,
		ItineraryID: itineraryID,
		Phase:       domain.PhaseImages,
		Status:      domain.JobStatusProcessing,
		Progress:    progressDraft,
		JobCounters: domain.JobCounters{TotalImages: len(refs)},
	})
	for _, ref := range refs {
		_ = b.statuses.Create(ctx, &domain.ImageStatus{
			JobID:           jobID,
			SourceReference: ref,
			Status:          domain.ImageStatePending,
			MediaType:       domain.MediaTypeImage,
			SegmentType:     string(domain.BlockStay),
			PropertyName:    "Ol Donyo Lodge",
		})
	}
}

// snapshotStatuses runs afterList once between reading the pending rows and
// returning them, so the caller works from a stale snapshot.
type snapshotStatuses struct {
	*memStatuses
	once      sync.Once
	afterList func()
}

func (s *snapshotStatuses) ListPending(ctx context.Context, jobID string, mediaType domain.MediaType, limit int) ([]domain.ImageStatus, error) {
	rows, err := s.memStatuses.ListPending(ctx, jobID, mediaType, limit)
	s.once.Do(s.afterList)
	return rows, err
}

// flakyItineraries fails every Get with err.
type flakyItineraries struct {
	ItineraryRepository
	err error
}

func (f flakyItineraries) Get(context.Context, string) (*domain.Itinerary, error) {
	return nil, f.err
}
