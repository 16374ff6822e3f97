package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/itinerary-ingest/internal/domain"
	"github.com/timmy/itinerary-ingest/internal/logger"
	"github.com/timmy/itinerary-ingest/internal/metrics"
	"github.com/timmy/itinerary-ingest/internal/source"
	"github.com/timmy/itinerary-ingest/internal/storeclient"
	"gorm.io/datatypes"
)

// Progress reported after each intake step.
const (
	progressScraped = 10
)

// VideoProber finds optional property videos on the origin CDN.
type VideoProber interface {
	VideoURL(propertyName string) string
	Exists(ctx context.Context, rawURL string) (bool, error)
}

// IntakeService scrapes a portal URL, writes the draft itinerary and seeds
// the media status log.
type IntakeService struct {
	stores   *Stores
	scraper  source.Scraper
	videos   VideoProber
	notifier Notifier
	logger   *logger.Logger
	currency string
	now      func() time.Time
}

// NewIntakeService creates a new intake service. videos may be nil to skip
// video discovery.
func NewIntakeService(
	stores *Stores,
	scraper source.Scraper,
	videos VideoProber,
	notifier Notifier,
	log *logger.Logger,
	currency string,
) *IntakeService {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &IntakeService{
		stores:   stores,
		scraper:  scraper,
		videos:   videos,
		notifier: notifier,
		logger:   log,
		currency: currency,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// log returns a logger from context if available, otherwise returns the default logger
func (s *IntakeService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// ErrJobFailed wraps errors after which the phase already moved the job to
// the failed state.
var ErrJobFailed = errors.New("job marked failed")

// phaseError attributes a failure to the phase it happened in.
type phaseError struct {
	phase string
	err   error
}

func (e *phaseError) Error() string { return e.err.Error() }
func (e *phaseError) Unwrap() error { return e.err }

// Intake runs scrape, transform, draft and seeding for one URL. Any failure
// marks the job failed with the phase it happened in.
func (s *IntakeService) Intake(ctx context.Context, req domain.IntakeRequest) (*domain.IntakeResult, error) {
	if err := domain.Validate(req); err != nil {
		return nil, err
	}
	if req.Mode == "" {
		req.Mode = domain.JobModeCreate
	}
	if req.JobID == "" {
		req.JobID = uuid.NewString()
	}

	ctx = logger.SetJobID(ctx, req.JobID)
	ctx = logger.SetPhase(ctx, domain.PhaseIntake)
	start := time.Now()

	job, err := s.ensureJob(ctx, req)
	if err != nil {
		metrics.ObservePhase(domain.PhaseIntake, time.Since(start).Seconds(), err)
		return nil, err
	}

	result, err := s.run(ctx, job)
	metrics.ObservePhase(domain.PhaseIntake, time.Since(start).Seconds(), err)
	if err != nil {
		phase := domain.PhaseIntake
		var pe *phaseError
		if errors.As(err, &pe) {
			phase = pe.phase
		}
		if failErr := s.stores.Jobs.Fail(ctx, job.ID, phase, err); failErr != nil {
			s.log(ctx).WithError(failErr).Error("Failed to mark job failed")
		}
		s.notifier.Notify(ctx, Notification{
			Event: EventJobFailed,
			JobID: job.ID,
			Data:  map[string]interface{}{"phase": phase, "error": err.Error()},
		})
		return nil, err
	}

	logger.With(logger.Fields{
		logger.FieldItineraryID: result.ItineraryID,
		"total_images":          result.TotalImages,
		"total_videos":          result.TotalVideos,
	}).Since(start).Info(ctx, "Intake completed")
	return result, nil
}

// ensureJob loads the job or creates it, then marks it processing.
func (s *IntakeService) ensureJob(ctx context.Context, req domain.IntakeRequest) (*domain.Job, error) {
	now := s.now()
	job, err := s.stores.Jobs.Get(ctx, req.JobID)
	switch {
	case err == nil:
	case storeclient.IsNotFound(err):
		job = &domain.Job{
			ID:              req.JobID,
			SourceURL:       req.SourceURL,
			Mode:            req.Mode,
			Phase:           domain.PhaseIntake,
			Status:          domain.JobStatusPending,
			PhaseTimestamps: map[string]time.Time{},
			StartedAt:       &now,
		}
		if err := s.stores.Jobs.Create(ctx, job); err != nil && !storeclient.IsConflict(err) {
			return nil, fmt.Errorf("failed to create job: %w", err)
		}
	default:
		return nil, fmt.Errorf("failed to load job %s: %w", req.JobID, err)
	}

	patch := storeclient.Patch{
		"status":        domain.JobStatusProcessing,
		"phase":         domain.PhaseScrape,
		"error_message": "",
		"error_phase":   "",
	}
	if job.StartedAt == nil {
		patch["started_at"] = now
	}
	updated, err := s.stores.Jobs.Update(ctx, job.ID, patch)
	if err != nil {
		return nil, fmt.Errorf("failed to start job: %w", err)
	}
	if updated.SourceURL == "" {
		updated.SourceURL = req.SourceURL
	}
	if updated.Mode == "" {
		updated.Mode = req.Mode
	}
	return updated, nil
}

func (s *IntakeService) run(ctx context.Context, job *domain.Job) (*domain.IntakeResult, error) {
	timestamps := copyTimestamps(job.PhaseTimestamps)

	ctx = logger.SetPhase(ctx, domain.PhaseScrape)
	res, err := s.scraper.Scrape(ctx, job.SourceURL)
	if err != nil {
		return nil, &phaseError{domain.PhaseScrape, fmt.Errorf("scrape failed: %w", err)}
	}
	timestamps[domain.PhaseScrape] = s.now()
	if _, err := s.stores.Jobs.Update(ctx, job.ID, storeclient.Patch{
		"phase":            domain.PhaseTransform,
		"progress":         progressScraped,
		"phase_timestamps": timestamps,
	}); err != nil {
		return nil, &phaseError{domain.PhaseScrape, fmt.Errorf("failed to update job: %w", err)}
	}

	ctx = logger.SetPhase(ctx, domain.PhaseTransform)
	draft := Transform(ctx, res)
	timestamps[domain.PhaseTransform] = s.now()

	ctx = logger.SetPhase(ctx, domain.PhaseDraft)
	itinerary, err := s.writeDraft(ctx, job, res, draft)
	if err != nil {
		return nil, &phaseError{domain.PhaseDraft, err}
	}
	ctx = logger.SetItineraryID(ctx, itinerary.ID)

	totalImages, err := s.seedImages(ctx, job.ID, res.MediaReferences, draft)
	if err != nil {
		return nil, &phaseError{domain.PhaseDraft, err}
	}
	totalVideos := s.seedVideos(ctx, job.ID, draft)
	timestamps[domain.PhaseDraft] = s.now()

	if _, err := s.stores.Jobs.Update(ctx, job.ID, storeclient.Patch{
		"itinerary_id":     itinerary.ID,
		"total_images":     totalImages,
		"total_videos":     totalVideos,
		"phase":            domain.PhaseImages,
		"progress":         progressDraft,
		"phase_timestamps": timestamps,
	}); err != nil {
		return nil, &phaseError{domain.PhaseDraft, fmt.Errorf("failed to update job: %w", err)}
	}

	s.notifier.Notify(ctx, Notification{
		Event:       EventJobStarted,
		JobID:       job.ID,
		ItineraryID: itinerary.ID,
		Data: map[string]interface{}{
			"source_url":   job.SourceURL,
			"total_images": totalImages,
			"total_videos": totalVideos,
		},
	})

	return &domain.IntakeResult{
		JobID:       job.ID,
		ItineraryID: itinerary.ID,
		TotalImages: totalImages,
		TotalVideos: totalVideos,
	}, nil
}

// writeDraft creates or updates the itinerary document for the job.
func (s *IntakeService) writeDraft(ctx context.Context, job *domain.Job, res *domain.ScrapeResult, draft *Draft) (*domain.Itinerary, error) {
	raw, err := rawPayload(res)
	if err != nil {
		return nil, err
	}

	currency := res.Itinerary.Currency
	if currency == "" {
		currency = s.currency
	}
	content := storeclient.Patch{
		"title":            draft.Title,
		"slug":             draft.Slug,
		"source_url":       res.SourceURL,
		"job_id":           job.ID,
		"status":           domain.ItineraryStatusDraft,
		"start_date":       draft.StartDate,
		"end_date":         draft.EndDate,
		"nights":           draft.Nights,
		"price_minor":      res.PriceMinor,
		"currency":         strings.ToUpper(currency),
		"countries":        draft.Countries,
		"highlights":       draft.Highlights,
		"days":             draft.Days,
		"meta_title":       draft.MetaTitle,
		"meta_description": draft.MetaDescription,
		"faqs":             draft.FAQs,
		"raw_payload":      raw,
	}

	if job.Mode == domain.JobModeUpdate {
		existing, err := s.stores.Itineraries.FindBySourceItineraryID(ctx, res.Itinerary.ID)
		switch {
		case err == nil:
			return s.updateDraft(ctx, existing, content)
		case !storeclient.IsNotFound(err):
			return nil, fmt.Errorf("failed to find itinerary %s: %w", res.Itinerary.ID, err)
		}
		s.log(ctx).WithField("source_itinerary_id", res.Itinerary.ID).Warn("No itinerary to update, creating one")
	}

	// a retried intake reuses the itinerary it already created
	if existing, err := s.stores.Itineraries.FindByJobID(ctx, job.ID); err == nil {
		updated, err := s.stores.Itineraries.Update(ctx, existing.ID, content)
		if err != nil {
			return nil, fmt.Errorf("failed to update itinerary: %w", err)
		}
		return updated, nil
	} else if !storeclient.IsNotFound(err) {
		return nil, fmt.Errorf("failed to find itinerary for job: %w", err)
	}

	it := &domain.Itinerary{
		Title:             draft.Title,
		Slug:              draft.Slug,
		SourceURL:         res.SourceURL,
		SourceItineraryID: res.Itinerary.ID,
		JobID:             job.ID,
		Status:            domain.ItineraryStatusDraft,
		StartDate:         draft.StartDate,
		EndDate:           draft.EndDate,
		Nights:            draft.Nights,
		PriceMinor:        res.PriceMinor,
		Currency:          strings.ToUpper(currency),
		Countries:         draft.Countries,
		Highlights:        draft.Highlights,
		Days:              draft.Days,
		MetaTitle:         draft.MetaTitle,
		MetaDescription:   draft.MetaDescription,
		FAQs:              draft.FAQs,
		Version:           1,
		PreviousVersions:  []domain.ItinerarySnapshot{},
		RawPayload:        raw,
	}
	if err := s.stores.Itineraries.Create(ctx, it); err != nil {
		return nil, fmt.Errorf("failed to create itinerary: %w", err)
	}
	s.log(ctx).WithField(logger.FieldItineraryID, it.ID).Info("Created draft itinerary")
	return it, nil
}

// updateDraft snapshots the current version and overwrites the content. A
// locked hero selection survives.
func (s *IntakeService) updateDraft(ctx context.Context, existing *domain.Itinerary, content storeclient.Patch) (*domain.Itinerary, error) {
	existing.PushVersion(s.now())
	content["version"] = existing.Version
	content["previous_versions"] = existing.PreviousVersions
	if !existing.HeroLocked {
		content["hero_image_id"] = ""
		content["hero_video_id"] = ""
	}

	updated, err := s.stores.Itineraries.Update(ctx, existing.ID, content)
	if err != nil {
		return nil, fmt.Errorf("failed to update itinerary %s: %w", existing.ID, err)
	}
	s.log(ctx).WithFields(logger.Fields{
		logger.FieldItineraryID: existing.ID,
		"version":               existing.Version,
		"hero_locked":           existing.HeroLocked,
	}).Info("Updated itinerary to new version")
	return updated, nil
}

// seedImages writes one pending row per discovered image reference. Rows
// that already exist count as seeded.
func (s *IntakeService) seedImages(ctx context.Context, jobID string, refs []domain.MediaReference, draft *Draft) (int, error) {
	seeded := 0
	for _, ref := range refs {
		row := &domain.ImageStatus{
			JobID:           jobID,
			SourceReference: ref.SourceReference,
			Status:          domain.ImageStatePending,
			MediaType:       domain.MediaTypeImage,
		}
		if sc, ok := draft.Contexts[ref.SegmentIndex]; ok {
			row.SegmentType = sc.SegmentType
			row.PropertyName = sc.PropertyName
			row.SegmentTitle = sc.SegmentTitle
			row.DayIndex = sc.DayIndex
			row.Country = sc.Country
		}
		if err := s.stores.ImageStatuses.Create(ctx, row); err != nil && !storeclient.IsConflict(err) {
			return seeded, fmt.Errorf("failed to seed status row for %s: %w", ref.SourceReference, err)
		}
		seeded++
	}
	logger.With(logger.Fields{}).WithCount(seeded).Info(ctx, "Seeded image status rows")
	return seeded, nil
}

// seedVideos probes each stay property for a conventional video and seeds a
// row for every one found. Probe failures skip the property.
func (s *IntakeService) seedVideos(ctx context.Context, jobID string, draft *Draft) int {
	if s.videos == nil {
		return 0
	}

	seen := make(map[string]bool)
	seeded := 0
	for _, day := range draft.Days {
		for _, seg := range day.Segments {
			if seg.BlockType != domain.BlockStay || seg.AccommodationName == "" || seen[seg.AccommodationName] {
				continue
			}
			first := len(seen) == 0
			seen[seg.AccommodationName] = true

			videoURL := s.videos.VideoURL(seg.AccommodationName)
			if videoURL == "" {
				continue
			}
			ok, err := s.videos.Exists(ctx, videoURL)
			if err != nil {
				s.log(ctx).WithField("property", seg.AccommodationName).WithError(err).Warn("Video probe failed")
				continue
			}
			if !ok {
				continue
			}

			videoContext := domain.VideoContextProperty
			if first {
				videoContext = domain.VideoContextHero
			}
			row := &domain.ImageStatus{
				JobID:           jobID,
				SourceReference: videoURL,
				Status:          domain.ImageStatePending,
				MediaType:       domain.MediaTypeVideo,
				SegmentType:     string(domain.BlockStay),
				PropertyName:    seg.AccommodationName,
				SegmentTitle:    seg.Title,
				DayIndex:        day.DayNumber,
				Country:         seg.Country,
				VideoContext:    videoContext,
			}
			if err := s.stores.ImageStatuses.Create(ctx, row); err != nil && !storeclient.IsConflict(err) {
				s.log(ctx).WithField("property", seg.AccommodationName).WithError(err).Warn("Failed to seed video row")
				continue
			}
			seeded++
		}
	}
	return seeded
}

func rawPayload(res *domain.ScrapeResult) (datatypes.JSON, error) {
	payload := map[string]json.RawMessage{}
	if len(res.Metadata) > 0 {
		payload["metadata"] = res.Metadata
	}
	if len(res.Content) > 0 {
		payload["content"] = res.Content
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode raw payload: %w", err)
	}
	return datatypes.JSON(b), nil
}
