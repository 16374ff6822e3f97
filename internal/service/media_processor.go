package service

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"sync/atomic"
	"time"

	"github.com/timmy/itinerary-ingest/internal/domain"
	"github.com/timmy/itinerary-ingest/internal/logger"
	"github.com/timmy/itinerary-ingest/internal/metrics"
	"github.com/timmy/itinerary-ingest/internal/source/cdn"
	"github.com/timmy/itinerary-ingest/internal/storage"
	"github.com/timmy/itinerary-ingest/internal/storeclient"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"
)

// Progress milestones reported while media is processed.
const (
	progressDraft      = 20
	progressImagesSpan = 70
	progressImagesMax  = 90
	progressVideos     = 95
)

// Origin downloads media from the partner CDN.
type Origin interface {
	Download(ctx context.Context, ref string) (*cdn.Asset, error)
}

// ProcessorConfig holds configuration for the media processor.
type ProcessorConfig struct {
	ChunkSize       int
	Workers         int
	ProcessingLease time.Duration
}

// MediaProcessor handles one chunk of pending status rows per invocation:
// dedup lookup, rehosting of misses, and status row resolution. It keeps no
// state between invocations.
type MediaProcessor struct {
	stores     *Stores
	origin     Origin
	storage    storage.ObjectStorage
	classifier Classifier
	notifier   Notifier
	logger     *logger.Logger
	cfg        ProcessorConfig
	now        func() time.Time
}

// NewMediaProcessor creates a new media processor.
func NewMediaProcessor(
	stores *Stores,
	origin Origin,
	objectStorage storage.ObjectStorage,
	classifier Classifier,
	notifier Notifier,
	log *logger.Logger,
	cfg ProcessorConfig,
) *MediaProcessor {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 10
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.ProcessingLease <= 0 {
		cfg.ProcessingLease = 10 * time.Minute
	}
	if classifier == nil {
		classifier = NewRuleClassifier()
	}
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &MediaProcessor{
		stores:     stores,
		origin:     origin,
		storage:    objectStorage,
		classifier: classifier,
		notifier:   notifier,
		logger:     log,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// log returns a logger from context if available, otherwise returns the default logger
func (p *MediaProcessor) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return p.logger
}

// rowOutcome is the result of processing one status row.
type rowOutcome int

const (
	outcomeComplete rowOutcome = iota
	outcomeSkipped
	outcomeFailed
	// outcomeNone means this invocation did not resolve the row: another
	// invocation claimed it first, or the claim itself could not be written.
	outcomeNone
)

// ProcessChunk processes up to ChunkSize pending image rows, or every pending
// video row when ProcessVideosOnly is set. Rows fail independently; only
// errors that make the whole invocation meaningless are returned.
func (p *MediaProcessor) ProcessChunk(ctx context.Context, req domain.ChunkRequest) (*domain.ChunkResult, error) {
	if err := domain.Validate(req); err != nil {
		return nil, err
	}

	phase := domain.PhaseImages
	mediaType := domain.MediaTypeImage
	limit := p.cfg.ChunkSize
	if req.ProcessVideosOnly {
		phase = domain.PhaseVideos
		mediaType = domain.MediaTypeVideo
		limit = 0
	}

	ctx = logger.SetJobID(ctx, req.JobID)
	ctx = logger.SetPhase(ctx, phase)
	ctx = logger.SetChunkIndex(ctx, req.ChunkIndex)
	start := time.Now()

	result, err := p.processChunk(ctx, req, phase, mediaType, limit)
	metrics.ObservePhase(phase, time.Since(start).Seconds(), err)
	if err != nil {
		var pe *phaseError
		if errors.As(err, &pe) {
			p.failJob(ctx, req.JobID, pe)
			return nil, fmt.Errorf("%w: %w", ErrJobFailed, err)
		}
		return nil, err
	}

	logger.With(logger.Fields{
		"processed": result.Processed,
		"skipped":   result.Skipped,
		"failed":    result.Failed,
		"remaining": result.Remaining,
	}).Since(start).Info(ctx, "Chunk completed")
	return result, nil
}

func (p *MediaProcessor) processChunk(ctx context.Context, req domain.ChunkRequest, phase string, mediaType domain.MediaType, limit int) (*domain.ChunkResult, error) {
	job, err := p.stores.Jobs.Get(ctx, req.JobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", req.JobID, err)
	}

	itineraryID := req.ItineraryID
	if itineraryID == "" {
		itineraryID = job.ItineraryID
	}
	if itineraryID == "" {
		return nil, &phaseError{phase, fmt.Errorf("job %s has no itinerary: %w", req.JobID, domain.ErrInvalidInput)}
	}
	ctx = logger.SetItineraryID(ctx, itineraryID)
	if _, err := p.stores.Itineraries.Get(ctx, itineraryID); err != nil {
		if storeclient.IsNotFound(err) {
			return nil, &phaseError{phase, fmt.Errorf("itinerary %s of job %s: %w", itineraryID, req.JobID, err)}
		}
		return nil, fmt.Errorf("failed to load itinerary %s: %w", itineraryID, err)
	}

	if err := p.resetStale(ctx, req.JobID, mediaType); err != nil {
		return nil, err
	}

	rows, err := p.stores.ImageStatuses.ListPending(ctx, req.JobID, mediaType, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending rows: %w", err)
	}

	var processed, skipped, failed int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for i := range rows {
		row := rows[i]
		g.Go(func() error {
			switch p.processRow(gctx, itineraryID, &row) {
			case outcomeComplete:
				atomic.AddInt64(&processed, 1)
			case outcomeSkipped:
				atomic.AddInt64(&skipped, 1)
			case outcomeFailed:
				atomic.AddInt64(&failed, 1)
			}
			return nil
		})
	}
	_ = g.Wait()

	remaining, err := p.stores.ImageStatuses.CountOpen(ctx, req.JobID, mediaType)
	if err != nil {
		return nil, fmt.Errorf("failed to count open rows: %w", err)
	}

	result := &domain.ChunkResult{
		JobID:       req.JobID,
		ItineraryID: itineraryID,
		Remaining:   remaining,
		ChunkIndex:  req.ChunkIndex,
		Processed:   int(processed),
		Skipped:     int(skipped),
		Failed:      int(failed),
	}

	if err := p.updateJob(ctx, req.JobID, mediaType, result); err != nil {
		return nil, err
	}
	return result, nil
}

// failJob marks the job failed for errors no retry of this chunk can fix.
// Transient store errors are returned without failing the job.
func (p *MediaProcessor) failJob(ctx context.Context, jobID string, pe *phaseError) {
	if err := p.stores.Jobs.Fail(ctx, jobID, pe.phase, pe.err); err != nil {
		p.log(ctx).WithError(err).Error("Failed to mark job failed")
	}
	p.notifier.Notify(ctx, Notification{
		Event: EventJobFailed,
		JobID: jobID,
		Data:  map[string]interface{}{"phase": pe.phase, "error": pe.err.Error()},
	})
}

// resetStale returns processing rows whose lease expired to pending, so a
// crashed invocation does not strand them.
func (p *MediaProcessor) resetStale(ctx context.Context, jobID string, mediaType domain.MediaType) error {
	cutoff := p.now().Add(-p.cfg.ProcessingLease)
	stale, err := p.stores.ImageStatuses.ListStale(ctx, jobID, mediaType, cutoff)
	if err != nil {
		return fmt.Errorf("failed to list stale rows: %w", err)
	}
	for _, row := range stale {
		_, err := p.stores.ImageStatuses.Transition(ctx, row.ID, domain.ImageStateProcessing, storeclient.Patch{
			"status":     domain.ImageStatePending,
			"started_at": nil,
		})
		// a conflict means the slow invocation finished in the meantime
		if err != nil && !storeclient.IsConflict(err) {
			return fmt.Errorf("failed to reset stale row %s: %w", row.ID, err)
		}
	}
	if len(stale) > 0 {
		logger.With(logger.Fields{"cutoff": cutoff}).WithCount(len(stale)).Warn(ctx, "Reset stale processing rows")
	}
	return nil
}

// processRow claims one pending row, resolves it to a Media record and
// records the outcome on the row. Errors never escape; they are written to
// the row instead. Rows that are no longer pending are left alone.
func (p *MediaProcessor) processRow(ctx context.Context, itineraryID string, row *domain.ImageStatus) rowOutcome {
	ctx = logger.WithField(ctx, logger.FieldSourceReference, row.SourceReference)
	started := p.now()

	if _, err := p.stores.ImageStatuses.Transition(ctx, row.ID, domain.ImageStatePending, storeclient.Patch{
		"status":     domain.ImageStateProcessing,
		"started_at": started,
		"error":      "",
	}); err != nil {
		if storeclient.IsConflict(err) {
			p.log(ctx).Debug("Row already claimed by another invocation")
		} else {
			p.log(ctx).WithError(err).Warn("Failed to claim row")
		}
		return outcomeNone
	}

	media, hit, err := p.resolve(ctx, itineraryID, row)
	patch := storeclient.Patch{"completed_at": p.now()}
	outcome := outcomeComplete
	switch {
	case err != nil:
		outcome = outcomeFailed
		patch["status"] = domain.ImageStateFailed
		patch["error"] = err.Error()
		p.log(ctx).WithError(err).Warn("Media row failed")
	case hit:
		outcome = outcomeSkipped
		patch["status"] = domain.ImageStateSkipped
		patch["media_id"] = media.ID
	default:
		patch["status"] = domain.ImageStateComplete
		patch["media_id"] = media.ID
	}

	if _, updErr := p.stores.ImageStatuses.Transition(ctx, row.ID, domain.ImageStateProcessing, patch); updErr != nil {
		// left processing, or already reset and reclaimed after the lease expired
		p.log(ctx).WithError(updErr).Error("Failed to record row outcome")
		return outcomeNone
	}

	metrics.IncreaseMediaRows(string(row.MediaType), outcomeLabel(outcome))
	return outcome
}

// resolve implements the dedup protocol: look up by source reference; on a
// miss rehost and create; on a create conflict look up again and treat the
// winner's record as a hit.
func (p *MediaProcessor) resolve(ctx context.Context, itineraryID string, row *domain.ImageStatus) (*domain.Media, bool, error) {
	existing, err := p.stores.Media.FindBySourceReference(ctx, row.SourceReference)
	if err == nil {
		p.trackUsage(ctx, existing, itineraryID)
		return existing, true, nil
	}
	if !storeclient.IsNotFound(err) {
		return nil, false, fmt.Errorf("dedup lookup failed: %w", err)
	}

	media, uploaded, err := p.rehost(ctx, itineraryID, row)
	if err != nil {
		return nil, false, err
	}

	createErr := p.stores.Media.Create(ctx, media)
	if createErr == nil {
		return media, false, nil
	}
	if !storeclient.IsConflict(createErr) {
		return nil, false, fmt.Errorf("failed to create media: %w", createErr)
	}

	winner, err := p.stores.Media.FindBySourceReference(ctx, row.SourceReference)
	if err != nil {
		return nil, false, fmt.Errorf("media create conflicted and re-lookup failed: %w", errors.Join(createErr, err))
	}
	metrics.IncreaseRaceRecoveries()
	p.log(ctx).WithField("media_id", winner.ID).Info("Recovered dedup race; using existing media")

	// the winner stored its own object; ours is orphaned
	if uploaded && winner.StorageKey != media.StorageKey {
		if delErr := p.storage.Delete(ctx, media.StorageKey); delErr != nil {
			p.log(ctx).WithField("storage_key", media.StorageKey).WithError(delErr).Warn("Failed to remove orphaned upload")
		}
	}

	p.trackUsage(ctx, winner, itineraryID)
	return winner, true, nil
}

// rehost downloads the origin asset, uploads it to owned storage and builds
// the Media record. The boolean reports whether this call uploaded the object.
func (p *MediaProcessor) rehost(ctx context.Context, itineraryID string, row *domain.ImageStatus) (*domain.Media, bool, error) {
	asset, err := p.origin.Download(ctx, row.SourceReference)
	if err != nil {
		return nil, false, fmt.Errorf("download failed: %w", err)
	}

	in := &MediaInput{Data: asset.Data, ContentType: asset.ContentType, Row: row}
	if row.MediaType != domain.MediaTypeVideo {
		w, h, err := getImageDimensions(asset.Data)
		if err != nil {
			p.log(ctx).WithError(err).Warn("Failed to get image dimensions")
		}
		in.Width, in.Height = w, h
	}

	key := storage.MediaKey(itineraryID, row.SourceReference, asset.ContentType)
	exists, err := p.storage.Exists(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("failed to check storage existence: %w", err)
	}
	uploaded := false
	if !exists {
		if err := p.storage.Upload(ctx, key, bytes.NewReader(asset.Data), int64(len(asset.Data)), asset.ContentType); err != nil {
			return nil, false, fmt.Errorf("failed to upload to storage: %w", err)
		}
		uploaded = true
	} else {
		p.log(ctx).WithField("storage_key", key).Debug("Object already stored, skipping upload")
	}

	class, err := p.classifier.Classify(ctx, in)
	if err != nil || class == nil {
		p.log(ctx).WithError(err).Warn("Classification failed")
		class = &Classification{Quality: QualityFor(in.Width, in.Height, row.MediaType), ImageType: domain.ImageTypeOther}
	}

	return &domain.Media{
		SourceReference:   row.SourceReference,
		StorageKey:        key,
		URL:               p.storage.GetURL(key),
		ContentType:       asset.ContentType,
		FileSize:          int64(len(asset.Data)),
		Width:             in.Width,
		Height:            in.Height,
		MD5Hash:           calculateMD5(asset.Data),
		MediaType:         mediaTypeOf(row),
		UsedInItineraries: domain.StringArray{itineraryID},
		SourceItinerary:   itineraryID,
		SourceProperty:    row.PropertyName,
		SegmentType:       row.SegmentType,
		Country:           row.Country,
		ImageType:         class.ImageType,
		Quality:           class.Quality,
		IsHero:            class.IsHero,
		VideoContext:      row.VideoContext,
		Alt:               class.Alt,
	}, uploaded, nil
}

// trackUsage appends itineraryID to the media's usage list. Failures are
// logged and do not affect the row.
func (p *MediaProcessor) trackUsage(ctx context.Context, m *domain.Media, itineraryID string) {
	if m.UsedInItineraries.Contains(itineraryID) {
		return
	}
	used := append(domain.StringArray{}, m.UsedInItineraries...)
	used = append(used, itineraryID)
	if _, err := p.stores.Media.Update(ctx, m.ID, storeclient.Patch{"used_in_itineraries": used}); err != nil {
		p.log(ctx).WithField("media_id", m.ID).WithError(err).Warn("Failed to record media usage")
		return
	}
	m.UsedInItineraries = used
}

// updateJob increments the provisional counters and progress. Concurrent
// chunks may overwrite each other here; the finalizer reconciles.
func (p *MediaProcessor) updateJob(ctx context.Context, jobID string, mediaType domain.MediaType, result *domain.ChunkResult) error {
	job, err := p.stores.Jobs.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to reload job: %w", err)
	}

	now := p.now()
	patch := storeclient.Patch{}
	timestamps := copyTimestamps(job.PhaseTimestamps)

	if mediaType == domain.MediaTypeVideo {
		if result.Remaining == 0 {
			timestamps[domain.PhaseVideos] = now
			patch["phase"] = domain.PhaseFinalize
			patch["phase_timestamps"] = timestamps
		}
		patch["progress"] = domain.CapProgress(maxInt(job.Progress, progressVideos))
	} else {
		counters := job.JobCounters
		counters.ProcessedImages += result.Processed
		counters.SkippedImages += result.Skipped
		counters.FailedImages += result.Failed
		patch["processed_images"] = counters.ProcessedImages
		patch["skipped_images"] = counters.SkippedImages
		patch["failed_images"] = counters.FailedImages
		patch["progress"] = domain.CapProgress(maxInt(job.Progress, imageProgress(counters)))
		if result.Remaining == 0 && job.Phase == domain.PhaseImages {
			timestamps[domain.PhaseImages] = now
			patch["phase"] = domain.PhaseVideos
			patch["phase_timestamps"] = timestamps
		}
	}

	if _, err := p.stores.Jobs.Update(ctx, jobID, patch); err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}

	if mediaType == domain.MediaTypeImage && result.Remaining == 0 && job.Phase == domain.PhaseImages {
		p.notifier.Notify(ctx, Notification{
			Event:       EventImagesProcessed,
			JobID:       jobID,
			ItineraryID: result.ItineraryID,
			Data: map[string]interface{}{
				"total_images": job.TotalImages,
			},
		})
	}
	return nil
}

// imageProgress maps handled images onto the 20..90 progress band.
func imageProgress(c domain.JobCounters) int {
	if c.TotalImages <= 0 {
		return progressImagesMax
	}
	handled := c.ProcessedImages + c.SkippedImages + c.FailedImages
	p := progressDraft + progressImagesSpan*handled/c.TotalImages
	if p > progressImagesMax {
		p = progressImagesMax
	}
	return p
}

func outcomeLabel(o rowOutcome) string {
	switch o {
	case outcomeComplete:
		return metrics.OutcomeComplete
	case outcomeSkipped:
		return metrics.OutcomeSkipped
	default:
		return metrics.OutcomeFailed
	}
}

func mediaTypeOf(row *domain.ImageStatus) domain.MediaType {
	if row.MediaType == "" {
		return domain.MediaTypeImage
	}
	return row.MediaType
}

func copyTimestamps(in map[string]time.Time) map[string]time.Time {
	out := make(map[string]time.Time, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func calculateMD5(data []byte) string {
	hash := md5.Sum(data)
	return hex.EncodeToString(hash[:])
}

func getImageDimensions(data []byte) (int, int, error) {
	config, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, err
	}
	return config.Width, config.Height, nil
}
