package service

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/itinerary-ingest/internal/logger"
)

// Notification event names.
const (
	EventJobStarted      = "job.started"
	EventImagesProcessed = "images.processed"
	EventJobCompleted    = "job.completed"
	EventJobFailed       = "job.failed"
)

// Notification is a one-way pipeline signal.
type Notification struct {
	Event       string                 `json:"event"`
	JobID       string                 `json:"job_id"`
	ItineraryID string                 `json:"itinerary_id,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
	SentAt      time.Time              `json:"sent_at"`
}

// Notifier delivers notifications. Delivery failures never reach the caller.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// LogNotifier only logs notifications. Used when no webhook is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, n Notification) {
	logger.With(logger.Fields{
		"event":                 n.Event,
		logger.FieldJobID:       n.JobID,
		logger.FieldItineraryID: n.ItineraryID,
	}).Info(ctx, "Pipeline notification")
}

// WebhookNotifier posts notifications as JSON to a webhook.
type WebhookNotifier struct {
	client *resty.Client
	url    string
}

// NewWebhookNotifier creates a webhook notifier.
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &WebhookNotifier{client: client, url: url}
}

// Notify posts n and logs any failure.
func (w *WebhookNotifier) Notify(ctx context.Context, n Notification) {
	if n.SentAt.IsZero() {
		n.SentAt = time.Now().UTC()
	}
	resp, err := w.client.R().SetContext(ctx).SetBody(n).Post(w.url)
	if err != nil {
		logger.CtxWarn(ctx, "Notification %s for job %s failed: %v", n.Event, n.JobID, err)
		return
	}
	if resp.IsError() {
		logger.CtxWarn(ctx, "Notification %s for job %s rejected with status %d", n.Event, n.JobID, resp.StatusCode())
		return
	}
	logger.CtxDebug(ctx, "Notification %s delivered", n.Event)
}

// NewNotifier returns a webhook notifier when url is set, otherwise a log notifier.
func NewNotifier(url string, timeout time.Duration) Notifier {
	if url == "" {
		return LogNotifier{}
	}
	return NewWebhookNotifier(url, timeout)
}
