package cdn

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/itinerary-ingest/internal/logger"
)

// Config holds origin CDN settings.
type Config struct {
	BaseURL         string
	VideoURLPattern string // {slug} and {name} are substituted with the property name
	Timeout         time.Duration
	MaxBytes        int64
}

// Asset is a downloaded origin object.
type Asset struct {
	URL         string
	Data        []byte
	ContentType string
}

// StatusError is returned for a non-2xx download response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("origin returned status %d for %s", e.StatusCode, e.URL)
}

// Client fetches media from the origin CDN.
type Client struct {
	http         *resty.Client
	baseURL      string
	videoPattern string
}

// NewClient creates a new origin CDN client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return !errors.Is(err, resty.ErrResponseBodyTooLarge) &&
					!errors.Is(err, context.Canceled) &&
					!errors.Is(err, context.DeadlineExceeded)
			}
			return r.StatusCode() >= 500 || r.StatusCode() == http.StatusTooManyRequests
		})
	if cfg.MaxBytes > 0 {
		client.SetResponseBodyLimit(int(cfg.MaxBytes))
	}

	return &Client{
		http:         client,
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		videoPattern: cfg.VideoURLPattern,
	}
}

// URL resolves a source reference to an absolute origin URL. Absolute
// references are returned unchanged.
func (c *Client) URL(ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	parts := strings.Split(strings.TrimPrefix(ref, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return c.baseURL + "/" + strings.Join(parts, "/")
}

// Download fetches the object behind a source reference.
func (c *Client) Download(ctx context.Context, ref string) (*Asset, error) {
	target := c.URL(ref)
	start := time.Now()

	resp, err := c.http.R().SetContext(ctx).Get(target)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", target, err)
	}
	if !resp.IsSuccess() {
		return nil, &StatusError{URL: target, StatusCode: resp.StatusCode()}
	}

	data := resp.Body()
	contentType := resp.Header().Get("Content-Type")
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}
	contentType = strings.TrimSpace(contentType)
	if contentType == "" || contentType == "application/octet-stream" || contentType == "binary/octet-stream" {
		contentType = http.DetectContentType(data)
	}

	logger.With(logger.Fields{
		"url":          target,
		"content_type": contentType,
	}).WithSize(int64(len(data))).Since(start).Debug(ctx, "Downloaded origin asset")

	return &Asset{URL: target, Data: data, ContentType: contentType}, nil
}

// Exists probes rawURL with HEAD. Any non-2xx status means the object does
// not exist; only transport failures are errors.
func (c *Client) Exists(ctx context.Context, rawURL string) (bool, error) {
	resp, err := c.http.R().SetContext(ctx).Head(rawURL)
	if err != nil {
		return false, fmt.Errorf("failed to probe %s: %w", rawURL, err)
	}
	return resp.IsSuccess(), nil
}

// VideoURL builds the conventional video URL for a property, or "" when no
// pattern is configured.
func (c *Client) VideoURL(propertyName string) string {
	if c.videoPattern == "" || strings.TrimSpace(propertyName) == "" {
		return ""
	}
	r := strings.NewReplacer(
		"{slug}", Slugify(propertyName),
		"{name}", url.PathEscape(strings.TrimSpace(propertyName)),
	)
	return r.Replace(c.videoPattern)
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases s and joins its alphanumeric runs with hyphens.
func Slugify(s string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "-"), "-")
}
