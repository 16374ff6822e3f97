package storeclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/itinerary-ingest/internal/domain"
	"github.com/timmy/itinerary-ingest/internal/logger"
)

// Config holds configuration for the document store client.
type Config struct {
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	RetryCount   int
	RetryWait    time.Duration
	RetryMaxWait time.Duration
}

// Client is a retrying HTTP client for the document store REST contract.
// Network errors and 5xx responses are retried with jittered exponential
// backoff; 4xx responses are returned immediately as *APIError.
type Client struct {
	http *resty.Client
}

// APIError is a non-2xx response from the document store.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("store %s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// Is maps status codes onto domain sentinels so callers can use errors.Is.
func (e *APIError) Is(target error) bool {
	switch target {
	case domain.ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case domain.ErrConflict:
		return e.StatusCode == http.StatusConflict
	case domain.ErrInvalidInput:
		return e.StatusCode == http.StatusBadRequest || e.StatusCode == http.StatusUnprocessableEntity
	}
	return false
}

// IsRetryable reports whether an HTTP status warrants a retry.
func IsRetryable(statusCode int) bool {
	return statusCode == 0 || statusCode == http.StatusTooManyRequests || statusCode >= 500
}

type errorBody struct {
	Error string `json:"error"`
}

// New creates a new document store client.
func New(cfg Config) *Client {
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/"))
	client.SetHeader("Content-Type", "application/json")
	client.SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client.SetTimeout(timeout)

	if cfg.RetryCount > 0 {
		client.SetRetryCount(cfg.RetryCount)
	}
	if cfg.RetryWait > 0 {
		client.SetRetryWaitTime(cfg.RetryWait)
	}
	if cfg.RetryMaxWait > 0 {
		client.SetRetryMaxWaitTime(cfg.RetryMaxWait)
	}
	client.AddRetryCondition(func(resp *resty.Response, err error) bool {
		if err != nil {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}
		return resp != nil && IsRetryable(resp.StatusCode())
	})
	client.AddRetryHook(func(resp *resty.Response, err error) {
		fields := logger.Fields{logger.FieldComponent: "storeclient"}
		if resp != nil && resp.Request != nil {
			fields["method"] = resp.Request.Method
			fields["url"] = resp.Request.URL
			fields[logger.FieldStatus] = resp.StatusCode()
			fields[logger.FieldAttempt] = resp.Request.Attempt
		}
		var ctx context.Context
		if resp != nil && resp.Request != nil {
			ctx = resp.Request.Context()
		}
		entry := logger.With(fields)
		if err != nil {
			entry = entry.WithField("error", err.Error())
		}
		entry.Warn(ctx, "Retrying document store request")
	})

	return &Client{http: client}
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}, params url.Values) error {
	var apiErr errorBody
	req := c.http.R().
		SetContext(ctx).
		ExpectContentType("application/json").
		SetError(&apiErr)
	if out != nil {
		req.SetResult(out)
	}
	if body != nil {
		req.SetBody(body)
	}
	if len(params) > 0 {
		req.SetQueryParamsFromValues(params)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("store %s %s: %w", method, path, err)
	}
	if resp.IsError() {
		msg := apiErr.Error
		if msg == "" {
			msg = strings.TrimSpace(string(resp.Body()))
		}
		return &APIError{
			StatusCode: resp.StatusCode(),
			Method:     method,
			Path:       path,
			Message:    msg,
		}
	}
	return nil
}

func collectionPath(collection string) string {
	return "/api/" + collection
}

func documentPath(collection, id string) string {
	return "/api/" + collection + "/" + url.PathEscape(id)
}

// Query builds collection filter parameters.
type Query struct {
	values url.Values
}

// NewQuery creates an empty query.
func NewQuery() *Query {
	return &Query{values: url.Values{}}
}

// Eq adds an equality filter.
func (q *Query) Eq(field string, value interface{}) *Query {
	q.values.Set(field, formatValue(value))
	return q
}

// Ne adds an inequality filter.
func (q *Query) Ne(field string, value interface{}) *Query {
	q.values.Set(field+"__ne", formatValue(value))
	return q
}

// In adds a membership filter.
func (q *Query) In(field string, values ...string) *Query {
	q.values.Set(field+"__in", strings.Join(values, ","))
	return q
}

// Before adds a filter on a time field strictly earlier than t.
func (q *Query) Before(field string, t time.Time) *Query {
	q.values.Set(field+"__lt", t.UTC().Format(time.RFC3339Nano))
	return q
}

// Sort orders by field; prefix with "-" for descending.
func (q *Query) Sort(field string) *Query {
	q.values.Set("sort", field)
	return q
}

// Limit sets the page size.
func (q *Query) Limit(n int) *Query {
	q.values.Set("limit", strconv.Itoa(n))
	return q
}

// Page selects a 1-based page.
func (q *Query) Page(n int) *Query {
	q.values.Set("page", strconv.Itoa(n))
	return q
}

func (q *Query) clone() *Query {
	out := NewQuery()
	if q == nil {
		return out
	}
	for k, v := range q.values {
		out.values[k] = append([]string(nil), v...)
	}
	return out
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// Patch is a partial document update.
type Patch map[string]interface{}

// Find returns one page of documents.
func Find[T any](ctx context.Context, c *Client, collection string, q *Query) (*domain.Page[T], error) {
	var page domain.Page[T]
	var params url.Values
	if q != nil {
		params = q.values
	}
	if err := c.do(ctx, http.MethodGet, collectionPath(collection), nil, &page, params); err != nil {
		return nil, err
	}
	return &page, nil
}

// FindAll follows pagination and returns every matching document.
func FindAll[T any](ctx context.Context, c *Client, collection string, q *Query) ([]T, error) {
	base := q.clone()
	if base.values.Get("limit") == "" {
		base.Limit(500)
	}

	var all []T
	for page := 1; ; page++ {
		res, err := Find[T](ctx, c, collection, base.clone().Page(page))
		if err != nil {
			return nil, err
		}
		all = append(all, res.Docs...)
		if !res.HasNextPage || len(res.Docs) == 0 {
			return all, nil
		}
	}
}

// Count returns the number of matching documents without fetching them.
func Count(ctx context.Context, c *Client, collection string, q *Query) (int, error) {
	res, err := Find[struct{}](ctx, c, collection, q.clone().Limit(1))
	if err != nil {
		return 0, err
	}
	return int(res.TotalDocs), nil
}

// GetByID fetches one document.
func GetByID[T any](ctx context.Context, c *Client, collection, id string) (*T, error) {
	var doc T
	if err := c.do(ctx, http.MethodGet, documentPath(collection, id), nil, &doc, nil); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Create posts a new document and decodes the stored version into doc.
func Create[T any](ctx context.Context, c *Client, collection string, doc *T) error {
	return c.do(ctx, http.MethodPost, collectionPath(collection), doc, doc, nil)
}

// Update patches a document and returns the stored version.
func Update[T any](ctx context.Context, c *Client, collection, id string, patch Patch) (*T, error) {
	return UpdateWhere[T](ctx, c, collection, id, patch, nil)
}

// UpdateWhere patches a document only if it still matches where. A document
// that no longer matches yields an error satisfying IsConflict.
func UpdateWhere[T any](ctx context.Context, c *Client, collection, id string, patch Patch, where *Query) (*T, error) {
	var params url.Values
	if where != nil {
		params = where.values
	}
	var doc T
	if err := c.do(ctx, http.MethodPatch, documentPath(collection, id), patch, &doc, params); err != nil {
		return nil, err
	}
	return &doc, nil
}
