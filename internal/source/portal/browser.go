package portal

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/timmy/itinerary-ingest/internal/logger"
)

// Response is one network response observed while the page loaded.
type Response struct {
	URL         string `json:"url"`
	Status      int64  `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"-"`
}

// PageLoad is everything a single navigation produced.
type PageLoad struct {
	HTML      string
	Responses []Response
}

// Browser loads a page and records its network responses.
type Browser interface {
	Load(ctx context.Context, pageURL string, settle time.Duration) (*PageLoad, error)
}

// ChromeBrowser drives a headless Chrome through chromedp.
type ChromeBrowser struct {
	execPath string
	timeout  time.Duration
}

// NewChromeBrowser creates a headless browser. An empty execPath lets
// chromedp locate Chrome on the system.
func NewChromeBrowser(execPath string, timeout time.Duration) *ChromeBrowser {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ChromeBrowser{execPath: execPath, timeout: timeout}
}

// Load navigates to pageURL, waits for the body and the settle delay, and
// returns the rendered HTML with every response observed. JSON bodies are
// fetched as soon as their loading finishes.
func (b *ChromeBrowser) Load(ctx context.Context, pageURL string, settle time.Duration) (*PageLoad, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if b.execPath != "" {
		opts = append(opts, chromedp.ExecPath(b.execPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	// An empty Run starts the browser; failing here means Chrome is unusable.
	if err := chromedp.Run(browserCtx); err != nil {
		return nil, &LaunchError{Err: err}
	}

	runCtx, cancelRun := context.WithTimeout(browserCtx, b.timeout)
	defer cancelRun()

	rec := newRecorder()
	chromedp.ListenTarget(runCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventResponseReceived:
			rec.received(e)
		case *network.EventLoadingFinished:
			if rec.startFetch(e.RequestID) {
				go func(id network.RequestID) {
					defer rec.wg.Done()
					c := chromedp.FromContext(runCtx)
					body, err := network.GetResponseBody(id).Do(cdp.WithExecutor(runCtx, c.Target))
					if err != nil {
						logger.CtxDebug(ctx, "Failed to read response body %s: %v", id, err)
						return
					}
					rec.setBody(id, body)
				}(e.RequestID)
			}
		}
	})

	var html string
	err := chromedp.Run(runCtx,
		network.Enable(),
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body"),
		chromedp.Sleep(settle),
		chromedp.OuterHTML("html", &html),
	)
	rec.close()
	if err != nil {
		return &PageLoad{HTML: html, Responses: rec.responses()}, fmt.Errorf("navigation failed: %w", err)
	}

	return &PageLoad{HTML: html, Responses: rec.responses()}, nil
}

// recorder collects responses in arrival order, keyed by request id.
type recorder struct {
	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
	order  []network.RequestID
	byID   map[network.RequestID]*Response
}

func newRecorder() *recorder {
	return &recorder{byID: make(map[network.RequestID]*Response)}
}

func (r *recorder) received(e *network.EventResponseReceived) {
	if e.Response == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[e.RequestID]; !ok {
		r.order = append(r.order, e.RequestID)
	}
	r.byID[e.RequestID] = &Response{
		URL:         e.Response.URL,
		Status:      e.Response.Status,
		ContentType: e.Response.MimeType,
	}
}

// startFetch registers a body fetch for JSON responses.
func (r *recorder) startFetch(id network.RequestID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	resp, ok := r.byID[id]
	if r.closed || !ok || !strings.Contains(resp.ContentType, "json") {
		return false
	}
	r.wg.Add(1)
	return true
}

// close stops new fetches and waits for the in-flight ones.
func (r *recorder) close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *recorder) setBody(id network.RequestID, body []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if resp, ok := r.byID[id]; ok {
		resp.Body = body
	}
}

func (r *recorder) responses() []Response {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Response, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.byID[id])
	}
	return out
}
