package staging

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/timmy/itinerary-ingest/internal/domain"
	"github.com/timmy/itinerary-ingest/internal/logger"
	"github.com/timmy/itinerary-ingest/internal/source"
)

const (
	// ManifestFileName is the JSONL manifest mapping source URLs to capture directories.
	ManifestFileName = "manifest.jsonl"
	// MetadataFileName holds the captured itinerary metadata response.
	MetadataFileName = "metadata.json"
	// ContentFileName holds the captured rendered content response.
	ContentFileName = "content.json"
	// PageFileName holds the rendered page HTML (optional).
	PageFileName = "page.html"
)

// ErrCaptureNotFound is returned when no staged capture exists for a URL.
var ErrCaptureNotFound = errors.New("staged capture not found")

// ManifestItem represents a line in manifest.jsonl.
type ManifestItem struct {
	SourceURL  string `json:"source_url"`
	Dir        string `json:"dir"`
	CapturedAt string `json:"captured_at"`
}

// Adapter replays captures saved on disk through the same assembly path the
// browser scraper uses. It implements source.Scraper.
type Adapter struct {
	basePath  string
	priceUnit source.PriceUnit

	mu       sync.Mutex
	manifest map[string]string
	loaded   bool
}

// NewAdapter creates a new staging adapter.
// Parameters:
//   - basePath: base path to the staging directory.
//   - priceUnit: unit policy applied to staged prices.
//
// Returns:
//   - *Adapter: initialized staging adapter.
func NewAdapter(basePath string, priceUnit source.PriceUnit) *Adapter {
	if priceUnit == "" {
		priceUnit = source.PriceUnitAuto
	}
	return &Adapter{
		basePath:  basePath,
		priceUnit: priceUnit,
	}
}

// Name returns the scraper identifier.
func (a *Adapter) Name() string {
	return "staging:" + filepath.Base(a.basePath)
}

// Scrape loads the staged capture for sourceURL. The capture directory comes
// from the manifest, falling back to the last path segment of the URL.
func (a *Adapter) Scrape(ctx context.Context, sourceURL string) (*domain.ScrapeResult, error) {
	ctx = logger.SetComponent(logger.SetSource(ctx, sourceURL), "staging")

	dir, err := a.resolve(sourceURL)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(filepath.Join(dir, ContentFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s has no %s", ErrCaptureNotFound, dir, ContentFileName)
		}
		return nil, fmt.Errorf("failed to read content: %w", err)
	}

	metadata, err := readOptional(filepath.Join(dir, MetadataFileName))
	if err != nil {
		return nil, err
	}
	html, err := readOptional(filepath.Join(dir, PageFileName))
	if err != nil {
		return nil, err
	}

	logger.CtxInfo(ctx, "Replaying staged capture from %s", dir)
	return source.Assemble(ctx, &source.Capture{
		SourceURL: sourceURL,
		Metadata:  metadata,
		Content:   content,
		HTML:      string(html),
	}, a.priceUnit)
}

// Save writes a capture into the staging directory and records it in the
// manifest, so a later run can replay it without a browser.
func (a *Adapter) Save(ctx context.Context, result *domain.ScrapeResult, html string) (string, error) {
	name := result.Itinerary.ID
	if name == "" {
		name = source.IDFromURL(result.SourceURL)
	}
	if name == "" {
		return "", fmt.Errorf("cannot derive a staging directory for %s", result.SourceURL)
	}

	dir := filepath.Join(a.basePath, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}

	files := map[string][]byte{
		ContentFileName:  result.Content,
		MetadataFileName: result.Metadata,
	}
	if html != "" {
		files[PageFileName] = []byte(html)
	}
	for fname, data := range files {
		if len(data) == 0 {
			continue
		}
		if err := os.WriteFile(filepath.Join(dir, fname), data, 0o644); err != nil {
			return "", fmt.Errorf("failed to write %s: %w", fname, err)
		}
	}

	line, err := json.Marshal(ManifestItem{
		SourceURL:  result.SourceURL,
		Dir:        name,
		CapturedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return "", err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := os.OpenFile(filepath.Join(a.basePath, ManifestFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return "", fmt.Errorf("failed to append manifest: %w", err)
	}
	if a.loaded {
		a.manifest[result.SourceURL] = name
	}

	logger.CtxInfo(ctx, "Saved capture to %s", dir)
	return dir, nil
}

func (a *Adapter) resolve(sourceURL string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.loaded {
		if err := a.loadManifest(); err != nil {
			return "", fmt.Errorf("failed to load staging manifest: %w", err)
		}
		a.loaded = true
	}

	name, ok := a.manifest[sourceURL]
	if !ok {
		name = source.IDFromURL(sourceURL)
	}
	if name == "" {
		return "", fmt.Errorf("%w: %s", ErrCaptureNotFound, sourceURL)
	}

	dir := filepath.Join(a.basePath, filepath.Clean("/" + name))
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrCaptureNotFound, sourceURL)
	}
	return dir, nil
}

// loadManifest reads manifest.jsonl; a missing manifest is not an error.
// Later lines override earlier ones for the same URL.
func (a *Adapter) loadManifest() error {
	a.manifest = make(map[string]string)

	file, err := os.Open(filepath.Join(a.basePath, ManifestFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var item ManifestItem
		if err := json.Unmarshal([]byte(line), &item); err != nil {
			// Skip malformed lines
			continue
		}
		if item.SourceURL != "" && item.Dir != "" {
			a.manifest[item.SourceURL] = item.Dir
		}
	}
	return scanner.Err()
}

// ListCaptures lists the staged capture directories under basePath.
func ListCaptures(basePath string) ([]string, error) {
	entries, err := os.ReadDir(basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}

	var dirs []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(basePath, entry.Name(), ContentFileName)); err == nil {
			dirs = append(dirs, entry.Name())
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

func readOptional(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	return data, nil
}
