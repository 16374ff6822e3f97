package source

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/timmy/itinerary-ingest/internal/domain"
)

// Media key names collected by the content visitor.
const (
	keyS3Key       = "s3Key"
	keyImages      = "images"
	keyHeaderImage = "headerImage"
	keySegments    = "segments"

	// subtree holding third-party agency branding; never ingested
	keyAgency = "agency"
)

var (
	// ErrNoSegments is returned when the captured content carries no segment list.
	ErrNoSegments = errors.New("content has no segments")
	// ErrPriceNotFound is returned when no price is present for the itinerary.
	ErrPriceNotFound = errors.New("price not found in metadata")
)

// ExtractMediaReferences walks the decoded content JSON and collects media
// keys. References found under segments[i] carry segment index i. Repeated
// references keep their first occurrence.
func ExtractMediaReferences(content []byte) ([]domain.MediaReference, error) {
	var root interface{}
	if err := json.Unmarshal(content, &root); err != nil {
		return nil, fmt.Errorf("failed to decode content: %w", err)
	}

	c := &refCollector{seen: make(map[string]struct{})}
	c.visit(root, -1)
	return c.refs, nil
}

type refCollector struct {
	refs []domain.MediaReference
	seen map[string]struct{}
}

func (c *refCollector) add(ref string, segment int) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return
	}
	if _, ok := c.seen[ref]; ok {
		return
	}
	c.seen[ref] = struct{}{}
	c.refs = append(c.refs, domain.MediaReference{SourceReference: ref, SegmentIndex: segment})
}

func (c *refCollector) visit(node interface{}, segment int) {
	switch v := node.(type) {
	case map[string]interface{}:
		for _, k := range sortedKeys(v) {
			child := v[k]
			switch k {
			case keyAgency:
				continue
			case keyS3Key, keyHeaderImage:
				if s, ok := child.(string); ok {
					c.add(s, segment)
					continue
				}
			case keyImages:
				if items, ok := child.([]interface{}); ok {
					for _, item := range items {
						if s, ok := item.(string); ok {
							c.add(s, segment)
						} else {
							c.visit(item, segment)
						}
					}
					continue
				}
			case keySegments:
				// only the outermost segment list defines indexes
				if items, ok := child.([]interface{}); ok && segment < 0 {
					for i, item := range items {
						c.visit(item, i)
					}
					continue
				}
			}
			c.visit(child, segment)
		}
	case []interface{}:
		for _, item := range v {
			c.visit(item, segment)
		}
	}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ParseItinerary decodes the rendered content payload into a RawItinerary.
// Field names vary between portal releases, so each attribute is looked up
// under a list of known aliases.
func ParseItinerary(content []byte) (*domain.RawItinerary, error) {
	var root map[string]interface{}
	if err := json.Unmarshal(content, &root); err != nil {
		return nil, fmt.Errorf("failed to decode content: %w", err)
	}

	node := itineraryNode(root)
	raw := &domain.RawItinerary{
		ID:        lookupString(node, "id", "itineraryId", "_id"),
		Title:     lookupString(node, "title", "name"),
		StartDate: lookupString(node, "startDate", "start_date", "dateFrom"),
		EndDate:   lookupString(node, "endDate", "end_date", "dateTo"),
		Nights:    lookupInt(node, "nights", "duration.nights"),
		Currency:  lookupString(node, "currency", "price.currency"),
	}

	items, _ := node[keySegments].([]interface{})
	if len(items) == 0 {
		return nil, ErrNoSegments
	}
	for i, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		raw.Segments = append(raw.Segments, parseSegment(i, m))
	}
	return raw, nil
}

// itineraryNode finds the object that owns the segment list.
func itineraryNode(root map[string]interface{}) map[string]interface{} {
	if _, ok := root[keySegments]; ok {
		return root
	}
	for _, k := range []string{"itinerary", "data", "content", "trip"} {
		if child, ok := root[k].(map[string]interface{}); ok {
			if _, ok := child[keySegments]; ok {
				return child
			}
			if nested, ok := child["itinerary"].(map[string]interface{}); ok {
				return nested
			}
		}
	}
	return root
}

func parseSegment(index int, m map[string]interface{}) domain.RawSegment {
	return domain.RawSegment{
		Index:             index,
		Type:              strings.ToLower(lookupString(m, "type", "segmentType", "blockType")),
		Title:             lookupString(m, "title", "name"),
		Description:       lookupString(m, "description", "summary"),
		AccommodationName: lookupString(m, "accommodationName", "accommodation.name", "property.name"),
		ActivityName:      lookupString(m, "activityName", "activity.name", "service.name"),
		Location:          lookupString(m, "locationName", "location", "location.name", "destination.name"),
		Country:           lookupString(m, "country", "location.country", "destination.country"),
		StartDate:         lookupString(m, "startDate", "start_date", "date"),
		EndDate:           lookupString(m, "endDate", "end_date"),
		Nights:            lookupInt(m, "nights", "duration.nights"),
		Highlights:        lookupStrings(m, "highlights", "tags"),
	}
}

// lookup resolves a dotted path against nested objects.
func lookup(m map[string]interface{}, dotted string) (interface{}, bool) {
	var cur interface{} = m
	for _, part := range strings.Split(dotted, ".") {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		if cur, ok = obj[part]; !ok {
			return nil, false
		}
	}
	return cur, cur != nil
}

func lookupString(m map[string]interface{}, paths ...string) string {
	for _, p := range paths {
		v, ok := lookup(m, p)
		if !ok {
			continue
		}
		switch t := v.(type) {
		case string:
			if s := strings.TrimSpace(t); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64)
		}
	}
	return ""
}

func lookupInt(m map[string]interface{}, paths ...string) int {
	for _, p := range paths {
		v, ok := lookup(m, p)
		if !ok {
			continue
		}
		switch t := v.(type) {
		case float64:
			return int(t)
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
				return n
			}
		}
	}
	return 0
}

func lookupStrings(m map[string]interface{}, paths ...string) []string {
	for _, p := range paths {
		v, ok := lookup(m, p)
		if !ok {
			continue
		}
		items, ok := v.([]interface{})
		if !ok {
			continue
		}
		var out []string
		for _, item := range items {
			switch t := item.(type) {
			case string:
				out = append(out, t)
			case map[string]interface{}:
				if s := lookupString(t, "title", "name", "text"); s != "" {
					out = append(out, s)
				}
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

// ExtractPrice finds the itinerary entry in the metadata payload and returns
// its raw price value. The entry is matched by identifier; a payload holding a
// single entry matches when itineraryID is empty.
func ExtractPrice(metadata []byte, itineraryID string) (float64, error) {
	entry, err := findMetadataEntry(metadata, itineraryID)
	if err != nil {
		return 0, err
	}
	for _, p := range []string{"price.amount", "price", "totalPrice.amount", "totalPrice"} {
		v, ok := lookup(entry, p)
		if !ok {
			continue
		}
		switch t := v.(type) {
		case float64:
			return t, nil
		case string:
			f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(t), ",", ""), 64)
			if err == nil {
				return f, nil
			}
		}
	}
	return 0, ErrPriceNotFound
}

// MetadataItineraryID returns the identifier of the only entry in the
// metadata payload, or "" when it holds zero or several entries.
func MetadataItineraryID(metadata []byte) string {
	entries, err := metadataEntries(metadata)
	if err != nil || len(entries) != 1 {
		return ""
	}
	return entryID(entries[0])
}

func findMetadataEntry(metadata []byte, itineraryID string) (map[string]interface{}, error) {
	entries, err := metadataEntries(metadata)
	if err != nil {
		return nil, err
	}
	if itineraryID == "" {
		if len(entries) == 1 {
			return entries[0], nil
		}
		return nil, fmt.Errorf("%w: %d entries and no itinerary id", ErrPriceNotFound, len(entries))
	}
	for _, e := range entries {
		if entryID(e) == itineraryID {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%w: no entry for itinerary %s", ErrPriceNotFound, itineraryID)
}

func metadataEntries(metadata []byte) ([]map[string]interface{}, error) {
	var root interface{}
	if err := json.Unmarshal(metadata, &root); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}

	var items []interface{}
	switch v := root.(type) {
	case []interface{}:
		items = v
	case map[string]interface{}:
		items = []interface{}{v}
		for _, k := range []string{"docs", "itineraries", "data", "items", "results"} {
			if list, ok := v[k].([]interface{}); ok {
				items = list
				break
			}
		}
		if inner, ok := v["itinerary"].(map[string]interface{}); ok && len(items) == 1 {
			items = []interface{}{inner}
		}
	}

	entries := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]interface{}); ok {
			entries = append(entries, m)
		}
	}
	return entries, nil
}

func entryID(m map[string]interface{}) string {
	return lookupString(m, "id", "itineraryId", "_id")
}

// NormalizePrice converts a raw portal price into integer minor units. The
// second return value reports whether the unit was inferred.
func NormalizePrice(value float64, unit PriceUnit) (int64, bool) {
	switch unit {
	case PriceUnitCents:
		return int64(math.Round(value)), false
	case PriceUnitDollars:
		return int64(math.Round(value * 100)), false
	default:
		if value < autoDollarThreshold {
			return int64(math.Round(value * 100)), true
		}
		return int64(math.Round(value)), true
	}
}

// IDFromURL returns the last path segment of a portal URL.
func IDFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	base := path.Base(strings.TrimSuffix(u.Path, "/"))
	if base == "." || base == "/" {
		return ""
	}
	return base
}

// IsJSON reports whether body looks like a JSON object or array.
func IsJSON(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || (trimmed[0] != '{' && trimmed[0] != '[') {
		return false
	}
	return json.Valid(trimmed)
}
