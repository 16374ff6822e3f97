package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/timmy/itinerary-ingest/internal/domain"
	"github.com/timmy/itinerary-ingest/internal/logger"
	"github.com/timmy/itinerary-ingest/internal/source/cdn"
)

// SEO scaffolding limits.
const (
	maxHighlights         = 8
	maxMetaTitleLength    = 60
	maxMetaDescriptionLen = 160
)

const dateLayout = "2006-01-02"

// SegmentContext is the contextual tagging a media reference inherits from
// the segment it was found under.
type SegmentContext struct {
	SegmentType  string
	PropertyName string
	SegmentTitle string
	DayIndex     int
	Country      string
}

// Draft is the transformed itinerary content, before persistence.
type Draft struct {
	Title           string
	Slug            string
	StartDate       string
	EndDate         string
	Nights          int
	Countries       []string
	Highlights      []string
	Days            []domain.Day
	MetaTitle       string
	MetaDescription string
	FAQs            []domain.FAQ

	// Contexts is keyed by raw segment index.
	Contexts map[int]SegmentContext
}

// Transform maps a scraped itinerary into grouped days and SEO scaffolding.
// It is pure apart from diagnostic logging.
func Transform(ctx context.Context, res *domain.ScrapeResult) *Draft {
	raw := res.Itinerary

	tripStart := parseDate(raw.StartDate)
	if tripStart.IsZero() {
		tripStart = earliestStart(raw.Segments)
	}

	d := &Draft{
		Title:    strings.TrimSpace(raw.Title),
		Contexts: make(map[int]SegmentContext),
	}
	if d.Title == "" {
		d.Title = strings.TrimSpace(res.PageTitle)
	}
	d.Slug = cdn.Slugify(d.Title)
	if !tripStart.IsZero() {
		d.StartDate = tripStart.Format(dateLayout)
	}

	byDay := make(map[int][]domain.Segment)
	countries := newOrderedSet()
	highlights := newOrderedSet()
	stayNights := 0
	var latestEnd time.Time

	for _, rs := range raw.Segments {
		blockType, ok := mapBlockType(rs.Type)
		if !ok {
			logger.With(logger.Fields{"segment_index": rs.Index, "segment_type": rs.Type}).
				Warn(ctx, "Dropping segment with unknown type")
			continue
		}

		day := DayIndex(parseDate(rs.StartDate), tripStart)
		seg := domain.Segment{
			BlockType:   blockType,
			Title:       strings.TrimSpace(rs.Title),
			Description: rs.Description,
			Location:    strings.TrimSpace(rs.Location),
			Country:     strings.TrimSpace(rs.Country),
			StartDate:   normalizeDate(rs.StartDate),
			EndDate:     normalizeDate(rs.EndDate),
			Media:       []string{},
		}
		switch blockType {
		case domain.BlockStay:
			seg.AccommodationName = strings.TrimSpace(rs.AccommodationName)
			seg.Nights = rs.Nights
			stayNights += rs.Nights
		case domain.BlockActivity:
			seg.ActivityName = strings.TrimSpace(rs.ActivityName)
			if seg.ActivityName == "" {
				seg.ActivityName = seg.Title
			}
		case domain.BlockTransfer:
			seg.TransferType = rs.Type
		}
		byDay[day] = append(byDay[day], seg)

		countries.add(seg.Country)
		for _, h := range rs.Highlights {
			highlights.add(h)
		}
		if end := parseDate(rs.EndDate); end.After(latestEnd) {
			latestEnd = end
		}

		d.Contexts[rs.Index] = SegmentContext{
			SegmentType:  string(blockType),
			PropertyName: seg.AccommodationName,
			SegmentTitle: seg.Title,
			DayIndex:     day,
			Country:      seg.Country,
		}
	}

	dayNumbers := make([]int, 0, len(byDay))
	for n := range byDay {
		dayNumbers = append(dayNumbers, n)
	}
	sort.Ints(dayNumbers)
	for _, n := range dayNumbers {
		segments := byDay[n]
		d.Days = append(d.Days, domain.Day{
			DayNumber: n,
			Title:     DayTitle(n, segments),
			Location:  dayLocation(segments),
			Segments:  segments,
		})
	}

	d.Nights = raw.Nights
	if d.Nights == 0 {
		d.Nights = stayNights
	}
	switch {
	case raw.EndDate != "":
		d.EndDate = normalizeDate(raw.EndDate)
	case !latestEnd.IsZero():
		d.EndDate = latestEnd.Format(dateLayout)
	case !tripStart.IsZero() && d.Nights > 0:
		d.EndDate = tripStart.AddDate(0, 0, d.Nights).Format(dateLayout)
	}

	d.Countries = countries.items()
	d.Highlights = highlights.items()
	if len(d.Highlights) > maxHighlights {
		d.Highlights = d.Highlights[:maxHighlights]
	}

	d.MetaTitle = truncateWords(d.Title, maxMetaTitleLength)
	d.MetaDescription = metaDescription(d, res.PageDescription)
	d.FAQs = buildFAQs(d)
	return d
}

// DayIndex is the 1-based trip day a segment starting at start falls on.
// Unknown dates land on day 1.
func DayIndex(start, tripStart time.Time) int {
	if start.IsZero() || tripStart.IsZero() {
		return 1
	}
	days := int(start.Sub(tripStart).Hours() / 24)
	if days < 0 {
		return 1
	}
	return days + 1
}

// mapBlockType maps a portal segment type onto a block type.
func mapBlockType(raw string) (domain.BlockType, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "stay", "accommodation":
		return domain.BlockStay, true
	case "service", "activity":
		return domain.BlockActivity, true
	case "flight", "road", "transfer", "boat", "entry", "exit", "point":
		return domain.BlockTransfer, true
	}
	return "", false
}

var genericTransferTitles = map[string]bool{
	"transfer": true, "flight": true, "road": true, "road transfer": true, "boat": true,
	"boat transfer": true, "entry": true, "exit": true, "point": true, "arrival": true, "departure": true,
}

// DayTitle picks a day's display title from its segments.
func DayTitle(n int, segments []domain.Segment) string {
	for _, s := range segments {
		if s.BlockType == domain.BlockStay && s.AccommodationName != "" {
			return s.AccommodationName
		}
	}
	location := dayLocation(segments)
	if location != "" {
		for _, s := range segments {
			if s.BlockType == domain.BlockActivity && s.ActivityName != "" {
				return location + " - " + s.ActivityName
			}
		}
	}
	for _, s := range segments {
		if s.BlockType == domain.BlockTransfer && s.Title != "" && !genericTransferTitles[strings.ToLower(s.Title)] {
			return s.Title
		}
	}
	if location != "" {
		return fmt.Sprintf("Day %d - %s", n, location)
	}
	return fmt.Sprintf("Day %d", n)
}

func dayLocation(segments []domain.Segment) string {
	for _, s := range segments {
		if s.Location != "" && !isUnknown(s.Location) {
			return s.Location
		}
	}
	return ""
}

func earliestStart(segments []domain.RawSegment) time.Time {
	var earliest time.Time
	for _, s := range segments {
		t := parseDate(s.StartDate)
		if t.IsZero() {
			continue
		}
		if earliest.IsZero() || t.Before(earliest) {
			earliest = t
		}
	}
	return earliest
}

// parseDate reads the calendar date prefix of s, ignoring any time part.
func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if len(s) < len(dateLayout) {
		return time.Time{}
	}
	t, err := time.Parse(dateLayout, s[:len(dateLayout)])
	if err != nil {
		return time.Time{}
	}
	return t
}

func normalizeDate(s string) string {
	if t := parseDate(s); !t.IsZero() {
		return t.Format(dateLayout)
	}
	return ""
}

func isUnknown(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "unknown")
}

// orderedSet keeps first-seen order and drops empty or unknown values.
type orderedSet struct {
	seen  map[string]bool
	order []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]bool)}
}

func (s *orderedSet) add(v string) {
	v = strings.TrimSpace(v)
	if v == "" || isUnknown(v) {
		return
	}
	key := strings.ToLower(v)
	if s.seen[key] {
		return
	}
	s.seen[key] = true
	s.order = append(s.order, v)
}

func (s *orderedSet) items() []string {
	return append([]string{}, s.order...)
}

// truncateWords shortens s to at most limit bytes on a word boundary, never
// splitting a rune.
func truncateWords(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	cut := s[:limit]
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.-")
}

func metaDescription(d *Draft, pageDescription string) string {
	if desc := strings.TrimSpace(pageDescription); desc != "" {
		return truncateWords(desc, maxMetaDescriptionLen)
	}
	if d.Title == "" {
		return ""
	}
	var b strings.Builder
	if d.Nights > 0 {
		fmt.Fprintf(&b, "%d-night itinerary", d.Nights)
	} else {
		b.WriteString("Itinerary")
	}
	if len(d.Countries) > 0 {
		fmt.Fprintf(&b, " through %s", joinNatural(d.Countries))
	}
	if stays := accommodations(d.Days); len(stays) > 0 {
		fmt.Fprintf(&b, ", staying at %s", joinNatural(stays))
	}
	b.WriteString(".")
	return truncateWords(b.String(), maxMetaDescriptionLen)
}

func buildFAQs(d *Draft) []domain.FAQ {
	faqs := []domain.FAQ{}
	if d.Nights > 0 {
		faqs = append(faqs, domain.FAQ{
			Question: fmt.Sprintf("How long is the %s itinerary?", d.Title),
			Answer:   fmt.Sprintf("The itinerary spans %d nights over %d days.", d.Nights, d.Nights+1),
		})
	}
	if len(d.Countries) > 0 {
		faqs = append(faqs, domain.FAQ{
			Question: "Which countries does this itinerary visit?",
			Answer:   fmt.Sprintf("This itinerary visits %s.", joinNatural(d.Countries)),
		})
	}
	if stays := accommodations(d.Days); len(stays) > 0 {
		faqs = append(faqs, domain.FAQ{
			Question: "Where will I stay?",
			Answer:   fmt.Sprintf("Accommodation includes %s.", joinNatural(stays)),
		})
	}
	return faqs
}

func accommodations(days []domain.Day) []string {
	set := newOrderedSet()
	for _, day := range days {
		for _, s := range day.Segments {
			if s.BlockType == domain.BlockStay {
				set.add(s.AccommodationName)
			}
		}
	}
	return set.items()
}

func joinNatural(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	case 2:
		return items[0] + " and " + items[1]
	}
	return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
}
