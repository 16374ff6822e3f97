package portal

import (
	"net/url"
	"sort"
	"strings"

	"github.com/timmy/itinerary-ingest/internal/config"
	"github.com/timmy/itinerary-ingest/internal/source"
)

// Target names used in diagnostics.
const (
	TargetMetadata = "metadata"
	TargetContent  = "content"
)

// discoveryKeywords hint that an unmatched API response may be a renamed target.
var discoveryKeywords = []string{"itinerar", "trip", "content", "render", "day", "segment", "booking"}

// Matcher decides whether a response URL belongs to a capture target.
type Matcher struct {
	Name     string
	Contains string
	Excludes []string
}

// NewMatcher builds a Matcher from an endpoint pattern.
func NewMatcher(name string, p config.EndpointPattern) Matcher {
	return Matcher{Name: name, Contains: p.Contains, Excludes: p.Excludes}
}

// Match reports whether rawURL contains the pattern and none of the exclusions.
func (m Matcher) Match(rawURL string) bool {
	if m.Contains == "" || !strings.Contains(rawURL, m.Contains) {
		return false
	}
	for _, ex := range m.Excludes {
		if ex != "" && strings.Contains(rawURL, ex) {
			return false
		}
	}
	return true
}

// firstJSON returns the first successful JSON body matching m.
func (m Matcher) firstJSON(responses []Response) (*Response, bool) {
	for i := range responses {
		r := &responses[i]
		if r.Status >= 400 || !m.Match(r.URL) {
			continue
		}
		if source.IsJSON(r.Body) {
			return r, true
		}
	}
	return nil, false
}

// Suggestion is an observed API endpoint that might be a renamed target.
type Suggestion struct {
	Path     string   `json:"path"`
	Count    int      `json:"count"`
	Keywords []string `json:"keywords"`
	Example  string   `json:"example"`
}

// discover groups observed /api/ JSON responses by path and ranks those whose
// URL mentions itinerary-like keywords. Responses already claimed by one of
// the known matchers are skipped.
func discover(responses []Response, known ...Matcher) []Suggestion {
	byPath := make(map[string]*Suggestion)
	var order []string

	for _, r := range responses {
		if !strings.Contains(r.URL, "/api/") || !strings.Contains(r.ContentType, "json") {
			continue
		}
		if matchesAny(r.URL, known) {
			continue
		}
		p := r.URL
		if u, err := url.Parse(r.URL); err == nil {
			p = u.Path
		}
		s, ok := byPath[p]
		if !ok {
			s = &Suggestion{Path: p, Example: r.URL}
			lower := strings.ToLower(p)
			for _, kw := range discoveryKeywords {
				if strings.Contains(lower, kw) {
					s.Keywords = append(s.Keywords, kw)
				}
			}
			byPath[p] = s
			order = append(order, p)
		}
		s.Count++
	}

	var out []Suggestion
	for _, p := range order {
		if s := byPath[p]; len(s.Keywords) > 0 {
			out = append(out, *s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return len(out[i].Keywords) > len(out[j].Keywords)
	})
	return out
}

func matchesAny(rawURL string, matchers []Matcher) bool {
	for _, m := range matchers {
		if m.Match(rawURL) {
			return true
		}
	}
	return false
}
