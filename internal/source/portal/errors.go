package portal

import (
	"fmt"
	"strings"
)

// LaunchError means the browser could not be started. It is not retried.
type LaunchError struct {
	Err error
}

func (e *LaunchError) Error() string { return "failed to launch browser: " + e.Err.Error() }
func (e *LaunchError) Unwrap() error { return e.Err }

// CaptureError reports targets that were not observed during a page load,
// with every response seen for operator triage.
type CaptureError struct {
	URL         string       `json:"url"`
	Missing     []string     `json:"missing"`
	Observed    []Response   `json:"observed"`
	Suggestions []Suggestion `json:"suggestions,omitempty"`
	Err         error        `json:"-"`
}

func (e *CaptureError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "capture incomplete for %s: missing %s (observed %d responses)",
		e.URL, strings.Join(e.Missing, ", "), len(e.Observed))
	if len(e.Suggestions) > 0 {
		paths := make([]string, 0, len(e.Suggestions))
		for _, s := range e.Suggestions {
			paths = append(paths, s.Path)
		}
		fmt.Fprintf(&b, "; candidate endpoints: %s", strings.Join(paths, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *CaptureError) Unwrap() error { return e.Err }
