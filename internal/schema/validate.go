package schema

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/timmy/itinerary-ingest/internal/domain"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed touristtrip.schema.json
var touristTripSchema []byte

// Length limits checked as warnings.
const (
	maxNameLength        = 110
	maxDescriptionLength = 5000
)

// Result is the outcome of validating a document.
type Result struct {
	Status   string   `json:"status"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// SchemaLoadError reports that the embedded schema could not be compiled.
type SchemaLoadError struct {
	Cause error
}

func (e *SchemaLoadError) Error() string {
	return fmt.Sprintf("failed to load TouristTrip schema: %v", e.Cause)
}

func (e *SchemaLoadError) Unwrap() error {
	return e.Cause
}

var compiled = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(touristTripSchema))
})

// Validate checks doc structurally against the TouristTrip schema, then
// applies content rules that only warn. Status is fail on any error, warn on
// any warning, pass otherwise.
func Validate(doc Document) (*Result, error) {
	s, err := compiled()
	if err != nil {
		return nil, &SchemaLoadError{Cause: err}
	}

	res, err := s.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}

	result := &Result{Errors: []string{}, Warnings: []string{}}
	for _, desc := range res.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", field, desc.Description()))
	}
	result.Warnings = contentWarnings(doc)

	switch {
	case len(result.Errors) > 0:
		result.Status = domain.SchemaStatusFail
	case len(result.Warnings) > 0:
		result.Status = domain.SchemaStatusWarn
	default:
		result.Status = domain.SchemaStatusPass
	}
	return result, nil
}

func contentWarnings(doc Document) []string {
	warnings := []string{}
	if name, _ := doc["name"].(string); len(name) > maxNameLength {
		warnings = append(warnings, fmt.Sprintf("name longer than %d characters", maxNameLength))
	}
	desc, _ := doc["description"].(string)
	switch {
	case desc == "":
		warnings = append(warnings, "description missing")
	case len(desc) > maxDescriptionLength:
		warnings = append(warnings, fmt.Sprintf("description longer than %d characters", maxDescriptionLength))
	}
	if images, _ := doc["image"].([]interface{}); len(images) == 0 {
		warnings = append(warnings, "image missing")
	}
	if _, ok := doc["offers"]; !ok {
		warnings = append(warnings, "offers missing")
	}
	return warnings
}
