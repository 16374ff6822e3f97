package service

import (
	"fmt"

	"github.com/timmy/itinerary-ingest/internal/domain"
	"github.com/timmy/itinerary-ingest/internal/schema"
)

// ChecklistInput is everything the publish checklist is computed from.
type ChecklistInput struct {
	Counters        domain.JobCounters
	HeroImageID     string
	SchemaGenerated bool
	Validation      *schema.Result
	MetaTitle       string
	MetaDescription string
}

// BuildChecklist computes the publish-readiness checklist.
func BuildChecklist(in ChecklistInput) domain.Checklist {
	c := in.Counters
	return domain.Checklist{
		AllImagesProcessed: c.Done() >= c.TotalImages,
		NoFailedImages:     c.FailedImages == 0,
		HeroImageSelected:  in.HeroImageID != "",
		SchemaGenerated:    in.SchemaGenerated,
		SchemaValid:        in.Validation != nil && in.Validation.Status != domain.SchemaStatusFail,
		MetaFieldsFilled:   in.MetaTitle != "" && in.MetaDescription != "",
		ContentEnhanced:    false,
	}
}

// BuildBlockers lists what stands between the draft and publication, errors
// first.
func BuildBlockers(checklist domain.Checklist, in ChecklistInput) []domain.Blocker {
	blockers := []domain.Blocker{}
	add := func(severity, format string, args ...interface{}) {
		blockers = append(blockers, domain.Blocker{Reason: fmt.Sprintf(format, args...), Severity: severity})
	}

	if !checklist.HeroImageSelected {
		add(domain.SeverityError, "No hero image selected")
	}
	if !checklist.NoFailedImages {
		add(domain.SeverityError, "%d image(s) failed to process", in.Counters.FailedImages)
	}
	if !checklist.AllImagesProcessed {
		add(domain.SeverityError, "%d image(s) not processed", in.Counters.TotalImages-in.Counters.Done())
	}
	if !checklist.SchemaGenerated || !checklist.SchemaValid {
		reason := "Schema not generated"
		if checklist.SchemaGenerated && in.Validation != nil && len(in.Validation.Errors) > 0 {
			reason = fmt.Sprintf("Schema invalid: %s", in.Validation.Errors[0])
		} else if checklist.SchemaGenerated {
			reason = "Schema invalid"
		}
		add(domain.SeverityError, "%s", reason)
	}
	if !checklist.ContentEnhanced {
		add(domain.SeverityWarning, "Content not enhanced")
	}
	if !checklist.MetaFieldsFilled {
		add(domain.SeverityWarning, "Meta title or description missing")
	}
	if in.Validation != nil {
		for _, w := range in.Validation.Warnings {
			add(domain.SeverityWarning, "Schema warning: %s", w)
		}
	}
	return blockers
}

// OutcomeFor maps blockers to the review outcome.
func OutcomeFor(blockers []domain.Blocker) string {
	for _, b := range blockers {
		if b.Severity == domain.SeverityError {
			return domain.OutcomeNeedsAttention
		}
	}
	return domain.OutcomeReadyForReview
}
