package prompts

import "strings"

// ============================================================================
// Shared vocabularies
// ============================================================================

// ImageTypes is the closed set of image categories the classifier may return.
var ImageTypes = []string{"wildlife", "landscape", "accommodation", "activity", "other"}

// ============================================================================
// Classifier prompts (vision model)
// ============================================================================

// ClassifierSystemPrompt defines the role and output contract for media classification.
const ClassifierSystemPrompt = `You label photos for a safari and travel itinerary website.
Return a single JSON object and nothing else:
{"image_type": "<one of: wildlife, landscape, accommodation, activity, other>", "alt": "<alt text, at most 120 characters>"}

Rules:
- wildlife: animals are the main subject
- landscape: scenery, skies, plains, water or aerial views without a dominant building
- accommodation: rooms, tents, pools, dining or lodge exteriors
- activity: guests doing something (game drives, walks, boating, ballooning)
- other: anything else, including logos, maps and documents
- alt text describes what is visible; do not invent names or places`

// ClassifierUserPrompt introduces one image together with its itinerary context.
func ClassifierUserPrompt(property, segmentType, country string) string {
	var b strings.Builder
	b.WriteString("Classify this image.")
	var ctx []string
	if property != "" {
		ctx = append(ctx, "property: "+property)
	}
	if segmentType != "" {
		ctx = append(ctx, "segment type: "+segmentType)
	}
	if country != "" {
		ctx = append(ctx, "country: "+country)
	}
	if len(ctx) > 0 {
		b.WriteString(" Context (may help, may be wrong): ")
		b.WriteString(strings.Join(ctx, "; "))
		b.WriteString(".")
	}
	return b.String()
}
