package storage

import (
	"crypto/md5"
	"encoding/hex"
	"mime"
	"path"
	"strings"
)

var extByContentType = map[string]string{
	"image/jpeg":      "jpg",
	"image/png":       "png",
	"image/webp":      "webp",
	"image/gif":       "gif",
	"image/avif":      "avif",
	"video/mp4":       "mp4",
	"video/webm":      "webm",
	"video/quicktime": "mov",
}

// MediaKey returns the deterministic object key for an origin reference
// rehosted by an itinerary: media/{itineraryID}/{md5(ref)[:16]}.{ext}.
// Re-running the same upload always targets the same key.
func MediaKey(itineraryID, sourceReference, contentType string) string {
	sum := md5.Sum([]byte(sourceReference))
	return "media/" + itineraryID + "/" + hex.EncodeToString(sum[:])[:16] + "." + Extension(sourceReference, contentType)
}

// Extension picks a file extension from the content type, falling back to the reference's suffix.
func Extension(sourceReference, contentType string) string {
	if contentType != "" {
		if mt, _, err := mime.ParseMediaType(contentType); err == nil {
			if ext, ok := extByContentType[mt]; ok {
				return ext
			}
		}
	}

	ref := sourceReference
	if idx := strings.IndexAny(ref, "?#"); idx >= 0 {
		ref = ref[:idx]
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(ref), "."))
	switch ext {
	case "jpeg":
		return "jpg"
	case "":
		return "bin"
	default:
		return ext
	}
}
