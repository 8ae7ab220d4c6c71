package asset

import "strings"

// Role says what a processed object is for its asset.
type Role int

const (
	RoleUnknown Role = iota
	RolePrimary
	RoleThumbnail
)

func (r Role) String() string {
	switch r {
	case RolePrimary:
		return "primary"
	case RoleThumbnail:
		return "thumbnail"
	}
	return "unknown"
}

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

var audioExts = map[string]bool{
	".mp3":  true,
	".m4a":  true,
	".aac":  true,
	".wav":  true,
	".ogg":  true,
	".webm": true,
	".flac": true,
}

// ProcessedRole classifies a processed object by kind and extension. Recording
// thumbnails are JPEGs; every avatar image is the primary output.
func ProcessedRole(kind Kind, ext string) Role {
	ext = strings.ToLower(ext)
	switch kind {
	case KindRecording:
		switch ext {
		case ".mp4":
			return RolePrimary
		case ".jpg", ".jpeg":
			return RoleThumbnail
		}
	case KindAvatar:
		if imageExts[ext] {
			return RolePrimary
		}
	case KindAudio:
		if audioExts[ext] {
			return RolePrimary
		}
	}
	return RoleUnknown
}

var acceptedTypes = map[Kind]map[string]bool{
	KindAvatar: {
		"image/jpeg": true,
		"image/png":  true,
		"image/gif":  true,
		"image/webp": true,
	},
	KindRecording: {
		"video/mp4":        true,
		"video/quicktime":  true,
		"video/webm":       true,
		"video/x-matroska": true,
	},
}

// AcceptsContentType reports whether an uploaded original of this kind may
// continue to moderation. Parameters such as "; charset=" are ignored.
func AcceptsContentType(kind Kind, contentType string) bool {
	mediaType := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = strings.TrimSpace(mediaType[:i])
	}
	if kind == KindAudio {
		return strings.HasPrefix(mediaType, "audio/")
	}
	return acceptedTypes[kind][mediaType]
}
