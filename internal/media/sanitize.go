package media

import (
	"path/filepath"
	"strings"
)

var mediaExtensions = map[string]struct{}{
	".mp3": {}, ".mp4": {}, ".m4a": {}, ".webm": {}, ".wav": {}, ".ogg": {},
	".opus": {}, ".flac": {}, ".aac": {}, ".mkv": {}, ".mov": {},
}

// Sanitize turns a media title into a filename stem. The result only holds
// ASCII letters, digits, '.', '-' and '_', and Sanitize(Sanitize(x)) == Sanitize(x).
func Sanitize(title string) string {
	out := title
	for {
		next := sanitizeOnce(out)
		if next == out {
			return next
		}
		out = next
	}
}

func sanitizeOnce(s string) string {
	if ext := strings.ToLower(filepath.Ext(s)); ext != "" {
		if _, ok := mediaExtensions[ext]; ok {
			s = s[:len(s)-len(ext)]
		}
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '：' || r == ':':
			b.WriteByte('_')
		case r == ' ':
			b.WriteByte('_')
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// StemOrDefault returns the sanitized stem of title, or "transcript" when nothing survives.
func StemOrDefault(title string) string {
	if stem := Sanitize(title); stem != "" {
		return stem
	}
	return "transcript"
}
