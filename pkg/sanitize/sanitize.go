package sanitize

import (
	"regexp"
	"strings"
)

var controlChars = regexp.MustCompile(`[\x00-\x1f\x7f]`)

// Filename strips path traversal sequences and control characters from a
// client-supplied filename before it is stored as object metadata.
func Filename(filename string) string {
	filename = strings.TrimSpace(filename)
	filename = strings.ReplaceAll(filename, "../", "")
	filename = strings.ReplaceAll(filename, "./", "")
	filename = strings.ReplaceAll(filename, "..\\", "")
	filename = strings.ReplaceAll(filename, ".\\", "")
	filename = controlChars.ReplaceAllString(filename, "")
	if len(filename) > 255 {
		filename = filename[:255]
	}
	return filename
}

// SearchQuery trims and bounds a free-text search term. Pattern escaping is
// the store's job; this only keeps the term printable and short.
func SearchQuery(query string) string {
	query = strings.TrimSpace(query)
	query = controlChars.ReplaceAllString(query, "")
	if len(query) > 200 {
		query = query[:200]
	}
	return query
}
