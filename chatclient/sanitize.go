package chatclient

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// Display names are plain text, so every tag is stripped.
var namePolicy = bluemonday.StrictPolicy()

const maxDisplayName = 24

// SanitizeBody drops control characters other than newline and tab so a
// peer cannot drive the terminal. Everything else, markup and entities
// included, is shown literally.
func SanitizeBody(body string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, body)
}

// SanitizeDisplayName cleans the static display name shown next to each
// message. Empty results fall back to "anon".
func SanitizeDisplayName(name string) string {
	stripped := html.UnescapeString(namePolicy.Sanitize(name))
	sanitized := strings.Join(strings.Fields(SanitizeBody(stripped)), " ")
	if r := []rune(sanitized); len(r) > maxDisplayName {
		sanitized = string(r[:maxDisplayName])
	}
	if sanitized == "" {
		sanitized = "anon"
	}
	return sanitized
}
