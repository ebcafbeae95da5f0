package textutil

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	descriptionPolicy = bluemonday.UGCPolicy()
	plainPolicy       = bluemonday.StrictPolicy()
)

// SanitizeHTML keeps user generated content markup (paragraphs, lists, links) and strips scripts,
// styles and event handlers.
func SanitizeHTML(s string) string {
	return strings.TrimSpace(descriptionPolicy.Sanitize(s))
}

// PlainText strips every tag and decodes entities, for names and attribute values.
func PlainText(s string) string {
	return strings.TrimSpace(html.UnescapeString(plainPolicy.Sanitize(s)))
}
