package classify

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var stripPolicy = bluemonday.StrictPolicy()

// PlainText removes all markup from an HTML body and decodes entities. The
// oracle adapter bounds the length it sends to the model.
func PlainText(body string) string {
	return strings.TrimSpace(html.UnescapeString(stripPolicy.Sanitize(body)))
}
