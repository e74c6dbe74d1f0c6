package crash

import "strings"

// HTMLBreak separates metadata from log content. Delivery renders reports as
// HTML mail, where a plain newline does not break the line.
const HTMLBreak = "<br>"

// Compose builds the report text: metadata + separator + htmlBreak + content.
func Compose(metadata, separator, htmlBreak, content string) string {
	var b strings.Builder
	b.Grow(len(metadata) + len(separator) + len(htmlBreak) + len(content))
	b.WriteString(metadata)
	b.WriteString(separator)
	b.WriteString(htmlBreak)
	b.WriteString(content)
	return b.String()
}
