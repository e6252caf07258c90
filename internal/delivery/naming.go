package delivery

import (
	"strings"

	"pdfbot/internal/document"
)

const (
	fallbackName = "document"
	captionLimit = 1024
)

// FileName is the upload name: the display name with the document extension
// present exactly once.
func FileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = fallbackName
	}
	if strings.HasSuffix(strings.ToLower(name), document.Extension) {
		return name
	}
	return name + document.Extension
}

// Caption turns a display name into a caption: extension dropped,
// underscores shown as spaces, capped at the channel's caption limit.
func Caption(name string) string {
	c := name
	if strings.HasSuffix(strings.ToLower(c), document.Extension) {
		c = c[:len(c)-len(document.Extension)]
	}
	c = strings.TrimSpace(strings.ReplaceAll(c, "_", " "))
	if rs := []rune(c); len(rs) > captionLimit {
		c = string(rs[:captionLimit])
	}
	return c
}
