// Package document holds the records that flow through a watch pass: the
// discovered Item, the persisted State, and the Diff between a listing and
// what has already been delivered.
package document

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// Extension is the suffix that marks a link as a deliverable document.
const Extension = ".pdf"

var ErrInvalidItem = errors.New("invalid document item")

// Item is one document link discovered on the source page.
// URL is absolute and is the unique key for delivery tracking.
type Item struct {
	URL  string
	Name string
}

// NewItem validates rawURL and builds an Item. The display name is the
// percent-decoded final path segment of the URL.
func NewItem(rawURL string) (Item, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return Item{}, fmt.Errorf("%w: %v", ErrInvalidItem, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return Item{}, fmt.Errorf("%w: %q is not an absolute URL", ErrInvalidItem, rawURL)
	}
	return Item{URL: u.String(), Name: NameFromURL(u)}, nil
}

// NameFromURL returns the decoded last path segment of u ("" for a bare host).
// u.Path is already percent-decoded by url.Parse, so "Bollettino%20n.1.pdf"
// yields "Bollettino n.1.pdf".
func NameFromURL(u *url.URL) string {
	p := strings.TrimRight(u.Path, "/")
	if p == "" {
		return ""
	}
	return path.Base(p)
}

// HasExtension reports whether the URL path ends in Extension, ignoring case.
// Query string and fragment are not considered.
func HasExtension(u *url.URL) bool {
	return strings.HasSuffix(strings.ToLower(u.Path), Extension)
}
