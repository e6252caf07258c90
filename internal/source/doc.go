// Package source fetches the listing page and extracts the document links it
// publishes.
package source
