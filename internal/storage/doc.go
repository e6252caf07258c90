// Package storage persists the single watcher record: the delivered document
// identifiers and the date of the last daily notice.
//
// Drivers:
//   - file: one JSON document, replaced atomically on every save
//   - memory: process-local copy, lost on restart
//
// Load never fails. Anything that is not a well-formed record is reported
// through the logger and replaced by the empty default.
package storage
