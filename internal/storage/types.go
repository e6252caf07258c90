package storage

import "errors"

var (
	ErrStateNotFound  = errors.New("state not found")
	ErrStateCorrupted = errors.New("state corrupted")
	ErrStateSave      = errors.New("state save failed")
)

// Config configures storage.
//
// Driver values:
//   - "file": JSON file at Path (default)
//   - "memory": in-process only
type Config struct {
	Driver string
	Path   string
}

const DefaultPath = "state.json"
