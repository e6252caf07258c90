package storage

import (
	"context"
	"errors"
	"strings"

	"pdfbot/internal/document"
	logx "pdfbot/pkg/logx"
)

// Store is the persistence API used by the watcher.
type Store interface {
	// Load returns the stored record or the empty default. It never fails.
	Load(ctx context.Context) document.State
	// Save durably replaces the stored record. Errors wrap ErrStateSave.
	Save(ctx context.Context, st document.State) error
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "file":
		return openFile(cfg, log.With(logx.String("comp", "storage")))
	case "memory", "mem":
		return NewMemory(), nil
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
