package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"pdfbot/internal/document"
	logx "pdfbot/pkg/logx"
)

// fileStore keeps the record in a single JSON file.
//
// Saves go through <path>.tmp, fsync and rename, so a crash leaves either the
// old or the new file in place.
type fileStore struct {
	log  logx.Logger
	path string

	mu sync.Mutex
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = DefaultPath
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &fileStore{log: log, path: path}, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) Load(ctx context.Context) document.State {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.read()
	switch {
	case err == nil:
	case errors.Is(err, ErrStateNotFound):
		s.log.Info("no state file, starting empty", logx.String("path", s.path))
	default:
		s.log.Warn("state unreadable, starting empty", logx.String("path", s.path), logx.Err(err))
	}
	return st
}

func (s *fileStore) read() (document.State, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return document.NewState(), fmt.Errorf("%w: %s", ErrStateNotFound, s.path)
		}
		return document.NewState(), fmt.Errorf("%w: %v", ErrStateCorrupted, err)
	}
	st, dropped, err := Decode(raw)
	if err != nil {
		return st, err
	}
	if dropped != nil {
		s.log.Warn("ignoring invalid lastNoticeDate", logx.String("path", s.path), logx.Err(dropped))
	}
	return st, nil
}

func (s *fileStore) Save(ctx context.Context, st document.State) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStateSave, err)
	}
	b, err := Encode(st)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStateSave, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStateSave, err)
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: %v", ErrStateSave, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: %v", ErrStateSave, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: %v", ErrStateSave, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: %v", ErrStateSave, err)
	}
	s.log.Debug("state saved", logx.String("path", s.path), logx.Int("sent", len(st.Sent)))
	return nil
}
