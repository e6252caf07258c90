package notifier

import (
	"strings"
	"sync"
	"time"

	"pdfbot/internal/document"
	logx "pdfbot/pkg/logx"
)

const historyMax = 30

// Service holds the notice policy. It is safe for concurrent use.
type Service struct {
	mu  sync.Mutex
	log logx.Logger
	cfg Config

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{log: log}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Hour < 0 || cfg.Hour > 23 {
		s.log.Warn("notice hour out of range, using default", logx.Int("hour", cfg.Hour))
		cfg.Hour = DefaultHour
	}
	if strings.TrimSpace(cfg.Text) == "" {
		cfg.Text = DefaultText
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	s.cfg = cfg
}

func (s *Service) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Today returns the calendar date of now in the configured zone.
func (s *Service) Today(now time.Time) document.Date {
	return document.DateOf(now.In(s.Config().Location))
}

// Due reports whether a notice should be attempted at now given st, and
// returns the date to record after a successful send.
func (s *Service) Due(now time.Time, st document.State) (document.Date, bool) {
	cfg := s.Config()
	local := now.In(cfg.Location)
	today := document.DateOf(local)
	if !cfg.Enabled {
		return today, false
	}
	if local.Hour() != cfg.Hour {
		return today, false
	}
	return today, !st.NoticedOn(today)
}

// Text is the notice body.
func (s *Service) Text() string { return s.Config().Text }

// Record appends a send attempt to the history.
func (s *Service) Record(at time.Time, text string, ok bool) {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.history = append(s.history, HistoryItem{At: at, Text: text, OK: ok})
	if n := len(s.history); n > historyMax {
		s.history = append([]HistoryItem(nil), s.history[n-historyMax:]...)
	}
}

// Snapshot returns the recorded attempts, oldest first.
func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}
