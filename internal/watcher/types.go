package watcher

import (
	"context"
	"errors"
	"time"

	"pdfbot/internal/document"
)

var ErrBusy = errors.New("check already running")

// Lister returns the documents currently linked from the source page.
type Lister interface {
	List(ctx context.Context, sourceURL string) ([]document.Item, error)
}

// Sink submits documents and notices. Both report plain success.
type Sink interface {
	DeliverDocument(ctx context.Context, it document.Item) bool
	SendNotice(ctx context.Context, text string) bool
}

// NoticePolicy gates the daily notice.
type NoticePolicy interface {
	Due(now time.Time, st document.State) (document.Date, bool)
	Text() string
	Record(at time.Time, text string, ok bool)
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// Result summarizes one pass.
type Result struct {
	Trigger   string
	Started   time.Time
	Listed    int
	New       int
	Delivered int
	Failed    int
	Noticed   bool
	Saved     bool
	Took      time.Duration
	// ListErr is set when the source page could not be read; the pass then
	// behaves as if the page listed nothing.
	ListErr error
	// SaveErr is set when the state could not be persisted.
	SaveErr error
}
