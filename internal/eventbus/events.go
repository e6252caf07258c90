package eventbus

import "time"

// Event types published by the watcher.
const (
	TypeRun       = "watch.run"
	TypeDelivered = "watch.delivered"
	TypeFailed    = "watch.failed"
	TypeNotice    = "watch.notice"
)

// RunSummary is the Data of a TypeRun event.
type RunSummary struct {
	Trigger   string        `json:"trigger"`
	Listed    int           `json:"listed"`
	New       int           `json:"new"`
	Delivered int           `json:"delivered"`
	Failed    int           `json:"failed"`
	Noticed   bool          `json:"noticed"`
	Saved     bool          `json:"saved"`
	Took      time.Duration `json:"took"`
	Error     string        `json:"error,omitempty"`
}

// DocumentEvent is the Data of TypeDelivered and TypeFailed events.
type DocumentEvent struct {
	URL   string `json:"url"`
	Name  string `json:"name"`
	Error string `json:"error,omitempty"`
}

// NoticeEvent is the Data of a TypeNotice event.
type NoticeEvent struct {
	Date string `json:"date"`
	OK   bool   `json:"ok"`
}
