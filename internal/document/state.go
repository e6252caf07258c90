package document

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the ISO 8601 calendar date format used for LastNoticeDate.
const DateLayout = "2006-01-02"

// Date is a calendar date without time or zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// State is the single durable record: delivered identifiers plus the date of
// the last daily notice.
type State struct {
	Sent           []string `json:"sent"`
	LastNoticeDate *Date    `json:"lastNoticeDate"`
}

// NewState returns the default record used when nothing valid is stored.
func NewState() State {
	return State{Sent: []string{}}
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (s State) Clone() State {
	out := State{Sent: append(make([]string, 0, len(s.Sent)), s.Sent...)}
	if s.LastNoticeDate != nil {
		d := *s.LastNoticeDate
		out.LastNoticeDate = &d
	}
	return out
}

// MarkSent appends id unless it is already present. It reports whether the
// set changed.
func (s *State) MarkSent(id string) bool {
	for _, v := range s.Sent {
		if v == id {
			return false
		}
	}
	s.Sent = append(s.Sent, id)
	return true
}

// NoticedOn reports whether the last notice was sent on d.
func (s State) NoticedOn(d Date) bool {
	return s.LastNoticeDate != nil && *s.LastNoticeDate == d
}
