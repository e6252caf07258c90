package notifier

import "time"

const (
	DefaultHour = 7
	DefaultText = "Servizio attivo: monitoraggio dei notiziari tecnici in corso."
)

// Config controls the daily notice.
type Config struct {
	Enabled bool
	// Hour is the local hour (0-23) during which the notice may be sent.
	Hour int
	Text string
	// Location is the zone that defines "today" and Hour. Nil means UTC.
	Location *time.Location
}

type HistoryItem struct {
	At   time.Time `json:"at"`
	Text string    `json:"text"`
	OK   bool      `json:"ok"`
}
