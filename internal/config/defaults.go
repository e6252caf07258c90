package config

import "strings"

const (
	DefaultSourceURL = "https://www.fondazionefojanini.it/blog/notiziaritecnici/"
	DefaultTimezone  = "Europe/Rome"
	DefaultStatePath = "state.json"
	DefaultHTTPAddr  = ":10000"
	DefaultNoticeH   = 7
)

// ApplyDefaults fills every unset field. Explicit values are kept.
func (c *Config) ApplyDefaults() {
	setStr := func(p *string, v string) {
		if strings.TrimSpace(*p) == "" {
			*p = v
		}
	}

	setStr(&c.Telegram.Timeout, "60s")

	setStr(&c.Source.URL, DefaultSourceURL)
	setStr(&c.Source.Timeout, "30s")
	if c.Source.MaxBytes == 0 {
		c.Source.MaxBytes = 8 << 20
	}

	setStr(&c.Delivery.DownloadTimeout, "60s")
	if c.Delivery.MaxBytes == 0 {
		c.Delivery.MaxBytes = 50 << 20
	}
	if c.Delivery.RatePerSec <= 0 {
		c.Delivery.RatePerSec = 1
	}

	if c.Notice.Enabled == nil {
		on := true
		c.Notice.Enabled = &on
	}
	if c.Notice.Hour == nil {
		h := DefaultNoticeH
		c.Notice.Hour = &h
	}
	setStr(&c.Notice.Timezone, DefaultTimezone)

	setStr(&c.Storage.Driver, "file")
	setStr(&c.Storage.Path, DefaultStatePath)

	setStr(&c.HTTP.Addr, DefaultHTTPAddr)
	setStr(&c.HTTP.ReadTimeout, "15s")
	setStr(&c.HTTP.WriteTimeout, "10m")

	setStr(&c.Scheduler.Timezone, c.Notice.Timezone)
	setStr(&c.Scheduler.Timeout, "10m")

	setStr(&c.Logging.Level, "info")
	if c.Logging.Console == nil {
		on := true
		c.Logging.Console = &on
	}
	setStr(&c.Logging.Telegram.MinLevel, "warn")
	if c.Logging.Telegram.RatePerSec <= 0 {
		c.Logging.Telegram.RatePerSec = 1
	}
}
