package config

import (
	"os"
	"strconv"
	"strings"
)

// LookupFunc reads one environment variable.
type LookupFunc func(key string) (string, bool)

// OSLookup reads the process environment.
var OSLookup LookupFunc = os.LookupEnv

// Environment variables understood on top of the config file.
const (
	EnvToken      = "TELEGRAM_TOKEN"
	EnvChatID     = "TELEGRAM_CHAT_ID"
	EnvAPIURL     = "TELEGRAM_API_URL"
	EnvSourceURL  = "SOURCE_URL"
	EnvPort       = "PORT"
	EnvStateFile  = "STATE_FILE"
	EnvLogLevel   = "LOG_LEVEL"
	EnvNoticeHour = "NOTICE_HOUR"
	EnvNoticeText = "NOTICE_TEXT"
	EnvNoticeOn   = "NOTICE_ENABLED"
	EnvTimezone   = "TIMEZONE"
	EnvSchedule   = "SCHEDULE"
	EnvHTTPAsync  = "HTTP_ASYNC"
)

// ApplyEnv overlays set, non-empty environment variables onto cfg.
// Values that cannot be parsed are reported as ConfigError.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	if lookup == nil {
		lookup = OSLookup
	}
	get := func(k string) (string, bool) {
		v, ok := lookup(k)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get(EnvToken); ok {
		cfg.Telegram.Token = v
	}
	if v, ok := get(EnvChatID); ok {
		cfg.Telegram.ChatID = v
	}
	if v, ok := get(EnvAPIURL); ok {
		cfg.Telegram.APIURL = v
	}
	if v, ok := get(EnvSourceURL); ok {
		cfg.Source.URL = v
	}
	if v, ok := get(EnvPort); ok {
		p, err := strconv.Atoi(v)
		if err != nil || p < 0 || p > 65535 {
			return fieldErr(EnvPort, "must be a port number", err)
		}
		cfg.HTTP.Addr = ":" + v
	}
	if v, ok := get(EnvStateFile); ok {
		cfg.Storage.Path = v
	}
	if v, ok := get(EnvLogLevel); ok {
		cfg.Logging.Level = v
	}
	if v, ok := get(EnvNoticeHour); ok {
		h, err := strconv.Atoi(v)
		if err != nil {
			return fieldErr(EnvNoticeHour, "must be an integer hour", err)
		}
		cfg.Notice.Hour = &h
	}
	if v, ok := get(EnvNoticeText); ok {
		cfg.Notice.Text = v
	}
	if v, ok := get(EnvNoticeOn); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fieldErr(EnvNoticeOn, "must be a boolean", err)
		}
		cfg.Notice.Enabled = &b
	}
	if v, ok := get(EnvTimezone); ok {
		cfg.Notice.Timezone = v
		cfg.Scheduler.Timezone = v
	}
	if v, ok := get(EnvSchedule); ok {
		cfg.Scheduler.Enabled = true
		cfg.Scheduler.Schedule = v
	}
	if v, ok := get(EnvHTTPAsync); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fieldErr(EnvHTTPAsync, "must be a boolean", err)
		}
		cfg.HTTP.Async = b
	}
	return nil
}
