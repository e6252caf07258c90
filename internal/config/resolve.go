package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata"

	"pdfbot/internal/task/scheduler"
	logx "pdfbot/pkg/logx"
)

// Settings is a validated Config with durations parsed and the time zone
// loaded. Build it with Resolve.
type Settings struct {
	Raw *Config

	TelegramTimeout time.Duration
	SourceTimeout   time.Duration
	DownloadTimeout time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	SchedTimeout    time.Duration

	NoticeEnabled bool
	NoticeHour    int
	Location      *time.Location
}

// Resolve validates c and converts it. All problems are reported at once,
// each as a *ConfigError joined with errors.Join.
func (c *Config) Resolve() (*Settings, error) {
	if c == nil {
		return nil, fieldErr("config", "is nil", nil)
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if strings.TrimSpace(c.Telegram.Token) == "" {
		add(fieldErr("telegram.token", "is required (env "+EnvToken+")", nil))
	}
	if strings.TrimSpace(c.Telegram.ChatID) == "" {
		add(fieldErr("telegram.chat_id", "is required (env "+EnvChatID+")", nil))
	}
	if s := strings.TrimSpace(c.Telegram.APIURL); s != "" {
		add(checkHTTPURL("telegram.api_url", s))
	}
	add(checkHTTPURL("source.url", strings.TrimSpace(c.Source.URL)))

	st := &Settings{Raw: c}
	var err error
	if st.TelegramTimeout, err = ParseDurationOrDefault("telegram.timeout", c.Telegram.Timeout, 60*time.Second); err != nil {
		add(err)
	}
	if st.SourceTimeout, err = ParseDurationOrDefault("source.timeout", c.Source.Timeout, 30*time.Second); err != nil {
		add(err)
	}
	if st.DownloadTimeout, err = ParseDurationOrDefault("delivery.download_timeout", c.Delivery.DownloadTimeout, 60*time.Second); err != nil {
		add(err)
	}
	if st.ReadTimeout, err = ParseDurationField("http.read_timeout", c.HTTP.ReadTimeout); err != nil {
		add(err)
	}
	if st.WriteTimeout, err = ParseDurationField("http.write_timeout", c.HTTP.WriteTimeout); err != nil {
		add(err)
	}
	if st.SchedTimeout, err = ParseDurationField("scheduler.timeout", c.Scheduler.Timeout); err != nil {
		add(err)
	}

	if c.Delivery.RatePerSec < 0 {
		add(fieldErr("delivery.rate_per_sec", "must be >= 0", nil))
	}

	st.NoticeEnabled = c.Notice.Enabled == nil || *c.Notice.Enabled
	st.NoticeHour = DefaultNoticeH
	if c.Notice.Hour != nil {
		st.NoticeHour = *c.Notice.Hour
	}
	if st.NoticeHour < 0 || st.NoticeHour > 23 {
		add(fieldErr("notice.hour", fmt.Sprintf("%d is outside 0..23", st.NoticeHour), nil))
	}
	tz := strings.TrimSpace(c.Notice.Timezone)
	if tz == "" {
		tz = DefaultTimezone
	}
	if st.Location, err = time.LoadLocation(tz); err != nil {
		add(fieldErr("notice.timezone", fmt.Sprintf("unknown zone %q", tz), err))
	}

	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "file", "memory", "mem":
	default:
		add(fieldErr("storage.driver", fmt.Sprintf("unsupported driver %q", c.Storage.Driver), nil))
	}

	if addr := strings.TrimSpace(c.HTTP.Addr); addr != "" {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			add(fieldErr("http.addr", fmt.Sprintf("invalid address %q", addr), err))
		}
	}

	if err := scheduler.Validate(st.SchedulerConfig()); err != nil {
		add(fieldErr("scheduler", "invalid", err))
	}

	if lv := strings.TrimSpace(c.Logging.Level); lv != "" {
		if _, ok := logx.ParseLevel(lv); !ok {
			add(fieldErr("logging.level", fmt.Sprintf("unknown level %q", lv), nil))
		}
	}
	if c.Logging.Telegram.Enabled {
		if lv := strings.TrimSpace(c.Logging.Telegram.MinLevel); lv != "" {
			if _, ok := logx.ParseLevel(lv); !ok {
				add(fieldErr("logging.telegram.min_level", fmt.Sprintf("unknown level %q", lv), nil))
			}
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return st, nil
}

// SchedulerConfig converts the scheduler section.
func (s *Settings) SchedulerConfig() scheduler.Config {
	c := s.Raw.Scheduler
	tz := strings.TrimSpace(c.Timezone)
	if tz == "" {
		tz = strings.TrimSpace(s.Raw.Notice.Timezone)
	}
	return scheduler.Config{
		Enabled:  c.Enabled,
		Schedule: strings.TrimSpace(c.Schedule),
		Timezone: tz,
		Timeout:  s.SchedTimeout,
	}
}

// LoggingConfig converts the logging section. The Telegram sink falls back
// to the delivery chat when no operator chat is set.
func (s *Settings) LoggingConfig() logx.Config {
	l := s.Raw.Logging
	chat := strings.TrimSpace(l.Telegram.ChatID)
	if chat == "" {
		chat = strings.TrimSpace(s.Raw.Telegram.ChatID)
	}
	return logx.Config{
		Level:   l.Level,
		Console: l.Console == nil || *l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Telegram: logx.TelegramConfig{
			Enabled:    l.Telegram.Enabled,
			ChatID:     chat,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
		},
	}
}

// IsConfigError reports whether err contains at least one *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

func checkHTTPURL(field, raw string) error {
	if raw == "" {
		return fieldErr(field, "is required", nil)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fieldErr(field, fmt.Sprintf("invalid URL %q", raw), err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fieldErr(field, fmt.Sprintf("%q is not an absolute http(s) URL", raw), nil)
	}
	return nil
}
