package config

// Config is the file format. Every section is optional; environment
// variables override the file, and defaults fill the rest.
//
// Durations are Go duration strings ("30s", "1m").
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Source    SourceConfig    `json:"source"`
	Delivery  DeliveryConfig  `json:"delivery"`
	Notice    NoticeConfig    `json:"notice"`
	Storage   StorageConfig   `json:"storage"`
	HTTP      HTTPConfig      `json:"http"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Logging   LoggingConfig   `json:"logging"`
}

type TelegramConfig struct {
	Token  string `json:"token"`
	ChatID string `json:"chat_id"`
	// APIURL overrides https://api.telegram.org (self-hosted Bot API).
	APIURL  string `json:"api_url,omitempty"`
	Timeout string `json:"timeout,omitempty"`
}

type SourceConfig struct {
	URL       string `json:"url"`
	Timeout   string `json:"timeout,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	MaxBytes  int64  `json:"max_bytes,omitempty"`
}

type DeliveryConfig struct {
	DownloadTimeout string  `json:"download_timeout,omitempty"`
	MaxBytes        int64   `json:"max_bytes,omitempty"`
	RatePerSec      float64 `json:"rate_per_sec,omitempty"`
}

// NoticeConfig controls the daily informational message.
//
// Enabled and Hour are pointers so an explicit false / 0 survives defaulting.
type NoticeConfig struct {
	Enabled  *bool  `json:"enabled,omitempty"`
	Hour     *int   `json:"hour,omitempty"`
	Text     string `json:"text,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

type StorageConfig struct {
	Driver string `json:"driver,omitempty"`
	Path   string `json:"path,omitempty"`
}

type HTTPConfig struct {
	Addr  string `json:"addr,omitempty"`
	Async bool   `json:"async,omitempty"`
	Pprof bool   `json:"pprof,omitempty"`
	// Token protects /status and /debug/pprof/.
	Token        string `json:"token,omitempty"`
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
}

type SchedulerConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"`
	Timezone string `json:"timezone,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string            `json:"level"`
	Console  *bool             `json:"console,omitempty"`
	File     LoggingFileConfig `json:"file"`
	Telegram LoggingTGConfig   `json:"telegram"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// LoggingTGConfig forwards WARN+ records to an operator chat.
type LoggingTGConfig struct {
	Enabled    bool   `json:"enabled"`
	ChatID     string `json:"chat_id,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}
