package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "pdfbot/pkg/logx"
)

// Config controls the internal schedule.
type Config struct {
	Enabled  bool
	Schedule string
	Timezone string // IANA TZ, e.g. "Europe/Rome"
	// Timeout bounds one job run. Zero means no bound beyond the service
	// context.
	Timeout time.Duration
}

// Job is what a tick runs.
type Job func(ctx context.Context) error

type Service struct {
	mu sync.Mutex

	log    logx.Logger
	cfg    Config
	job    Job
	parser cron.Parser

	c       *cron.Cron
	entry   cron.EntryID
	ctx     context.Context
	cancel  context.CancelFunc
	loc     *time.Location
	spec    ParsedSpec
	lastRun time.Time
	lastErr error
}
