package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	logx "pdfbot/pkg/logx"
)

func New(cfg Config, job Job, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg: cfg,
		job: job,
		log: log,
		parser: cronParser,
	}
}

// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate checks cfg without starting anything.
func Validate(cfg Config) error {
	if !cfg.Enabled {
		return nil
	}
	spec, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return err
	}
	if spec.Kind == SpecCron {
		if _, err := cronParser.Parse(spec.Cron); err != nil {
			return fmt.Errorf("invalid cron %q: %w", spec.Cron, err)
		}
	}
	_, err = loadLocation(cfg.Timezone)
	return err
}

func loadLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	return loc, nil
}

// Start registers the schedule and begins ticking. It is a no-op when the
// schedule is disabled or already running.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil || !s.cfg.Enabled {
		return nil
	}
	if s.job == nil {
		return errors.New("scheduler: no job")
	}
	if err := Validate(s.cfg); err != nil {
		return err
	}
	spec, _ := ParseSchedule(s.cfg.Schedule)
	loc, _ := loadLocation(s.cfg.Timezone)

	cl := cronLogger{log: s.log}
	c := cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	s.ctx, s.cancel = context.WithCancel(ctx)
	run := cron.FuncJob(s.tick)

	var err error
	switch spec.Kind {
	case SpecInterval:
		s.entry = c.Schedule(cron.Every(spec.Every), run)
	default:
		s.entry, err = c.AddJob(spec.Cron, run)
	}
	if err != nil {
		s.cancel()
		return err
	}

	s.c, s.loc, s.spec = c, loc, spec
	c.Start()
	s.log.Info("schedule started",
		logx.String("schedule", strings.TrimSpace(s.cfg.Schedule)),
		logx.String("kind", spec.Kind.String()),
		logx.String("tz", loc.String()),
		logx.Time("next", c.Entry(s.entry).Next),
	)
	return nil
}

func (s *Service) tick() {
	s.mu.Lock()
	ctx, job, timeout := s.ctx, s.job, s.cfg.Timeout
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	err := job(ctx)

	s.mu.Lock()
	s.lastRun, s.lastErr = start, err
	s.mu.Unlock()
	if err != nil {
		s.log.Warn("scheduled run failed", logx.Err(err), logx.Duration("took", time.Since(start)))
		return
	}
	s.log.Debug("scheduled run done", logx.Duration("took", time.Since(start)))
}

// Next returns the next planned tick, zero when not running.
func (s *Service) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return time.Time{}
	}
	return s.c.Entry(s.entry).Next
}

// Apply swaps the configuration, restarting the schedule when it changed.
func (s *Service) Apply(ctx context.Context, cfg Config) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	s.mu.Lock()
	prev := s.cfg
	running := s.c != nil
	s.mu.Unlock()
	if running && prev.Enabled == cfg.Enabled && prev.Schedule == cfg.Schedule && prev.Timezone == cfg.Timezone {
		s.mu.Lock()
		s.cfg.Timeout = cfg.Timeout
		s.mu.Unlock()
		return nil
	}
	s.Stop(ctx)
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return s.Start(ctx)
}

// Stop stops ticking and waits, within ctx, for a running job to return.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c, cancel := s.c, s.cancel
	s.c, s.cancel = nil, nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	if cancel != nil {
		cancel()
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("schedule stopped")
}

// cronLogger routes robfig/cron diagnostics into logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			k = fmt.Sprint(kv[i])
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
