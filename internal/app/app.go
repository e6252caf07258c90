package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"pdfbot/internal/config"
	"pdfbot/internal/delivery"
	"pdfbot/internal/eventbus"
	"pdfbot/internal/notifier"
	"pdfbot/internal/runtime/supervisor"
	"pdfbot/internal/server"
	"pdfbot/internal/source"
	"pdfbot/internal/storage"
	"pdfbot/internal/task/scheduler"
	telegram "pdfbot/internal/transport/telegram/adapter"
	"pdfbot/internal/watcher"
	logx "pdfbot/pkg/logx"
	"pdfbot/pkg/systemd"
)

type App struct {
	cfgm *config.ConfigManager
	st   *config.Settings
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter *telegram.Adapter
	notice  *notifier.Service
	watch   *watcher.Watcher
	sched   *scheduler.Service
	http    *server.Service
	sd      systemd.Notifier
}

type options struct {
	clock  watcher.Clock
	client *http.Client
}

type Option func(*options)

// WithClock replaces the wall clock used for the daily notice.
func WithClock(c watcher.Clock) Option { return func(o *options) { o.clock = c } }

// WithHTTPClient sets the client used for the source page and downloads.
func WithHTTPClient(c *http.Client) Option { return func(o *options) { o.client = c } }

// New wires every component from a resolved configuration. Nothing runs
// until Start.
func New(cfgm *config.ConfigManager, st *config.Settings, opts ...Option) (*App, error) {
	if cfgm == nil || st == nil || st.Raw == nil {
		return nil, fmt.Errorf("app: config is required")
	}
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	cfg := st.Raw

	// Logging first; the Telegram sink is attached once the adapter exists.
	logSvc, root := logx.New(st.LoggingConfig(), nil)
	log := root.With(logx.String("comp", "app"))

	ad, err := telegram.New(telegram.Config{
		Token:   cfg.Telegram.Token,
		APIURL:  cfg.Telegram.APIURL,
		Timeout: st.TelegramTimeout,
	}, root.With(logx.String("comp", "telegram")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	logSvc.SetSender(ad)

	store, err := storage.Open(storage.Config{
		Driver: cfg.Storage.Driver,
		Path:   cfg.Storage.Path,
	}, root.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	lister := source.New(o.client, source.Options{
		Timeout:   st.SourceTimeout,
		UserAgent: cfg.Source.UserAgent,
		MaxBytes:  cfg.Source.MaxBytes,
	}, root.With(logx.String("comp", "source")))

	sink := delivery.New(delivery.Config{
		ChatID:          cfg.Telegram.ChatID,
		DownloadTimeout: st.DownloadTimeout,
		MaxBytes:        cfg.Delivery.MaxBytes,
		RatePerSec:      cfg.Delivery.RatePerSec,
		UserAgent:       cfg.Source.UserAgent,
	}, ad, o.client, root.With(logx.String("comp", "delivery")))

	noticeSvc := notifier.New(noticeConfig(st), root.With(logx.String("comp", "notice")))
	bus := eventbus.New()

	w := watcher.New(watcher.Config{SourceURL: cfg.Source.URL}, watcher.Deps{
		Store:  store,
		Lister: lister,
		Sink:   sink,
		Notice: noticeSvc,
		Bus:    bus,
		Clock:  o.clock,
		Log:    root.With(logx.String("comp", "watcher")),
	})

	sched := scheduler.New(st.SchedulerConfig(), func(ctx context.Context) error {
		res, err := w.TryRun(ctx, "schedule")
		if errors.Is(err, watcher.ErrBusy) {
			// a triggered pass is covering this tick
			return nil
		}
		if err != nil {
			return err
		}
		return res.ListErr
	}, root.With(logx.String("comp", "scheduler")))

	httpSvc := server.New(server.Config{
		Addr:         cfg.HTTP.Addr,
		Async:        cfg.HTTP.Async,
		Pprof:        cfg.HTTP.Pprof,
		Token:        cfg.HTTP.Token,
		ReadTimeout:  st.ReadTimeout,
		WriteTimeout: st.WriteTimeout,
		Notices:      noticeSvc.Snapshot,
	}, w, root.With(logx.String("comp", "http")))

	return &App{
		cfgm:    cfgm,
		st:      st,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		adapter: ad,
		notice:  noticeSvc,
		watch:   w,
		sched:   sched,
		http:    httpSvc,
		sd:      systemd.Notifier{Log: root.With(logx.String("comp", "systemd"))},
	}, nil
}

func noticeConfig(st *config.Settings) notifier.Config {
	return notifier.Config{
		Enabled:  st.NoticeEnabled,
		Hour:     st.NoticeHour,
		Text:     st.Raw.Notice.Text,
		Location: st.Location,
	}
}

// Watcher exposes the pass orchestrator, e.g. for a one-shot run.
func (a *App) Watcher() *watcher.Watcher { return a.watch }

// Addr is the bound HTTP address once started.
func (a *App) Addr() string { return a.http.Addr() }

// RunOnce performs a single pass without starting any listener.
func (a *App) RunOnce(ctx context.Context) watcher.Result {
	return a.watch.Run(ctx, "once")
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	startCfg := a.st.Raw

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		_, err := cfg.Resolve()
		return err
	})

	if err := a.http.Start(a.sup.Context()); err != nil {
		a.sup.Cancel()
		return fmt.Errorf("http: %w", err)
	}
	if err := a.sched.Start(a.sup.Context()); err != nil {
		a.sup.Cancel()
		return fmt.Errorf("scheduler: %w", err)
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	runs, unsubRuns := a.bus.Subscribe(4, eventbus.TypeRun)
	a.sup.Go0("systemd.status", func(c context.Context) {
		defer unsubRuns()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-runs:
				if !ok {
					return
				}
				if sum, ok := e.Data.(eventbus.RunSummary); ok {
					a.sd.Status(fmt.Sprintf("last pass %s: %d new, %d delivered, %d failed",
						e.Time.Format(time.RFC3339), sum.New, sum.Delivered, sum.Failed))
				}
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	// A broken watch only stops hot reload; keep retrying instead of failing the app.
	a.sup.GoRestart("config.watch", a.cfgm.Watch, supervisor.WithRestartBackoff(time.Second, time.Minute))
	a.sup.Go0("systemd.watchdog", a.sd.Watchdog)

	a.sd.Ready()
	a.log.Info("app started",
		logx.String("source", startCfg.Source.URL),
		logx.String("addr", a.http.Addr()),
		logx.Bool("schedule", startCfg.Scheduler.Enabled),
	)
	return nil
}

// applyConfig hot-applies logging, notice and schedule changes. Other
// sections are only reported.
func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs, restart := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	st, err := newCfg.Resolve()
	if err != nil {
		a.log.Warn("config reload rejected", logx.Err(err))
		return
	}
	a.sd.Reloading()
	defer a.sd.Ready()

	a.logs.Apply(st.LoggingConfig())
	a.notice.Apply(noticeConfig(st))
	if err := a.sched.Apply(ctx, st.SchedulerConfig()); err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
	}
	a.st = st

	if len(restart) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(restart, ",")))
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason string) error {
	if a.sup == nil {
		a.closeResources()
		return nil
	}
	a.sd.Stopping()
	a.log.Info("stopping", logx.String("reason", reason))

	// First, cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	// Run a shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, maxWait time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, maxWait)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	// a pass in flight saves what it delivered before returning
	step("http", 10*time.Second, a.http.Stop)
	step("supervisor", 2*time.Second, a.sup.Wait)

	a.log.Info("stopped")
	a.closeResources()
	return nil
}

func (a *App) closeResources() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close failed", logx.Err(err))
		}
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
}
