package watcher

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"pdfbot/internal/document"
	"pdfbot/internal/eventbus"
	"pdfbot/internal/storage"
	logx "pdfbot/pkg/logx"
)

type Config struct {
	SourceURL string
}

type Deps struct {
	Store  storage.Store
	Lister Lister
	Sink   Sink
	Notice NoticePolicy
	Bus    eventbus.Bus
	Clock  Clock
	Log    logx.Logger
}

// Watcher is the orchestrator. It is safe for concurrent use; passes are
// serialized.
type Watcher struct {
	cfg  Config
	deps Deps
	log  logx.Logger

	runMu   sync.Mutex
	running atomic.Bool

	mu   sync.Mutex
	last *Result
	runs uint64
}

func New(cfg Config, deps Deps) *Watcher {
	cfg.SourceURL = strings.TrimSpace(cfg.SourceURL)
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Watcher{cfg: cfg, deps: deps, log: log}
}

// Run performs one pass, waiting for a pass already in progress to finish.
func (w *Watcher) Run(ctx context.Context, trigger string) Result {
	w.runMu.Lock()
	defer w.runMu.Unlock()
	return w.run(ctx, trigger)
}

// TryRun performs one pass unless another is in progress, in which case it
// returns ErrBusy at once.
func (w *Watcher) TryRun(ctx context.Context, trigger string) (Result, error) {
	if !w.runMu.TryLock() {
		return Result{Trigger: trigger}, ErrBusy
	}
	defer w.runMu.Unlock()
	return w.run(ctx, trigger), nil
}

// Running reports whether a pass is in progress.
func (w *Watcher) Running() bool { return w.running.Load() }

// Last returns the most recent result and how many passes have completed.
func (w *Watcher) Last() (Result, uint64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.last == nil {
		return Result{}, w.runs, false
	}
	return *w.last, w.runs, true
}

func (w *Watcher) run(ctx context.Context, trigger string) Result {
	w.running.Store(true)
	defer w.running.Store(false)

	start := w.deps.Clock.Now()
	res := Result{Trigger: trigger, Started: start}
	log := w.log.With(logx.String("trigger", trigger))
	log.Info("check started", logx.String("source", w.cfg.SourceURL))

	st := w.deps.Store.Load(ctx)
	delivered := document.NewSet(st.Sent)
	log.Debug("state loaded", logx.Int("sent", len(st.Sent)))

	items, err := w.deps.Lister.List(ctx, w.cfg.SourceURL)
	if err != nil {
		log.Warn("source unavailable, nothing to deliver this round", logx.Err(err))
		res.ListErr = err
		items = nil
	}
	res.Listed = len(items)

	fresh := document.Diff(items, delivered)
	res.New = len(fresh)
	dirty := false

	// The page lists newest first; deliver oldest first.
	for _, it := range document.Reverse(fresh) {
		if ctx.Err() != nil {
			log.Warn("check interrupted, remaining documents left for the next round", logx.Err(ctx.Err()))
			res.Failed = res.New - res.Delivered
			break
		}
		if w.deps.Sink.DeliverDocument(ctx, it) {
			st.MarkSent(it.URL)
			dirty = true
			res.Delivered++
			w.publish(eventbus.TypeDelivered, eventbus.DocumentEvent{URL: it.URL, Name: it.Name})
			continue
		}
		res.Failed++
		w.publish(eventbus.TypeFailed, eventbus.DocumentEvent{URL: it.URL, Name: it.Name, Error: "not delivered"})
	}

	if w.deps.Notice != nil && ctx.Err() == nil {
		now := w.deps.Clock.Now()
		if today, due := w.deps.Notice.Due(now, st); due {
			text := w.deps.Notice.Text()
			ok := w.deps.Sink.SendNotice(ctx, text)
			w.deps.Notice.Record(now, text, ok)
			w.publish(eventbus.TypeNotice, eventbus.NoticeEvent{Date: today.String(), OK: ok})
			if ok {
				st.LastNoticeDate = &today
				dirty = true
				res.Noticed = true
			}
		}
	}

	if dirty {
		// Successful deliveries must be recorded even when the trigger went away.
		if err := w.deps.Store.Save(context.WithoutCancel(ctx), st); err != nil {
			log.Error("state not saved, delivered documents may be sent again", logx.Err(err))
			res.SaveErr = err
		} else {
			res.Saved = true
		}
	}

	res.Took = w.deps.Clock.Now().Sub(start)
	log.Info("check finished",
		logx.Int("listed", res.Listed),
		logx.Int("new", res.New),
		logx.Int("delivered", res.Delivered),
		logx.Int("failed", res.Failed),
		logx.Bool("noticed", res.Noticed),
		logx.Bool("saved", res.Saved),
		logx.Duration("took", res.Took),
	)

	summary := eventbus.RunSummary{
		Trigger:   trigger,
		Listed:    res.Listed,
		New:       res.New,
		Delivered: res.Delivered,
		Failed:    res.Failed,
		Noticed:   res.Noticed,
		Saved:     res.Saved,
		Took:      res.Took,
	}
	if res.ListErr != nil {
		summary.Error = res.ListErr.Error()
	}
	w.publish(eventbus.TypeRun, summary)

	w.mu.Lock()
	r := res
	w.last = &r
	w.runs++
	w.mu.Unlock()
	return res
}

func (w *Watcher) publish(typ string, data any) {
	if w.deps.Bus == nil {
		return
	}
	w.deps.Bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: data})
}
