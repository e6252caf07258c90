package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"pdfbot/internal/notifier"
	rtsup "pdfbot/internal/runtime/supervisor"
	"pdfbot/internal/watcher"
	logx "pdfbot/pkg/logx"
)

const (
	DefaultAddr = ":10000"

	msgCompleted = "Check completed"
	msgStarted   = "Check started"
	msgBusy      = "Check already running"
)

// Config controls the trigger server.
type Config struct {
	Addr string
	// Async answers 202 at once and runs the pass in the background.
	Async bool
	// Pprof mounts /debug/pprof/. On a non-loopback address it also needs
	// Token.
	Pprof bool
	Token string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Notices, when set, adds the recent daily notice attempts to /status.
	Notices func() []notifier.HistoryItem
}

// Runner is the check pass the server triggers.
type Runner interface {
	Run(ctx context.Context, trigger string) watcher.Result
	TryRun(ctx context.Context, trigger string) (watcher.Result, error)
	Running() bool
	Last() (watcher.Result, uint64, bool)
}

type Service struct {
	mu     sync.Mutex
	cfg    Config
	runner Runner
	log    logx.Logger

	ln  net.Listener
	srv *http.Server
	sup *rtsup.Supervisor
}

func New(cfg Config, runner Runner, log logx.Logger) *Service {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	// The synchronous trigger holds the response open for a whole pass.
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Minute
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, runner: runner, log: log}
}

// Handler builds the route table. Passes started by requests run on ctx,
// not on the request context, so a client hanging up does not cut a pass
// short.
func (s *Service) Handler(ctx context.Context, sup *rtsup.Supervisor) http.Handler {
	cfg := s.cfg
	mux := http.NewServeMux()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodPost:
		default:
			w.Header().Set("Allow", "GET, HEAD, POST")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if cfg.Async {
			s.triggerAsync(ctx, sup, w)
			return
		}
		s.runner.Run(ctx, "http")
		writeText(w, http.StatusOK, msgCompleted)
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeText(w, http.StatusOK, "ok")
	})

	mux.HandleFunc("/status", withAuth(cfg.Token, func(w http.ResponseWriter, r *http.Request) {
		s.writeStatus(w, sup)
	}))

	if cfg.Pprof {
		if cfg.Token == "" && !isLoopbackAddr(cfg.Addr) {
			s.log.Warn("pprof not mounted: non-loopback addr requires http.token", logx.String("addr", cfg.Addr))
		} else {
			mountPprof(mux, func(h http.HandlerFunc) http.HandlerFunc { return withAuth(cfg.Token, h) })
		}
	}
	return mux
}

func (s *Service) triggerAsync(ctx context.Context, sup *rtsup.Supervisor, w http.ResponseWriter) {
	if s.runner.Running() {
		writeText(w, http.StatusConflict, msgBusy)
		return
	}
	run := func(c context.Context) {
		if _, err := s.runner.TryRun(c, "http.async"); errors.Is(err, watcher.ErrBusy) {
			s.log.Info("async check skipped, another pass is running")
		}
	}
	if sup != nil {
		sup.Go0("check.async", run)
	} else {
		go run(ctx)
	}
	writeText(w, http.StatusAccepted, msgStarted)
}

type statusResult struct {
	Trigger   string    `json:"trigger"`
	Started   time.Time `json:"started"`
	Listed    int       `json:"listed"`
	New       int       `json:"new"`
	Delivered int       `json:"delivered"`
	Failed    int       `json:"failed"`
	Noticed   bool      `json:"noticed"`
	Saved     bool      `json:"saved"`
	TookMS    int64     `json:"took_ms"`
	ListError string    `json:"list_error,omitempty"`
	SaveError string    `json:"save_error,omitempty"`
}

type statusBody struct {
	Running bool              `json:"running"`
	Runs    uint64            `json:"runs"`
	Last    *statusResult     `json:"last,omitempty"`
	Tasks   []rtsup.TaskStats `json:"tasks,omitempty"`

	Notices []notifier.HistoryItem `json:"notices,omitempty"`
}

func (s *Service) writeStatus(w http.ResponseWriter, sup *rtsup.Supervisor) {
	body := statusBody{Running: s.runner.Running()}
	last, runs, ok := s.runner.Last()
	body.Runs = runs
	if ok {
		sr := &statusResult{
			Trigger:   last.Trigger,
			Started:   last.Started,
			Listed:    last.Listed,
			New:       last.New,
			Delivered: last.Delivered,
			Failed:    last.Failed,
			Noticed:   last.Noticed,
			Saved:     last.Saved,
			TookMS:    last.Took.Milliseconds(),
		}
		if last.ListErr != nil {
			sr.ListError = last.ListErr.Error()
		}
		if last.SaveErr != nil {
			sr.SaveError = last.SaveErr.Error()
		}
		body.Last = sr
	}
	if sup != nil {
		body.Tasks = sup.Snapshot()
	}
	if s.cfg.Notices != nil {
		body.Notices = s.cfg.Notices()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func writeText(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(msg))
}

// Start binds the listener, so an unusable address fails here, and serves
// in the background until Stop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}

	sup := rtsup.New(ctx, rtsup.WithLogger(s.log))
	srv := &http.Server{
		Handler:           s.Handler(sup.Context(), sup),
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       time.Minute,
	}
	s.ln, s.srv, s.sup = ln, srv, sup

	sup.Go("http.serve", func(c context.Context) error {
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) || c.Err() != nil {
			return nil
		}
		return err
	})
	s.log.Info("http trigger listening",
		logx.String("addr", ln.Addr().String()),
		logx.Bool("async", s.cfg.Async),
		logx.Bool("pprof", s.cfg.Pprof),
	)
	return nil
}

// Addr is the bound address, empty before Start.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Stop shuts the server down gracefully, then cancels background passes and
// waits for them within ctx.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, sup := s.srv, s.sup
	s.srv, s.sup, s.ln = nil, nil, nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	err := srv.Shutdown(ctx)
	if err != nil {
		_ = srv.Close()
	}
	if werr := sup.Stop(ctx); werr != nil && err == nil && !errors.Is(werr, context.Canceled) {
		err = werr
	}
	s.log.Info("http trigger stopped")
	return err
}
