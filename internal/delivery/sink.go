package delivery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"pdfbot/internal/document"
	kit "pdfbot/internal/transport"
	logx "pdfbot/pkg/logx"
)

const (
	DefaultDownloadTimeout = 60 * time.Second
	// DefaultMaxBytes is the Bot API upload ceiling.
	DefaultMaxBytes   = 50 << 20
	DefaultRatePerSec = 1.0
	DefaultUserAgent  = "Mozilla/5.0 (compatible; pdfbot/1.0)"
	documentMIME      = "application/pdf"
)

type Config struct {
	ChatID          string
	DownloadTimeout time.Duration
	// MaxBytes caps a download. Zero means DefaultMaxBytes, negative means
	// no cap.
	MaxBytes   int64
	RatePerSec float64
	UserAgent  string
}

// Sink delivers documents and notices to one chat.
//
// It is safe for concurrent use.
type Sink struct {
	cfg     Config
	client  *http.Client
	sender  kit.Sender
	limiter *rate.Limiter
	log     logx.Logger
}

// New builds a Sink. A nil client gets a fresh one bounded by
// cfg.DownloadTimeout.
func New(cfg Config, sender kit.Sender, client *http.Client, log logx.Logger) *Sink {
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = DefaultDownloadTimeout
	}
	if cfg.MaxBytes == 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = DefaultRatePerSec
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.DownloadTimeout}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sink{
		cfg:     cfg,
		client:  client,
		sender:  sender,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1),
		log:     log,
	}
}

func (s *Sink) target() kit.ChatTarget { return kit.ChatTarget{ChatID: s.cfg.ChatID} }

// DeliverDocument downloads it and submits it to the chat. It reports true
// only when the channel accepted the upload; failures are logged.
func (s *Sink) DeliverDocument(ctx context.Context, it document.Item) bool {
	start := time.Now()
	ref, err := s.Deliver(ctx, it)
	if err != nil {
		s.log.Warn("document not delivered",
			logx.String("url", it.URL),
			logx.String("name", it.Name),
			logx.Err(err),
		)
		return false
	}
	s.log.Info("document delivered",
		logx.String("name", it.Name),
		logx.Int("message_id", ref.MessageID),
		logx.Duration("took", time.Since(start)),
	)
	return true
}

// Deliver is DeliverDocument with the typed error instead of a log line.
// Errors are *FetchError or *DeliveryError.
func (s *Sink) Deliver(ctx context.Context, it document.Item) (kit.MessageRef, error) {
	data, err := s.Download(ctx, it.URL)
	if err != nil {
		return kit.MessageRef{}, err
	}

	name := FileName(it.Name)
	if err := s.limiter.Wait(ctx); err != nil {
		return kit.MessageRef{}, &DeliveryError{What: name, Cause: err}
	}
	ref, err := s.sender.SendDocument(ctx, s.target(), kit.Document{
		FileName: name,
		Caption:  Caption(it.Name),
		MIME:     documentMIME,
		Data:     data,
	})
	if err != nil {
		return kit.MessageRef{}, &DeliveryError{What: name, Cause: err}
	}
	return ref, nil
}

// Download fetches url into memory, bounded by the configured timeout and
// size cap.
func (s *Sink) Download(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.DownloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Message: "HTTP request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode, Message: fmt.Sprintf("HTTP status %d", resp.StatusCode)}
	}

	var body io.Reader = resp.Body
	if s.cfg.MaxBytes > 0 {
		if resp.ContentLength > s.cfg.MaxBytes {
			return nil, &FetchError{URL: url, StatusCode: resp.StatusCode, Message: fmt.Sprintf("too large: %d bytes", resp.ContentLength)}
		}
		body = io.LimitReader(resp.Body, s.cfg.MaxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode, Message: "failed to read body", Cause: err}
	}
	if s.cfg.MaxBytes > 0 && int64(len(data)) > s.cfg.MaxBytes {
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode, Message: fmt.Sprintf("too large: over %d bytes", s.cfg.MaxBytes)}
	}
	return data, nil
}

// SendNotice submits a plain text message. It reports true only when the
// channel accepted it.
func (s *Sink) SendNotice(ctx context.Context, text string) bool {
	if err := s.Notify(ctx, text); err != nil {
		s.log.Warn("notice not delivered", logx.Err(err))
		return false
	}
	s.log.Info("notice delivered")
	return true
}

// Notify is SendNotice with the typed error.
func (s *Sink) Notify(ctx context.Context, text string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return &DeliveryError{What: "notice", Cause: err}
	}
	if _, err := s.sender.SendText(ctx, s.target(), text, &kit.SendOptions{DisablePreview: true}); err != nil {
		return &DeliveryError{What: "notice", Cause: err}
	}
	return nil
}
