package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"pdfbot/internal/document"
	logx "pdfbot/pkg/logx"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "Mozilla/5.0 (compatible; pdfbot/1.0)"
	DefaultMaxBytes  = 8 << 20
)

// Options configures the listing fetch.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	// MaxBytes caps the page body. Zero means DefaultMaxBytes, negative means
	// no cap.
	MaxBytes int64
}

// Lister retrieves the listing page and returns the linked documents.
type Lister struct {
	client *http.Client
	opts   Options
	log    logx.Logger
}

// New builds a Lister. A nil client gets a fresh one with opts.Timeout.
func New(client *http.Client, opts Options, log logx.Logger) *Lister {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.MaxBytes == 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Lister{client: client, opts: opts, log: log}
}

// List fetches sourceURL and returns its document links in page order,
// de-duplicated by absolute URL.
func (l *Lister) List(ctx context.Context, sourceURL string) ([]document.Item, error) {
	u, err := url.Parse(strings.TrimSpace(sourceURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, &FetchError{URL: sourceURL, Message: "invalid URL", Cause: err}
	}

	ctx, cancel := context.WithTimeout(ctx, l.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &FetchError{URL: sourceURL, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("User-Agent", l.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: sourceURL, Message: "HTTP request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &FetchError{URL: sourceURL, StatusCode: resp.StatusCode, Message: fmt.Sprintf("HTTP status %d", resp.StatusCode)}
	}

	var body io.Reader = resp.Body
	if l.opts.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, l.opts.MaxBytes)
	}
	r, err := charset.NewReader(body, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, &FetchError{URL: sourceURL, StatusCode: resp.StatusCode, Message: "unsupported charset", Cause: err}
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, &FetchError{URL: sourceURL, StatusCode: resp.StatusCode, Message: "failed to parse HTML", Cause: err}
	}

	// Relative links resolve against where the page actually came from.
	base := u
	if resp.Request != nil && resp.Request.URL != nil {
		base = resp.Request.URL
	}
	items := Extract(doc, base)
	l.log.Debug("listing parsed", logx.String("url", base.String()), logx.Int("items", len(items)))
	return items, nil
}

// Extract returns the document links of doc resolved against base.
//
// A link qualifies when its path ends in document.Extension (case-insensitive).
// Fragments are dropped from the identifier. The first occurrence of each
// absolute URL wins.
func Extract(doc *goquery.Document, base *url.URL) []document.Item {
	if b, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if bu, err := url.Parse(strings.TrimSpace(b)); err == nil {
			base = base.ResolveReference(bu)
		}
	}

	seen := make(map[string]struct{})
	var out []document.Item
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		abs.Fragment = ""
		abs.RawFragment = ""
		if !document.HasExtension(abs) {
			return
		}
		it, err := document.NewItem(abs.String())
		if err != nil {
			return
		}
		if _, dup := seen[it.URL]; dup {
			return
		}
		seen[it.URL] = struct{}{}
		out = append(out, it)
	})
	return out
}
