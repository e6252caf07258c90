package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfbot/internal/config"
	"pdfbot/internal/watcher"
)

const okMessage = `{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":-100,"type":"channel"}}}`

type botCall struct {
	Method   string
	ChatID   string
	FileName string
	Text     string
}

type fakeBot struct {
	mu    sync.Mutex
	calls []botCall
}

func (f *fakeBot) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c := botCall{Method: r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := r.ParseMultipartForm(32 << 20); err == nil {
			c.ChatID = r.FormValue("chat_id")
			if fh := r.MultipartForm.File["document"]; len(fh) > 0 {
				c.FileName = fh[0].Filename
			}
		}
	} else {
		var m map[string]any
		_ = json.NewDecoder(r.Body).Decode(&m)
		c.ChatID = fmt.Sprint(m["chat_id"])
		c.Text, _ = m["text"].(string)
	}
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, okMessage)
}

func (f *fakeBot) byMethod(m string) []botCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []botCall
	for _, c := range f.calls {
		if c.Method == m {
			out = append(out, c)
		}
	}
	return out
}

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/list/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, `<html><body>
<a href="/files/Bollettino_12.pdf">latest</a>
<a href="/files/Bollettino_11.pdf">older</a>
<a href="/about">about</a>
</body></html>`)
	})
	mux.HandleFunc("/files/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = io.WriteString(w, "%PDF-1.4 "+r.URL.Path)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestApp(t *testing.T, now time.Time) (*App, *fakeBot, string) {
	t.Helper()
	bot := &fakeBot{}
	api := httptest.NewServer(bot)
	t.Cleanup(api.Close)
	site := newSite(t)

	statePath := filepath.Join(t.TempDir(), "state.json")
	env := map[string]string{
		config.EnvToken:     "123:abc",
		config.EnvChatID:    "-100",
		config.EnvAPIURL:    api.URL,
		config.EnvSourceURL: site.URL + "/list/",
		config.EnvStateFile: statePath,
		config.EnvTimezone:  "Europe/Rome",
		config.EnvLogLevel:  "error",
	}
	cfgm := config.NewConfigManager("")
	cfgm.SetLookup(func(k string) (string, bool) { v, ok := env[k]; return v, ok })
	cfg, err := cfgm.Load()
	require.NoError(t, err)
	cfg.HTTP.Addr = "127.0.0.1:0"
	st, err := cfg.Resolve()
	require.NoError(t, err)

	a, err := New(cfgm, st, WithClock(watcher.ClockFunc(func() time.Time { return now })))
	require.NoError(t, err)
	return a, bot, statePath
}

func TestTriggerDeliversNewDocumentsOnce(t *testing.T) {
	rome, err := time.LoadLocation("Europe/Rome")
	require.NoError(t, err)
	a, bot, statePath := newTestApp(t, time.Date(2024, 3, 14, 7, 30, 0, 0, rome))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Start(ctx))

	trigger := func() {
		resp, err := http.Get("http://" + a.Addr() + "/")
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "Check completed", string(body))
	}

	trigger()
	docs := bot.byMethod("sendDocument")
	require.Len(t, docs, 2)
	// oldest first
	assert.Equal(t, "Bollettino_11.pdf", docs[0].FileName)
	assert.Equal(t, "Bollettino_12.pdf", docs[1].FileName)
	assert.Equal(t, "-100", docs[0].ChatID)
	assert.Len(t, bot.byMethod("sendMessage"), 1, "daily notice at 07:xx")

	trigger()
	assert.Len(t, bot.byMethod("sendDocument"), 2, "nothing new on the second pass")
	assert.Len(t, bot.byMethod("sendMessage"), 1, "notice only once per day")

	res, runs, ok := a.Watcher().Last()
	require.True(t, ok)
	assert.Equal(t, uint64(2), runs)
	assert.Equal(t, 2, res.Listed)
	assert.Equal(t, 0, res.New)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	require.NoError(t, a.Stop(stopCtx, "test"))

	raw, err := os.ReadFile(statePath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "/files/Bollettino_11.pdf")
	assert.Contains(t, string(raw), "/files/Bollettino_12.pdf")
	assert.Contains(t, string(raw), `"lastNoticeDate": "2024-03-14"`)
}

func TestRunOnceOutsideNoticeHour(t *testing.T) {
	a, bot, _ := newTestApp(t, time.Date(2024, 3, 14, 12, 0, 0, 0, time.UTC))

	res := a.RunOnce(context.Background())
	assert.Equal(t, 2, res.Delivered)
	assert.False(t, res.Noticed)
	assert.True(t, res.Saved)
	assert.Empty(t, bot.byMethod("sendMessage"))

	require.NoError(t, a.Stop(context.Background(), "test"))
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(nil, nil)
	assert.Error(t, err)
}
