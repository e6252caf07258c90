package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kit "pdfbot/internal/transport"
	logx "pdfbot/pkg/logx"
)

const okMessage = `{"ok":true,"result":{"message_id":42,"date":0,"chat":{"id":-100,"type":"channel"}}}`

type apiCall struct {
	Method  string
	Fields  map[string]string
	File    []byte
	HasFile bool
}

type fakeBotAPI struct {
	mu    sync.Mutex
	calls []apiCall
	fail  string
}

func (f *fakeBotAPI) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		call := apiCall{Method: method, Fields: map[string]string{}}

		ct := r.Header.Get("Content-Type")
		if strings.HasPrefix(ct, "multipart/") {
			if !assert.NoError(t, r.ParseMultipartForm(32<<20)) {
				return
			}
			for k, v := range r.MultipartForm.Value {
				call.Fields[k] = v[0]
			}
			if fh, ok := r.MultipartForm.File["document"]; ok {
				if fd, err := fh[0].Open(); assert.NoError(t, err) {
					call.File, _ = io.ReadAll(fd)
					call.HasFile = true
					_ = fd.Close()
				}
			}
		} else {
			var m map[string]any
			_ = json.NewDecoder(r.Body).Decode(&m)
			for k, v := range m {
				if s, ok := v.(string); ok {
					call.Fields[k] = s
				}
			}
		}

		f.mu.Lock()
		f.calls = append(f.calls, call)
		fail := f.fail
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if fail != "" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, fail)
			return
		}
		_, _ = io.WriteString(w, okMessage)
	})
}

func newTestAdapter(t *testing.T) (*Adapter, *fakeBotAPI) {
	t.Helper()
	fake := &fakeBotAPI{}
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	a, err := New(Config{Token: "123:abc", APIURL: srv.URL + "/"}, logx.Nop())
	require.NoError(t, err)
	return a, fake
}

func TestNewRequiresToken(t *testing.T) {
	_, err := New(Config{Token: "  "}, logx.Nop())
	assert.Error(t, err)
}

func TestSendDocumentMultipart(t *testing.T) {
	a, fake := newTestAdapter(t)

	ref, err := a.SendDocument(context.Background(), kit.ChatTarget{ChatID: "@notizie"}, kit.Document{
		FileName: "Bollettino n.3.pdf",
		Caption:  "Bollettino n.3",
		Data:     []byte("%PDF-1.4 test"),
	})
	require.NoError(t, err)
	assert.Equal(t, kit.MessageRef{ChatID: "@notizie", MessageID: 42}, ref)

	require.Len(t, fake.calls, 1)
	c := fake.calls[0]
	assert.Equal(t, "sendDocument", c.Method)
	assert.Equal(t, "@notizie", c.Fields["chat_id"])
	assert.Equal(t, "Bollettino n.3", c.Fields["caption"])
	require.True(t, c.HasFile)
	assert.Equal(t, "%PDF-1.4 test", string(c.File))
}

func TestSendDocumentCaptionCapped(t *testing.T) {
	a, fake := newTestAdapter(t)

	_, err := a.SendDocument(context.Background(), kit.ChatTarget{ChatID: "-100"}, kit.Document{
		FileName: "x.pdf",
		Caption:  strings.Repeat("è", 1500),
		Data:     []byte("x"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1024, len([]rune(fake.calls[0].Fields["caption"])))
}

func TestSendTextJSON(t *testing.T) {
	a, fake := newTestAdapter(t)

	ref, err := a.SendText(context.Background(), kit.ChatTarget{ChatID: "-100123"}, "Buongiorno", nil)
	require.NoError(t, err)
	assert.Equal(t, 42, ref.MessageID)

	require.Len(t, fake.calls, 1)
	assert.Equal(t, "sendMessage", fake.calls[0].Method)
	assert.Equal(t, "-100123", fake.calls[0].Fields["chat_id"])
	assert.Equal(t, "Buongiorno", fake.calls[0].Fields["text"])
}

func TestSendErrorsCarryDescription(t *testing.T) {
	a, fake := newTestAdapter(t)
	fake.fail = `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`

	_, err := a.SendDocument(context.Background(), kit.ChatTarget{ChatID: "-1"}, kit.Document{FileName: "a.pdf", Data: []byte("x")})
	var apiErr *kit.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "sendDocument", apiErr.Method)
	assert.Contains(t, apiErr.Error(), "chat not found")

	_, err = a.SendText(context.Background(), kit.ChatTarget{}, "x", nil)
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "sendMessage", apiErr.Method)
}

func TestSplitTelegramText(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitTelegramText("short", 10, ""))

	long := strings.Repeat("a", 8) + "\n" + strings.Repeat("b", 8)
	assert.Equal(t, []string{strings.Repeat("a", 8), strings.Repeat("b", 8)}, splitTelegramText(long, 10, ""))

	html := "abcdef<b>bold</b>"
	for _, chunk := range splitTelegramText(html, 8, "HTML") {
		assert.False(t, strings.HasSuffix(chunk, "<b"), chunk)
	}
}
