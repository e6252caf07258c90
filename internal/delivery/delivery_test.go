package delivery

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfbot/internal/document"
	kit "pdfbot/internal/transport"
	logx "pdfbot/pkg/logx"
)

type recordingSender struct {
	mu    sync.Mutex
	docs  []kit.Document
	texts []string
	to    []kit.ChatTarget
	err   error
}

func (r *recordingSender) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return kit.MessageRef{}, r.err
	}
	r.texts = append(r.texts, text)
	r.to = append(r.to, to)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(r.texts)}, nil
}

func (r *recordingSender) SendDocument(_ context.Context, to kit.ChatTarget, doc kit.Document) (kit.MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return kit.MessageRef{}, r.err
	}
	r.docs = append(r.docs, doc)
	r.to = append(r.to, to)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(r.docs)}, nil
}

func newFileServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing.pdf":
			http.NotFound(w, r)
		case "/big.pdf":
			_, _ = w.Write([]byte(strings.Repeat("x", 64)))
		default:
			_, _ = w.Write([]byte("%PDF" + r.URL.Path))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestSink(sender kit.Sender, maxBytes int64) *Sink {
	return New(Config{ChatID: "@canale", RatePerSec: 1000, MaxBytes: maxBytes}, sender, nil, logx.Nop())
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "a b.pdf", FileName("a b.pdf"))
	assert.Equal(t, "a b.PDF", FileName("a b.PDF"))
	assert.Equal(t, "report.pdf", FileName("report"))
	assert.Equal(t, "document.pdf", FileName(""))
}

func TestCaption(t *testing.T) {
	assert.Equal(t, "Notiziario tecnico n 12", Caption("Notiziario_tecnico_n_12.pdf"))
	assert.Equal(t, "Bollettino", Caption("Bollettino.PDF"))
	assert.Equal(t, "pdf report", Caption("pdf_report"))
	assert.Len(t, []rune(Caption(strings.Repeat("à", 2000)+".pdf")), captionLimit)
}

func TestDeliverDocument(t *testing.T) {
	srv := newFileServer(t)
	rec := &recordingSender{}
	s := newTestSink(rec, 0)

	it, err := document.NewItem(srv.URL + "/files/Notiziario_n.3.pdf")
	require.NoError(t, err)

	assert.True(t, s.DeliverDocument(context.Background(), it))
	require.Len(t, rec.docs, 1)
	assert.Equal(t, "Notiziario_n.3.pdf", rec.docs[0].FileName)
	assert.Equal(t, "Notiziario n.3", rec.docs[0].Caption)
	assert.Equal(t, "%PDF/files/Notiziario_n.3.pdf", string(rec.docs[0].Data))
	assert.Equal(t, "@canale", rec.to[0].ChatID)
}

func TestDeliverDownloadFailure(t *testing.T) {
	srv := newFileServer(t)
	rec := &recordingSender{}
	s := newTestSink(rec, 0)

	_, err := s.Deliver(context.Background(), document.Item{URL: srv.URL + "/missing.pdf", Name: "missing.pdf"})
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusNotFound, fe.StatusCode)
	assert.Empty(t, rec.docs, "nothing is submitted when the download fails")

	assert.False(t, s.DeliverDocument(context.Background(), document.Item{URL: srv.URL + "/missing.pdf"}))
}

func TestDeliverSizeCap(t *testing.T) {
	srv := newFileServer(t)
	s := newTestSink(&recordingSender{}, 16)

	_, err := s.Deliver(context.Background(), document.Item{URL: srv.URL + "/big.pdf", Name: "big.pdf"})
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Contains(t, fe.Error(), "too large")
}

func TestDeliverChannelRejects(t *testing.T) {
	srv := newFileServer(t)
	rejected := &kit.APIError{Method: "sendDocument", Code: 400, Description: "Bad Request: chat not found"}
	s := newTestSink(&recordingSender{err: rejected}, 0)

	_, err := s.Deliver(context.Background(), document.Item{URL: srv.URL + "/a.pdf", Name: "a.pdf"})
	var de *DeliveryError
	require.True(t, errors.As(err, &de))
	var apiErr *kit.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 400, apiErr.Code)
}

func TestSendNotice(t *testing.T) {
	rec := &recordingSender{}
	s := newTestSink(rec, 0)
	assert.True(t, s.SendNotice(context.Background(), "Nessun nuovo documento"))
	assert.Equal(t, []string{"Nessun nuovo documento"}, rec.texts)

	rec.err = errors.New("boom")
	assert.False(t, s.SendNotice(context.Background(), "again"))
}
