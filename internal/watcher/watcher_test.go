package watcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfbot/internal/document"
	"pdfbot/internal/eventbus"
	"pdfbot/internal/notifier"
	"pdfbot/internal/storage"
	logx "pdfbot/pkg/logx"
)

type fakeLister struct {
	items []document.Item
	err   error
}

func (f *fakeLister) List(context.Context, string) ([]document.Item, error) {
	return f.items, f.err
}

type fakeSink struct {
	mu        sync.Mutex
	delivered []string
	notices   []string
	failURLs  map[string]bool
	failText  bool
	block     chan struct{}
}

func (f *fakeSink) DeliverDocument(_ context.Context, it document.Item) bool {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failURLs[it.URL] {
		return false
	}
	f.delivered = append(f.delivered, it.URL)
	return true
}

func (f *fakeSink) SendNotice(_ context.Context, text string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failText {
		return false
	}
	f.notices = append(f.notices, text)
	return true
}

func items(urls ...string) []document.Item {
	out := make([]document.Item, 0, len(urls))
	for _, u := range urls {
		out = append(out, document.Item{URL: u, Name: u})
	}
	return out
}

func fixedClock(t time.Time) Clock { return ClockFunc(func() time.Time { return t }) }

type harness struct {
	w      *Watcher
	store  *storage.Memory
	lister *fakeLister
	sink   *fakeSink
	bus    eventbus.Bus
}

func newHarness(now time.Time, noticeOn bool) *harness {
	h := &harness{
		store:  storage.NewMemory(),
		lister: &fakeLister{},
		sink:   &fakeSink{failURLs: map[string]bool{}},
		bus:    eventbus.New(),
	}
	h.w = New(Config{SourceURL: "https://example.org/notizie/"}, Deps{
		Store:  h.store,
		Lister: h.lister,
		Sink:   h.sink,
		Notice: notifier.New(notifier.Config{Enabled: noticeOn, Hour: 7, Text: "attivo"}, logx.Nop()),
		Bus:    h.bus,
		Clock:  fixedClock(now),
		Log:    logx.Nop(),
	})
	return h
}

var offHour = time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)

func TestDeliversOldestFirst(t *testing.T) {
	h := newHarness(offHour, false)
	h.lister.items = items("new1", "new2", "new3", "old")
	st := document.NewState()
	st.MarkSent("old")
	require.NoError(t, h.store.Save(context.Background(), st))

	res := h.w.Run(context.Background(), "test")

	assert.Equal(t, []string{"new3", "new2", "new1"}, h.sink.delivered)
	assert.Equal(t, 4, res.Listed)
	assert.Equal(t, 3, res.New)
	assert.Equal(t, 3, res.Delivered)
	assert.True(t, res.Saved)
	assert.Equal(t, []string{"old", "new3", "new2", "new1"}, h.store.Load(context.Background()).Sent)
}

func TestIdempotentAcrossRuns(t *testing.T) {
	h := newHarness(time.Date(2024, 5, 2, 7, 15, 0, 0, time.UTC), true)
	h.lister.items = items("a", "b")

	first := h.w.Run(context.Background(), "test")
	second := h.w.Run(context.Background(), "test")

	assert.Equal(t, 2, first.Delivered)
	assert.True(t, first.Noticed)
	assert.Zero(t, second.Delivered)
	assert.False(t, second.Noticed)
	assert.False(t, second.Saved, "nothing changed, nothing written")
	assert.Len(t, h.sink.delivered, 2)
	assert.Len(t, h.sink.notices, 1)
	assert.Equal(t, 1, h.store.Saves())
}

func TestPartialFailureIsRetriedNextRound(t *testing.T) {
	h := newHarness(offHour, false)
	h.lister.items = items("x", "y", "z")
	h.sink.failURLs["y"] = true

	res := h.w.Run(context.Background(), "test")
	assert.Equal(t, 2, res.Delivered)
	assert.Equal(t, 1, res.Failed)
	assert.ElementsMatch(t, []string{"x", "z"}, h.store.Load(context.Background()).Sent)

	h.sink.failURLs["y"] = false
	res = h.w.Run(context.Background(), "test")
	assert.Equal(t, 1, res.Delivered)
	assert.Equal(t, []string{"z", "x", "y"}, h.sink.delivered)
	assert.ElementsMatch(t, []string{"x", "y", "z"}, h.store.Load(context.Background()).Sent)
}

func TestNoDuplicateDeliveryWhenListingRepeats(t *testing.T) {
	h := newHarness(offHour, false)
	h.lister.items = items("a")
	h.w.Run(context.Background(), "test")

	h.lister.items = items("b", "a")
	h.w.Run(context.Background(), "test")

	assert.Equal(t, []string{"a", "b"}, h.sink.delivered)
}

func TestDailyNoticeGate(t *testing.T) {
	may1 := document.Date{Year: 2024, Month: time.May, Day: 1}
	seed := document.State{Sent: []string{}, LastNoticeDate: &may1}

	same := newHarness(time.Date(2024, 5, 1, 7, 5, 0, 0, time.UTC), true)
	require.NoError(t, same.store.Save(context.Background(), seed))
	res := same.w.Run(context.Background(), "test")
	assert.False(t, res.Noticed)
	assert.Empty(t, same.sink.notices)

	next := newHarness(time.Date(2024, 5, 2, 7, 5, 0, 0, time.UTC), true)
	require.NoError(t, next.store.Save(context.Background(), seed))
	res = next.w.Run(context.Background(), "test")
	assert.True(t, res.Noticed)
	assert.Equal(t, []string{"attivo"}, next.sink.notices)
	got := next.store.Load(context.Background()).LastNoticeDate
	require.NotNil(t, got)
	assert.Equal(t, "2024-05-02", got.String())
}

func TestFailedNoticeLeavesDateUntouched(t *testing.T) {
	h := newHarness(time.Date(2024, 5, 2, 7, 5, 0, 0, time.UTC), true)
	h.sink.failText = true

	res := h.w.Run(context.Background(), "test")
	assert.False(t, res.Noticed)
	assert.False(t, res.Saved)
	assert.Nil(t, h.store.Load(context.Background()).LastNoticeDate)
}

func TestListErrorMeansNoItems(t *testing.T) {
	h := newHarness(offHour, false)
	h.lister.err = errors.New("503")

	res := h.w.Run(context.Background(), "test")
	assert.Error(t, res.ListErr)
	assert.Zero(t, res.Listed)
	assert.Empty(t, h.sink.delivered)
	assert.Zero(t, h.store.Saves())
}

func TestSaveFailureIsReported(t *testing.T) {
	h := newHarness(offHour, false)
	h.lister.items = items("a")
	h.store.FailSaves(errors.New("read-only"))

	res := h.w.Run(context.Background(), "test")
	assert.Equal(t, 1, res.Delivered)
	assert.False(t, res.Saved)
	assert.ErrorIs(t, res.SaveErr, storage.ErrStateSave)
}

func TestRunPublishesEvents(t *testing.T) {
	h := newHarness(offHour, false)
	ch, unsub := h.bus.Subscribe(16)
	defer unsub()
	h.lister.items = items("a", "b")
	h.sink.failURLs["a"] = true

	h.w.Run(context.Background(), "http")

	var types []string
	var summary eventbus.RunSummary
	for len(ch) > 0 {
		e := <-ch
		types = append(types, e.Type)
		if s, ok := e.Data.(eventbus.RunSummary); ok {
			summary = s
		}
	}
	assert.Equal(t, []string{eventbus.TypeDelivered, eventbus.TypeFailed, eventbus.TypeRun}, types)
	assert.Equal(t, "http", summary.Trigger)
	assert.Equal(t, 1, summary.Failed)

	last, runs, ok := h.w.Last()
	require.True(t, ok)
	assert.Equal(t, uint64(1), runs)
	assert.Equal(t, 1, last.Delivered)
}

func TestTryRunWhileBusy(t *testing.T) {
	h := newHarness(offHour, false)
	h.lister.items = items("a")
	h.sink.block = make(chan struct{})

	done := make(chan Result)
	go func() { done <- h.w.Run(context.Background(), "first") }()

	require.Eventually(t, func() bool {
		if !h.w.runMu.TryLock() {
			return true
		}
		h.w.runMu.Unlock()
		return false
	}, time.Second, time.Millisecond)

	_, err := h.w.TryRun(context.Background(), "second")
	assert.ErrorIs(t, err, ErrBusy)

	close(h.sink.block)
	res := <-done
	assert.Equal(t, 1, res.Delivered)

	res, err = h.w.TryRun(context.Background(), "third")
	require.NoError(t, err)
	assert.Zero(t, res.New)
}

func TestCancelledContextStopsDelivery(t *testing.T) {
	h := newHarness(offHour, false)
	h.lister.items = items("a", "b")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := h.w.Run(ctx, "test")
	assert.Zero(t, res.Delivered)
	assert.Equal(t, 2, res.Failed)
	assert.Empty(t, h.sink.delivered)
}
