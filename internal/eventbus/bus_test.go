package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFansOut(t *testing.T) {
	b := New()
	a, unsubA := b.Subscribe(2)
	c, unsubC := b.Subscribe(2)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: TypeDelivered, Data: DocumentEvent{URL: "u"}})

	ea := <-a
	ec := <-c
	assert.Equal(t, TypeDelivered, ea.Type)
	assert.False(t, ea.Time.IsZero())
	assert.Equal(t, ea, ec)
}

func TestSlowSubscriberDrops(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	for i := 0; i < 3; i++ {
		b.Publish(Event{Type: TypeRun})
	}
	assert.Len(t, ch, 1)
	assert.Equal(t, uint64(2), b.Dropped())
}

func TestUnsubscribeClosesAndIsIdempotent(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(0)
	unsub()
	unsub()

	_, ok := <-ch
	require.False(t, ok)
	b.Publish(Event{Type: TypeRun})
}

func TestSubscribeFiltersTypes(t *testing.T) {
	b := New()
	runs, unsub := b.Subscribe(4, TypeRun)
	defer unsub()

	b.Publish(Event{Type: TypeDelivered})
	b.Publish(Event{Type: TypeRun, Data: RunSummary{New: 2}})

	require.Len(t, runs, 1)
	e := <-runs
	assert.Equal(t, TypeRun, e.Type)
	assert.Equal(t, 2, e.Data.(RunSummary).New)
	assert.Zero(t, b.Dropped())
}
