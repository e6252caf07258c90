package notifier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"pdfbot/internal/document"
	logx "pdfbot/pkg/logx"
)

func TestDueOncePerDayInsideHour(t *testing.T) {
	s := New(Config{Enabled: true, Hour: 7}, logx.Nop())

	may1 := document.Date{Year: 2024, Month: time.May, Day: 1}
	st := document.State{Sent: []string{}, LastNoticeDate: &may1}

	_, due := s.Due(time.Date(2024, 5, 1, 7, 30, 0, 0, time.UTC), st)
	assert.False(t, due, "already noticed today")

	today, due := s.Due(time.Date(2024, 5, 2, 7, 0, 0, 0, time.UTC), st)
	assert.True(t, due)
	assert.Equal(t, document.Date{Year: 2024, Month: time.May, Day: 2}, today)

	_, due = s.Due(time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC), st)
	assert.False(t, due, "outside the hour")

	_, due = s.Due(time.Date(2024, 5, 2, 7, 59, 59, 0, time.UTC), document.NewState())
	assert.True(t, due, "never noticed")
}

func TestDueUsesConfiguredZone(t *testing.T) {
	rome := time.FixedZone("CEST", 2*3600)
	s := New(Config{Enabled: true, Hour: 7, Location: rome}, logx.Nop())

	// 05:10 UTC is 07:10 in Rome; 23:30 UTC on the 1st is already the 2nd there.
	today, due := s.Due(time.Date(2024, 5, 2, 5, 10, 0, 0, time.UTC), document.NewState())
	assert.True(t, due)
	assert.Equal(t, 2, today.Day)

	assert.Equal(t, 2, s.Today(time.Date(2024, 5, 1, 23, 30, 0, 0, time.UTC)).Day)
}

func TestDisabledNeverDue(t *testing.T) {
	s := New(Config{Enabled: false, Hour: 7}, logx.Nop())
	_, due := s.Due(time.Date(2024, 5, 2, 7, 0, 0, 0, time.UTC), document.NewState())
	assert.False(t, due)
}

func TestApplyDefaultsAndHistory(t *testing.T) {
	s := New(Config{Enabled: true, Hour: 99}, logx.Nop())
	assert.Equal(t, DefaultHour, s.Config().Hour)
	assert.Equal(t, DefaultText, s.Text())

	s.Apply(Config{Enabled: true, Hour: 9, Text: "ciao"})
	assert.Equal(t, "ciao", s.Text())

	for i := 0; i < historyMax+5; i++ {
		s.Record(time.Unix(int64(i), 0), "x", true)
	}
	h := s.Snapshot()
	assert.Len(t, h, historyMax)
	assert.Equal(t, int64(5), h[0].At.Unix())
}
