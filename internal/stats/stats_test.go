package stats

import (
	"context"
	"errors"
	"testing"
	"time"

	"facegate/internal/core/recognition"
	"facegate/internal/db/repository"
	"facegate/internal/util/timezone"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEvents struct {
	since time.Time
	stats repository.EventStatistics
	err   error
}

func (f *fakeEvents) Statistics(_ context.Context, since time.Time) (repository.EventStatistics, error) {
	f.since = since
	return f.stats, f.err
}

type fixedSize int

func (s fixedSize) Len() int { return int(s) }

type fixedStatus recognition.Status

func (s fixedStatus) Status() recognition.Status { return recognition.Status(s) }

func TestDashboard_Statistics(t *testing.T) {
	timezone.Initialize("UTC")
	now := time.Date(2024, 6, 1, 15, 4, 5, 0, time.UTC)
	events := &fakeEvents{stats: repository.EventStatistics{Total: 12, AverageConfidence: 71.5, ActiveSince: 3}}
	d := NewDashboard(events, fixedSize(50), func() time.Time { return now })

	st, err := d.Statistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 50, st.TotalUsers)
	assert.Equal(t, int64(12), st.TotalRecognitions)
	assert.Equal(t, 71.5, st.AverageConfidence)
	assert.Equal(t, int64(3), st.ActiveToday)
	assert.Equal(t, 0, events.since.Hour())
	assert.Equal(t, 1, events.since.Day())
}

func TestDashboard_Error(t *testing.T) {
	d := NewDashboard(&fakeEvents{err: errors.New("db gone")}, fixedSize(1), nil)
	st, err := d.Statistics(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, st.TotalUsers)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 Bytes", FormatBytes(512))
	assert.Equal(t, "1.50 KB", FormatBytes(1536))
	assert.Equal(t, "2.00 MB", FormatBytes(2*1024*1024))
}

func TestGetSystemStats(t *testing.T) {
	s := GetSystemStats(fixedStatus{State: recognition.StateRunning, CyclesRun: 9})
	assert.Positive(t, s.NumCPU)
	assert.Positive(t, s.GoRoutines)
	assert.Equal(t, recognition.StateRunning, s.Loop.State)
	assert.Equal(t, uint64(9), s.Loop.CyclesRun)
}
