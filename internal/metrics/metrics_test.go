package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"facegate/internal/core/recognition"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLoop struct{ st recognition.Status }

func (f fakeLoop) Status() recognition.Status { return f.st }

type fakeEvents struct{}

func (fakeEvents) Recorded() uint64 { return 7 }
func (fakeEvents) Dropped() uint64  { return 1 }

type fakeClients struct{}

func (fakeClients) ClientCount() int { return 2 }

func TestExporter_CountsFaces(t *testing.T) {
	e := NewExporter(Sources{})
	e.Publish(recognition.CycleResult{Faces: []recognition.FaceResult{{Matched: true}, {}, {}}})
	e.Publish(recognition.CycleResult{})

	assert.Equal(t, 1.0, testutil.ToFloat64(e.faces.WithLabelValues("matched")))
	assert.Equal(t, 2.0, testutil.ToFloat64(e.faces.WithLabelValues("unknown")))
}

func TestExporter_Handler(t *testing.T) {
	e := NewExporter(Sources{
		Loop: fakeLoop{st: recognition.Status{
			State: recognition.StateRunning, CyclesRun: 12, CyclesFailed: 3, TicksSkipped: 4,
			Threshold: 0.6, Gallery: 5,
		}},
		Events:  fakeEvents{},
		Clients: fakeClients{},
	})

	srv := httptest.NewServer(e.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	for _, line := range []string{
		"facegate_recognition_cycles_total 12",
		"facegate_recognition_cycles_failed_total 3",
		"facegate_recognition_ticks_skipped_total 4",
		"facegate_recognition_running 1",
		"facegate_recognition_threshold 0.6",
		"facegate_gallery_identities 5",
		"facegate_events_recorded_total 7",
		"facegate_events_dropped_total 1",
		"facegate_stream_clients 2",
	} {
		assert.True(t, strings.Contains(text, line), "missing %q", line)
	}
	assert.Contains(t, text, "go_goroutines")
}
