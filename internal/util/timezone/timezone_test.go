package timezone

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInitialize(t *testing.T) {
	t.Cleanup(func() { Initialize("UTC") })

	Initialize("Europe/Berlin")
	assert.Equal(t, "Europe/Berlin", Location().String())

	ts := time.Date(2024, 6, 1, 22, 30, 0, 0, time.UTC) // 00:30 in Berlin
	day := StartOfDay(ts)
	assert.Equal(t, 2, day.Day())
	assert.Equal(t, 0, day.Hour())
	assert.Equal(t, "2024-06-02T00:30:00+02:00", ISO8601(ts))

	Initialize("Mars/Olympus")
	assert.Equal(t, time.UTC, Location())
}
