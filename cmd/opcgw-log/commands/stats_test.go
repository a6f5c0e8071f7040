package commands

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/log"
)

func TestRunStats(t *testing.T) {
	path := writeCapture(t, sampleEvents())

	var buf bytes.Buffer
	require.NoError(t, RunStats(path, &buf))
	out := buf.String()

	assert.Contains(t, out, "Total Events: 6")
	assert.Contains(t, out, "Duration:   3s")
	assert.Contains(t, out, fmt.Sprintf("%-12s %d", "WIRE:", 3))
	assert.Contains(t, out, fmt.Sprintf("%-12s %d", "ENGINE:", 1))
	assert.Contains(t, out, fmt.Sprintf("%-12s %d", "CREATED:", 1))
	assert.Contains(t, out, "Connections: 1")
	assert.Contains(t, out, "[abc12345] 5 events")
	assert.Contains(t, out, "Endpoint: "+testEndpoint)
	assert.Contains(t, out, "Remote: 10.0.0.5:4841")
	assert.Contains(t, out, "Requests: 1, Callbacks: 1")
	assert.Contains(t, out, "Errors: 1")
	assert.Contains(t, out, "NOT_FOUND:")
}

func TestStatsEmptyCapture(t *testing.T) {
	path := writeCapture(t, nil)

	var buf bytes.Buffer
	require.NoError(t, RunStats(path, &buf))
	assert.Contains(t, buf.String(), "Total Events: 0")
	assert.Contains(t, buf.String(), "Connections: 0")
	assert.NotContains(t, buf.String(), "Time Range")
}

func TestStatsAddTracksRange(t *testing.T) {
	events := sampleEvents()
	s := newStats()
	// Out of order on purpose.
	s.add(events[3])
	s.add(events[0])

	assert.Equal(t, events[0].Timestamp, s.TimeRange.Start)
	assert.Equal(t, events[3].Timestamp, s.TimeRange.End)
	assert.Equal(t, 1, s.EventsByDirection[log.DirectionOut])
}
