package commands

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/log"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/wire"
)

const (
	testConn     = "abc12345-6789-0123-4567-890abcdef012"
	testEndpoint = "opcda://scada:4841/Sim.1"
)

var testStart = time.Date(2026, 1, 28, 10, 15, 32, 123456000, time.UTC)

// sampleEvents is a short DA session: state change, a read round trip, a
// data callback, a tag created by the engine and a session error.
func sampleEvents() []log.Event {
	op := wire.OpRead
	status := wire.StatusSuccess
	took := 1500 * time.Microsecond
	handle := uint32(3)

	return []log.Event{
		{
			Timestamp: testStart, ConnectionID: testConn, Direction: log.DirectionOut,
			Layer: log.LayerSession, Category: log.CategoryState, Endpoint: testEndpoint,
			StateChange: &log.StateChangeEvent{Entity: log.StateEntityConnection, OldState: "DISCONNECTED", NewState: "CONNECTED"},
		},
		{
			Timestamp: testStart.Add(time.Millisecond), ConnectionID: testConn, Direction: log.DirectionOut,
			Layer: log.LayerWire, Category: log.CategoryMessage, Endpoint: testEndpoint, RemoteAddr: "10.0.0.5:4841",
			Message: &log.MessageEvent{Type: wire.MessageTypeRequest, MessageID: 7, Operation: &op},
		},
		{
			Timestamp: testStart.Add(3 * time.Millisecond), ConnectionID: testConn, Direction: log.DirectionIn,
			Layer: log.LayerWire, Category: log.CategoryMessage, Endpoint: testEndpoint,
			Message: &log.MessageEvent{Type: wire.MessageTypeResponse, MessageID: 7, Status: &status, ProcessingTime: &took},
		},
		{
			Timestamp: testStart.Add(time.Second), ConnectionID: testConn, Direction: log.DirectionIn,
			Layer: log.LayerWire, Category: log.CategoryMessage, Endpoint: testEndpoint,
			Message: &log.MessageEvent{Type: wire.MessageTypeCallback, GroupHandle: &handle},
		},
		{
			Timestamp: testStart.Add(2 * time.Second), Layer: log.LayerEngine, Category: log.CategoryTag,
			Endpoint: testEndpoint,
			Tag:      &log.TagEvent{Action: log.TagCreated, ItemID: "Line1.Temperature", Interval: time.Second, GroupID: 1},
		},
		{
			Timestamp: testStart.Add(3 * time.Second), ConnectionID: testConn, Direction: log.DirectionIn,
			Layer: log.LayerSession, Category: log.CategoryError, Endpoint: testEndpoint,
			Error: &log.ErrorEventData{Layer: log.LayerSession, Message: "item not found", Kind: "NOT_FOUND", Context: "read Line1.Missing"},
		},
	}
}

func writeCapture(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.glog")
	fl, err := log.NewFileLogger(path)
	require.NoError(t, err)
	for _, e := range events {
		fl.Log(e)
	}
	require.NoError(t, fl.Close())
	return path
}

func readCapture(t *testing.T, path string) []log.Event {
	t.Helper()
	r, err := log.NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	var out []log.Event
	for {
		e, err := r.Next()
		if err != nil {
			break
		}
		out = append(out, e)
	}
	return out
}
