package log

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, r *Reader) []Event {
	t.Helper()
	var out []Event
	for {
		ev, err := r.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, ev)
	}
}

// tagEvent has a fixed timestamp so every encoding has the same size.
func tagEvent(endpoint string, group uint64) Event {
	return Event{
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Endpoint:  endpoint,
		Layer:     LayerEngine,
		Category:  CategoryTag,
		Tag:       &TagEvent{Action: TagCreated, ItemID: "item", GroupID: group},
	}
}

func TestFileLoggerWritesCBOR(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.glog")

	logger, err := NewFileLogger(path)
	require.NoError(t, err)

	logger.Log(Event{
		Timestamp:    time.Now(),
		ConnectionID: "conn-123",
		Direction:    DirectionIn,
		Layer:        LayerTransport,
		Category:     CategoryMessage,
		Frame:        &FrameEvent{Size: 100, Data: []byte{1, 2, 3}},
	})
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	decoded, err := DecodeEvent(data)
	require.NoError(t, err)
	assert.Equal(t, "conn-123", decoded.ConnectionID)
	require.NotNil(t, decoded.Frame)
	assert.Equal(t, 100, decoded.Frame.Size)
	assert.Zero(t, logger.Dropped())
}

func TestFileLoggerAppendsAndReaderFilters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.glog")

	for i, endpoint := range []string{"opc.tcp://a:4840", "opcda://b/X.1", "opc.tcp://a:4840"} {
		logger, err := NewFileLogger(path)
		require.NoError(t, err)
		logger.Log(tagEvent(endpoint, uint64(i+1)))
		require.NoError(t, logger.Close())
	}

	r, err := NewFilteredReader(path, Filter{Endpoint: "opc.tcp://a:4840"})
	require.NoError(t, err)
	defer r.Close()

	var groups []uint64
	for _, ev := range readAll(t, r) {
		groups = append(groups, ev.Tag.GroupID)
	}
	assert.Equal(t, []uint64{1, 3}, groups)
}

func TestFileLoggerConcurrentAndClosed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.glog")

	logger, err := NewFileLogger(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Log(Event{Timestamp: time.Now(), Category: CategoryState})
		}()
	}
	wg.Wait()

	require.NoError(t, logger.Close())
	assert.NoError(t, logger.Close())

	// Ignored after close.
	logger.Log(Event{Timestamp: time.Now()})

	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()
	assert.Len(t, readAll(t, r), 10)
}

func TestFileLoggerRotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.glog")
	one, err := EncodeEvent(tagEvent("opc.tcp://a:4840", 1))
	require.NoError(t, err)

	// Two events per file.
	logger, err := NewFileLogger(path, WithMaxSize(int64(2*len(one))), WithMaxBackups(2))
	require.NoError(t, err)
	for i := 1; i <= 7; i++ {
		logger.Log(tagEvent("opc.tcp://a:4840", uint64(i)))
	}
	require.NoError(t, logger.Close())

	groups := func(p string) []uint64 {
		r, err := NewReader(p)
		require.NoError(t, err)
		defer r.Close()
		var out []uint64
		for _, ev := range readAll(t, r) {
			out = append(out, ev.Tag.GroupID)
		}
		return out
	}
	assert.Equal(t, []uint64{7}, groups(path))
	assert.Equal(t, []uint64{5, 6}, groups(path+".1"))
	assert.Equal(t, []uint64{3, 4}, groups(path+".2"))
	assert.NoFileExists(t, path+".3")
}

func TestFileLoggerRotationWithoutBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.glog")

	logger, err := NewFileLogger(path, WithMaxSize(1), WithMaxBackups(0))
	require.NoError(t, err)
	logger.Log(tagEvent("x", 1))
	logger.Log(tagEvent("x", 2))
	require.NoError(t, logger.Close())

	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()
	events := readAll(t, r)
	require.Len(t, events, 1)
	assert.Equal(t, uint64(2), events[0].Tag.GroupID)
	assert.NoFileExists(t, path+".1")
}

func TestFileLoggerRejectsNegativeLimits(t *testing.T) {
	_, err := NewFileLogger(filepath.Join(t.TempDir(), "x.glog"), WithMaxSize(-1))
	assert.Error(t, err)
}

func TestReaderTruncatedCapture(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.Encode(tagEvent("x", 1)))
	require.NoError(t, enc.Encode(tagEvent("x", 2)))
	data := buf.Bytes()[:buf.Len()-3]

	r := NewStreamReader(bytes.NewReader(data), Filter{})
	ev, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), ev.Tag.GroupID)

	_, err = r.Next()
	assert.ErrorIs(t, err, ErrTruncated)
	assert.NoError(t, r.Close())
}

func TestFilterMatch(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ev := Event{
		Timestamp:    start.Add(time.Second),
		ConnectionID: "c1",
		Endpoint:     "opcda://h/X.1",
		Direction:    DirectionOut,
		Layer:        LayerEngine,
		Category:     CategoryTag,
		Tag:          &TagEvent{Action: TagUpgraded, ItemID: "Line1.Temp"},
	}
	out, in := DirectionOut, DirectionIn
	engine, wire := LayerEngine, LayerWire
	end := start.Add(time.Second)

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty", Filter{}, true},
		{"connection", Filter{ConnectionID: "c1"}, true},
		{"other connection", Filter{ConnectionID: "c2"}, false},
		{"direction", Filter{Direction: &out}, true},
		{"other direction", Filter{Direction: &in}, false},
		{"layer", Filter{Layer: &engine}, true},
		{"other layer", Filter{Layer: &wire}, false},
		{"item", Filter{ItemID: "Line1.Temp"}, true},
		{"other item", Filter{ItemID: "Line1.Speed"}, false},
		{"start inclusive", Filter{TimeStart: &ev.Timestamp}, true},
		{"end exclusive", Filter{TimeEnd: &end}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.filter.Match(ev))
		})
	}

	assert.False(t, Filter{ItemID: "Line1.Temp"}.Match(Event{Category: CategoryMessage}))
}
