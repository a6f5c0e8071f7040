package log

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// ErrTruncated reports a capture that ends inside an event, typically
// because the gateway stopped while writing. Events before it are intact.
var ErrTruncated = errors.New("capture truncated")

// Filter selects events. Zero-valued fields match everything.
type Filter struct {
	ConnectionID string
	Endpoint     string
	Layer        *Layer
	Direction    *Direction
	Category     *Category

	// ItemID matches tag lifecycle events of one item.
	ItemID string

	// TimeStart is inclusive, TimeEnd exclusive.
	TimeStart *time.Time
	TimeEnd   *time.Time
}

// Match reports whether event satisfies every criterion of f.
func (f Filter) Match(event Event) bool {
	switch {
	case f.ConnectionID != "" && event.ConnectionID != f.ConnectionID:
		return false
	case f.Endpoint != "" && event.Endpoint != f.Endpoint:
		return false
	case f.Layer != nil && event.Layer != *f.Layer:
		return false
	case f.Direction != nil && event.Direction != *f.Direction:
		return false
	case f.Category != nil && event.Category != *f.Category:
		return false
	case f.ItemID != "" && (event.Tag == nil || event.Tag.ItemID != f.ItemID):
		return false
	case f.TimeStart != nil && event.Timestamp.Before(*f.TimeStart):
		return false
	case f.TimeEnd != nil && !event.Timestamp.Before(*f.TimeEnd):
		return false
	}
	return true
}

// Reader streams events from a capture.
type Reader struct {
	closer  io.Closer
	decoder *cbor.Decoder
	filter  Filter
}

// NewReader opens the capture file at path.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader opens the capture file at path and yields only events
// matching filter.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := NewStreamReader(f, filter)
	r.closer = f
	return r, nil
}

// NewStreamReader reads a capture from r, such as a pipe. Close does not
// close r.
func NewStreamReader(r io.Reader, filter Filter) *Reader {
	return &Reader{decoder: NewDecoder(r), filter: filter}
}

// Next returns the next matching event. It returns io.EOF at a clean end
// of the capture and ErrTruncated when the last event is incomplete.
func (r *Reader) Next() (Event, error) {
	for {
		var event Event
		if err := r.decoder.Decode(&event); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return Event{}, ErrTruncated
			}
			return Event{}, err
		}
		if r.filter.Match(event) {
			return event, nil
		}
	}
}

// Close releases the capture file, if the Reader opened one.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
