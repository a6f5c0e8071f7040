package registry

import (
	"sync"
	"time"

	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/backend"
)

// Key identifies a registered tag.
type Key struct {
	Endpoint string
	ItemID   string
}

// String returns "endpoint|item".
func (k Key) String() string {
	return k.Endpoint + "|" + k.ItemID
}

// Tag is a snapshot of a registered tag.
type Tag struct {
	Key

	// RequestedInterval is the fastest interval a caller asked for.
	RequestedInterval time.Duration

	// GrantedInterval is the interval the backend granted the group.
	GrantedInterval time.Duration

	Value      any
	QualityOK  bool
	Quality    uint32
	SourceTime time.Time

	// LocalTime is when the gateway last stored a value.
	LocalTime time.Time

	LastRequested time.Time
	GroupID       uint64

	// HasValue is false while the tag is subscribed but neither the initial
	// read nor a push has delivered a value yet.
	HasValue bool
}

type entry struct {
	key Key

	op sync.Mutex

	mu            sync.Mutex
	requested     time.Duration
	granted       time.Duration
	groupID       uint64
	sample        backend.Sample
	hasValue      bool
	localTime     time.Time
	lastRequested time.Time

	// stale is set when the session was replaced; the next caller reads
	// through instead of serving the cached value.
	stale bool

	// removed is set before eviction releases the group, so callers stop
	// being served from this entry and wait on op instead.
	removed bool
}

// snapshot copies the entry. Caller holds e.mu.
func (e *entry) snapshot() Tag {
	return Tag{
		Key:               e.key,
		RequestedInterval: e.requested,
		GrantedInterval:   e.granted,
		Value:             e.sample.Value,
		QualityOK:         e.sample.QualityOK,
		Quality:           e.sample.Quality,
		SourceTime:        e.sample.SourceTime,
		LocalTime:         e.localTime,
		LastRequested:     e.lastRequested,
		GroupID:           e.groupID,
		HasValue:          e.hasValue,
	}
}

// serve returns the cached tag when it satisfies interval, touching its
// request time.
func (e *entry) serve(interval time.Duration, now time.Time) (Tag, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed || e.stale || !e.hasValue || e.groupID == 0 || interval < e.requested {
		return Tag{}, false
	}
	e.lastRequested = now
	return e.snapshot(), true
}

// store applies s unless it is older than the stored sample. Caller holds
// e.mu.
func (e *entry) store(s backend.Sample, now time.Time) bool {
	if e.hasValue && s.OlderThan(e.sample) {
		return false
	}
	e.sample = s
	e.hasValue = true
	e.stale = false
	e.localTime = now
	return true
}
