package backend

import (
	"context"
	"sync/atomic"
	"time"
)

// GroupHandle identifies a backend subscription group within a session.
type GroupHandle uint32

// ItemHandle identifies an item inside a backend subscription group.
type ItemHandle uint32

// Sample is one value observation. Value is normalized (see Normalize).
// Seq is taken from NextSeq when the request was sent or the notification
// was received, and orders samples that carry no source timestamp.
type Sample struct {
	Value      any
	QualityOK  bool
	Quality    uint32
	SourceTime time.Time
	Seq        uint64
}

// OlderThan reports whether s was produced before other. Source timestamps
// decide when both samples have one; otherwise the capture sequence does.
func (s Sample) OlderThan(other Sample) bool {
	if !s.SourceTime.IsZero() && !other.SourceTime.IsZero() {
		return s.SourceTime.Before(other.SourceTime)
	}
	return s.Seq < other.Seq
}

var seq atomic.Uint64

// NextSeq returns the next value of the process-wide capture sequence.
func NextSeq() uint64 {
	return seq.Add(1)
}

// BrowseEntry is one child of a browsed branch.
type BrowseEntry struct {
	Name        string
	ItemID      string
	IsBranch    bool
	DataType    string
	Unit        string
	Description string
	Readable    bool
	Writable    bool
}

// GroupInfo describes a created group. Interval is the rate the backend
// granted, which may differ from the requested one.
type GroupInfo struct {
	Handle   GroupHandle
	Interval time.Duration
}

// PushFunc receives data change notifications for one group. It is called
// on a backend-owned goroutine and must not block on backend I/O.
type PushFunc func(item ItemHandle, s Sample)

// Session is a live connection to one backend endpoint. Implementations
// must be safe for concurrent use.
type Session interface {
	// Browse lists the children of path ("" is the root).
	Browse(ctx context.Context, path string) ([]BrowseEntry, error)

	// Read performs a synchronous device read.
	Read(ctx context.Context, itemID string) (Sample, error)

	// CreateGroup allocates a subscription group at interval.
	CreateGroup(ctx context.Context, interval time.Duration) (GroupInfo, error)

	// RemoveGroup releases a group and all its items.
	RemoveGroup(ctx context.Context, group GroupHandle) error

	// AddItem adds itemID to group. A failure does not affect other members.
	AddItem(ctx context.Context, group GroupHandle, itemID string) (ItemHandle, error)

	// RemoveItem removes an item from group.
	RemoveItem(ctx context.Context, group GroupHandle, item ItemHandle) error

	// Subscribe registers fn for pushes of group, replacing any earlier fn.
	Subscribe(group GroupHandle, fn PushFunc)

	// Status returns nil while the server reports itself operational.
	Status(ctx context.Context) error

	// Close ends the session.
	Close() error
}

// Watcher is implemented by sessions that notice a lost connection without
// a call failing. Done is closed once the session can no longer serve calls,
// including after Close.
type Watcher interface {
	Done() <-chan struct{}
}

// Credentials authenticate a session. Empty User means anonymous.
type Credentials struct {
	User     string
	Password string
}

// Driver dials sessions for one protocol family.
type Driver interface {
	// Family names the protocol family ("DA" or "UA").
	Family() string

	// ValidateEndpoint checks that endpoint is a URL this driver can dial.
	ValidateEndpoint(endpoint string) error

	// Dial opens a session.
	Dial(ctx context.Context, endpoint string, creds Credentials) (Session, error)
}
