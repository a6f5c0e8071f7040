package subscription

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/backend"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/log"
)

// Group errors.
var (
	ErrGroupFull      = errors.New("subscription group full")
	ErrGroupDestroyed = errors.New("subscription group destroyed")
)

// DefaultGroupSizeLimit is the default maximum number of items per group.
const DefaultGroupSizeLimit = 40

// State is the lifecycle state of a Group.
type State uint8

const (
	StateEmpty State = iota
	StateActive
	StateDraining
	StateDestroyed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateEmpty:
		return "EMPTY"
	case StateActive:
		return "ACTIVE"
	case StateDraining:
		return "DRAINING"
	case StateDestroyed:
		return "DESTROYED"
	default:
		return "UNKNOWN"
	}
}

// Sink receives pushed samples. It runs on a backend goroutine and must not
// block on backend I/O.
type Sink func(groupID uint64, itemID string, s backend.Sample)

var groupIDs atomic.Uint64

// Config is shared by all groups of a Set.
type Config struct {
	// Endpoint is recorded in log events.
	Endpoint string

	// Limit is the maximum number of items per group (default: 40).
	Limit int

	Sink Sink

	Logger         *slog.Logger
	ProtocolLogger log.Logger
}

func (c Config) withDefaults() Config {
	if c.Limit <= 0 {
		c.Limit = DefaultGroupSizeLimit
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// Group is one backend subscription group.
type Group struct {
	// ID is local and never reused within the process.
	ID uint64

	cfg       Config
	requested time.Duration

	// mu serializes membership changes and is held across backend calls.
	mu       sync.Mutex
	session  backend.Session
	handle   backend.GroupHandle
	interval time.Duration
	members  map[string]backend.ItemHandle
	state    State

	// hmu guards the handle index used by pushes, so delivery never waits
	// for a membership call in flight.
	hmu      sync.RWMutex
	byHandle map[backend.ItemHandle]string
}

// New creates a backend group at interval holding itemID. On failure no
// group exists afterwards.
func New(ctx context.Context, cfg Config, sess backend.Session, interval time.Duration, itemID string) (*Group, error) {
	cfg = cfg.withDefaults()
	g := &Group{
		ID:        groupIDs.Add(1),
		cfg:       cfg,
		requested: interval,
		members:   make(map[string]backend.ItemHandle),
		byHandle:  make(map[backend.ItemHandle]string),
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.open(ctx, sess); err != nil {
		return nil, err
	}
	h, err := sess.AddItem(ctx, g.handle, itemID)
	if err != nil {
		if rerr := sess.RemoveGroup(ctx, g.handle); rerr != nil {
			cfg.Logger.Debug("release of unused group failed", "endpoint", cfg.Endpoint, "group", g.ID, "error", rerr)
		}
		g.state = StateDestroyed
		return nil, err
	}
	g.addMember(itemID, h)
	g.setState(StateActive, "")
	return g, nil
}

// open creates the backend group on sess. Caller holds g.mu.
func (g *Group) open(ctx context.Context, sess backend.Session) error {
	info, err := sess.CreateGroup(ctx, g.requested)
	if err != nil {
		return err
	}
	g.session = sess
	g.handle = info.Handle
	g.interval = info.Interval
	if g.interval <= 0 {
		g.interval = g.requested
	}
	sess.Subscribe(info.Handle, g.onPush)
	g.cfg.Logger.Debug("subscription group created",
		"endpoint", g.cfg.Endpoint, "group", g.ID,
		"requested", g.requested, "granted", g.interval)
	return nil
}

// AddItem adds itemID. Adding a member is a no-op. A full or destroyed
// group is reported without contacting the backend.
func (g *Group) AddItem(ctx context.Context, itemID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == StateDestroyed || g.state == StateDraining {
		return ErrGroupDestroyed
	}
	if _, ok := g.members[itemID]; ok {
		return nil
	}
	if len(g.members) >= g.cfg.Limit {
		return ErrGroupFull
	}

	h, err := g.session.AddItem(ctx, g.handle, itemID)
	if err != nil {
		return err
	}
	g.addMember(itemID, h)
	return nil
}

// RemoveItem removes itemID and reports whether the group was destroyed
// because it became empty. Removing a non-member is a no-op. Membership is
// dropped locally even when the backend call fails.
func (g *Group) RemoveItem(ctx context.Context, itemID string) (destroyed bool, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	h, ok := g.members[itemID]
	if !ok || g.state == StateDestroyed {
		return false, nil
	}

	err = g.session.RemoveItem(ctx, g.handle, h)
	if err != nil && backend.KindOf(err) == backend.KindNotFound {
		err = nil
	}
	delete(g.members, itemID)
	g.hmu.Lock()
	delete(g.byHandle, h)
	g.hmu.Unlock()

	if len(g.members) > 0 {
		return false, err
	}

	g.setState(StateDraining, "last member removed")
	if rerr := g.session.RemoveGroup(ctx, g.handle); rerr != nil && err == nil && backend.KindOf(rerr) != backend.KindNotFound {
		err = rerr
	}
	g.setState(StateDestroyed, "")
	return true, err
}

// rebind recreates the group on sess and re-adds every member. Items the
// new session rejects are dropped and returned.
func (g *Group) rebind(ctx context.Context, sess backend.Session) (dropped []string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == StateDestroyed {
		return nil, nil
	}
	items := make([]string, 0, len(g.members))
	for id := range g.members {
		items = append(items, id)
	}
	sort.Strings(items)

	g.members = make(map[string]backend.ItemHandle, len(items))
	g.hmu.Lock()
	g.byHandle = make(map[backend.ItemHandle]string, len(items))
	g.hmu.Unlock()

	if err := g.open(ctx, sess); err != nil {
		g.setState(StateDestroyed, "rebind failed")
		return items, err
	}
	for _, id := range items {
		h, aerr := sess.AddItem(ctx, g.handle, id)
		if aerr != nil {
			g.cfg.Logger.Warn("item dropped on rebind", "endpoint", g.cfg.Endpoint, "item", id, "error", aerr)
			dropped = append(dropped, id)
			continue
		}
		g.addMember(id, h)
	}
	if len(g.members) == 0 {
		if rerr := sess.RemoveGroup(ctx, g.handle); rerr != nil {
			g.cfg.Logger.Debug("release of empty rebound group failed", "endpoint", g.cfg.Endpoint, "group", g.ID, "error", rerr)
		}
		g.setState(StateDestroyed, "no members after rebind")
	}
	return dropped, nil
}

// discard marks the group destroyed without backend calls, for when its
// session is gone.
func (g *Group) discard() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateDestroyed {
		g.setState(StateDestroyed, "discarded")
	}
}

// addMember records a member. Caller holds g.mu.
func (g *Group) addMember(itemID string, h backend.ItemHandle) {
	g.members[itemID] = h
	g.hmu.Lock()
	g.byHandle[h] = itemID
	g.hmu.Unlock()
}

func (g *Group) onPush(h backend.ItemHandle, s backend.Sample) {
	g.hmu.RLock()
	itemID, ok := g.byHandle[h]
	g.hmu.RUnlock()
	if !ok || g.cfg.Sink == nil {
		return
	}
	g.cfg.Sink(g.ID, itemID, s)
}

// setState records a transition. Caller holds g.mu.
func (g *Group) setState(s State, reason string) {
	old := g.state
	if old == s {
		return
	}
	g.state = s
	if s == StateDestroyed {
		g.cfg.Logger.Debug("subscription group destroyed", "endpoint", g.cfg.Endpoint, "group", g.ID, "reason", reason)
	}
	if g.cfg.ProtocolLogger == nil {
		return
	}
	g.cfg.ProtocolLogger.Log(log.Event{
		Timestamp: time.Now(),
		Endpoint:  g.cfg.Endpoint,
		Layer:     log.LayerEngine,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityGroup,
			OldState: old.String(),
			NewState: s.String(),
			Reason:   reason,
		},
	})
}

// Len returns the number of members.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.members)
}

// Contains reports whether itemID is a member.
func (g *Group) Contains(itemID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.members[itemID]
	return ok
}

// State returns the lifecycle state.
func (g *Group) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Interval returns the interval granted by the backend.
func (g *Group) Interval() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.interval
}

// RequestedInterval returns the interval the group was created for.
func (g *Group) RequestedInterval() time.Duration {
	return g.requested
}

// Handle returns the backend group handle.
func (g *Group) Handle() backend.GroupHandle {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.handle
}

// Members returns the member item ids in sorted order.
func (g *Group) Members() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.members))
	for id := range g.members {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Info is a snapshot of a group for reporting.
type Info struct {
	ID        uint64
	Requested time.Duration
	Interval  time.Duration
	Members   int
	State     State
}

// Info returns a snapshot of the group.
func (g *Group) Info() Info {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Info{ID: g.ID, Requested: g.requested, Interval: g.interval, Members: len(g.members), State: g.state}
}
