package subscription

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/backend"
)

// Set holds the subscription groups of one endpoint.
type Set struct {
	cfg Config

	// createMu serializes group creation so concurrent first subscribers at
	// the same interval share one group.
	createMu sync.Mutex

	mu     sync.Mutex
	groups map[uint64]*Group
}

// NewSet creates an empty set.
func NewSet(cfg Config) *Set {
	return &Set{
		cfg:    cfg.withDefaults(),
		groups: make(map[uint64]*Group),
	}
}

// Acquire makes itemID a member of a group on sess matching interval,
// creating a group when none has room, and returns that group.
func (s *Set) Acquire(ctx context.Context, sess backend.Session, itemID string, interval time.Duration) (*Group, error) {
	if g, err := s.join(ctx, sess, itemID, interval); g != nil || err != nil {
		return g, err
	}

	s.createMu.Lock()
	defer s.createMu.Unlock()

	// A concurrent creator may have made room while we waited.
	if g, err := s.join(ctx, sess, itemID, interval); g != nil || err != nil {
		return g, err
	}

	g, err := New(ctx, s.cfg, sess, interval, itemID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.groups[g.ID] = g
	s.mu.Unlock()
	return g, nil
}

// join tries the existing matching groups in creation order.
func (s *Set) join(ctx context.Context, sess backend.Session, itemID string, interval time.Duration) (*Group, error) {
	for _, g := range s.candidates(sess, interval) {
		err := g.AddItem(ctx, itemID)
		switch {
		case err == nil:
			return g, nil
		case errors.Is(err, ErrGroupFull), errors.Is(err, ErrGroupDestroyed):
			continue
		default:
			return nil, err
		}
	}
	return nil, nil
}

func (s *Set) candidates(sess backend.Session, interval time.Duration) []*Group {
	var out []*Group
	for _, g := range s.List() {
		g.mu.Lock()
		ok := g.session == sess && g.state == StateActive &&
			(g.requested == interval || g.interval == interval) &&
			len(g.members) < s.cfg.Limit
		g.mu.Unlock()
		if ok {
			out = append(out, g)
		}
	}
	return out
}

// Release removes itemID from the group groupID. The group is forgotten
// once it was destroyed. Releasing from an unknown group is a no-op.
func (s *Set) Release(ctx context.Context, groupID uint64, itemID string) error {
	g := s.Get(groupID)
	if g == nil {
		return nil
	}
	destroyed, err := g.RemoveItem(ctx, itemID)
	if destroyed || g.State() == StateDestroyed {
		s.forget(g)
	}
	return err
}

// Get returns the group with groupID or nil.
func (s *Set) Get(groupID uint64) *Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.groups[groupID]
}

func (s *Set) forget(g *Group) {
	s.mu.Lock()
	if cur, ok := s.groups[g.ID]; ok && cur == g {
		delete(s.groups, g.ID)
	}
	s.mu.Unlock()
}

// Rebind recreates every group on sess after the endpoint reconnected. It
// returns the items that could not be re-added, keyed by the group they
// belonged to. Groups left empty are forgotten.
func (s *Set) Rebind(ctx context.Context, sess backend.Session) (map[uint64][]string, error) {
	s.createMu.Lock()
	defer s.createMu.Unlock()

	var errs []error
	dropped := make(map[uint64][]string)
	for _, g := range s.List() {
		lost, err := g.rebind(ctx, sess)
		if err != nil {
			errs = append(errs, err)
		}
		if len(lost) > 0 {
			dropped[g.ID] = lost
		}
		if g.State() == StateDestroyed {
			s.forget(g)
		}
	}
	return dropped, errors.Join(errs...)
}

// Reset forgets every group without contacting the backend. Used when the
// session the groups live on has been closed.
func (s *Set) Reset() {
	s.mu.Lock()
	groups := s.groups
	s.groups = make(map[uint64]*Group)
	s.mu.Unlock()
	for _, g := range groups {
		g.discard()
	}
}

// List returns the groups ordered by ID.
func (s *Set) List() []*Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of groups.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.groups)
}
