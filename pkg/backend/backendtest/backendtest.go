// Package backendtest provides an in-memory backend for tests of the
// packages written against backend.Session.
package backendtest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/backend"
)

// Item is one point of the fake address space.
type Item struct {
	Value     any
	QualityOK bool
	Time      time.Time
	Denied    bool
}

// Server is a fake backend address space shared by all sessions dialed from
// its Driver.
type Server struct {
	mu    sync.Mutex
	items map[string]*Item

	// Revise maps a requested group interval to the granted one.
	Revise func(time.Duration) time.Duration

	// ReadDelay delays synchronous reads.
	ReadDelay time.Duration

	unreachable bool
	dialErr     error
	dials       int
	calls       map[string]int
	sessions    []*Session
}

// NewServer creates an empty server.
func NewServer() *Server {
	return &Server{
		items: make(map[string]*Item),
		calls: make(map[string]int),
	}
}

// Set creates or replaces an item with a good value stamped now.
func (s *Server) Set(itemID string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[itemID] = &Item{Value: value, QualityOK: true, Time: time.Now()}
}

// SetItem creates or replaces an item.
func (s *Server) SetItem(itemID string, it Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := it
	s.items[itemID] = &cp
}

// Delete removes an item from the address space.
func (s *Server) Delete(itemID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, itemID)
}

// SetUnreachable makes every call of every session fail as Unreachable.
func (s *Server) SetUnreachable(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unreachable = v
}

// SetDialError makes Dial fail with err (nil restores dialing).
func (s *Server) SetDialError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dialErr = err
}

// Calls returns how often op was invoked across all sessions.
func (s *Server) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// Dials returns the number of successful dials.
func (s *Server) Dials() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

// Sessions returns the sessions dialed so far.
func (s *Server) Sessions() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Session(nil), s.sessions...)
}

// DropSessions drops every open session and returns how many there were.
func (s *Server) DropSessions() int {
	n := 0
	for _, sess := range s.Sessions() {
		sess.mu.Lock()
		open := !sess.closed
		sess.mu.Unlock()
		if open {
			sess.Drop()
			n++
		}
	}
	return n
}

// Push delivers a sample for itemID to every group of every open session
// holding it. It returns the number of deliveries.
func (s *Server) Push(itemID string, smp backend.Sample) int {
	n := 0
	for _, sess := range s.Sessions() {
		n += sess.push(itemID, smp)
	}
	return n
}

// Memberships returns how many groups across open sessions hold itemID.
func (s *Server) Memberships(itemID string) int {
	n := 0
	for _, sess := range s.Sessions() {
		sess.mu.Lock()
		if !sess.closed {
			for _, g := range sess.groups {
				for _, id := range g.items {
					if id == itemID {
						n++
					}
				}
			}
		}
		sess.mu.Unlock()
	}
	return n
}

// GroupCount returns the number of live groups across open sessions.
func (s *Server) GroupCount() int {
	n := 0
	for _, sess := range s.Sessions() {
		sess.mu.Lock()
		if !sess.closed {
			n += len(sess.groups)
		}
		sess.mu.Unlock()
	}
	return n
}

func (s *Server) begin(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[op]++
	if s.unreachable {
		return backend.Errorf(backend.KindUnreachable, op, "server not responding")
	}
	return nil
}

func (s *Server) lookup(itemID string) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[itemID]
	if !ok {
		return Item{}, backend.Errorf(backend.KindNotFound, "", "unknown item %q", itemID)
	}
	if it.Denied {
		return Item{}, backend.Errorf(backend.KindAccessDenied, "", "item %q not readable", itemID)
	}
	return *it, nil
}

// Driver returns a driver dialing sessions on s. Endpoints must start with
// "fake://".
func (s *Server) Driver() backend.Driver {
	return driver{s}
}

type driver struct{ s *Server }

func (driver) Family() string { return "FAKE" }

func (driver) ValidateEndpoint(endpoint string) error {
	if !strings.HasPrefix(endpoint, "fake://") {
		return backend.Errorf(backend.KindProtocolMismatch, "connect", "not a fake:// endpoint: %q", endpoint)
	}
	return nil
}

func (d driver) Dial(ctx context.Context, endpoint string, creds backend.Credentials) (backend.Session, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	if d.s.dialErr != nil {
		return nil, d.s.dialErr
	}
	if d.s.unreachable {
		return nil, backend.Errorf(backend.KindUnreachable, "connect", "connection refused")
	}
	if creds.User == "reject" {
		return nil, backend.Errorf(backend.KindAuthRejected, "connect", "bad user")
	}
	d.s.dials++
	sess := NewSession(d.s)
	d.s.sessions = append(d.s.sessions, sess)
	return sess, nil
}

type group struct {
	interval time.Duration
	items    map[backend.ItemHandle]string
	push     backend.PushFunc
}

// Session is a fake session on a Server.
type Session struct {
	srv *Server

	mu        sync.Mutex
	groups    map[backend.GroupHandle]*group
	nextGroup backend.GroupHandle
	nextItem  backend.ItemHandle
	closed    bool
	done      chan struct{}
}

// NewSession creates a session on srv without going through a Driver.
func NewSession(srv *Server) *Session {
	return &Session{srv: srv, groups: make(map[backend.GroupHandle]*group), done: make(chan struct{})}
}

func (s *Session) Browse(ctx context.Context, path string) ([]backend.BrowseEntry, error) {
	if err := s.srv.begin("browse"); err != nil {
		return nil, err
	}
	s.srv.mu.Lock()
	defer s.srv.mu.Unlock()

	prefix := path
	if prefix != "" {
		prefix += "."
	}
	seen := map[string]bool{}
	var out []backend.BrowseEntry
	for id := range s.srv.items {
		if !strings.HasPrefix(id, prefix) {
			continue
		}
		rest := strings.TrimPrefix(id, prefix)
		name, _, branch := strings.Cut(rest, ".")
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, backend.BrowseEntry{
			Name:     name,
			ItemID:   prefix + name,
			IsBranch: branch,
			Readable: !branch,
		})
	}
	if path != "" && len(out) == 0 {
		return nil, backend.Errorf(backend.KindNotFound, "browse", "no branch %q", path)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Session) Read(ctx context.Context, itemID string) (backend.Sample, error) {
	seq := backend.NextSeq()
	if err := s.srv.begin("read"); err != nil {
		return backend.Sample{}, err
	}
	if d := s.srv.ReadDelay; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return backend.Sample{}, ctx.Err()
		}
	}
	it, err := s.srv.lookup(itemID)
	if err != nil {
		return backend.Sample{}, err
	}
	return backend.Sample{Value: backend.Normalize(it.Value), QualityOK: it.QualityOK, SourceTime: it.Time, Seq: seq}, nil
}

func (s *Session) CreateGroup(ctx context.Context, interval time.Duration) (backend.GroupInfo, error) {
	if err := s.srv.begin("create_group"); err != nil {
		return backend.GroupInfo{}, err
	}
	granted := interval
	if s.srv.Revise != nil {
		granted = s.srv.Revise(interval)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return backend.GroupInfo{}, backend.Errorf(backend.KindUnreachable, "create group", "session closed")
	}
	s.nextGroup++
	s.groups[s.nextGroup] = &group{interval: granted, items: make(map[backend.ItemHandle]string)}
	return backend.GroupInfo{Handle: s.nextGroup, Interval: granted}, nil
}

func (s *Session) RemoveGroup(ctx context.Context, h backend.GroupHandle) error {
	if err := s.srv.begin("remove_group"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[h]; !ok {
		return backend.Errorf(backend.KindNotFound, "remove group", "no group %d", h)
	}
	delete(s.groups, h)
	return nil
}

func (s *Session) AddItem(ctx context.Context, h backend.GroupHandle, itemID string) (backend.ItemHandle, error) {
	if err := s.srv.begin("add_item"); err != nil {
		return 0, err
	}
	if _, err := s.srv.lookup(itemID); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[h]
	if !ok {
		return 0, backend.Errorf(backend.KindNotFound, "add item", "no group %d", h)
	}
	s.nextItem++
	g.items[s.nextItem] = itemID
	return s.nextItem, nil
}

func (s *Session) RemoveItem(ctx context.Context, h backend.GroupHandle, ih backend.ItemHandle) error {
	if err := s.srv.begin("remove_item"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[h]
	if !ok {
		return backend.Errorf(backend.KindNotFound, "remove item", "no group %d", h)
	}
	delete(g.items, ih)
	return nil
}

func (s *Session) Subscribe(h backend.GroupHandle, fn backend.PushFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.groups[h]; ok {
		g.push = fn
	}
}

func (s *Session) Status(ctx context.Context) error {
	return s.srv.begin("status")
}

func (s *Session) Close() error {
	s.Drop()
	return nil
}

// Drop ends the session as a lost connection would: its groups are gone
// and Done is closed.
func (s *Session) Drop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.groups = map[backend.GroupHandle]*group{}
	close(s.done)
}

// Done is closed once the session was closed or dropped.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// GroupIntervals returns the granted interval of each live group.
func (s *Session) GroupIntervals() map[backend.GroupHandle]time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[backend.GroupHandle]time.Duration, len(s.groups))
	for h, g := range s.groups {
		out[h] = g.interval
	}
	return out
}

func (s *Session) push(itemID string, smp backend.Sample) int {
	type target struct {
		fn backend.PushFunc
		ih backend.ItemHandle
	}
	var targets []target
	s.mu.Lock()
	for _, g := range s.groups {
		for ih, id := range g.items {
			if id == itemID && g.push != nil {
				targets = append(targets, target{g.push, ih})
			}
		}
	}
	s.mu.Unlock()

	for _, t := range targets {
		t.fn(t.ih, smp)
	}
	return len(targets)
}

func (s *Session) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("fake session (%d groups)", len(s.groups))
}
