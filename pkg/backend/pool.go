package backend

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/log"
)

// ErrPoolClosed is returned by Get after Close.
var ErrPoolClosed = errors.New("backend pool closed")

// State is the connection state of one pooled endpoint.
type State uint8

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ReconnectFunc is called after an endpoint was redialed following a lost
// session. It runs outside the pool's locks.
type ReconnectFunc func(ctx context.Context, endpoint string, s Session)

// PoolConfig configures a Pool.
type PoolConfig struct {
	Driver Driver

	// Credentials returns the credentials for an endpoint (optional).
	Credentials func(endpoint string) Credentials

	// OperationTimeout bounds every session call (default: 10s).
	OperationTimeout time.Duration

	Backoff BackoffConfig

	OnReconnect ReconnectFunc

	Logger         *slog.Logger
	ProtocolLogger log.Logger
}

// Pool keeps one session per endpoint.
type Pool struct {
	config PoolConfig
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool

	// timeNow is injectable for tests.
	timeNow func() time.Time
}

type entry struct {
	mu       sync.Mutex
	endpoint string
	state    State
	session  *pooledSession
	backoff  *Backoff
	retryAt  time.Time
	lastErr  error
	dialed   bool
}

// NewPool creates a pool.
func NewPool(config PoolConfig) *Pool {
	if config.OperationTimeout <= 0 {
		config.OperationTimeout = 10 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pool{
		config:  config,
		logger:  logger,
		entries: make(map[string]*entry),
		timeNow: time.Now,
	}
}

// Get returns the session for endpoint, dialing it when needed. While a
// failed endpoint is backing off, Get fails fast with Unreachable.
func (p *Pool) Get(ctx context.Context, endpoint string) (Session, error) {
	if err := p.config.Driver.ValidateEndpoint(endpoint); err != nil {
		return nil, withContext(err, "connect", endpoint, "")
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	e, ok := p.entries[endpoint]
	if !ok {
		e = &entry{endpoint: endpoint, backoff: NewBackoff(p.config.Backoff)}
		p.entries[endpoint] = e
	}
	p.mu.Unlock()

	s, reconnected, err := p.dial(ctx, e)
	if err != nil {
		return nil, err
	}
	if reconnected && p.config.OnReconnect != nil {
		p.config.OnReconnect(ctx, endpoint, s)
	}
	return s, nil
}

func (p *Pool) dial(ctx context.Context, e *entry) (*pooledSession, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateConnected:
		return e.session, false, nil
	case StateClosed:
		return nil, false, ErrPoolClosed
	}

	if now := p.timeNow(); now.Before(e.retryAt) {
		err := &Error{
			Kind:     KindUnreachable,
			Op:       "connect",
			Endpoint: e.endpoint,
			Detail:   "reconnect backoff, next attempt in " + e.retryAt.Sub(now).Round(time.Millisecond).String(),
			Err:      e.lastErr,
		}
		if e.lastErr != nil {
			err.Detail = DetailOf(e.lastErr)
		}
		return nil, false, err
	}

	p.setState(e, StateConnecting, "")
	dctx, cancel := context.WithTimeout(ctx, p.config.OperationTimeout)
	defer cancel()

	var creds Credentials
	if p.config.Credentials != nil {
		creds = p.config.Credentials(e.endpoint)
	}
	raw, err := p.config.Driver.Dial(dctx, e.endpoint, creds)
	if err != nil {
		err = withContext(err, "connect", e.endpoint, "")
		delay := e.backoff.Next()
		e.retryAt = p.timeNow().Add(delay)
		e.lastErr = err
		p.setState(e, StateDisconnected, err.Error())
		p.logger.Warn("backend connect failed",
			"endpoint", e.endpoint, "family", p.config.Driver.Family(),
			"error", err, "retry_in", delay)
		return nil, false, err
	}

	reconnected := e.dialed
	e.dialed = true
	e.backoff.Reset()
	e.retryAt = time.Time{}
	e.lastErr = nil
	e.session = &pooledSession{pool: p, entry: e, s: raw}
	if w, ok := raw.(Watcher); ok {
		go p.watch(e, e.session, w.Done())
	}
	p.setState(e, StateConnected, "")
	p.logger.Info("backend connected", "endpoint", e.endpoint, "family", p.config.Driver.Family(), "reconnect", reconnected)
	return e.session, reconnected, nil
}

// markDown drops s after a connection-level failure so the next Get redials.
func (p *Pool) markDown(e *entry, s *pooledSession, cause error) {
	e.mu.Lock()
	if e.session != s || e.state != StateConnected {
		e.mu.Unlock()
		return
	}
	e.session = nil
	e.lastErr = cause
	e.retryAt = p.timeNow().Add(e.backoff.Next())
	p.setState(e, StateDisconnected, cause.Error())
	e.mu.Unlock()

	p.logger.Warn("backend connection lost", "endpoint", e.endpoint, "error", cause)
	go s.s.Close()
}

// watch marks the endpoint down when its session reports a lost connection.
// After a deliberate close the session is no longer current and markDown
// ignores it.
func (p *Pool) watch(e *entry, s *pooledSession, done <-chan struct{}) {
	<-done
	p.markDown(e, s, withContext(Errorf(KindUnreachable, "connection", "connection lost"), "connection", e.endpoint, ""))
}

// Disconnect closes the session of endpoint and forgets it. Disconnecting
// an unknown endpoint is a no-op.
func (p *Pool) Disconnect(endpoint string) error {
	p.mu.Lock()
	e, ok := p.entries[endpoint]
	delete(p.entries, endpoint)
	p.mu.Unlock()
	if !ok {
		return nil
	}
	return p.closeEntry(e, "disconnect")
}

// Close closes every session. Get fails afterwards.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	entries := p.entries
	p.entries = make(map[string]*entry)
	p.mu.Unlock()

	var errs []error
	for _, e := range entries {
		if err := p.closeEntry(e, "shutdown"); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Pool) closeEntry(e *entry, reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.session
	e.session = nil
	p.setState(e, StateClosed, reason)
	if s == nil {
		return nil
	}
	return s.s.Close()
}

// State returns the state of endpoint. Unknown endpoints are DISCONNECTED.
func (p *Pool) State(endpoint string) State {
	p.mu.Lock()
	e, ok := p.entries[endpoint]
	p.mu.Unlock()
	if !ok {
		return StateDisconnected
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Down reports whether endpoint lost its session and awaits a redial.
// Endpoints never dialed are not down.
func (p *Pool) Down(endpoint string) bool {
	p.mu.Lock()
	e, ok := p.entries[endpoint]
	p.mu.Unlock()
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dialed && e.state == StateDisconnected
}

// Endpoints returns the known endpoints in sorted order.
func (p *Pool) Endpoints() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.entries))
	for ep := range p.entries {
		out = append(out, ep)
	}
	sort.Strings(out)
	return out
}

func (p *Pool) setState(e *entry, s State, reason string) {
	old := e.state
	if old == s {
		return
	}
	e.state = s
	if p.config.ProtocolLogger == nil {
		return
	}
	p.config.ProtocolLogger.Log(log.Event{
		Timestamp: p.timeNow(),
		Endpoint:  e.endpoint,
		Layer:     log.LayerSession,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: old.String(),
			NewState: s.String(),
			Reason:   reason,
		},
	})
}

// pooledSession applies the operation timeout, normalizes errors and marks
// the endpoint down on connection-level failures.
type pooledSession struct {
	pool  *Pool
	entry *entry
	s     Session
}

func (ps *pooledSession) call(ctx context.Context, op, item string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, ps.pool.config.OperationTimeout)
	defer cancel()

	err := fn(ctx)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil && KindOf(err) == KindInternal {
		err = NewError(KindUnreachable, op, err)
	}
	err = withContext(err, op, ps.entry.endpoint, item)
	if KindOf(err).IsConnection() {
		ps.pool.markDown(ps.entry, ps, err)
	}
	return err
}

func (ps *pooledSession) Browse(ctx context.Context, path string) ([]BrowseEntry, error) {
	var out []BrowseEntry
	err := ps.call(ctx, "browse", path, func(ctx context.Context) (err error) {
		out, err = ps.s.Browse(ctx, path)
		return err
	})
	return out, err
}

func (ps *pooledSession) Read(ctx context.Context, itemID string) (Sample, error) {
	var out Sample
	err := ps.call(ctx, "read", itemID, func(ctx context.Context) (err error) {
		out, err = ps.s.Read(ctx, itemID)
		return err
	})
	return out, err
}

func (ps *pooledSession) CreateGroup(ctx context.Context, interval time.Duration) (GroupInfo, error) {
	var out GroupInfo
	err := ps.call(ctx, "create group", "", func(ctx context.Context) (err error) {
		out, err = ps.s.CreateGroup(ctx, interval)
		return err
	})
	return out, err
}

func (ps *pooledSession) RemoveGroup(ctx context.Context, group GroupHandle) error {
	return ps.call(ctx, "remove group", "", func(ctx context.Context) error {
		return ps.s.RemoveGroup(ctx, group)
	})
}

func (ps *pooledSession) AddItem(ctx context.Context, group GroupHandle, itemID string) (ItemHandle, error) {
	var out ItemHandle
	err := ps.call(ctx, "add item", itemID, func(ctx context.Context) (err error) {
		out, err = ps.s.AddItem(ctx, group, itemID)
		return err
	})
	return out, err
}

func (ps *pooledSession) RemoveItem(ctx context.Context, group GroupHandle, item ItemHandle) error {
	return ps.call(ctx, "remove item", "", func(ctx context.Context) error {
		return ps.s.RemoveItem(ctx, group, item)
	})
}

func (ps *pooledSession) Subscribe(group GroupHandle, fn PushFunc) {
	ps.s.Subscribe(group, fn)
}

func (ps *pooledSession) Status(ctx context.Context) error {
	return ps.call(ctx, "status", "", ps.s.Status)
}

// Close disconnects the endpoint this session belongs to.
func (ps *pooledSession) Close() error {
	return ps.pool.Disconnect(ps.entry.endpoint)
}
