package dasim

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/interaction"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/log"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/transport"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/wire"
)

// DefaultProgID is served when Config.ProgIDs is empty.
const DefaultProgID = "OpenPlant.Simulation.1"

// DefaultMinRate is the fastest group rate the simulator grants.
const DefaultMinRate = 50 * time.Millisecond

// Config configures a Simulator.
type Config struct {
	// ProgIDs are the DA server names accepted in hello.
	ProgIDs []string

	Vendor string

	// Users maps user names to shared secrets. When non-empty, hello must
	// carry a valid proof for one of them.
	Users map[string][]byte

	// MinRate floors granted group rates (default: 50ms).
	MinRate time.Duration

	// MaxGroups limits groups per connection (0 = unlimited).
	MaxGroups int

	TLS *tls.Config

	Logger         *slog.Logger
	ProtocolLogger log.Logger
}

// Simulator is a DA bridge agent serving an AddressSpace.
type Simulator struct {
	config Config
	logger *slog.Logger
	space  *AddressSpace

	state         atomic.Uint32
	responseDelay atomic.Int64
	started       time.Time

	mu       sync.Mutex
	server   *transport.Server
	sessions map[*transport.ServerConn]*connSession
}

// New creates a simulator with an empty address space.
func New(config Config) *Simulator {
	if len(config.ProgIDs) == 0 {
		config.ProgIDs = []string{DefaultProgID}
	}
	if config.Vendor == "" {
		config.Vendor = "OpenPlant"
	}
	if config.MinRate <= 0 {
		config.MinRate = DefaultMinRate
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Simulator{
		config:   config,
		logger:   logger,
		space:    NewAddressSpace(),
		started:  time.Now(),
		sessions: make(map[*transport.ServerConn]*connSession),
	}
	s.state.Store(uint32(wire.ServerRunning))
	s.space.watch(s.recordChange)
	return s
}

// Space returns the simulated address space.
func (s *Simulator) Space() *AddressSpace {
	return s.space
}

// Start listens on address ("127.0.0.1:0" picks a free port).
func (s *Simulator) Start(ctx context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return errors.New("simulator already started")
	}

	srv := transport.NewServer(transport.ServerConfig{
		Address: address,
		TLS:     s.config.TLS,
		Logger:  s.config.ProtocolLogger,
		OnConnect: func(conn *transport.ServerConn) {
			cs := newConnSession(s, conn)
			s.mu.Lock()
			s.sessions[conn] = cs
			s.mu.Unlock()
			s.logger.Debug("bridge client connected", "conn", conn.ConnID(), "remote", conn.RemoteAddr())
		},
		OnDisconnect: func(conn *transport.ServerConn) {
			s.mu.Lock()
			cs := s.sessions[conn]
			delete(s.sessions, conn)
			s.mu.Unlock()
			if cs != nil {
				cs.close()
			}
			s.logger.Debug("bridge client disconnected", "conn", conn.ConnID())
		},
		OnMessage: func(conn *transport.ServerConn, msg []byte) {
			s.mu.Lock()
			cs := s.sessions[conn]
			s.mu.Unlock()
			if cs != nil {
				cs.handleMessage(msg)
			}
		},
		OnError: func(conn *transport.ServerConn, err error) {
			s.logger.Debug("bridge connection error", "error", err)
		},
	})
	if err := srv.Start(ctx); err != nil {
		return err
	}
	s.server = srv
	s.logger.Info("DA bridge simulator listening", "addr", srv.Addr(), "progids", s.config.ProgIDs)
	return nil
}

// Stop closes the listener and all connections.
func (s *Simulator) Stop() error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Stop()
}

// Addr returns the listen address, or nil before Start.
func (s *Simulator) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return nil
	}
	return s.server.Addr()
}

// Endpoint returns the opcda:// URL of progID on this simulator.
func (s *Simulator) Endpoint(progID string) string {
	return fmt.Sprintf("opcda://%s/%s", s.Addr(), progID)
}

// DropConnections closes every client connection, as a network failure
// would. The listener keeps accepting.
func (s *Simulator) DropConnections() int {
	s.mu.Lock()
	conns := make([]*transport.ServerConn, 0, len(s.sessions))
	for c := range s.sessions {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
	return len(conns)
}

// SetState sets the state reported by status requests.
func (s *Simulator) SetState(st wire.ServerState) {
	s.state.Store(uint32(st))
}

// State returns the reported server state.
func (s *Simulator) State() wire.ServerState {
	return wire.ServerState(s.state.Load())
}

// SetResponseDelay delays every response by d, for timeout tests.
func (s *Simulator) SetResponseDelay(d time.Duration) {
	s.responseDelay.Store(int64(d))
}

// ResponseDelay returns the configured response delay.
func (s *Simulator) ResponseDelay() time.Duration {
	return time.Duration(s.responseDelay.Load())
}

// Connections returns the number of connected clients.
func (s *Simulator) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Groups returns the number of groups across all connections.
func (s *Simulator) Groups() int {
	s.mu.Lock()
	sessions := make([]*connSession, 0, len(s.sessions))
	for _, cs := range s.sessions {
		sessions = append(sessions, cs)
	}
	s.mu.Unlock()

	n := 0
	for _, cs := range sessions {
		n += cs.groupCount()
	}
	return n
}

// Run perturbs numeric items every period until ctx is done, so that
// subscribed clients see changes.
func (s *Simulator) Run(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, id := range s.space.IDs() {
				it, ok := s.space.Get(id)
				if !ok {
					continue
				}
				switch v := it.Value.(type) {
				case float64:
					s.space.Set(id, v+rand.NormFloat64())
				case int64:
					s.space.Set(id, v+rand.Int64N(3)-1)
				case bool:
					if rand.IntN(10) == 0 {
						s.space.Set(id, !v)
					}
				}
			}
		}
	}
}

func (s *Simulator) recordChange(itemID string) {
	s.mu.Lock()
	sessions := make([]*connSession, 0, len(s.sessions))
	for _, cs := range s.sessions {
		sessions = append(sessions, cs)
	}
	s.mu.Unlock()
	for _, cs := range sessions {
		cs.recordChange(itemID)
	}
}

func (s *Simulator) hasProgID(progID string) bool {
	return slices.Contains(s.config.ProgIDs, progID)
}

func (s *Simulator) authenticate(p wire.HelloPayload) error {
	if len(s.config.Users) == 0 {
		return nil
	}
	secret, ok := s.config.Users[p.User]
	if !ok || !interaction.VerifyProof(secret, p.Nonce, p.User, p.Proof) {
		return interaction.Errorf(wire.StatusAuthRejected, "authentication failed for %q", p.User)
	}
	return nil
}

func (s *Simulator) readable(itemID string) (Item, error) {
	it, ok := s.space.Get(itemID)
	if !ok {
		return Item{}, interaction.Errorf(wire.StatusNotFound, "unknown item %q", itemID)
	}
	if it.NoRead {
		return Item{}, interaction.Errorf(wire.StatusAccessDenied, "item %q is not readable", itemID)
	}
	return it, nil
}

func (s *Simulator) reviseRate(rate time.Duration) time.Duration {
	if rate < s.config.MinRate {
		return s.config.MinRate
	}
	return rate
}
