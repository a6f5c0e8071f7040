package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/log"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/wire"
)

// DefaultPort is the default DA bridge agent port.
const DefaultPort = 4841

// ServerConfig configures a DA bridge agent listener.
type ServerConfig struct {
	// Address to listen on (e.g., ":4841" or "127.0.0.1:0").
	Address string

	// TLS enables TLS when non-nil.
	TLS *tls.Config

	// MaxMessageSize is the maximum message size (default: 1 MB).
	MaxMessageSize uint32

	// Logger for protocol capture (optional).
	Logger log.Logger

	// OnConnect is called when a new connection is established.
	OnConnect func(conn *ServerConn)

	// OnDisconnect is called when a connection is closed.
	OnDisconnect func(conn *ServerConn)

	// OnMessage is called for every non-control frame, on the connection's
	// read goroutine.
	OnMessage func(conn *ServerConn, msg []byte)

	// OnError is called when an error occurs.
	OnError func(conn *ServerConn, err error)
}

// Server accepts DA bridge connections.
type Server struct {
	config   ServerConfig
	listener net.Listener

	conns   map[*ServerConn]struct{}
	connsMu sync.RWMutex

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer creates a server. Call Start to listen.
func NewServer(config ServerConfig) *Server {
	if config.Address == "" {
		config.Address = fmt.Sprintf(":%d", DefaultPort)
	}
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	return &Server{
		config: config,
		conns:  make(map[*ServerConn]struct{}),
	}
}

// Start begins accepting connections.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return fmt.Errorf("server already running")
	}

	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	if s.config.TLS != nil {
		listener = tls.NewListener(listener, s.config.TLS)
	}
	s.listener = listener
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running.Store(true)

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop closes the listener and all connections and waits for their
// goroutines to finish.
func (s *Server) Stop() error {
	if !s.running.Swap(false) {
		return nil
	}
	s.cancel()
	s.listener.Close()

	s.connsMu.RLock()
	for conn := range s.conns {
		conn.Close()
	}
	s.connsMu.RUnlock()

	s.wg.Wait()
	return nil
}

// Addr returns the listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// ConnectionCount returns the number of active connections.
func (s *Server) ConnectionCount() int {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	return len(s.conns)
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() {
				return
			}
			if s.config.OnError != nil {
				s.config.OnError(nil, fmt.Errorf("accept error: %w", err))
			}
			continue
		}
		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()

	connID := uuid.New().String()
	framer := NewFramer(conn, s.config.MaxMessageSize)
	if s.config.Logger != nil {
		framer.SetLogger(s.config.Logger, connID, "")
	}

	ctx, cancel := context.WithCancel(s.ctx)
	sconn := &ServerConn{
		conn:       conn,
		framer:     framer,
		server:     s,
		ctx:        ctx,
		cancel:     cancel,
		remoteAddr: conn.RemoteAddr(),
		connID:     connID,
	}
	remote := conn.RemoteAddr().String()
	logState(s.config.Logger, connID, "", remote, "", StateConnected.String(), "")

	s.connsMu.Lock()
	s.conns[sconn] = struct{}{}
	s.connsMu.Unlock()

	if s.config.OnConnect != nil {
		s.config.OnConnect(sconn)
	}

	sconn.readLoop()
	sconn.Close()

	s.connsMu.Lock()
	delete(s.conns, sconn)
	s.connsMu.Unlock()

	logState(s.config.Logger, connID, "", remote, StateConnected.String(), StateDisconnected.String(), "")
	if s.config.OnDisconnect != nil {
		s.config.OnDisconnect(sconn)
	}
}

// ServerConn is the agent side of one connection.
type ServerConn struct {
	conn       net.Conn
	framer     *Framer
	server     *Server
	ctx        context.Context
	cancel     context.CancelFunc
	closeOnce  sync.Once
	remoteAddr net.Addr
	connID     string
}

// RemoteAddr returns the remote address of the client.
func (c *ServerConn) RemoteAddr() net.Addr {
	return c.remoteAddr
}

// ConnID returns the unique connection identifier.
func (c *ServerConn) ConnID() string {
	return c.connID
}

// Context is cancelled when the connection closes.
func (c *ServerConn) Context() context.Context {
	return c.ctx
}

// Send writes one message frame. Safe for concurrent use.
func (c *ServerConn) Send(data []byte) error {
	if c.ctx.Err() != nil {
		return ErrConnectionClosed
	}
	return c.framer.WriteFrame(data)
}

// Close closes the connection.
func (c *ServerConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.conn.Close()
	})
	return err
}

func (c *ServerConn) readLoop() {
	for {
		data, err := c.framer.ReadFrame()
		if err != nil {
			if c.ctx.Err() == nil && c.server.config.OnError != nil {
				c.server.config.OnError(c, err)
			}
			return
		}

		if ctrl, ok := asControl(data); ok {
			if c.handleControl(ctrl) {
				return
			}
			continue
		}
		if c.server.config.OnMessage != nil {
			c.server.config.OnMessage(c, data)
		}
	}
}

// handleControl answers pings and reports whether the peer asked to close.
func (c *ServerConn) handleControl(msg *wire.ControlMessage) bool {
	logger := c.server.config.Logger
	remote := c.remoteAddr.String()
	logControl(logger, c.connID, "", remote, msg.Control, msg.Sequence, log.DirectionIn)

	switch msg.Control {
	case wire.ControlPing:
		if pong, err := EncodePong(msg.Sequence); err == nil {
			_ = c.Send(pong)
			logControl(logger, c.connID, "", remote, wire.ControlPong, msg.Sequence, log.DirectionOut)
		}
	case wire.ControlClose:
		return true
	}
	return false
}
