package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/log"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/wire"
)

// ConnState is the lifecycle state of a Conn.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateClosing
)

// String returns the connection state name.
func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateClosing:
		return "CLOSING"
	default:
		return "UNKNOWN"
	}
}

// Connection errors.
var (
	ErrNotConnected     = errors.New("not connected")
	ErrConnectionClosed = errors.New("connection closed")
	ErrKeepAliveTimeout = errors.New("keep-alive timeout")
)

// Handler receives non-control frames and state changes from a Conn.
// Both callbacks run on the read loop goroutine.
type Handler interface {
	OnMessage(msg []byte)
	OnStateChange(oldState, newState ConnState)
}

// ConnConfig configures a dialed connection.
type ConnConfig struct {
	// TLS enables TLS when non-nil.
	TLS *tls.Config

	// MaxMessageSize is the maximum message size (default: 1 MB).
	MaxMessageSize uint32

	// ConnectTimeout bounds dialing when ctx has no deadline (default: 10s).
	ConnectTimeout time.Duration

	// KeepAlive configures liveness pings. Zero fields take defaults.
	KeepAlive KeepAliveConfig

	// DisableKeepAlive turns off liveness pings.
	DisableKeepAlive bool

	// Logger receives protocol capture events (optional).
	Logger log.Logger

	// Endpoint is recorded in capture events.
	Endpoint string
}

// Conn is the dialing side of a DA bridge connection.
type Conn struct {
	config  ConnConfig
	handler Handler
	conn    net.Conn
	framer  *Framer
	connID  string

	keepAlive *KeepAlive

	state     atomic.Int32
	closeOnce sync.Once
	done      chan struct{}
	errMu     sync.Mutex
	err       error
}

// Dial connects to address and starts the read loop.
func Dial(ctx context.Context, address string, config ConnConfig, handler Handler) (*Conn, error) {
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.ConnectTimeout)
		defer cancel()
	}

	c := &Conn{
		config:  config,
		handler: handler,
		connID:  uuid.New().String(),
		done:    make(chan struct{}),
	}
	c.setState(StateConnecting, "")

	dialer := &net.Dialer{}
	raw, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		c.setState(StateDisconnected, err.Error())
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	conn := raw
	if config.TLS != nil {
		tlsConn := tls.Client(raw, config.TLS)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			raw.Close()
			c.setState(StateDisconnected, err.Error())
			return nil, fmt.Errorf("TLS handshake with %s: %w", address, err)
		}
		conn = tlsConn
	}

	c.conn = conn
	c.framer = NewFramer(conn, config.MaxMessageSize)
	if config.Logger != nil {
		c.framer.SetLogger(config.Logger, c.connID, config.Endpoint)
	}
	c.setState(StateConnected, "")

	if !config.DisableKeepAlive {
		c.keepAlive = NewKeepAlive(config.KeepAlive, c.sendPing, func() {
			c.closeWithError(ErrKeepAliveTimeout)
		})
		c.keepAlive.Start(context.Background())
	}

	go c.readLoop()
	return c, nil
}

// ConnID returns the unique connection identifier used in capture events.
func (c *Conn) ConnID() string {
	return c.connID
}

// State returns the current connection state.
func (c *Conn) State() ConnState {
	return ConnState(c.state.Load())
}

// RemoteAddr returns the remote network address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Done is closed when the connection has terminated.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err returns the reason the connection terminated, or nil while it is open.
func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Send writes one message frame.
func (c *Conn) Send(data []byte) error {
	if c.State() != StateConnected {
		return ErrNotConnected
	}
	if err := c.framer.WriteFrame(data); err != nil {
		c.closeWithError(err)
		return err
	}
	return nil
}

// Close sends a close control message and tears the connection down.
func (c *Conn) Close() error {
	if c.State() == StateConnected {
		if msg, err := EncodeClose(); err == nil {
			_ = c.framer.WriteFrame(msg)
			logControl(c.config.Logger, c.connID, c.config.Endpoint, "", wire.ControlClose, 0, log.DirectionOut)
		}
	}
	c.closeWithError(ErrConnectionClosed)
	return nil
}

func (c *Conn) closeWithError(cause error) {
	c.closeOnce.Do(func() {
		c.errMu.Lock()
		c.err = cause
		c.errMu.Unlock()

		c.setState(StateClosing, cause.Error())
		if c.keepAlive != nil {
			c.keepAlive.Stop()
		}
		c.conn.Close()
		c.setState(StateDisconnected, cause.Error())
		close(c.done)
	})
}

func (c *Conn) setState(newState ConnState, reason string) {
	old := ConnState(c.state.Swap(int32(newState)))
	if old == newState {
		return
	}
	logState(c.config.Logger, c.connID, c.config.Endpoint, "", old.String(), newState.String(), reason)
	if c.handler != nil {
		c.handler.OnStateChange(old, newState)
	}
}

func (c *Conn) sendPing(seq uint32) error {
	msg, err := EncodePing(seq)
	if err != nil {
		return err
	}
	logControl(c.config.Logger, c.connID, c.config.Endpoint, "", wire.ControlPing, seq, log.DirectionOut)
	return c.framer.WriteFrame(msg)
}

func (c *Conn) readLoop() {
	for {
		data, err := c.framer.ReadFrame()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.closeWithError(fmt.Errorf("read: %w", err))
			}
			return
		}

		if ctrl, ok := asControl(data); ok {
			c.handleControl(ctrl)
			continue
		}
		if c.handler != nil {
			c.handler.OnMessage(data)
		}
	}
}

func (c *Conn) handleControl(msg *wire.ControlMessage) {
	logControl(c.config.Logger, c.connID, c.config.Endpoint, "", msg.Control, msg.Sequence, log.DirectionIn)
	switch msg.Control {
	case wire.ControlPing:
		if pong, err := EncodePong(msg.Sequence); err == nil {
			_ = c.framer.WriteFrame(pong)
		}
	case wire.ControlPong:
		if c.keepAlive != nil {
			c.keepAlive.PongReceived(msg.Sequence)
		}
	case wire.ControlClose:
		c.closeWithError(ErrConnectionClosed)
	}
}
