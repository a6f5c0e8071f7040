package opcda

import (
	"context"
	"crypto/tls"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/backend"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/interaction"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/log"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/transport"
)

// Family is the protocol family name reported by the driver.
const Family = "DA"

// Config configures the DA driver.
type Config struct {
	// TLS enables TLS to the bridge agent when non-nil.
	TLS *tls.Config

	// RequestTimeout bounds each bridge request when the caller's context
	// has no earlier deadline (default: 10s).
	RequestTimeout time.Duration

	// KeepAlive configures liveness pings. Zero fields take defaults.
	KeepAlive transport.KeepAliveConfig

	DisableKeepAlive bool

	MaxMessageSize uint32

	Logger         *slog.Logger
	ProtocolLogger log.Logger
}

// Driver dials DA bridge sessions.
type Driver struct {
	config Config
	logger *slog.Logger
}

// NewDriver creates a DA driver.
func NewDriver(config Config) *Driver {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 10 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Driver{config: config, logger: logger}
}

// Family returns "DA".
func (d *Driver) Family() string { return Family }

// ValidateEndpoint checks that endpoint is an opcda:// URL with a ProgID.
func (d *Driver) ValidateEndpoint(endpoint string) error {
	_, err := ParseEndpoint(endpoint)
	return err
}

// Dial connects to the bridge agent and opens a session on the ProgID.
// The password is the shared secret the agent verifies the hello proof
// against.
func (d *Driver) Dial(ctx context.Context, endpoint string, creds backend.Credentials) (backend.Session, error) {
	ep, err := ParseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	h := &connHandler{}
	conn, err := transport.Dial(ctx, ep.Address, transport.ConnConfig{
		TLS:              d.config.TLS,
		MaxMessageSize:   d.config.MaxMessageSize,
		KeepAlive:        d.config.KeepAlive,
		DisableKeepAlive: d.config.DisableKeepAlive,
		Logger:           d.config.ProtocolLogger,
		Endpoint:         endpoint,
	}, h)
	if err != nil {
		return nil, mapError("connect", err)
	}

	client := interaction.NewClient(conn)
	client.SetTimeout(d.config.RequestTimeout)
	if d.config.ProtocolLogger != nil {
		client.SetLogger(d.config.ProtocolLogger, conn.ConnID(), endpoint)
	}
	s := newSession(endpoint, conn, client, d.logger)
	client.SetCallbackHandler(s.onCallback)
	h.session.Store(s)

	hello, err := client.Hello(ctx, ep.ProgID, creds.User, []byte(creds.Password))
	if err != nil {
		_ = conn.Close()
		return nil, mapError("connect", err)
	}
	d.logger.Debug("DA session opened",
		"endpoint", endpoint, "server", hello.ServerName, "vendor", hello.Vendor,
		"session", hello.SessionID, "conn", conn.ConnID())
	return s, nil
}

// connHandler forwards connection events to the session once it exists.
type connHandler struct {
	session atomic.Pointer[Session]
}

func (h *connHandler) OnMessage(msg []byte) {
	if s := h.session.Load(); s != nil {
		s.onMessage(msg)
	}
}

func (h *connHandler) OnStateChange(_, newState transport.ConnState) {
	if newState != transport.StateDisconnected {
		return
	}
	if s := h.session.Load(); s != nil {
		s.onDisconnect()
	}
}
