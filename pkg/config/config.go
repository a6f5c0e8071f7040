// Package config loads the gateway configuration file.
//
// The file is YAML. Durations are Go duration strings ("250ms", "10s").
// Keys that are absent keep their defaults, so a minimal file only names
// what differs:
//
//	logLevel: debug
//	groupSizeLimit: 40
//	da:
//	  minInterval: 500ms
//	ua:
//	  securityPolicy: Basic256Sha256
//	  securityMode: SignAndEncrypt
//	  certFile: /etc/opcgw/client.pem
//	  keyFile: /etc/opcgw/client.key
//	endpoints:
//	  opc.tcp://plc1:4840:
//	    user: operator
//	    password: secret
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/backend"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/engine"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/log"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/opcda"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/opcua"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/transport"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the gateway configuration file.
type Config struct {
	LogLevel string `yaml:"logLevel"`

	// ProtocolLog is a path for CBOR protocol capture (optional).
	ProtocolLog string `yaml:"protocolLog"`

	// ProtocolLogMaxSize rotates the capture at this many bytes, 0 never.
	ProtocolLogMaxSize    int64 `yaml:"protocolLogMaxSize"`
	ProtocolLogMaxBackups int   `yaml:"protocolLogMaxBackups"`

	GroupSizeLimit   int                   `yaml:"groupSizeLimit"`
	ReaperPeriod     time.Duration         `yaml:"reaperPeriod"`
	OperationTimeout time.Duration         `yaml:"operationTimeout"`
	ReadWorkers      int                   `yaml:"readWorkers"`
	BrowseCacheTTL   time.Duration         `yaml:"browseCacheTTL"`
	Backoff          backend.BackoffConfig `yaml:"backoff"`

	DA        DAConfig                  `yaml:"da"`
	UA        UAConfig                  `yaml:"ua"`
	Discovery DiscoveryConfig           `yaml:"discovery"`
	Endpoints map[string]EndpointConfig `yaml:"endpoints"`
}

// DAConfig configures the DA bridge family.
type DAConfig struct {
	MinInterval    time.Duration `yaml:"minInterval"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	PingInterval   time.Duration `yaml:"pingInterval"`

	TLS TLSConfig `yaml:"tls"`
}

// TLSConfig enables TLS to bridge agents.
type TLSConfig struct {
	Enabled bool   `yaml:"enabled"`
	CAFile  string `yaml:"caFile"`

	// CertFile and KeyFile present a client certificate (optional).
	CertFile string `yaml:"certFile"`
	KeyFile  string `yaml:"keyFile"`

	ServerName         string `yaml:"serverName"`
	InsecureSkipVerify bool   `yaml:"insecureSkipVerify"`
}

// UAConfig configures the UA family.
type UAConfig struct {
	MinInterval    time.Duration `yaml:"minInterval"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	SessionTimeout time.Duration `yaml:"sessionTimeout"`
	SecurityPolicy string        `yaml:"securityPolicy"`
	SecurityMode   string        `yaml:"securityMode"`
	CertFile       string        `yaml:"certFile"`
	KeyFile        string        `yaml:"keyFile"`
	ApplicationURI string        `yaml:"applicationURI"`
}

// DiscoveryConfig configures mDNS discovery.
type DiscoveryConfig struct {
	Interface string        `yaml:"interface"`
	Timeout   time.Duration `yaml:"timeout"`
}

// EndpointConfig holds per-endpoint settings.
type EndpointConfig struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// LoadError reports a configuration file that could not be used.
type LoadError struct {
	File    string
	Message string
	Cause   error
}

func (e *LoadError) Error() string {
	msg := e.Message
	if e.File != "" {
		msg = e.File + ": " + msg
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *LoadError) Unwrap() error { return e.Cause }

// Default returns the built-in configuration.
func Default() *Config {
	d := engine.DefaultConfig()
	return &Config{
		LogLevel:              "info",
		ProtocolLogMaxSize:    64 << 20,
		ProtocolLogMaxBackups: log.DefaultMaxBackups,
		GroupSizeLimit:        d.GroupSizeLimit,
		ReaperPeriod:     d.ReaperPeriod,
		OperationTimeout: d.OperationTimeout,
		ReadWorkers:      d.ReadWorkers,
		BrowseCacheTTL:   d.BrowseCacheTTL,
		Backoff: backend.BackoffConfig{
			Initial:    backend.InitialBackoff,
			Max:        backend.MaxBackoff,
			Multiplier: backend.BackoffMultiplier,
			Jitter:     backend.JitterFactor,
		},
		DA: DAConfig{
			MinInterval:    engine.DefaultDAMinInterval,
			RequestTimeout: 10 * time.Second,
			PingInterval:   transport.DefaultPingInterval,
		},
		UA: UAConfig{
			MinInterval:    engine.DefaultUAMinInterval,
			RequestTimeout: 10 * time.Second,
			SessionTimeout: time.Minute,
			ApplicationURI: opcua.DefaultApplicationURI,
		},
		Discovery: DiscoveryConfig{Timeout: 3 * time.Second},
	}
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &LoadError{Message: "failed to parse YAML", Cause: err}
	}
	if err := cfg.Validate(); err != nil {
		return nil, &LoadError{Message: "invalid configuration", Cause: err}
	}
	return cfg, nil
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: "failed to read file", Cause: err}
	}
	cfg, err := Parse(data)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.File = path
		}
		return nil, err
	}
	return cfg, nil
}

// Validate rejects non-positive limits and unusable settings.
func (c *Config) Validate() error {
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch {
	case c.GroupSizeLimit <= 0:
		return fmt.Errorf("%w: groupSizeLimit must be positive, got %d", ErrInvalid, c.GroupSizeLimit)
	case c.ReaperPeriod <= 0:
		return fmt.Errorf("%w: reaperPeriod must be positive, got %s", ErrInvalid, c.ReaperPeriod)
	case c.OperationTimeout <= 0:
		return fmt.Errorf("%w: operationTimeout must be positive, got %s", ErrInvalid, c.OperationTimeout)
	case c.ReadWorkers <= 0:
		return fmt.Errorf("%w: readWorkers must be positive, got %d", ErrInvalid, c.ReadWorkers)
	case c.DA.MinInterval <= 0:
		return fmt.Errorf("%w: da.minInterval must be positive, got %s", ErrInvalid, c.DA.MinInterval)
	case c.UA.MinInterval <= 0:
		return fmt.Errorf("%w: ua.minInterval must be positive, got %s", ErrInvalid, c.UA.MinInterval)
	case c.Backoff.Initial < 0 || c.Backoff.Max < 0:
		return fmt.Errorf("%w: backoff durations must not be negative", ErrInvalid)
	case c.Backoff.Max > 0 && c.Backoff.Initial > c.Backoff.Max:
		return fmt.Errorf("%w: backoff.initial %s exceeds backoff.max %s", ErrInvalid, c.Backoff.Initial, c.Backoff.Max)
	case c.Backoff.Jitter < 0 || c.Backoff.Jitter > 1:
		return fmt.Errorf("%w: backoff.jitter must be within [0,1], got %g", ErrInvalid, c.Backoff.Jitter)
	case (c.UA.CertFile == "") != (c.UA.KeyFile == ""):
		return fmt.Errorf("%w: ua.certFile and ua.keyFile must be set together", ErrInvalid)
	case c.ProtocolLogMaxSize < 0 || c.ProtocolLogMaxBackups < 0:
		return fmt.Errorf("%w: protocol log rotation limits must not be negative", ErrInvalid)
	case c.DA.TLS.CAFile != "" && !c.DA.TLS.Enabled:
		return fmt.Errorf("%w: da.tls.caFile set but TLS disabled", ErrInvalid)
	case (c.DA.TLS.CertFile == "") != (c.DA.TLS.KeyFile == ""):
		return fmt.Errorf("%w: da.tls.certFile and da.tls.keyFile must be set together", ErrInvalid)
	}
	policy := strings.ToLower(c.UA.SecurityPolicy)
	if policy != "" && policy != "none" && c.UA.CertFile == "" {
		return fmt.Errorf("%w: ua.securityPolicy %s requires ua.certFile", ErrInvalid, c.UA.SecurityPolicy)
	}
	for ep := range c.Endpoints {
		if strings.TrimSpace(ep) == "" {
			return fmt.Errorf("%w: empty endpoint key", ErrInvalid)
		}
	}
	return nil
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if name == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("%w: log level %q", ErrInvalid, name)
	}
	return level, nil
}

// Credentials returns the credentials configured for an endpoint. A
// trailing slash on either side is ignored.
func (c *Config) Credentials(endpoint string) backend.Credentials {
	if ep, ok := c.Endpoints[endpoint]; ok {
		return backend.Credentials{User: ep.User, Password: ep.Password}
	}
	trimmed := strings.TrimSuffix(endpoint, "/")
	for key, ep := range c.Endpoints {
		if strings.TrimSuffix(key, "/") == trimmed {
			return backend.Credentials{User: ep.User, Password: ep.Password}
		}
	}
	return backend.Credentials{}
}

// CaptureOptions returns the rotation options of the protocol capture file.
func (c *Config) CaptureOptions() []log.FileOption {
	return []log.FileOption{
		log.WithMaxSize(c.ProtocolLogMaxSize),
		log.WithMaxBackups(c.ProtocolLogMaxBackups),
	}
}

// Engine returns the engine configuration for one family.
func (c *Config) Engine(family string, logger *slog.Logger) engine.Config {
	ec := engine.Config{
		GroupSizeLimit:   c.GroupSizeLimit,
		ReaperPeriod:     c.ReaperPeriod,
		OperationTimeout: c.OperationTimeout,
		ReadWorkers:      c.ReadWorkers,
		BrowseCacheTTL:   c.BrowseCacheTTL,
		Backoff:          c.Backoff,
		Credentials:      c.Credentials,
		Logger:           logger,
	}
	switch family {
	case opcda.Family:
		ec.MinInterval = c.DA.MinInterval
	case opcua.Family:
		ec.MinInterval = c.UA.MinInterval
	}
	return ec
}

// DADriver returns the DA driver configuration.
func (c *Config) DADriver(logger *slog.Logger) (opcda.Config, error) {
	dc := opcda.Config{
		RequestTimeout: c.DA.RequestTimeout,
		Logger:         logger,
	}
	dc.KeepAlive = transport.DefaultKeepAliveConfig()
	if c.DA.PingInterval > 0 {
		dc.KeepAlive.PingInterval = c.DA.PingInterval
	}
	if c.DA.TLS.Enabled {
		tlsConfig, err := c.DA.TLS.build()
		if err != nil {
			return opcda.Config{}, err
		}
		dc.TLS = tlsConfig
	}
	return dc, nil
}

// UADriver returns the UA driver configuration.
func (c *Config) UADriver(logger *slog.Logger) opcua.Config {
	return opcua.Config{
		SecurityPolicy: c.UA.SecurityPolicy,
		SecurityMode:   c.UA.SecurityMode,
		CertFile:       c.UA.CertFile,
		KeyFile:        c.UA.KeyFile,
		ApplicationURI: c.UA.ApplicationURI,
		RequestTimeout: c.UA.RequestTimeout,
		SessionTimeout: c.UA.SessionTimeout,
		Logger:         logger,
	}
}

func (t TLSConfig) build() (*tls.Config, error) {
	tc, err := transport.TLSFiles{
		CertFile:           t.CertFile,
		KeyFile:            t.KeyFile,
		CAFile:             t.CAFile,
		ServerName:         t.ServerName,
		InsecureSkipVerify: t.InsecureSkipVerify,
	}.Load()
	if err != nil {
		return nil, &LoadError{File: t.CAFile, Message: "invalid da.tls", Cause: err}
	}
	return tc, nil
}
