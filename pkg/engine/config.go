package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/backend"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/log"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/opcda"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/opcua"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/registry"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/subscription"
)

// Engine errors.
var (
	ErrClosed        = errors.New("engine closed")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Family minimum update intervals.
const (
	DefaultDAMinInterval = 250 * time.Millisecond
	DefaultUAMinInterval = 100 * time.Millisecond
)

// Config configures an Engine.
type Config struct {
	// GroupSizeLimit caps the members of one subscription group
	// (default: 40).
	GroupSizeLimit int

	// ReaperPeriod is the idle sweep period (default: 10s).
	ReaperPeriod time.Duration

	// OperationTimeout bounds every backend call (default: 10s).
	OperationTimeout time.Duration

	// ReadWorkers bounds concurrent item reads of one Read call
	// (default: 8).
	ReadWorkers int

	// BrowseCacheTTL is how long browse results are reused. Zero takes the
	// default (30s); negative disables the cache.
	BrowseCacheTTL time.Duration

	// BrowseCacheSize caps cached browse results (default: 256).
	BrowseCacheSize int

	// MinInterval floors requested update intervals. Zero takes the
	// family default.
	MinInterval time.Duration

	Backoff backend.BackoffConfig

	// Credentials returns the credentials of an endpoint (optional).
	Credentials func(endpoint string) backend.Credentials

	Logger         *slog.Logger
	ProtocolLogger log.Logger
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		GroupSizeLimit:   subscription.DefaultGroupSizeLimit,
		ReaperPeriod:     registry.DefaultReaperPeriod,
		OperationTimeout: 10 * time.Second,
		ReadWorkers:      8,
		BrowseCacheTTL:   30 * time.Second,
		BrowseCacheSize:  256,
	}
}

// Validate rejects negative limits.
func (c Config) Validate() error {
	switch {
	case c.GroupSizeLimit < 0:
		return fmt.Errorf("%w: group size limit %d", ErrInvalidConfig, c.GroupSizeLimit)
	case c.ReaperPeriod < 0:
		return fmt.Errorf("%w: reaper period %s", ErrInvalidConfig, c.ReaperPeriod)
	case c.OperationTimeout < 0:
		return fmt.Errorf("%w: operation timeout %s", ErrInvalidConfig, c.OperationTimeout)
	case c.ReadWorkers < 0:
		return fmt.Errorf("%w: read workers %d", ErrInvalidConfig, c.ReadWorkers)
	case c.BrowseCacheSize < 0:
		return fmt.Errorf("%w: browse cache size %d", ErrInvalidConfig, c.BrowseCacheSize)
	case c.MinInterval < 0:
		return fmt.Errorf("%w: min interval %s", ErrInvalidConfig, c.MinInterval)
	}
	return nil
}

func (c Config) withDefaults(minInterval time.Duration) Config {
	d := DefaultConfig()
	if c.GroupSizeLimit == 0 {
		c.GroupSizeLimit = d.GroupSizeLimit
	}
	if c.ReaperPeriod == 0 {
		c.ReaperPeriod = d.ReaperPeriod
	}
	if c.OperationTimeout == 0 {
		c.OperationTimeout = d.OperationTimeout
	}
	if c.ReadWorkers == 0 {
		c.ReadWorkers = d.ReadWorkers
	}
	if c.BrowseCacheTTL == 0 {
		c.BrowseCacheTTL = d.BrowseCacheTTL
	}
	if c.BrowseCacheSize == 0 {
		c.BrowseCacheSize = d.BrowseCacheSize
	}
	if c.MinInterval == 0 {
		c.MinInterval = minInterval
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// Option customizes engine construction.
type Option func(*options)

type options struct {
	driver backend.Driver
	da     opcda.Config
	ua     opcua.Config
}

// WithDriver replaces the family driver, for tests and custom backends.
func WithDriver(d backend.Driver) Option {
	return func(o *options) { o.driver = d }
}

// WithDAConfig configures the driver built by NewDA.
func WithDAConfig(c opcda.Config) Option {
	return func(o *options) { o.da = c }
}

// WithUAConfig configures the driver built by NewUA.
func WithUAConfig(c opcua.Config) Option {
	return func(o *options) { o.ua = c }
}
