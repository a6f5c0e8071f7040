package engine

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/errgroup"

	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/backend"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/opcda"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/opcua"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/registry"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/stats"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/subscription"
)

// Status is the reachability of a backend server.
type Status string

const (
	StatusUp   Status = "UP"
	StatusDown Status = "DOWN"
)

// Result is the outcome of reading one item.
type Result struct {
	ID string

	// OK is false when the item could not be read; Kind and Error then
	// describe why.
	OK bool

	Value     any
	QualityOK bool

	// SourceTime is the backend timestamp of Value, LocalTime when the
	// gateway stored it.
	SourceTime time.Time
	LocalTime  time.Time

	// Kind is the normalized error code (UNREACHABLE, NOT_FOUND, ...).
	Kind string

	// Error is the original backend error text.
	Error string
}

// Node is one browse result.
type Node struct {
	Name        string
	ItemID      string
	Branch      bool
	DataType    string
	Unit        string
	Description string
	Readable    bool
	Writable    bool
}

// EndpointInfo describes one known backend endpoint.
type EndpointInfo struct {
	Endpoint string
	State    backend.State
	Tags     int
	Groups   int
}

// Engine is the browse/read surface for one protocol family.
type Engine struct {
	config Config
	family string
	logger *slog.Logger

	pool     *backend.Pool
	reg      *registry.Registry
	reaper   *registry.Reaper
	counters *stats.Counters
	rate     *stats.Rate
	browse   *expirable.LRU[browseKey, []Node]

	closed atomic.Bool
	cancel context.CancelFunc
}

// NewDA creates an engine for DA bridge endpoints (opcda://).
func NewDA(config Config, opts ...Option) (*Engine, error) {
	o := apply(opts)
	if o.driver == nil {
		if o.da.Logger == nil {
			o.da.Logger = config.Logger
		}
		if o.da.ProtocolLogger == nil {
			o.da.ProtocolLogger = config.ProtocolLogger
		}
		o.driver = opcda.NewDriver(o.da)
	}
	return New(config, o.driver, DefaultDAMinInterval)
}

// NewUA creates an engine for UA endpoints (opc.tcp://).
func NewUA(config Config, opts ...Option) (*Engine, error) {
	o := apply(opts)
	if o.driver == nil {
		if o.ua.Logger == nil {
			o.ua.Logger = config.Logger
		}
		o.driver = opcua.NewDriver(o.ua)
	}
	return New(config, o.driver, DefaultUAMinInterval)
}

func apply(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// New creates an engine over driver. minInterval is used when
// config.MinInterval is zero.
func New(config Config, driver backend.Driver, minInterval time.Duration) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config = config.withDefaults(minInterval)
	logger := config.Logger.With("family", driver.Family())

	e := &Engine{
		config:   config,
		family:   driver.Family(),
		logger:   logger,
		counters: &stats.Counters{},
		rate:     stats.NewRate(stats.DefaultRateCapacity),
	}
	e.pool = backend.NewPool(backend.PoolConfig{
		Driver:           driver,
		Credentials:      config.Credentials,
		OperationTimeout: config.OperationTimeout,
		Backoff:          config.Backoff,
		OnReconnect:      e.rebind,
		Logger:           logger,
		ProtocolLogger:   config.ProtocolLogger,
	})
	e.reg = registry.New(registry.Config{
		Sessions:       e.pool,
		GroupSizeLimit: config.GroupSizeLimit,
		MinInterval:    config.MinInterval,
		Stats:          e.counters,
		Logger:         logger,
		ProtocolLogger: config.ProtocolLogger,
	})
	if config.BrowseCacheTTL > 0 {
		e.browse = expirable.NewLRU[browseKey, []Node](config.BrowseCacheSize, nil, config.BrowseCacheTTL)
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.reaper = registry.NewReaper(e.reg, config.ReaperPeriod)
	e.reaper.Start(ctx)

	logger.Info("engine started",
		"min_interval", config.MinInterval,
		"group_size_limit", config.GroupSizeLimit,
		"reaper_period", e.reaper.Period())
	return e, nil
}

// Family returns the protocol family name.
func (e *Engine) Family() string {
	return e.family
}

// Read returns the current value of every id, subscribing each at interval
// when no faster subscription exists. It always returns one Result per id,
// in request order.
func (e *Engine) Read(ctx context.Context, endpoint string, ids []string, interval time.Duration) []Result {
	e.rate.Mark()
	e.counters.Reads.Add(uint64(len(ids)))

	results := make([]Result, len(ids))
	if e.closed.Load() {
		for i, id := range ids {
			results[i] = failure(id, ErrClosed)
		}
		return results
	}

	var eg errgroup.Group
	eg.SetLimit(e.config.ReadWorkers)
	for i, id := range ids {
		eg.Go(func() error {
			results[i] = e.readOne(ctx, endpoint, id, interval)
			return nil
		})
	}
	_ = eg.Wait()
	return results
}

func (e *Engine) readOne(ctx context.Context, endpoint, id string, interval time.Duration) Result {
	tag, err := e.reg.EnsureFreshAndGet(ctx, endpoint, id, interval)
	if err != nil {
		e.logger.Debug("item read failed", "endpoint", endpoint, "item", id, "error", err)
		return failure(id, err)
	}
	return Result{
		ID:         id,
		OK:         true,
		Value:      tag.Value,
		QualityOK:  tag.QualityOK,
		SourceTime: tag.SourceTime,
		LocalTime:  tag.LocalTime,
	}
}

func failure(id string, err error) Result {
	return Result{ID: id, Kind: backend.KindOf(err).String(), Error: backend.DetailOf(err)}
}

// ServerStatus reports whether endpoint is reachable and operational.
func (e *Engine) ServerStatus(ctx context.Context, endpoint string) Status {
	if e.closed.Load() {
		return StatusDown
	}
	sess, err := e.pool.Get(ctx, endpoint)
	if err == nil {
		err = sess.Status(ctx)
	}
	if err != nil {
		e.logger.Debug("server down", "endpoint", endpoint, "error", err)
		return StatusDown
	}
	return StatusUp
}

// Disconnect drops every tag of endpoint and closes its session. The next
// operation on endpoint connects again.
func (e *Engine) Disconnect(endpoint string) error {
	n := e.reg.DropEndpoint(endpoint)
	err := e.pool.Disconnect(endpoint)
	e.purgeBrowse(endpoint)
	e.logger.Info("endpoint disconnected", "endpoint", endpoint, "tags", n, "error", err)
	return err
}

// Tags returns a snapshot of all subscribed tags.
func (e *Engine) Tags() []registry.Tag {
	return e.reg.Snapshot()
}

// Groups returns the subscription groups of endpoint.
func (e *Engine) Groups(endpoint string) []subscription.Info {
	return e.reg.Groups(endpoint)
}

// Endpoints describes every endpoint the engine has connected to.
func (e *Engine) Endpoints() []EndpointInfo {
	tags := make(map[string]int)
	for _, t := range e.reg.Snapshot() {
		tags[t.Endpoint]++
	}
	eps := e.pool.Endpoints()
	out := make([]EndpointInfo, 0, len(eps))
	for _, ep := range eps {
		out = append(out, EndpointInfo{
			Endpoint: ep,
			State:    e.pool.State(ep),
			Tags:     tags[ep],
			Groups:   len(e.reg.Groups(ep)),
		})
	}
	return out
}

// Stats returns the engine counters and the Read calls of the last minute.
func (e *Engine) Stats() stats.Snapshot {
	s := e.counters.Snapshot()
	s.CallsPerMinute = e.rate.PerMinute()
	return s
}

// Sweep runs one reaper pass immediately.
func (e *Engine) Sweep(ctx context.Context) int {
	return e.reaper.Sweep(ctx)
}

// Close stops the reaper and closes every session. Subsequent reads fail
// with ErrClosed.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.reaper.Stop()
	e.cancel()
	err := e.pool.Close()
	if e.browse != nil {
		e.browse.Purge()
	}
	e.logger.Info("engine closed")
	return err
}

// rebind runs after the pool redialed an endpoint.
func (e *Engine) rebind(ctx context.Context, endpoint string, sess backend.Session) {
	if err := e.reg.Rebind(ctx, endpoint, sess); err != nil {
		e.logger.Warn("rebinding subscription groups failed", "endpoint", endpoint, "error", err)
	}
}
