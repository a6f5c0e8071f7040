package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Keep-alive defaults.
const (
	DefaultPingInterval   = 30 * time.Second
	DefaultPongTimeout    = 5 * time.Second
	DefaultMaxMissedPongs = 3
)

// KeepAliveConfig configures keep-alive behavior.
type KeepAliveConfig struct {
	PingInterval   time.Duration
	PongTimeout    time.Duration
	MaxMissedPongs int
}

// DefaultKeepAliveConfig returns the default keep-alive configuration.
func DefaultKeepAliveConfig() KeepAliveConfig {
	return KeepAliveConfig{
		PingInterval:   DefaultPingInterval,
		PongTimeout:    DefaultPongTimeout,
		MaxMissedPongs: DefaultMaxMissedPongs,
	}
}

// DetectionDelay is the longest a dead peer can go unnoticed.
func (c KeepAliveConfig) DetectionDelay() time.Duration {
	return c.PingInterval*time.Duration(c.MaxMissedPongs) + c.PongTimeout
}

func (c KeepAliveConfig) withDefaults() KeepAliveConfig {
	d := DefaultKeepAliveConfig()
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = d.PongTimeout
	}
	if c.MaxMissedPongs <= 0 {
		c.MaxMissedPongs = d.MaxMissedPongs
	}
	return c
}

// KeepAliveStats contains keep-alive statistics.
type KeepAliveStats struct {
	LastPingTime time.Time
	LastPongTime time.Time
	LastLatency  time.Duration
	MissedPongs  int
	CurrentSeq   uint32
}

// KeepAlive sends periodic pings and calls onTimeout once MaxMissedPongs
// consecutive pings went unanswered.
type KeepAlive struct {
	config    KeepAliveConfig
	sendPing  func(seq uint32) error
	onTimeout func()

	sequence atomic.Uint32
	pongCh   chan uint32

	mu          sync.Mutex
	stats       KeepAliveStats
	pendingPing uint32
	hasPending  bool
	running     bool
	stopCh      chan struct{}
}

// NewKeepAlive creates a keep-alive monitor. Zero config fields take defaults.
func NewKeepAlive(config KeepAliveConfig, sendPing func(seq uint32) error, onTimeout func()) *KeepAlive {
	return &KeepAlive{
		config:    config.withDefaults(),
		sendPing:  sendPing,
		onTimeout: onTimeout,
		pongCh:    make(chan uint32, 1),
	}
}

// Start begins the monitoring loop. Starting a running monitor is a no-op.
func (ka *KeepAlive) Start(ctx context.Context) {
	ka.mu.Lock()
	if ka.running {
		ka.mu.Unlock()
		return
	}
	ka.running = true
	ka.stopCh = make(chan struct{})
	stop := ka.stopCh
	ka.mu.Unlock()

	go ka.loop(ctx, stop)
}

// Stop ends the monitoring loop.
func (ka *KeepAlive) Stop() {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	if !ka.running {
		return
	}
	ka.running = false
	close(ka.stopCh)
}

// IsRunning reports whether the monitoring loop is active.
func (ka *KeepAlive) IsRunning() bool {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return ka.running
}

// PongReceived records a pong. Pongs for anything but the outstanding ping
// are ignored.
func (ka *KeepAlive) PongReceived(seq uint32) {
	select {
	case ka.pongCh <- seq:
	default:
	}
}

// Stats returns a snapshot of the keep-alive statistics.
func (ka *KeepAlive) Stats() KeepAliveStats {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	s := ka.stats
	s.CurrentSeq = ka.sequence.Load()
	return s
}

func (ka *KeepAlive) loop(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(ka.config.PingInterval)
	defer ticker.Stop()

	ka.ping()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if ka.checkMissed() {
				ka.Stop()
				if ka.onTimeout != nil {
					ka.onTimeout()
				}
				return
			}
			ka.ping()
		case seq := <-ka.pongCh:
			ka.handlePong(seq)
		}
	}
}

func (ka *KeepAlive) ping() {
	seq := ka.sequence.Add(1)

	ka.mu.Lock()
	ka.stats.LastPingTime = time.Now()
	ka.pendingPing = seq
	ka.hasPending = true
	ka.mu.Unlock()

	// A failed send is treated like a lost pong.
	_ = ka.sendPing(seq)
}

// checkMissed counts an overdue ping and reports whether the limit is hit.
func (ka *KeepAlive) checkMissed() bool {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	if !ka.hasPending || time.Since(ka.stats.LastPingTime) < ka.config.PongTimeout {
		return false
	}
	ka.hasPending = false
	ka.stats.MissedPongs++
	return ka.stats.MissedPongs >= ka.config.MaxMissedPongs
}

func (ka *KeepAlive) handlePong(seq uint32) {
	ka.mu.Lock()
	defer ka.mu.Unlock()

	now := time.Now()
	ka.stats.LastPongTime = now
	if ka.hasPending && seq == ka.pendingPing {
		ka.stats.LastLatency = now.Sub(ka.stats.LastPingTime)
		ka.stats.MissedPongs = 0
		ka.hasPending = false
	}
}
