package registry

import (
	"context"
	"sync"
	"time"

	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/log"
)

// DefaultReaperPeriod is the default sweep period.
const DefaultReaperPeriod = 10 * time.Second

// Reaper periodically evicts tags that have not been read recently.
//
// A tag whose requested interval is at most the period is evicted once it
// has been idle for longer than the period; slower tags are evicted once
// idle for longer than three intervals.
type Reaper struct {
	reg    *Registry
	period time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}
}

// NewReaper creates a reaper for reg. The period is floored at the
// registry's minimum interval.
func NewReaper(reg *Registry, period time.Duration) *Reaper {
	if period <= 0 {
		period = DefaultReaperPeriod
	}
	if period < reg.cfg.MinInterval {
		period = reg.cfg.MinInterval
	}
	return &Reaper{reg: reg, period: period}
}

// Period returns the sweep period.
func (rp *Reaper) Period() time.Duration {
	return rp.period
}

// Start begins sweeping in a goroutine. Starting a running reaper is a
// no-op.
func (rp *Reaper) Start(ctx context.Context) {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	if rp.running {
		return
	}
	rp.running = true
	rp.stopCh = make(chan struct{})
	rp.done = make(chan struct{})
	go rp.loop(ctx, rp.stopCh, rp.done)
}

// Stop ends the sweep loop and waits for an in-progress sweep.
func (rp *Reaper) Stop() {
	rp.mu.Lock()
	if !rp.running {
		rp.mu.Unlock()
		return
	}
	rp.running = false
	close(rp.stopCh)
	done := rp.done
	rp.mu.Unlock()
	<-done
}

func (rp *Reaper) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(rp.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if n := rp.Sweep(ctx); n > 0 {
				rp.reg.logger.Info("evicted idle tags", "count", n, "remaining", rp.reg.Len())
			}
		}
	}
}

// Sweep runs one pass and returns the number of evicted tags. Tags busy
// with a caller are skipped until the next pass.
func (rp *Reaper) Sweep(ctx context.Context) int {
	n := 0
	for _, e := range rp.reg.entries() {
		if ctx.Err() != nil {
			break
		}
		if !e.op.TryLock() {
			continue
		}
		if rp.reg.removeIf(ctx, e, rp.idle) {
			rp.reg.stats.Evictions.Add(1)
			rp.reg.logTag(log.TagEvicted, e.key, 0, 0)
			rp.reg.logger.Debug("tag evicted", "tag", e.key)
			n++
		}
		e.op.Unlock()
	}
	return n
}

// idle reports whether e is past its grace window. Caller holds e.mu.
func (rp *Reaper) idle(e *entry) bool {
	grace := rp.period
	if e.requested > rp.period {
		grace = 3 * e.requested
	}
	return rp.reg.timeNow().Sub(e.lastRequested) > grace
}
