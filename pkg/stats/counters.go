package stats

import "sync/atomic"

// Counters are monotonically increasing engine counters. The zero value is
// ready to use.
type Counters struct {
	Reads     atomic.Uint64
	Hits      atomic.Uint64
	Misses    atomic.Uint64
	Failures  atomic.Uint64
	Pushes    atomic.Uint64
	Stale     atomic.Uint64
	Upgrades  atomic.Uint64
	Evictions atomic.Uint64
}

// Snapshot is a point-in-time copy of Counters.
type Snapshot struct {
	Reads     uint64
	Hits      uint64
	Misses    uint64
	Failures  uint64
	Pushes    uint64
	Stale     uint64
	Upgrades  uint64
	Evictions uint64

	CallsPerMinute int
}

// Snapshot copies the counters. A nil receiver yields zeros.
func (c *Counters) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	return Snapshot{
		Reads:     c.Reads.Load(),
		Hits:      c.Hits.Load(),
		Misses:    c.Misses.Load(),
		Failures:  c.Failures.Load(),
		Pushes:    c.Pushes.Load(),
		Stale:     c.Stale.Load(),
		Upgrades:  c.Upgrades.Load(),
		Evictions: c.Evictions.Load(),
	}
}

// HitRatio returns hits over hits plus misses, or 0 before any lookup.
func (s Snapshot) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
