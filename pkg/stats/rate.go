package stats

import (
	"sync"
	"time"
)

// DefaultRateCapacity bounds the number of remembered call times.
const DefaultRateCapacity = 4096

// Rate records call times in a fixed-size ring. When the ring is full the
// oldest entry is overwritten, so rates above capacity per window saturate.
type Rate struct {
	mu    sync.Mutex
	times []time.Time
	head  int
	size  int

	// timeNow is injectable for tests.
	timeNow func() time.Time
}

// NewRate creates a ring holding up to capacity call times.
func NewRate(capacity int) *Rate {
	if capacity <= 0 {
		capacity = DefaultRateCapacity
	}
	return &Rate{times: make([]time.Time, capacity), timeNow: time.Now}
}

// Mark records one call now.
func (r *Rate) Mark() {
	r.MarkN(1)
}

// MarkN records n calls now.
func (r *Rate) MarkN(n int) {
	now := r.timeNow()
	r.mu.Lock()
	defer r.mu.Unlock()
	for range n {
		r.times[r.head] = now
		r.head = (r.head + 1) % len(r.times)
		if r.size < len(r.times) {
			r.size++
		}
	}
}

// Count returns the number of calls within the last window.
func (r *Rate) Count(window time.Duration) int {
	cutoff := r.timeNow().Add(-window)
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	// Walk newest to oldest; times are non-decreasing in write order.
	for i := 1; i <= r.size; i++ {
		t := r.times[(r.head-i+len(r.times))%len(r.times)]
		if !t.After(cutoff) {
			break
		}
		n++
	}
	return n
}

// PerMinute returns the number of calls in the last minute.
func (r *Rate) PerMinute() int {
	return r.Count(time.Minute)
}
