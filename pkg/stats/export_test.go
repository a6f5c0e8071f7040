package stats

import "time"

// SetClock replaces the ring clock.
func (r *Rate) SetClock(now func() time.Time) {
	r.timeNow = now
}
