package registry

import "time"

// SetClock replaces the registry clock, which the reaper shares.
func (r *Registry) SetClock(now func() time.Time) {
	r.timeNow = now
}
