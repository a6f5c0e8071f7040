package backend

import "time"

// SetClock replaces the pool clock.
func (p *Pool) SetClock(now func() time.Time) {
	p.timeNow = now
}
