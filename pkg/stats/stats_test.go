package stats_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/stats"
)

func TestRateCountsWithinWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r := stats.NewRate(16)
	r.SetClock(func() time.Time { return now })

	r.MarkN(3)
	now = now.Add(30 * time.Second)
	r.Mark()
	assert.Equal(t, 4, r.PerMinute())

	now = now.Add(45 * time.Second)
	assert.Equal(t, 1, r.PerMinute())
	assert.Equal(t, 4, r.Count(2*time.Minute))

	now = now.Add(time.Minute)
	assert.Equal(t, 0, r.PerMinute())
}

func TestRateSaturatesAtCapacity(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r := stats.NewRate(4)
	r.SetClock(func() time.Time { return now })

	r.MarkN(10)
	assert.Equal(t, 4, r.PerMinute())
}

func TestCountersSnapshot(t *testing.T) {
	var c stats.Counters
	c.Hits.Add(3)
	c.Misses.Add(1)
	c.Evictions.Add(2)

	s := c.Snapshot()
	assert.Equal(t, uint64(3), s.Hits)
	assert.Equal(t, uint64(2), s.Evictions)
	assert.InDelta(t, 0.75, s.HitRatio(), 1e-9)

	var nilCounters *stats.Counters
	assert.Equal(t, stats.Snapshot{}, nilCounters.Snapshot())
	assert.Zero(t, stats.Snapshot{}.HitRatio())
}
