// Package stats keeps gateway call statistics: a bounded ring buffer of
// recent call times for calls-per-minute, and atomic counters for cache
// hits, misses, pushes and evictions.
//
// Both are owned by an engine instance; there is no process-wide state.
package stats
