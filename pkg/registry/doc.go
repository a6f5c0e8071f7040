// Package registry maps (endpoint, item id) keys to registered tags holding
// the last known value of a backend item, and keeps each tag subscribed in
// a subscription group at the fastest interval any caller asked for.
//
// # Locking
//
// Registry.mu guards only the key index and the per-endpoint group sets and
// is never held across backend I/O. Each tag has two locks:
//
//   - op serializes creation, rate upgrade and eviction of the tag and is
//     held across the backend calls they make. Concurrent first readers of a
//     new key queue on it, so at most one of them subscribes the item.
//   - mu guards the value fields and is only held for copies, so pushes are
//     applied while a caller is blocked in backend I/O.
//
// Updates are ordered by source timestamp, or by capture sequence when the
// backend supplies none; late samples are discarded.
//
// The Reaper evicts tags nobody has read for a while. It skips tags whose op
// lock is held and re-checks idleness under it before removal.
package registry
