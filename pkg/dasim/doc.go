// Package dasim is an in-memory DA bridge agent.
//
// It serves the bridge protocol from pkg/wire over pkg/transport on top of
// an AddressSpace of dot-separated item ids. Each connection gets its own
// groups. A group records changes of its items and sends one callback per
// update period with the items that changed since the last one; a newly
// added item is primed with its current value.
//
// The simulator is used by tests of the DA driver and the engine, and by
// cmd/da-sim for demos.
package dasim
