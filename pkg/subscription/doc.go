// Package subscription manages backend subscription groups for one
// endpoint.
//
// A Group is a bounded bucket of items sharing one backend group and one
// update interval. Its lifecycle:
//
//	EMPTY ──first add──▶ ACTIVE ──last remove──▶ DRAINING ──▶ DESTROYED
//
// EMPTY only exists while New runs: New creates the backend group and adds
// the first item before returning, and releases the backend group again if
// that add fails. Removing the last member releases the backend group in the
// same call. AddItem and RemoveItem are idempotent.
//
// A Set holds the groups of one endpoint and finds or creates a group for an
// item at a given interval. Groups match when the requested interval equals
// either the interval they were requested at or the interval the backend
// granted, and they still have room.
//
// Pushes are translated from backend item handles to item ids and handed to
// the Sink together with the group ID, so the receiver can ignore updates
// from a group the item has already left.
package subscription
